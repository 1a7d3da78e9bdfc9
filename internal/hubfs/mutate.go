package hubfs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/hubfs/internal/cache"
	"github.com/any-hub/hubfs/internal/hub"
	"github.com/any-hub/hubfs/internal/logging"
)

// CommitOptions 覆盖默认的提交标题与描述。
type CommitOptions struct {
	Message     string
	Description string
	// Revision 覆盖路径中的 revision。
	Revision string
}

func (o CommitOptions) message(fallback string) string {
	if o.Message != "" {
		return o.Message
	}
	return fallback
}

// RmOptions 控制 Rm 的展开方式。
type RmOptions struct {
	CommitOptions
	Recursive bool
	// MaxDepth 为 0 表示不限深度，负数非法。
	MaxDepth int
}

// Rm 展开 p（通配符或递归）得到文件集合，以一次提交全部删除，随后使缓存失效。
func (fsys *FileSystem) Rm(ctx context.Context, p string, opts RmOptions) error {
	if opts.MaxDepth < 0 {
		return errValidationDepth(opts.MaxDepth)
	}
	rp, err := fsys.resolver.Resolve(ctx, p, opts.Revision)
	if err != nil {
		return err
	}
	paths, err := fsys.ExpandPath(ctx, []string{rp.Unresolve()}, ExpandOptions{Recursive: opts.Recursive, MaxDepth: opts.MaxDepth})
	if err != nil {
		return err
	}

	var ops []hub.Operation
	var deleted []string
	for _, name := range paths {
		child := childPath(rp, name)
		item, err := fsys.info(ctx, child)
		if err != nil {
			return err
		}
		if item.IsDir() {
			continue
		}
		ops = append(ops, hub.CommitOperationDelete{PathInRepo: child.PathInRepo})
		deleted = append(deleted, name)
	}
	if len(ops) == 0 {
		return fileNotFound(p, ErrIsDir)
	}

	fallback := fmt.Sprintf("Delete %s ", p)
	if opts.Recursive {
		fallback += "recursively "
	}
	if opts.MaxDepth > 0 {
		fallback += fmt.Sprintf("up to depth %d ", opts.MaxDepth)
	}
	fallback += "with hubfs"

	return fsys.commit(ctx, rp, hub.Commit{
		Summary:     opts.message(fallback),
		Description: opts.Description,
		Operations:  ops,
	}, append(deleted, rp.Unresolve())...)
}

// RmFile 删除单个文件。
func (fsys *FileSystem) RmFile(ctx context.Context, p string, opts CommitOptions) error {
	rp, err := fsys.resolver.Resolve(ctx, p, opts.Revision)
	if err != nil {
		return err
	}
	item, err := fsys.info(ctx, rp)
	if err != nil {
		return err
	}
	if item.IsDir() {
		return fmt.Errorf("%w: %s", ErrIsDir, item.Name)
	}
	return fsys.commit(ctx, rp, hub.Commit{
		Summary:     opts.message(fmt.Sprintf("Delete %s with hubfs", p)),
		Description: opts.Description,
		Operations:  []hub.Operation{hub.CommitOperationDelete{PathInRepo: rp.PathInRepo}},
	}, item.Name)
}

// CpFile 复制文件。源与目标在同一仓库且源文件位于 LFS 时，只提交指针，
// 不重新上传内容；否则读取源文件后整体上传。
func (fsys *FileSystem) CpFile(ctx context.Context, src, dst string, opts CommitOptions) error {
	srcPath, err := fsys.resolver.Resolve(ctx, src, "")
	if err != nil {
		return err
	}
	dstPath, err := fsys.resolver.Resolve(ctx, dst, opts.Revision)
	if err != nil {
		return err
	}
	if dstPath.IsRoot() {
		return fmt.Errorf("%w: %s is a repository root", ErrIsDir, dstPath.Unresolve())
	}
	item, err := fsys.info(ctx, srcPath)
	if err != nil {
		return err
	}
	if item.IsDir() {
		return fmt.Errorf("%w: %s", ErrIsDir, item.Name)
	}

	summary := opts.message(fmt.Sprintf("Copy %s to %s with hubfs", src, dst))
	sameRepo := srcPath.RepoType == dstPath.RepoType && srcPath.RepoID == dstPath.RepoID
	if sameRepo && item.LFS != nil {
		return fsys.commit(ctx, dstPath, hub.Commit{
			Summary:     summary,
			Description: opts.Description,
			Operations: []hub.Operation{hub.CommitOperationCopy{
				PathInRepo: dstPath.PathInRepo,
				Algo:       item.LFS.Algo,
				OID:        item.LFS.OID,
			}},
		}, dstPath.Unresolve())
	}

	reader, err := fsys.open(ctx, srcPath, modeRead, OpenOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()
	return fsys.upload(ctx, dstPath, reader, CommitOptions{Message: summary, Description: opts.Description})
}

// WriteFile 以一次提交写入 data。
func (fsys *FileSystem) WriteFile(ctx context.Context, p string, data []byte, opts CommitOptions) error {
	rp, err := fsys.resolver.Resolve(ctx, p, opts.Revision)
	if err != nil {
		return err
	}
	if rp.IsRoot() {
		return fmt.Errorf("%w: %s is a repository root", ErrIsDir, rp.Unresolve())
	}
	return fsys.commit(ctx, rp, hub.Commit{
		Summary:     opts.message(fmt.Sprintf("Upload %s with hubfs", rp.PathInRepo)),
		Description: opts.Description,
		Operations:  []hub.Operation{hub.CommitOperationAdd{PathInRepo: rp.PathInRepo, Content: data}},
	}, rp.Unresolve())
}

// Upload 将 body 先落盘到临时文件，再以一次提交上传到 p。临时文件在任何情况下都会被删除。
func (fsys *FileSystem) Upload(ctx context.Context, p string, body io.Reader, opts CommitOptions) error {
	rp, err := fsys.resolver.Resolve(ctx, p, opts.Revision)
	if err != nil {
		return err
	}
	if rp.IsRoot() {
		return fmt.Errorf("%w: %s is a repository root", ErrIsDir, rp.Unresolve())
	}
	return fsys.upload(ctx, rp, body, opts)
}

func (fsys *FileSystem) upload(ctx context.Context, rp ResolvedPath, body io.Reader, opts CommitOptions) (err error) {
	scratch, err := fsys.scratch.Create(cache.Locator{HubName: fsys.scratchHub(), Path: rp.PathInRepo})
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := scratch.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	if _, err := scratch.Fill(ctx, body); err != nil {
		return err
	}
	return fsys.commitScratch(ctx, rp, scratch, opts)
}

func (fsys *FileSystem) commitScratch(ctx context.Context, rp ResolvedPath, scratch *cache.ScratchFile, opts CommitOptions) error {
	size, err := scratch.Size()
	if err != nil {
		return err
	}
	fsys.logger.WithFields(logging.RepoFields(fsys.name, string(rp.RepoType), rp.RepoID, rp.Revision)).WithFields(logrus.Fields{
		"action": "upload",
		"path":   rp.PathInRepo,
		"size":   humanize.Bytes(uint64(size)),
	}).Debug("upload_prepared")
	return fsys.commit(ctx, rp, hub.Commit{
		Summary:     opts.message(fmt.Sprintf("Upload %s with hubfs", rp.PathInRepo)),
		Description: opts.Description,
		Operations:  []hub.Operation{hub.CommitOperationAdd{PathInRepo: rp.PathInRepo, LocalPath: scratch.Name()}},
	}, rp.Unresolve())
}

// commit 提交后使 invalidate 中每个路径（及其祖先、后代）的目录缓存失效。
// 提交失败时同样失效，避免缓存与远端状态不一致。
func (fsys *FileSystem) commit(ctx context.Context, rp ResolvedPath, commit hub.Commit, invalidate ...string) error {
	err := fsys.client.Commit(ctx, rp.RepoType, rp.RepoID, rp.Revision, commit)
	for _, key := range invalidate {
		fsys.dircache.Invalidate(key)
	}
	entry := fsys.logger.WithFields(logging.RepoFields(fsys.name, string(rp.RepoType), rp.RepoID, rp.Revision)).WithFields(logrus.Fields{
		"action":     "commit",
		"summary":    commit.Summary,
		"operations": len(commit.Operations),
	})
	if err != nil {
		entry.WithError(err).Warn("commit_failed")
		if hub.IsNotFound(err) && !errors.Is(err, hub.ErrInvalidRepoID) {
			return fileNotFound(rp.Unresolve(), err)
		}
		return err
	}
	entry.Info("commit_succeeded")
	return nil
}

func (fsys *FileSystem) scratchHub() string {
	if fsys.name == "" {
		return "default"
	}
	return fsys.name
}
