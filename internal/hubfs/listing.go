package hubfs

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/hubfs/internal/cache"
	"github.com/any-hub/hubfs/internal/hub"
	"github.com/any-hub/hubfs/internal/logging"
)

// ListOptions 控制 Ls 的行为。
type ListOptions struct {
	// Revision 覆盖路径中的 revision。
	Revision string
	// Refresh 忽略已缓存的列表，强制重新请求。
	Refresh bool
	// Recursive 返回全部后代（文件与目录）而非直接子项。
	Recursive bool
}

// Ls 列出目录内容；p 为文件时返回仅含该文件的列表。
func (fsys *FileSystem) Ls(ctx context.Context, p string, opts ListOptions) ([]Info, error) {
	rp, err := fsys.resolver.Resolve(ctx, p, opts.Revision)
	if err != nil {
		return nil, err
	}
	return fsys.lsTree(ctx, rp, opts.Recursive, opts.Refresh)
}

// LsNames 与 Ls 相同，但只返回名称。
func (fsys *FileSystem) LsNames(ctx context.Context, p string, opts ListOptions) ([]string, error) {
	items, err := fsys.Ls(ctx, p, opts)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	return names, nil
}

func (fsys *FileSystem) lsTree(ctx context.Context, rp ResolvedPath, recursive, refresh bool) ([]Info, error) {
	key := rp.Unresolve()
	if !refresh {
		if items, ok := fsys.dircache.Get(key); ok {
			if !recursive {
				return items, nil
			}
			if out, complete := fsys.collectCached(key); complete {
				return out, nil
			}
		}
	}

	if err := fsys.populate(ctx, rp, recursive); err != nil {
		if !errors.Is(err, hub.ErrEntryNotFound) || rp.IsRoot() {
			if hub.IsNotFound(err) {
				return nil, fileNotFound(key, err)
			}
			return nil, err
		}
		// 路径可能是文件：从父目录列表中取出该条目。
		siblings, perr := fsys.lsTree(ctx, rp.Parent(), false, refresh)
		if perr != nil {
			if errors.Is(perr, ErrFileNotFound) {
				return nil, fileNotFound(key, err)
			}
			return nil, perr
		}
		for _, item := range siblings {
			if item.Name == key && !item.IsDir() {
				return []Info{item}, nil
			}
		}
		return nil, fileNotFound(key, err)
	}

	if !recursive {
		items, ok := fsys.dircache.Get(key)
		if !ok {
			return nil, fileNotFound(key, nil)
		}
		return items, nil
	}
	out, _ := fsys.collectCached(key)
	return out, nil
}

// populate 分页拉取 rp 下的 tree，并把每个条目写入其父目录的缓存列表。
// 叶子与查询根之间的每一级祖先目录都会作为目录条目加入各自父目录，且只出现一次。
func (fsys *FileSystem) populate(ctx context.Context, rp ResolvedPath, recursive bool) error {
	key := rp.Unresolve()
	root := strings.Trim(rp.PathInRepo, "/")
	listings := map[string][]Info{key: {}}
	seen := map[string]map[string]struct{}{key: {}}
	add := func(dir string, item Info) {
		if seen[dir] == nil {
			seen[dir] = make(map[string]struct{})
		}
		if _, ok := seen[dir][item.Name]; ok {
			return
		}
		seen[dir][item.Name] = struct{}{}
		listings[dir] = append(listings[dir], item)
	}
	ensure := func(dir string) {
		if _, ok := listings[dir]; !ok {
			listings[dir] = []Info{}
			seen[dir] = make(map[string]struct{})
		}
	}

	count := 0
	for entry, err := range fsys.client.Tree(ctx, rp.RepoType, rp.RepoID, rp.Revision, root, recursive) {
		if err != nil {
			return err
		}
		count++
		entryPath := strings.Trim(entry.Path, "/")
		item := toInfo(rp.WithPath(entryPath).Unresolve(), entry)
		add(rp.WithPath(dirOf(entryPath)).Unresolve(), item)
		if item.IsDir() && recursive {
			ensure(item.Name)
		}

		for dir := dirOf(entryPath); isStrictlyBelow(dir, root); dir = dirOf(dir) {
			ancestor := rp.WithPath(dir).Unresolve()
			add(rp.WithPath(dirOf(dir)).Unresolve(), Info{Name: ancestor, Type: cache.TypeDirectory})
			if recursive {
				ensure(ancestor)
			}
		}
	}

	for dir, items := range listings {
		fsys.dircache.Set(dir, items)
	}
	fsys.logger.WithFields(logging.RepoFields(fsys.name, string(rp.RepoType), rp.RepoID, rp.Revision)).WithFields(logrus.Fields{
		"action":      "ls_tree",
		"path":        root,
		"recursive":   recursive,
		"entries":     count,
		"directories": len(listings),
	}).Debug("tree_listed")
	return nil
}

func dirOf(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

func isStrictlyBelow(dir, root string) bool {
	if dir == "" || dir == root {
		return false
	}
	if root == "" {
		return true
	}
	return strings.HasPrefix(dir, root+"/")
}

// collectCached 深度优先汇总 key 下已缓存的全部后代；任何子目录缺失时 complete 为 false。
func (fsys *FileSystem) collectCached(key string) ([]Info, bool) {
	items, ok := fsys.dircache.Get(key)
	if !ok {
		return nil, false
	}
	var out []Info
	for _, item := range items {
		out = append(out, item)
		if !item.IsDir() {
			continue
		}
		sub, complete := fsys.collectCached(item.Name)
		if !complete {
			return nil, false
		}
		out = append(out, sub...)
	}
	return out, true
}

func toInfo(name string, entry hub.TreeEntry) Info {
	item := Info{
		Name:   name,
		Type:   cache.TypeFile,
		Size:   entry.Size,
		BlobID: entry.OID,
	}
	if entry.IsDir() {
		item.Type = cache.TypeDirectory
		item.Size = 0
	}
	if entry.LFS != nil {
		item.LFS = &cache.LFSPointer{Algo: "sha256", OID: entry.LFS.OID, Size: entry.LFS.Size}
		item.Size = entry.LFS.Size
	}
	if entry.LastCommit != nil {
		item.LastModified = entry.LastCommit.Date
	}
	return item
}

// Info 返回 p 的描述。仓库根目录直接合成目录描述，不发起请求；
// 其它路径从父目录列表中查找。
func (fsys *FileSystem) Info(ctx context.Context, p string) (Info, error) {
	return fsys.InfoAt(ctx, p, "")
}

// InfoAt 与 Info 相同，revision 覆盖路径中的 revision。
func (fsys *FileSystem) InfoAt(ctx context.Context, p, revision string) (Info, error) {
	rp, err := fsys.resolver.Resolve(ctx, p, revision)
	if err != nil {
		return Info{}, err
	}
	return fsys.info(ctx, rp)
}

func (fsys *FileSystem) info(ctx context.Context, rp ResolvedPath) (Info, error) {
	key := rp.Unresolve()
	if rp.IsRoot() {
		return Info{Name: key, Type: cache.TypeDirectory}, nil
	}
	siblings, err := fsys.lsTree(ctx, rp.Parent(), false, false)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return Info{}, fileNotFound(key, err)
		}
		return Info{}, err
	}
	for _, item := range siblings {
		if item.Name == key {
			return item, nil
		}
	}
	return Info{}, fileNotFound(key, nil)
}

// Modified 返回文件最后一次提交的时间；目录或不存在的路径返回 ErrFileNotFound。
func (fsys *FileSystem) Modified(ctx context.Context, p string) (time.Time, error) {
	item, err := fsys.Info(ctx, p)
	if err != nil {
		return time.Time{}, err
	}
	if item.IsDir() {
		return time.Time{}, fileNotFound(item.Name, ErrIsDir)
	}
	return item.LastModified, nil
}

// Exists 判断路径是否存在；不存在类错误返回 false 与 nil。
func (fsys *FileSystem) Exists(ctx context.Context, p string) (bool, error) {
	_, err := fsys.Info(ctx, p)
	return existsResult(err)
}

// IsDir 判断路径是否为目录（包括仓库根目录）。
func (fsys *FileSystem) IsDir(ctx context.Context, p string) (bool, error) {
	item, err := fsys.Info(ctx, p)
	if ok, err := existsResult(err); !ok {
		return false, err
	}
	return item.IsDir(), nil
}

// IsFile 判断路径是否为文件。
func (fsys *FileSystem) IsFile(ctx context.Context, p string) (bool, error) {
	item, err := fsys.Info(ctx, p)
	if ok, err := existsResult(err); !ok {
		return false, err
	}
	return !item.IsDir(), nil
}

func existsResult(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// FindOptions 控制 Find 的深度与是否包含目录。
type FindOptions struct {
	// MaxDepth 为 0 表示不限深度，负数非法。
	MaxDepth int
	WithDirs bool
}

// Find 返回 p 下的全部文件（可选包含目录），按名称排序；p 为文件时返回其自身。
// 路径不存在时返回空列表。
func (fsys *FileSystem) Find(ctx context.Context, p string, opts FindOptions) ([]Info, error) {
	if opts.MaxDepth < 0 {
		return nil, errValidationDepth(opts.MaxDepth)
	}
	rp, err := fsys.resolver.Resolve(ctx, p, "")
	if err != nil {
		return nil, err
	}
	return fsys.find(ctx, rp, opts)
}

func (fsys *FileSystem) find(ctx context.Context, rp ResolvedPath, opts FindOptions) ([]Info, error) {
	key := rp.Unresolve()
	items, err := fsys.lsTree(ctx, rp, true, false)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return []Info{}, nil
		}
		return nil, err
	}
	if len(items) == 1 && items[0].Name == key && !items[0].IsDir() {
		return items, nil
	}

	out := make([]Info, 0, len(items))
	for _, item := range items {
		if item.IsDir() && !opts.WithDirs {
			continue
		}
		if opts.MaxDepth > 0 {
			rel := strings.TrimPrefix(item.Name, key+"/")
			if strings.Count(rel, "/")+1 > opts.MaxDepth {
				continue
			}
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// WalkFunc 在每个目录被访问时调用。返回 fs.SkipDir 跳过该目录的子目录，
// 返回 fs.SkipAll 结束遍历。
type WalkFunc func(dir string, dirs, files []Info) error

// Walk 自顶向下遍历 p，maxDepth 为 0 表示不限深度。
func (fsys *FileSystem) Walk(ctx context.Context, p string, maxDepth int, fn WalkFunc) error {
	if maxDepth < 0 {
		return errValidationDepth(maxDepth)
	}
	rp, err := fsys.resolver.Resolve(ctx, p, "")
	if err != nil {
		return err
	}
	err = fsys.walk(ctx, rp, 1, maxDepth, fn)
	if errors.Is(err, fs.SkipAll) {
		return nil
	}
	return err
}

func (fsys *FileSystem) walk(ctx context.Context, rp ResolvedPath, depth, maxDepth int, fn WalkFunc) error {
	items, err := fsys.lsTree(ctx, rp, false, false)
	if err != nil {
		return err
	}
	var dirs, files []Info
	for _, item := range items {
		if item.IsDir() {
			dirs = append(dirs, item)
		} else {
			files = append(files, item)
		}
	}
	if err := fn(rp.Unresolve(), dirs, files); err != nil {
		if errors.Is(err, fs.SkipDir) {
			return nil
		}
		return err
	}
	if maxDepth > 0 && depth >= maxDepth {
		return nil
	}
	for _, dir := range dirs {
		if err := fsys.walk(ctx, childPath(rp, dir.Name), depth+1, maxDepth, fn); err != nil {
			return err
		}
	}
	return nil
}
