// Package hubfs exposes hub repositories as a hierarchical file store.
//
// A path such as "datasets/org/data@v1/train/part-0.parquet" is resolved to
// a repository, revision and path inside it; listings are fetched lazily
// through the paginated tree API and kept in a directory cache; files are read
// through byte-range requests and written through single-commit uploads.
//
// A FileSystem owns its existence and directory caches and is not safe for
// concurrent use. Callers needing parallelism create one FileSystem per
// goroutine or serialize access.
package hubfs

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/hubfs/internal/cache"
	"github.com/any-hub/hubfs/internal/hub"
	"github.com/any-hub/hubfs/internal/repotype"
	"github.com/any-hub/hubfs/internal/resolver"
)

// Client 是 FileSystem 依赖的 Hub 传输层，*hub.Client 实现了该接口。
type Client interface {
	ProbeRepo(ctx context.Context, repoType repotype.Type, repoID, revision string) error
	Tree(ctx context.Context, repoType repotype.Type, repoID, revision, pathInRepo string, recursive bool) iter.Seq2[hub.TreeEntry, error]
	RangeGet(ctx context.Context, fileURL string, start, end int64) ([]byte, error)
	FileURL(repoType repotype.Type, repoID, revision, pathInRepo string) string
	Commit(ctx context.Context, repoType repotype.Type, repoID, revision string, commit hub.Commit) error
}

// Info 是目录条目描述。
type Info = cache.Info

// ResolvedPath 是路径解析结果。
type ResolvedPath = resolver.ResolvedPath

const (
	// DefaultBlockSize 是读取区块与写缓冲的默认大小。
	DefaultBlockSize = 5 * 1024 * 1024
	// DefaultReadCacheBlocks 是每个读句柄缓存的区块数量。
	DefaultReadCacheBlocks = 8
)

// Options 控制 FileSystem 的命名、协议前缀、默认 revision、缓冲与临时文件目录。
type Options struct {
	Name            string
	Protocol        string
	DefaultRevision string
	BlockSize       int
	ReadCacheBlocks int
	ScratchPath     string
	Logger          *logrus.Logger
}

// FileSystem 将 Hub 仓库呈现为层级文件存储。
type FileSystem struct {
	client          Client
	name            string
	resolver        *resolver.Resolver
	existence       *cache.Existence
	dircache        *cache.Directory
	scratch         *cache.Scratch
	blockSize       int
	readCacheBlocks int
	logger          *logrus.Logger
}

// New 构建 FileSystem，每个实例拥有独立的存在性缓存与目录缓存。
func New(client Client, opts Options) (*FileSystem, error) {
	if client == nil {
		return nil, errors.New("hub client required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	blockSize := opts.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	readCacheBlocks := opts.ReadCacheBlocks
	if readCacheBlocks <= 0 {
		readCacheBlocks = DefaultReadCacheBlocks
	}
	scratch, err := cache.NewScratch(opts.ScratchPath)
	if err != nil {
		return nil, err
	}

	existence := cache.NewExistence(opts.Name, client)
	return &FileSystem{
		client: client,
		name:   opts.Name,
		resolver: resolver.New(existence, resolver.Options{
			Name:            opts.Name,
			Protocol:        opts.Protocol,
			DefaultRevision: opts.DefaultRevision,
			Logger:          logger,
		}),
		existence:       existence,
		dircache:        cache.NewDirectory(opts.Name),
		scratch:         scratch,
		blockSize:       blockSize,
		readCacheBlocks: readCacheBlocks,
		logger:          logger,
	}, nil
}

// Name 返回实例名称（通常是 Hub 名）。
func (fsys *FileSystem) Name() string {
	return fsys.name
}

// Resolve 解析 p，revision 非空时优先于路径中的 "@rev"。
func (fsys *FileSystem) Resolve(ctx context.Context, p, revision string) (ResolvedPath, error) {
	return fsys.resolver.Resolve(ctx, p, revision)
}

// InvalidateCache 使 p 及其祖先、后代的目录缓存失效；p 为空时清空全部缓存。
func (fsys *FileSystem) InvalidateCache(ctx context.Context, p string) {
	if fsys.resolver.StripProtocol(p) == "" {
		fsys.dircache.Clear()
		fsys.existence.Clear()
		return
	}
	key := fsys.resolver.StripProtocol(p)
	if rp, err := fsys.resolver.Resolve(ctx, p, ""); err == nil {
		key = rp.Unresolve()
	}
	fsys.dircache.Invalidate(key)
}

// URL 返回 p 的 HTTP 地址：文件指向 resolve 下载地址，目录指向 tree 页面。
func (fsys *FileSystem) URL(ctx context.Context, p string) (string, error) {
	rp, err := fsys.resolver.Resolve(ctx, p, "")
	if err != nil {
		return "", err
	}
	fileURL := fsys.client.FileURL(rp.RepoType, rp.RepoID, rp.Revision, rp.PathInRepo)
	isDir, err := fsys.IsDir(ctx, p)
	if err != nil {
		return "", err
	}
	if isDir {
		return strings.Replace(fileURL, "/resolve/", "/tree/", 1), nil
	}
	return fileURL, nil
}

// CacheStats 汇总缓存规模，供诊断接口输出。
type CacheStats struct {
	Directories  int `json:"directories"`
	Existence    int `json:"existence"`
	ScratchFiles int `json:"scratch_files"`
}

// Stats 返回当前缓存规模。
func (fsys *FileSystem) Stats() CacheStats {
	return CacheStats{
		Directories:  fsys.dircache.Len(),
		Existence:    fsys.existence.Len(),
		ScratchFiles: fsys.scratch.Live(),
	}
}

// childPath 把完整的未解析名称转换为同仓库下的 ResolvedPath。
func childPath(rp ResolvedPath, name string) ResolvedPath {
	root := rp.WithPath("").Unresolve()
	return rp.WithPath(strings.TrimPrefix(strings.TrimPrefix(name, root), "/"))
}
