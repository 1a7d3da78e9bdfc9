package hubfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/any-hub/hubfs/internal/cache"
)

type openMode int

const (
	modeRead openMode = iota
	modeWrite
)

func parseMode(mode string) (openMode, error) {
	if strings.Contains(mode, "a") {
		return 0, fmt.Errorf("%w: append mode %q", ErrNotImplemented, mode)
	}
	switch mode {
	case "r", "rb", "":
		return modeRead, nil
	case "w", "wb":
		return modeWrite, nil
	default:
		return 0, fmt.Errorf("%w: unsupported mode %q", ErrValidation, mode)
	}
}

// OpenOptions 控制 OpenFile 的区块大小、revision 与写入时的提交信息。
type OpenOptions struct {
	// BlockSize 为 0 时使用 FileSystem 的默认值。
	BlockSize int
	CommitOptions
}

// File 是 Open 返回的缓冲文件句柄。
// 读模式按固定大小的区块发起 Range 请求，最近使用的区块保存在 LRU 中；
// 写模式先在内存中缓冲，满一个区块后刷入临时文件，Close 时整体提交。
type File struct {
	fsys      *FileSystem
	path      ResolvedPath
	name      string
	mode      openMode
	blockSize int64
	// ctx 来自 Open，用于 Read/Write/Close 中的请求。
	ctx    context.Context
	closed bool

	url    string
	size   int64
	offset int64
	blocks *lru.Cache

	buf     bytes.Buffer
	scratch *cache.ScratchFile
	opts    CommitOptions
}

var (
	_ io.ReadSeekCloser = (*File)(nil)
	_ io.ReaderAt       = (*File)(nil)
	_ io.WriteCloser    = (*File)(nil)
)

// Open 以 mode 打开 p："r"/"rb" 读取，"w"/"wb" 写入，任何追加模式返回 ErrNotImplemented。
func (fsys *FileSystem) Open(ctx context.Context, p, mode string) (*File, error) {
	return fsys.OpenFile(ctx, p, mode, OpenOptions{})
}

// OpenFile 与 Open 相同，但允许指定区块大小、revision 与提交信息。
func (fsys *FileSystem) OpenFile(ctx context.Context, p, mode string, opts OpenOptions) (*File, error) {
	m, err := parseMode(mode)
	if err != nil {
		return nil, err
	}
	rp, err := fsys.resolver.Resolve(ctx, p, opts.Revision)
	if err != nil {
		return nil, err
	}
	return fsys.open(ctx, rp, m, opts)
}

func (fsys *FileSystem) open(ctx context.Context, rp ResolvedPath, mode openMode, opts OpenOptions) (*File, error) {
	blockSize := opts.BlockSize
	if blockSize <= 0 {
		blockSize = fsys.blockSize
	}
	f := &File{
		fsys:      fsys,
		path:      rp,
		name:      rp.Unresolve(),
		mode:      mode,
		blockSize: int64(blockSize),
		ctx:       ctx,
		opts:      opts.CommitOptions,
	}

	if mode == modeWrite {
		if rp.IsRoot() {
			return nil, fmt.Errorf("%w: %s is a repository root", ErrIsDir, f.name)
		}
		scratch, err := fsys.scratch.Create(cache.Locator{HubName: fsys.scratchHub(), Path: rp.PathInRepo})
		if err != nil {
			return nil, err
		}
		f.scratch = scratch
		return f, nil
	}

	item, err := fsys.info(ctx, rp)
	if err != nil {
		return nil, err
	}
	if item.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDir, item.Name)
	}
	blocks, err := lru.New(fsys.readCacheBlocks)
	if err != nil {
		return nil, err
	}
	f.size = item.Size
	f.blocks = blocks
	f.url = fsys.client.FileURL(rp.RepoType, rp.RepoID, rp.Revision, rp.PathInRepo)
	return f, nil
}

// ReadFile 读取整个文件。
func (fsys *FileSystem) ReadFile(ctx context.Context, p string) ([]byte, error) {
	f, err := fsys.Open(ctx, p, "rb")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data := make([]byte, f.Size())
	n, err := f.ReadAt(data, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return data[:n], nil
}

// Name 返回文件的规范路径。
func (f *File) Name() string {
	return f.name
}

// Size 返回读模式下的文件大小，写模式下返回已写入的字节数。
func (f *File) Size() int64 {
	if f.mode == modeWrite {
		return f.offset
	}
	return f.size
}

// ReadAt 实现 io.ReaderAt，按区块读取并缓存。
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if err := f.readable(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrValidation, off)
	}
	if off >= f.size {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) && off < f.size {
		index := off / f.blockSize
		block, err := f.block(index)
		if err != nil {
			return n, err
		}
		within := off - index*f.blockSize
		if within >= int64(len(block)) {
			return n, io.ErrUnexpectedEOF
		}
		copied := copy(p[n:], block[within:])
		n += copied
		off += int64(copied)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *File) block(index int64) ([]byte, error) {
	if cached, ok := f.blocks.Get(index); ok {
		return cached.([]byte), nil
	}
	start := index * f.blockSize
	end := min(start+f.blockSize, f.size)
	data, err := f.fsys.client.RangeGet(f.ctx, f.url, start, end)
	if err != nil {
		return nil, err
	}
	f.blocks.Add(index, data)
	return data, nil
}

// Read 实现 io.Reader。
func (f *File) Read(p []byte) (int, error) {
	if err := f.readable(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := f.ReadAt(p, f.offset)
	f.offset += int64(n)
	if n > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// Seek 实现 io.Seeker，仅在读模式下可用。
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if err := f.readable(); err != nil {
		return 0, err
	}
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = f.offset + offset
	case io.SeekEnd:
		next = f.size + offset
	default:
		return 0, fmt.Errorf("%w: invalid whence %d", ErrValidation, whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("%w: negative position %d", ErrValidation, next)
	}
	f.offset = next
	return next, nil
}

// Write 实现 io.Writer。数据先进入内存缓冲，缓冲达到区块大小时刷入临时文件。
func (f *File) Write(p []byte) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	if f.mode != modeWrite {
		return 0, fmt.Errorf("%w: %s not opened for writing", ErrValidation, f.name)
	}
	n, _ := f.buf.Write(p)
	f.offset += int64(n)
	if int64(f.buf.Len()) >= f.blockSize {
		if err := f.flush(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (f *File) flush() error {
	if f.buf.Len() == 0 {
		return nil
	}
	_, err := f.buf.WriteTo(f.scratch)
	return err
}

// Close 释放句柄。写模式下提交临时文件并使目录缓存失效，临时文件无论成败都会删除。
// 重复调用 Close 不做任何事。
func (f *File) Close() (err error) {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.mode == modeRead {
		f.blocks.Purge()
		return nil
	}

	defer func() {
		if releaseErr := f.scratch.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	if err := f.flush(); err != nil {
		return err
	}
	return f.fsys.commitScratch(f.ctx, f.path, f.scratch, f.opts)
}

func (f *File) readable() error {
	if f.closed {
		return os.ErrClosed
	}
	if f.mode != modeRead {
		return fmt.Errorf("%w: %s not opened for reading", ErrValidation, f.name)
	}
	return nil
}
