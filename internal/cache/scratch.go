package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// Scratch 在 basePath/<hub>/ 下管理写入缓冲使用的临时文件。
type Scratch struct {
	basePath string

	mu   sync.Mutex
	live map[string]struct{}
}

// NewScratch 以 basePath 为根目录构建临时文件管理器，basePath 为空时使用系统临时目录。
func NewScratch(basePath string) (*Scratch, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), "hubfs")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve scratch path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch path: %w", err)
	}

	return &Scratch{
		basePath: abs,
		live:     make(map[string]struct{}),
	}, nil
}

// Locator 定位一个临时文件的归属（Hub + 仓库内路径），仅用于目录划分与命名。
type Locator struct {
	HubName string
	Path    string
}

// ScratchFile 是独占的临时文件，Release 负责关闭并删除，可重复调用。
type ScratchFile struct {
	*os.File

	owner    *Scratch
	once     sync.Once
	released error
}

// Create 为 locator 创建一个新的临时文件。
func (s *Scratch) Create(locator Locator) (*ScratchFile, error) {
	dir, err := s.dir(locator)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	base := path.Base("/" + strings.Trim(locator.Path, "/"))
	if base == "/" {
		base = "root"
	}
	file, err := os.CreateTemp(dir, "hubfs-"+base+"-*")
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.live[file.Name()] = struct{}{}
	s.mu.Unlock()
	return &ScratchFile{File: file, owner: s}, nil
}

// Dir 返回临时文件根目录。
func (s *Scratch) Dir() string {
	return s.basePath
}

// Live 返回尚未释放的临时文件数量。
func (s *Scratch) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Fill 将 body 全部写入临时文件，期间响应 ctx 取消。
func (f *ScratchFile) Fill(ctx context.Context, body io.Reader) (int64, error) {
	return copyWithContext(ctx, f, body)
}

// Size 返回临时文件当前大小。
func (f *ScratchFile) Size() (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Release 关闭并删除临时文件。
func (f *ScratchFile) Release() error {
	f.once.Do(func() {
		name := f.Name()
		closeErr := f.File.Close()
		if closeErr != nil && errors.Is(closeErr, os.ErrClosed) {
			closeErr = nil
		}
		removeErr := os.Remove(name)
		if removeErr != nil && errors.Is(removeErr, os.ErrNotExist) {
			removeErr = nil
		}
		f.owner.mu.Lock()
		delete(f.owner.live, name)
		f.owner.mu.Unlock()
		f.released = errors.Join(closeErr, removeErr)
	})
	return f.released
}

func (s *Scratch) dir(locator Locator) (string, error) {
	if locator.HubName == "" {
		return "", errors.New("hub name required")
	}
	hubName := path.Clean("/" + locator.HubName)
	hubName = strings.TrimPrefix(hubName, "/")
	if hubName == "" || strings.Contains(hubName, "/") {
		return "", errors.New("invalid scratch path")
	}

	dir := filepath.Join(s.basePath, hubName)
	if !strings.HasPrefix(dir, s.basePath) {
		return "", errors.New("invalid scratch path")
	}
	return dir, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
