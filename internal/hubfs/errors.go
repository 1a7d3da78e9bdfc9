package hubfs

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/any-hub/hubfs/internal/resolver"
)

var (
	// ErrNotFound 表示仓库、revision 或路径不存在。
	ErrNotFound = resolver.ErrNotFound
	// ErrNotImplemented 表示拒绝的集合级枚举或不支持的打开模式（追加）。
	ErrNotImplemented = resolver.ErrNotImplemented
	// ErrValidation 表示调用方输入自相矛盾或越界。
	ErrValidation = resolver.ErrValidation
	// ErrFileNotFound 表示路径不存在；同时匹配 ErrNotFound 与 fs.ErrNotExist。
	ErrFileNotFound = fmt.Errorf("%w: %w", fs.ErrNotExist, ErrNotFound)
	// ErrIsDir 表示对目录执行了只适用于文件的操作。
	ErrIsDir = errors.New("is a directory")
)

func fileNotFound(p string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrFileNotFound, p)
	}
	return fmt.Errorf("%w: %s: %w", ErrFileNotFound, p, cause)
}
