package hubfs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ExpandOptions 控制 ExpandPath 的递归与深度。
type ExpandOptions struct {
	Recursive bool
	// MaxDepth 为 0 表示不限深度，负数非法。
	MaxDepth int
}

// GlobOptions 控制 Glob 的深度上限。
type GlobOptions struct {
	// MaxDepth 仅对含 "**" 的模式生效，0 表示不限深度。
	MaxDepth int
}

func errValidationDepth(depth int) error {
	return fmt.Errorf("%w: max depth must be at least 1, got %d", ErrValidation, depth)
}

func hasMagic(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

// ExpandPath 将路径（可含通配符）展开为排序、去重后的具体路径列表。
// 结果为空时返回 ErrFileNotFound。
func (fsys *FileSystem) ExpandPath(ctx context.Context, paths []string, opts ExpandOptions) ([]string, error) {
	if opts.MaxDepth < 0 {
		return nil, errValidationDepth(opts.MaxDepth)
	}
	found := map[string]struct{}{}
	descend := func(p string) error {
		items, err := fsys.Find(ctx, p, FindOptions{MaxDepth: opts.MaxDepth, WithDirs: true})
		if err != nil {
			return err
		}
		for _, item := range items {
			found[item.Name] = struct{}{}
		}
		return nil
	}

	for _, p := range paths {
		if hasMagic(fsys.resolver.StripProtocol(p)) {
			matches, err := fsys.Glob(ctx, p, GlobOptions{MaxDepth: opts.MaxDepth})
			if err != nil {
				return nil, err
			}
			for _, match := range matches {
				found[match] = struct{}{}
				if opts.Recursive {
					if err := descend(match); err != nil {
						return nil, err
					}
				}
			}
			continue
		}

		if opts.Recursive {
			if err := descend(p); err != nil {
				return nil, err
			}
		}
		item, err := fsys.Info(ctx, p)
		switch {
		case err == nil:
			found[item.Name] = struct{}{}
		case errors.Is(err, ErrNotFound):
		default:
			return nil, err
		}
	}

	if len(found) == 0 {
		return nil, fileNotFound(strings.Join(paths, ", "), nil)
	}
	out := make([]string, 0, len(found))
	for name := range found {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Glob 返回匹配 pattern 的路径（文件与目录），支持 "*"、"?"、"[...]" 与 "**"。
// 通配符之前的部分必须能解析为仓库内路径；通配符落在仓库标识上时，
// 解析会以 ErrNotImplemented（拒绝枚举命名空间）或 ErrNotFound 失败。
func (fsys *FileSystem) Glob(ctx context.Context, pattern string, opts GlobOptions) ([]string, error) {
	if opts.MaxDepth < 0 {
		return nil, errValidationDepth(opts.MaxDepth)
	}
	stripped := fsys.resolver.StripProtocol(pattern)
	segments := strings.Split(stripped, "/")
	magicAt := -1
	for i, segment := range segments {
		if hasMagic(segment) {
			magicAt = i
			break
		}
	}
	if magicAt < 0 {
		item, err := fsys.Info(ctx, pattern)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return []string{}, nil
			}
			return nil, err
		}
		return []string{item.Name}, nil
	}

	rootPath := strings.Join(segments[:magicAt], "/")
	rp, err := fsys.resolver.Resolve(ctx, rootPath, "")
	if err != nil {
		return nil, err
	}
	rootKey := rp.Unresolve()

	rest := strings.Join(segments[magicAt:], "/")
	depth := strings.Count(rest, "/") + 1
	if strings.Contains(rest, "**") {
		depth = opts.MaxDepth
	}

	items, err := fsys.find(ctx, rp, FindOptions{MaxDepth: depth, WithDirs: true})
	if err != nil {
		return nil, err
	}
	full := escapeGlob(rootKey) + "/" + rest
	if !doublestar.ValidatePattern(full) {
		return nil, fmt.Errorf("%w: invalid glob pattern %q", ErrValidation, pattern)
	}

	out := []string{}
	for _, item := range items {
		if item.Name == rootKey {
			continue
		}
		ok, err := doublestar.Match(full, item.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		if ok {
			out = append(out, item.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func escapeGlob(p string) string {
	replacer := strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "{", `\{`)
	return replacer.Replace(p)
}
