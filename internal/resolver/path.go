package resolver

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/any-hub/hubfs/internal/repotype"
)

// DefaultRevision 是未指定 revision 时使用的默认分支。
const DefaultRevision = "main"

// specialRefs 匹配允许以原文出现在路径中的特殊引用（含斜杠）。
var specialRefs = regexp.MustCompile(`^refs/(?:convert/[\w.-]+|pr/\d+)`)

// ResolvedPath 是路径解析的结果：仓库类型、仓库 ID、revision 与仓库内路径。
// 值类型，构造后不应修改。
type ResolvedPath struct {
	RepoType   repotype.Type
	RepoID     string
	Revision   string
	PathInRepo string
}

// Equal 在 revision 规范化后比较全部字段。
func (p ResolvedPath) Equal(other ResolvedPath) bool {
	return p.RepoType == other.RepoType &&
		p.RepoID == other.RepoID &&
		normalizeRevision(p.Revision) == normalizeRevision(other.Revision) &&
		strings.Trim(p.PathInRepo, "/") == strings.Trim(other.PathInRepo, "/")
}

// IsRoot 表示路径是否指向仓库根目录。
func (p ResolvedPath) IsRoot() bool {
	return strings.Trim(p.PathInRepo, "/") == ""
}

// WithPath 返回同一仓库与 revision 下的另一个路径。
func (p ResolvedPath) WithPath(pathInRepo string) ResolvedPath {
	p.PathInRepo = strings.Trim(pathInRepo, "/")
	return p
}

// Parent 返回父目录，仓库根的父目录仍是仓库根。
func (p ResolvedPath) Parent() ResolvedPath {
	parent := path.Dir(strings.Trim(p.PathInRepo, "/"))
	if parent == "." || parent == "/" {
		parent = ""
	}
	return p.WithPath(parent)
}

// Unresolve 返回规范的未解析路径：
// [type-prefix/]repo_id[@escaped-revision][/path_in_repo]，默认分支不写出 revision。
func (p ResolvedPath) Unresolve() string {
	var b strings.Builder
	b.WriteString(repotype.Prefix(p.RepoType))
	b.WriteString(p.RepoID)
	if rev := normalizeRevision(p.Revision); rev != DefaultRevision {
		b.WriteByte('@')
		b.WriteString(escapeRevision(rev))
	}
	if rel := strings.Trim(p.PathInRepo, "/"); rel != "" {
		b.WriteByte('/')
		b.WriteString(rel)
	}
	return b.String()
}

// String 实现 fmt.Stringer。
func (p ResolvedPath) String() string {
	return p.Unresolve()
}

func normalizeRevision(rev string) string {
	if rev == "" {
		return DefaultRevision
	}
	return rev
}

func escapeRevision(rev string) string {
	if specialRefs.FindString(rev) == rev {
		return rev
	}
	return url.PathEscape(rev)
}

// splitRevision 把 "@" 之后的文本拆成 revision 与仓库内路径。hint 与特殊引用
// 一致（或未给出）时，特殊引用整体作为 revision。
func splitRevision(afterAt, hint string) (revision, rest string, err error) {
	if match := specialRefs.FindString(afterAt); match != "" && (hint == "" || hint == match) {
		if len(afterAt) == len(match) || afterAt[len(match)] == '/' {
			return match, strings.TrimPrefix(afterAt[len(match):], "/"), nil
		}
	}
	token, rest, _ := strings.Cut(afterAt, "/")
	revision, err = url.PathUnescape(token)
	if err != nil {
		return "", "", err
	}
	return revision, rest, nil
}
