// Package resolver turns hub path strings such as
// "datasets/org/data@v1/train/part-0.parquet" into a ResolvedPath (repository
// type, repository id, revision, path inside the repository).
//
// Repository ids are ambiguous: "a/b/c" may name repository "a/b" or the
// canonical repository "a" with "b/c" inside it. The resolver tries the
// namespaced reading first and falls back to the canonical one, consulting an
// existence cache so repeated resolution never re-probes the hub.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/hubfs/internal/cache"
	"github.com/any-hub/hubfs/internal/logging"
	"github.com/any-hub/hubfs/internal/repotype"
)

var (
	// ErrNotFound 表示仓库、revision 或路径不存在。
	ErrNotFound = errors.New("not found")
	// ErrNotImplemented 表示拒绝的集合级枚举（根、裸类型前缀、裸命名空间）或不支持的操作。
	ErrNotImplemented = errors.New("not implemented")
	// ErrValidation 表示调用方输入自相矛盾，例如 revision 冲突。
	ErrValidation = errors.New("validation error")
)

// DefaultProtocol 是路径可选的协议前缀。
const DefaultProtocol = "hf://"

// ExistenceChecker 查询 (type, id, revision) 是否存在，通常由 *cache.Existence 实现。
type ExistenceChecker interface {
	Exists(ctx context.Context, repoType repotype.Type, repoID, revision string) (cache.Result, error)
}

// Options 控制协议前缀、默认 revision 与日志。
type Options struct {
	Name            string
	Protocol        string
	DefaultRevision string
	Logger          *logrus.Logger
}

// Resolver 将路径字符串解析为 ResolvedPath。
type Resolver struct {
	exists          ExistenceChecker
	name            string
	protocol        string
	defaultRevision string
	logger          *logrus.Logger
}

// New 构建 Resolver。
func New(exists ExistenceChecker, opts Options) *Resolver {
	protocol := opts.Protocol
	if protocol == "" {
		protocol = DefaultProtocol
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Resolver{
		exists:          exists,
		name:            opts.Name,
		protocol:        protocol,
		defaultRevision: opts.DefaultRevision,
		logger:          logger,
	}
}

// StripProtocol 去掉协议前缀与首尾斜杠。
func (r *Resolver) StripProtocol(p string) string {
	p = strings.TrimPrefix(p, r.protocol)
	return strings.Trim(p, "/")
}

// Unresolve 返回 ResolvedPath 的规范未解析形式。
func (r *Resolver) Unresolve(p ResolvedPath) string {
	return p.Unresolve()
}

// candidate 是对仓库 ID 的一种解读。
type candidate struct {
	kind       string
	repoID     string
	revision   string
	embedded   bool
	pathInRepo string
}

// candidateResult 是对单个候选的探测结论。
type candidateResult struct {
	candidate candidate
	found     bool
	repoFound bool
	cause     error
}

// Resolve 解析 p。revisionHint 非空时优先于路径中的 "@rev"，两者不一致返回 ErrValidation。
func (r *Resolver) Resolve(ctx context.Context, p, revisionHint string) (ResolvedPath, error) {
	stripped := r.StripProtocol(p)
	if stripped == "" {
		return ResolvedPath{}, fmt.Errorf("%w: listing the hub root", ErrNotImplemented)
	}

	repoType := repotype.Default()
	rest := stripped
	head, tail, _ := strings.Cut(stripped, "/")
	if meta, ok := repotype.FromPrefix(head); ok {
		repoType = meta.Key
		rest = strings.Trim(tail, "/")
		if rest == "" {
			return ResolvedPath{}, fmt.Errorf("%w: listing %s repositories", ErrNotImplemented, meta.Key)
		}
	}

	candidates, err := buildCandidates(rest, revisionHint)
	if err != nil {
		return ResolvedPath{}, err
	}
	for _, c := range candidates {
		if c.embedded && revisionHint != "" && c.revision != revisionHint {
			return ResolvedPath{}, fmt.Errorf("%w: revision %q in path conflicts with requested revision %q",
				ErrValidation, c.revision, revisionHint)
		}
	}

	bare := !strings.Contains(rest, "/")
	var firstMiss *candidateResult
	for _, c := range candidates {
		res, err := r.probe(ctx, repoType, c, revisionHint)
		if err != nil {
			return ResolvedPath{}, err
		}
		if res.found {
			return ResolvedPath{
				RepoType:   repoType,
				RepoID:     res.candidate.repoID,
				Revision:   normalizeRevision(res.candidate.revision),
				PathInRepo: res.candidate.pathInRepo,
			}, nil
		}
		if firstMiss == nil {
			firstMiss = &res
		}
		// 仓库存在但 revision 不存在时不再尝试其它解读。
		if res.repoFound {
			return ResolvedPath{}, fmt.Errorf("%w: %s: %w", ErrNotFound, p, res.cause)
		}
	}

	var cause error
	if firstMiss != nil {
		cause = firstMiss.cause
	}
	if bare {
		return ResolvedPath{}, &namespaceError{path: p, cause: cause}
	}
	return ResolvedPath{}, fmt.Errorf("%w: %s: %w", ErrNotFound, p, cause)
}

func (r *Resolver) probe(ctx context.Context, repoType repotype.Type, c candidate, hint string) (candidateResult, error) {
	revision := hint
	if revision == "" {
		revision = c.revision
	}
	if revision == "" {
		revision = r.defaultRevision
	}
	c.revision = revision

	res, err := r.exists.Exists(ctx, repoType, c.repoID, revision)
	if err != nil {
		return candidateResult{}, err
	}
	r.logger.WithFields(logging.RepoFields(r.name, string(repoType), c.repoID, revision)).WithFields(logrus.Fields{
		"action":          "resolve_candidate",
		"candidate":       c.kind,
		"repo_exists":     res.RepoExists,
		"revision_exists": res.RevisionExists,
	}).Debug("resolve_probe")
	return candidateResult{
		candidate: c,
		found:     res.RepoExists && res.RevisionExists,
		repoFound: res.RepoExists,
		cause:     res.Cause,
	}, nil
}

// buildCandidates 按优先顺序列出仓库 ID 的可能解读。"@" 只在前两段中被视为 revision 分隔符。
func buildCandidates(rest, hint string) ([]candidate, error) {
	segments := strings.Split(rest, "/")
	at := strings.Index(rest, "@")
	atSegment := -1
	if at >= 0 {
		atSegment = strings.Count(rest[:at], "/")
	}

	switch {
	case atSegment == 0:
		c, err := embeddedCandidate("canonical", rest, at, hint)
		if err != nil {
			return nil, err
		}
		return []candidate{c}, nil
	case len(segments) == 1:
		return []candidate{{kind: "canonical", repoID: rest}}, nil
	case atSegment == 1:
		namespaced, err := embeddedCandidate("namespaced", rest, at, hint)
		if err != nil {
			return nil, err
		}
		return []candidate{namespaced, canonicalCandidate(segments)}, nil
	default:
		return []candidate{
			{
				kind:       "namespaced",
				repoID:     segments[0] + "/" + segments[1],
				pathInRepo: strings.Join(segments[2:], "/"),
			},
			canonicalCandidate(segments),
		}, nil
	}
}

func embeddedCandidate(kind, rest string, at int, hint string) (candidate, error) {
	revision, pathInRepo, err := splitRevision(rest[at+1:], hint)
	if err != nil {
		return candidate{}, fmt.Errorf("%w: malformed revision in %q: %w", ErrValidation, rest, err)
	}
	return candidate{
		kind:       kind,
		repoID:     rest[:at],
		revision:   revision,
		embedded:   revision != "",
		pathInRepo: strings.Trim(pathInRepo, "/"),
	}, nil
}

func canonicalCandidate(segments []string) candidate {
	return candidate{
		kind:       "canonical",
		repoID:     segments[0],
		pathInRepo: strings.Join(segments[1:], "/"),
	}
}

// namespaceError 表示裸命名空间无法解析为仓库：既是拒绝的命名空间枚举，
// 也是仓库不存在，因此同时匹配 ErrNotImplemented 与 ErrNotFound。
type namespaceError struct {
	path  string
	cause error
}

func (e *namespaceError) Error() string {
	msg := fmt.Sprintf("%s is neither a repository nor a listable namespace", e.path)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *namespaceError) Unwrap() []error {
	errs := []error{ErrNotFound, ErrNotImplemented}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}
