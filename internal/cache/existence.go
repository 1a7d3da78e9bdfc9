package cache

import (
	"context"
	"errors"

	"github.com/any-hub/hubfs/internal/hub"
	"github.com/any-hub/hubfs/internal/metrics"
	"github.com/any-hub/hubfs/internal/repotype"
)

// Prober 执行一次远端仓库存在性探测，通常由 *hub.Client 实现。
type Prober interface {
	ProbeRepo(ctx context.Context, repoType repotype.Type, repoID, revision string) error
}

// Result 是一次存在性查询的结论。Cause 保留导致“不存在”的原始错误。
type Result struct {
	RepoExists     bool
	RevisionExists bool
	Cause          error
}

type existenceKey struct {
	repoType repotype.Type
	repoID   string
	revision string
}

type existenceEntry struct {
	repo     bool
	revision bool
	cause    error
}

// Existence 缓存 (type, id, revision) 的存在性探测结果。条目只会被 Clear 清除；
// revision 为空的条目是仓库级汇总：仓库不存在意味着任意 revision 不存在，
// 任一 revision 存在意味着仓库存在。实例不加锁，由持有者保证单一调用方。
type Existence struct {
	name    string
	prober  Prober
	entries map[existenceKey]existenceEntry
}

// NewExistence 构建存在性缓存，name 用于指标标签。
func NewExistence(name string, prober Prober) *Existence {
	return &Existence{
		name:    name,
		prober:  prober,
		entries: make(map[existenceKey]existenceEntry),
	}
}

// Exists 返回仓库与 revision 是否存在。缓存未命中时最多探测一次；
// 传输错误原样返回且不缓存。
func (c *Existence) Exists(ctx context.Context, repoType repotype.Type, repoID, revision string) (Result, error) {
	bare := existenceKey{repoType: repoType, repoID: repoID}
	if entry, ok := c.entries[bare]; ok && !entry.repo {
		metrics.RecordExistenceLookup(c.name, true)
		return Result{Cause: entry.cause}, nil
	}
	key := existenceKey{repoType: repoType, repoID: repoID, revision: revision}
	if entry, ok := c.entries[key]; ok {
		metrics.RecordExistenceLookup(c.name, true)
		return Result{RepoExists: entry.repo, RevisionExists: entry.revision, Cause: entry.cause}, nil
	}
	metrics.RecordExistenceLookup(c.name, false)

	if err := hub.ValidateRepoID(repoID); err != nil {
		c.entries[bare] = existenceEntry{cause: err}
		return Result{Cause: err}, nil
	}

	err := c.prober.ProbeRepo(ctx, repoType, repoID, revision)
	switch {
	case err == nil:
		metrics.RecordProbe(c.name, "found")
		c.entries[key] = existenceEntry{repo: true, revision: true}
		c.entries[bare] = existenceEntry{repo: true, revision: true}
		return Result{RepoExists: true, RevisionExists: true}, nil
	case errors.Is(err, hub.ErrRepositoryNotFound):
		metrics.RecordProbe(c.name, "repo_not_found")
		c.entries[bare] = existenceEntry{cause: err}
		c.entries[key] = existenceEntry{cause: err}
		return Result{Cause: err}, nil
	case errors.Is(err, hub.ErrRevisionNotFound):
		metrics.RecordProbe(c.name, "revision_not_found")
		c.entries[key] = existenceEntry{repo: true, cause: err}
		if _, ok := c.entries[bare]; !ok {
			c.entries[bare] = existenceEntry{repo: true, revision: true}
		}
		return Result{RepoExists: true, Cause: err}, nil
	default:
		metrics.RecordProbe(c.name, "error")
		return Result{}, err
	}
}

// Len 返回缓存条目数量。
func (c *Existence) Len() int {
	return len(c.entries)
}

// Clear 清空全部条目。
func (c *Existence) Clear() {
	clear(c.entries)
}
