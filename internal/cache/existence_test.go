package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/any-hub/hubfs/internal/hub"
	"github.com/any-hub/hubfs/internal/repotype"
)

type fakeProber struct {
	calls   []string
	answers map[string]error
}

func (p *fakeProber) ProbeRepo(_ context.Context, repoType repotype.Type, repoID, revision string) error {
	key := fmt.Sprintf("%s:%s@%s", repoType, repoID, revision)
	p.calls = append(p.calls, key)
	return p.answers[key]
}

func TestExistenceProbesOncePerKey(t *testing.T) {
	prober := &fakeProber{answers: map[string]error{}}
	cache := NewExistence("test", prober)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := cache.Exists(ctx, repotype.Model, "org/model", "main")
		if err != nil {
			t.Fatalf("exists: %v", err)
		}
		if !res.RepoExists || !res.RevisionExists {
			t.Fatalf("expected repo and revision to exist, got %+v", res)
		}
	}
	if len(prober.calls) != 1 {
		t.Fatalf("expected 1 probe, got %v", prober.calls)
	}
}

func TestExistenceRevisionImpliesRepo(t *testing.T) {
	prober := &fakeProber{answers: map[string]error{}}
	cache := NewExistence("test", prober)
	ctx := context.Background()

	if _, err := cache.Exists(ctx, repotype.Dataset, "org/data", "v1"); err != nil {
		t.Fatalf("exists: %v", err)
	}
	res, err := cache.Exists(ctx, repotype.Dataset, "org/data", "")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !res.RepoExists {
		t.Fatalf("expected bare repo to exist")
	}
	if len(prober.calls) != 1 {
		t.Fatalf("expected a single probe, got %v", prober.calls)
	}
}

func TestExistenceRepoNotFoundPoisonsRevisions(t *testing.T) {
	prober := &fakeProber{answers: map[string]error{
		"model:org/gone@": hub.ErrRepositoryNotFound,
	}}
	cache := NewExistence("test", prober)
	ctx := context.Background()

	res, err := cache.Exists(ctx, repotype.Model, "org/gone", "")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if res.RepoExists || !errors.Is(res.Cause, hub.ErrRepositoryNotFound) {
		t.Fatalf("unexpected result %+v", res)
	}
	res, _ = cache.Exists(ctx, repotype.Model, "org/gone", "dev")
	if res.RepoExists || res.RevisionExists {
		t.Fatalf("expected every revision to be absent, got %+v", res)
	}
	if len(prober.calls) != 1 {
		t.Fatalf("expected a single probe, got %v", prober.calls)
	}
}

func TestExistenceRevisionNotFound(t *testing.T) {
	prober := &fakeProber{answers: map[string]error{
		"space:org/app@dev": hub.ErrRevisionNotFound,
	}}
	cache := NewExistence("test", prober)
	ctx := context.Background()

	res, err := cache.Exists(ctx, repotype.Space, "org/app", "dev")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !res.RepoExists || res.RevisionExists {
		t.Fatalf("unexpected result %+v", res)
	}
	res, _ = cache.Exists(ctx, repotype.Space, "org/app", "")
	if !res.RepoExists {
		t.Fatalf("expected bare repo to exist")
	}
	if len(prober.calls) != 1 {
		t.Fatalf("expected a single probe, got %v", prober.calls)
	}
}

func TestExistenceDoesNotCacheTransportErrors(t *testing.T) {
	boom := errors.New("connection reset")
	prober := &fakeProber{answers: map[string]error{"model:gpt2@": boom}}
	cache := NewExistence("test", prober)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cache.Exists(ctx, repotype.Model, "gpt2", ""); !errors.Is(err, boom) {
			t.Fatalf("expected transport error, got %v", err)
		}
	}
	if len(prober.calls) != 2 {
		t.Fatalf("expected 2 probes, got %v", prober.calls)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected nothing cached, got %d", cache.Len())
	}
}

func TestExistenceInvalidRepoIDSkipsProbe(t *testing.T) {
	prober := &fakeProber{}
	cache := NewExistence("test", prober)
	res, err := cache.Exists(context.Background(), repotype.Model, "bad--id", "")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if res.RepoExists || !errors.Is(res.Cause, hub.ErrInvalidRepoID) {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(prober.calls) != 0 {
		t.Fatalf("expected no probe, got %v", prober.calls)
	}
}

func TestExistenceClear(t *testing.T) {
	prober := &fakeProber{answers: map[string]error{}}
	cache := NewExistence("test", prober)
	ctx := context.Background()

	_, _ = cache.Exists(ctx, repotype.Model, "gpt2", "")
	cache.Clear()
	_, _ = cache.Exists(ctx, repotype.Model, "gpt2", "")
	if len(prober.calls) != 2 {
		t.Fatalf("expected probe after clear, got %v", prober.calls)
	}
}
