package cache

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestScratchCreateFillRelease(t *testing.T) {
	scratch := newTestScratch(t)
	file, err := scratch.Create(Locator{HubName: "hf", Path: "org/model/x.txt"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(file.Name()), "hubfs-x.txt-") {
		t.Fatalf("unexpected scratch name %s", file.Name())
	}
	if scratch.Live() != 1 {
		t.Fatalf("expected 1 live scratch file, got %d", scratch.Live())
	}

	if _, err := file.Fill(context.Background(), strings.NewReader("hello")); err != nil {
		t.Fatalf("fill: %v", err)
	}
	size, err := file.Size()
	if err != nil || size != 5 {
		t.Fatalf("expected size 5, got %d %v", size, err)
	}

	name := file.Name()
	if err := file.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := file.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if _, err := os.Stat(name); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected scratch file removed, got %v", err)
	}
	if scratch.Live() != 0 {
		t.Fatalf("expected no live scratch files, got %d", scratch.Live())
	}
}

func TestScratchFillHonoursCancellation(t *testing.T) {
	scratch := newTestScratch(t)
	file, err := scratch.Create(Locator{HubName: "hf", Path: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer file.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := file.Fill(ctx, strings.NewReader("data")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestScratchRejectsInvalidHub(t *testing.T) {
	scratch := newTestScratch(t)
	for _, name := range []string{"", "a/b", "../.."} {
		if _, err := scratch.Create(Locator{HubName: name, Path: "x"}); err == nil {
			t.Fatalf("expected error for hub %q", name)
		}
	}
}

func TestCopyWithContextShortWrite(t *testing.T) {
	_, err := copyWithContext(context.Background(), shortWriter{}, strings.NewReader("abc"))
	if !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("expected short write, got %v", err)
	}
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) {
	return len(p) - 1, nil
}

// newTestScratch returns a Scratch rooted in a temporary directory.
func newTestScratch(t *testing.T) *Scratch {
	t.Helper()
	scratch, err := NewScratch(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create scratch: %v", err)
	}
	return scratch
}
