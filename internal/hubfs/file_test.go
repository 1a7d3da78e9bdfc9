package hubfs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/any-hub/hubfs/internal/hubtest"
	"github.com/any-hub/hubfs/internal/repotype"
)

func TestWriteThenRead(t *testing.T) {
	fsys, srv := newTestFS(t)
	srv.AddRepo(repotype.Model, "ns/name")
	ctx := context.Background()

	f, err := fsys.Open(ctx, "ns/name/x.txt", "wb")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.Write([]byte("hel")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := f.Write([]byte("lo")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f.Size() != 5 {
		t.Fatalf("size = %d", f.Size())
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := fsys.ReadFile(ctx, "ns/name/x.txt")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("read %q", data)
	}

	items, err := fsys.Ls(ctx, "ns/name", ListOptions{})
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	found := false
	for _, item := range items {
		if item.Name == "ns/name/x.txt" {
			found = true
			if item.Size != 5 {
				t.Fatalf("size = %d, want 5", item.Size)
			}
		}
	}
	if !found {
		t.Fatalf("x.txt missing from listing %v", names(items))
	}
	if got := fsys.Stats().ScratchFiles; got != 0 {
		t.Fatalf("scratch files left behind: %d", got)
	}
}

func TestFileReadSeek(t *testing.T) {
	fsys, srv := newTestFS(t)
	srv.PutFile(repotype.Model, "org/model", "", "digits.txt", []byte("0123456789"))
	ctx := context.Background()

	f, err := fsys.Open(ctx, "org/model/digits.txt", "rb")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if f.Size() != 10 || f.Name() != "org/model/digits.txt" {
		t.Fatalf("unexpected handle: %s %d", f.Name(), f.Size())
	}

	buf := make([]byte, 5)
	n, err := f.ReadAt(buf, 2)
	if err != nil || string(buf[:n]) != "23456" {
		t.Fatalf("readat = %q, %v", buf[:n], err)
	}
	resolves := srv.Count(hubtest.KindResolve)
	if _, err := f.ReadAt(buf[:2], 4); err != nil {
		t.Fatalf("readat cached: %v", err)
	}
	if srv.Count(hubtest.KindResolve) != resolves {
		t.Fatalf("cached block should not be fetched again")
	}

	if pos, err := f.Seek(-3, io.SeekEnd); err != nil || pos != 7 {
		t.Fatalf("seek = %d, %v", pos, err)
	}
	rest, err := io.ReadAll(f)
	if err != nil || string(rest) != "789" {
		t.Fatalf("read rest = %q, %v", rest, err)
	}
	n, err = f.Read(buf)
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Fatalf("read at eof = %d, %v", n, err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("seek start: %v", err)
	}
	all, err := io.ReadAll(f)
	if err != nil || string(all) != "0123456789" {
		t.Fatalf("read all = %q, %v", all, err)
	}
	if _, err := f.Seek(-1, io.SeekStart); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for negative seek, got %v", err)
	}
	if _, err := f.Write([]byte("x")); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation writing a read handle, got %v", err)
	}
}

func TestFileRangeRequests(t *testing.T) {
	fsys, srv := newTestFS(t)
	srv.PutFile(repotype.Model, "org/model", "", "digits.txt", []byte("0123456789"))
	srv.ResetRequests()

	data, err := fsys.ReadFile(context.Background(), "org/model/digits.txt")
	if err != nil || string(data) != "0123456789" {
		t.Fatalf("read = %q, %v", data, err)
	}
	var ranges []string
	for _, req := range srv.Requests() {
		if req.Kind == hubtest.KindResolve {
			ranges = append(ranges, req.Header.Get("Range"))
		}
	}
	if want := []string{"bytes=0-3", "bytes=4-7", "bytes=8-9"}; !reflect.DeepEqual(ranges, want) {
		t.Fatalf("ranges = %v, want %v", ranges, want)
	}
}

func TestReadEmptyFile(t *testing.T) {
	fsys, srv := newTestFS(t)
	srv.PutFile(repotype.Model, "org/model", "", "empty", nil)

	data, err := fsys.ReadFile(context.Background(), "org/model/empty")
	if err != nil || len(data) != 0 {
		t.Fatalf("read = %q, %v", data, err)
	}
}

func TestOpenModes(t *testing.T) {
	fsys, srv := newTestFS(t)
	seedModel(srv)
	ctx := context.Background()

	cases := []struct {
		mode string
		want error
	}{
		{mode: "a", want: ErrNotImplemented},
		{mode: "ab", want: ErrNotImplemented},
		{mode: "r+", want: ErrValidation},
		{mode: "x", want: ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.mode, func(t *testing.T) {
			if _, err := fsys.Open(ctx, "org/model/README.md", tc.mode); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := fsys.Open(ctx, "org/model/data", "r"); !errors.Is(err, ErrIsDir) {
		t.Fatalf("expected ErrIsDir, got %v", err)
	}
	if _, err := fsys.Open(ctx, "org/model/missing", "r"); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
	if _, err := fsys.Open(ctx, "org/model", "w"); !errors.Is(err, ErrIsDir) {
		t.Fatalf("expected ErrIsDir for repository root, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	fsys, srv := newTestFS(t)
	srv.AddRepo(repotype.Model, "org/model")
	ctx := context.Background()

	f, err := fsys.OpenFile(ctx, "org/model/notes.txt", "w", OpenOptions{
		BlockSize:     2,
		CommitOptions: CommitOptions{Message: "add notes"},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.Write([]byte("notes")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := f.Write([]byte("more")); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("expected os.ErrClosed, got %v", err)
	}
	commits := srv.Commits()
	if len(commits) != 1 || commits[0].Summary != "add notes" {
		t.Fatalf("unexpected commits: %+v", commits)
	}
	if content, _ := srv.File(repotype.Model, "org/model", "", "notes.txt"); string(content) != "notes" {
		t.Fatalf("content = %q", content)
	}
}

func TestCloseRemovesScratchOnCommitFailure(t *testing.T) {
	fsys, srv := newTestFS(t)
	srv.AddRepo(repotype.Model, "org/model")
	srv.FailCommits(http.StatusInternalServerError)
	ctx := context.Background()

	f, err := fsys.Open(ctx, "org/model/x.bin", "wb")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.Write([]byte("payload-bigger-than-a-block")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if fsys.Stats().ScratchFiles != 1 {
		t.Fatalf("expected one live scratch file")
	}

	if err := f.Close(); err == nil {
		t.Fatalf("expected commit failure")
	}
	if got := fsys.Stats().ScratchFiles; got != 0 {
		t.Fatalf("scratch files left behind: %d", got)
	}
	leftovers, err := filepath.Glob(filepath.Join(fsys.scratch.Dir(), "*", "hubfs-*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("scratch files on disk: %v", leftovers)
	}
}
