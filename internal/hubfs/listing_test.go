package hubfs

import (
	"context"
	"errors"
	"io/fs"
	"reflect"
	"sort"
	"testing"

	"github.com/any-hub/hubfs/internal/hubtest"
	"github.com/any-hub/hubfs/internal/repotype"
)

func seedModel(srv *hubtest.Server) {
	srv.PutFile(repotype.Model, "org/model", "", "README.md", []byte("# model"))
	srv.PutFile(repotype.Model, "org/model", "", "data/a.csv", []byte("1,2"))
	srv.PutFile(repotype.Model, "org/model", "", "data/b.json", []byte("{}"))
	srv.PutFile(repotype.Model, "org/model", "", "data/nested/c.csv", []byte("3,4"))
	srv.PutLFSFile(repotype.Model, "org/model", "", "weights.bin", []byte("0123456789"))
}

func names(items []Info) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Name
	}
	sort.Strings(out)
	return out
}

func TestLsListsOneLevel(t *testing.T) {
	fsys, srv := newTestFS(t)
	seedModel(srv)
	srv.SetPageSize(1)
	ctx := context.Background()

	items, err := fsys.Ls(ctx, "org/model", ListOptions{})
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	want := []string{"org/model/README.md", "org/model/data", "org/model/weights.bin"}
	if got := names(items); !reflect.DeepEqual(got, want) {
		t.Fatalf("ls = %v, want %v", got, want)
	}
	if got := srv.Count(hubtest.KindTree); got != 3 {
		t.Fatalf("expected three tree pages, got %d", got)
	}

	for _, item := range items {
		switch item.Name {
		case "org/model/data":
			if !item.IsDir() {
				t.Fatalf("data should be a directory: %+v", item)
			}
		case "org/model/weights.bin":
			if item.LFS == nil || item.LFS.OID != hubtest.LFSOID([]byte("0123456789")) || item.Size != 10 {
				t.Fatalf("unexpected lfs descriptor: %+v", item)
			}
		}
	}

	if _, err := fsys.Ls(ctx, "org/model", ListOptions{}); err != nil {
		t.Fatalf("ls cached: %v", err)
	}
	if got := srv.Count(hubtest.KindTree); got != 3 {
		t.Fatalf("cached listing should not hit the hub, got %d tree requests", got)
	}
	if _, err := fsys.Ls(ctx, "org/model", ListOptions{Refresh: true}); err != nil {
		t.Fatalf("ls refresh: %v", err)
	}
	if got := srv.Count(hubtest.KindTree); got != 6 {
		t.Fatalf("refresh should list again, got %d tree requests", got)
	}
}

func TestLsRecursiveRegistersAncestors(t *testing.T) {
	fsys, srv := newTestFS(t)
	seedModel(srv)
	ctx := context.Background()

	items, err := fsys.Ls(ctx, "org/model", ListOptions{Recursive: true})
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	want := []string{
		"org/model/README.md",
		"org/model/data",
		"org/model/data/a.csv",
		"org/model/data/b.json",
		"org/model/data/nested",
		"org/model/data/nested/c.csv",
		"org/model/weights.bin",
	}
	if got := names(items); !reflect.DeepEqual(got, want) {
		t.Fatalf("ls = %v, want %v", got, want)
	}
	for _, dir := range []string{"org/model", "org/model/data", "org/model/data/nested"} {
		if !fsys.dircache.Has(dir) {
			t.Fatalf("expected %s to be cached", dir)
		}
	}

	before := srv.Count(hubtest.KindTree)
	nested, err := fsys.LsNames(ctx, "org/model/data/nested", ListOptions{})
	if err != nil {
		t.Fatalf("ls nested: %v", err)
	}
	if !reflect.DeepEqual(nested, []string{"org/model/data/nested/c.csv"}) {
		t.Fatalf("nested = %v", nested)
	}
	if srv.Count(hubtest.KindTree) != before {
		t.Fatalf("nested listing should come from cache")
	}
}

func TestLsOnFileReturnsFile(t *testing.T) {
	fsys, srv := newTestFS(t)
	seedModel(srv)

	items, err := fsys.Ls(context.Background(), "org/model/data/a.csv", ListOptions{})
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	if len(items) != 1 || items[0].Name != "org/model/data/a.csv" || items[0].Size != 3 {
		t.Fatalf("unexpected listing: %+v", items)
	}
}

func TestLsMissingPath(t *testing.T) {
	fsys, srv := newTestFS(t)
	seedModel(srv)

	_, err := fsys.Ls(context.Background(), "org/model/nope", ListOptions{})
	if !errors.Is(err, ErrFileNotFound) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

func TestLsRevision(t *testing.T) {
	fsys, srv := newTestFS(t)
	srv.PutFile(repotype.Model, "org/model", "refs/pr/1", "x.txt", []byte("pr"))
	ctx := context.Background()

	got, err := fsys.LsNames(ctx, "org/model@refs/pr/1", ListOptions{})
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"org/model@refs/pr/1/x.txt"}) {
		t.Fatalf("ls = %v", got)
	}
	got, err = fsys.LsNames(ctx, "org/model", ListOptions{Revision: "refs/pr/1"})
	if err != nil {
		t.Fatalf("ls with revision option: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"org/model@refs/pr/1/x.txt"}) {
		t.Fatalf("ls = %v", got)
	}
}

func TestInfo(t *testing.T) {
	fsys, srv := newTestFS(t)
	seedModel(srv)
	ctx := context.Background()

	root, err := fsys.Info(ctx, "org/model")
	if err != nil {
		t.Fatalf("info root: %v", err)
	}
	if !root.IsDir() || root.Name != "org/model" {
		t.Fatalf("unexpected root info: %+v", root)
	}
	if got := srv.Count(hubtest.KindTree); got != 0 {
		t.Fatalf("root info should not list, got %d tree requests", got)
	}

	item, err := fsys.Info(ctx, "org/model/data/b.json")
	if err != nil {
		t.Fatalf("info file: %v", err)
	}
	if item.IsDir() || item.Size != 2 || item.BlobID == "" || item.LastModified.IsZero() {
		t.Fatalf("unexpected file info: %+v", item)
	}

	if _, err := fsys.Info(ctx, "org/model/data/missing"); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
	if _, err := fsys.Info(ctx, "org/model/nope/deeper"); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound for missing parent, got %v", err)
	}
}

func TestModified(t *testing.T) {
	fsys, srv := newTestFS(t)
	seedModel(srv)
	ctx := context.Background()

	modified, err := fsys.Modified(ctx, "org/model/README.md")
	if err != nil || modified.IsZero() {
		t.Fatalf("modified: %v, %v", modified, err)
	}
	if _, err := fsys.Modified(ctx, "org/model/data"); !errors.Is(err, ErrIsDir) {
		t.Fatalf("expected ErrIsDir for directory, got %v", err)
	}
}

func TestExistsIsDirIsFile(t *testing.T) {
	fsys, srv := newTestFS(t)
	seedModel(srv)
	ctx := context.Background()

	cases := []struct {
		path                  string
		exists, isDir, isFile bool
	}{
		{path: "org/model", exists: true, isDir: true},
		{path: "org/model/data", exists: true, isDir: true},
		{path: "org/model/data/a.csv", exists: true, isFile: true},
		{path: "org/model/missing"},
		{path: "org/missing-repo/file"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			exists, err := fsys.Exists(ctx, tc.path)
			if err != nil || exists != tc.exists {
				t.Fatalf("exists = %v, %v", exists, err)
			}
			isDir, err := fsys.IsDir(ctx, tc.path)
			if err != nil || isDir != tc.isDir {
				t.Fatalf("isdir = %v, %v", isDir, err)
			}
			isFile, err := fsys.IsFile(ctx, tc.path)
			if err != nil || isFile != tc.isFile {
				t.Fatalf("isfile = %v, %v", isFile, err)
			}
		})
	}
}

func TestFind(t *testing.T) {
	fsys, srv := newTestFS(t)
	seedModel(srv)
	ctx := context.Background()

	files, err := fsys.Find(ctx, "org/model/data", FindOptions{})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	want := []string{"org/model/data/a.csv", "org/model/data/b.json", "org/model/data/nested/c.csv"}
	if got := names(files); !reflect.DeepEqual(got, want) {
		t.Fatalf("find = %v, want %v", got, want)
	}

	shallow, err := fsys.Find(ctx, "org/model/data", FindOptions{MaxDepth: 1, WithDirs: true})
	if err != nil {
		t.Fatalf("find shallow: %v", err)
	}
	want = []string{"org/model/data/a.csv", "org/model/data/b.json", "org/model/data/nested"}
	if got := names(shallow); !reflect.DeepEqual(got, want) {
		t.Fatalf("find shallow = %v, want %v", got, want)
	}

	single, err := fsys.Find(ctx, "org/model/README.md", FindOptions{})
	if err != nil || len(single) != 1 {
		t.Fatalf("find file: %v, %v", single, err)
	}

	missing, err := fsys.Find(ctx, "org/model/none", FindOptions{})
	if err != nil || len(missing) != 0 {
		t.Fatalf("find missing: %v, %v", missing, err)
	}

	if _, err := fsys.Find(ctx, "org/model", FindOptions{MaxDepth: -1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestWalk(t *testing.T) {
	fsys, srv := newTestFS(t)
	seedModel(srv)
	ctx := context.Background()

	var visited []string
	err := fsys.Walk(ctx, "org/model", 0, func(dir string, dirs, files []Info) error {
		visited = append(visited, dir)
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	want := []string{"org/model", "org/model/data", "org/model/data/nested"}
	if !reflect.DeepEqual(visited, want) {
		t.Fatalf("walk visited %v, want %v", visited, want)
	}

	visited = nil
	err = fsys.Walk(ctx, "org/model", 0, func(dir string, dirs, files []Info) error {
		visited = append(visited, dir)
		if dir == "org/model/data" {
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk skip: %v", err)
	}
	if !reflect.DeepEqual(visited, []string{"org/model", "org/model/data"}) {
		t.Fatalf("walk with SkipDir visited %v", visited)
	}

	visited = nil
	err = fsys.Walk(ctx, "org/model", 1, func(dir string, dirs, files []Info) error {
		visited = append(visited, dir)
		return nil
	})
	if err != nil || !reflect.DeepEqual(visited, []string{"org/model"}) {
		t.Fatalf("walk depth 1 visited %v, %v", visited, err)
	}
}

func TestGlob(t *testing.T) {
	fsys, srv := newTestFS(t)
	seedModel(srv)
	ctx := context.Background()

	cases := []struct {
		pattern string
		want    []string
	}{
		{pattern: "org/model/data/*.csv", want: []string{"org/model/data/a.csv"}},
		{pattern: "org/model/*", want: []string{"org/model/README.md", "org/model/data", "org/model/weights.bin"}},
		{pattern: "org/model/**/*.csv", want: []string{"org/model/data/a.csv", "org/model/data/nested/c.csv"}},
		{pattern: "org/model/data/?.json", want: []string{"org/model/data/b.json"}},
		{pattern: "org/model/data/[ab].csv", want: []string{"org/model/data/a.csv"}},
		{pattern: "org/model/*.txt", want: []string{}},
		{pattern: "org/model/README.md", want: []string{"org/model/README.md"}},
	}
	for _, tc := range cases {
		t.Run(tc.pattern, func(t *testing.T) {
			got, err := fsys.Glob(ctx, tc.pattern, GlobOptions{})
			if err != nil {
				t.Fatalf("glob: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("glob = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	fsys, srv := newTestFS(t)
	seedModel(srv)
	ctx := context.Background()

	got, err := fsys.ExpandPath(ctx, []string{"org/model/data/*.csv", "org/model/README.md", "org/model/data/a.csv"}, ExpandOptions{})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if want := []string{"org/model/README.md", "org/model/data/a.csv"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expand = %v, want %v", got, want)
	}

	got, err = fsys.ExpandPath(ctx, []string{"org/model/data"}, ExpandOptions{Recursive: true, MaxDepth: 1})
	if err != nil {
		t.Fatalf("expand recursive: %v", err)
	}
	want := []string{"org/model/data", "org/model/data/a.csv", "org/model/data/b.json", "org/model/data/nested"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expand recursive = %v, want %v", got, want)
	}

	if _, err := fsys.ExpandPath(ctx, []string{"org/model"}, ExpandOptions{MaxDepth: -2}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestExpandPathWithoutMatchesFails(t *testing.T) {
	fsys, srv := newTestFS(t)
	seedModel(srv)

	_, err := fsys.ExpandPath(context.Background(), []string{"org/model/nonexistent*"}, ExpandOptions{})
	if !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}
