package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/hubfs/internal/config"
	"github.com/any-hub/hubfs/internal/logging"
	"github.com/any-hub/hubfs/internal/hubtest"
	"github.com/any-hub/hubfs/internal/repotype"
	"github.com/any-hub/hubfs/internal/server"
)

const testHost = "hf.hub.local"

func newGateway(t *testing.T) (*fiber.App, *hubtest.Server) {
	t.Helper()
	srv := hubtest.NewServer(t)
	srv.PutFile(repotype.Model, "org/model", "", "README.md", []byte("# model"))
	srv.PutFile(repotype.Model, "org/model", "", "data/a.csv", []byte("1,2"))
	srv.PutFile(repotype.Model, "org/model", "", "data/nested/c.csv", []byte("3,4"))
	srv.AddRepo(repotype.Model, "org/model", "dev")
	srv.PutFile(repotype.Model, "org/model", "dev", "dev.txt", []byte("dev only"))

	logger := logging.Discard()
	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort:      5000,
			ScratchPath:     t.TempDir(),
			BlockSize:       4,
			ReadCacheBlocks: 2,
		},
		Hubs: []config.HubConfig{{
			Name:     "hf",
			Domain:   testHost,
			Endpoint: srv.URL,
			Revision: "main",
			Protocol: "hf://",
		}},
	}
	registry, err := server.NewHubRegistry(cfg, logger)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Handler:    New(logger),
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	return app, srv
}

func doRequest(t *testing.T, app *fiber.App, method, target string, body io.Reader, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, "http://"+testHost+target, body)
	req.Host = testHost
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func listingNames(t *testing.T, body []byte) []string {
	t.Helper()
	var items []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &items); err != nil {
		t.Fatalf("decode listing %s: %v", body, err)
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	sort.Strings(names)
	return names
}

func TestGetFile(t *testing.T) {
	app, _ := newGateway(t)

	resp, body := doRequest(t, app, fiber.MethodGet, "/org/model/README.md", nil, nil)
	if resp.StatusCode != fiber.StatusOK || string(body) != "# model" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("Content-Length") != "7" {
		t.Fatalf("content length = %s", resp.Header.Get("Content-Length"))
	}

	resp, body = doRequest(t, app, fiber.MethodGet, "/org/model/README.md", nil, map[string]string{"Range": "bytes=2-4"})
	if resp.StatusCode != fiber.StatusPartialContent || string(body) != "mod" {
		t.Fatalf("unexpected range response %d %q", resp.StatusCode, body)
	}

	resp, body = doRequest(t, app, fiber.MethodGet, "/org/model/dev.txt?revision=dev", nil, nil)
	if resp.StatusCode != fiber.StatusOK || string(body) != "dev only" {
		t.Fatalf("unexpected revision response %d %q", resp.StatusCode, body)
	}
}

func TestGetDirectoryListsEntries(t *testing.T) {
	app, _ := newGateway(t)

	resp, body := doRequest(t, app, fiber.MethodGet, "/org/model/data", nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
	}
	got := listingNames(t, body)
	want := []string{"org/model/data/a.csv", "org/model/data/nested"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("listing = %v, want %v", got, want)
	}
}

func TestLsAndInfoRoutes(t *testing.T) {
	app, _ := newGateway(t)

	resp, body := doRequest(t, app, fiber.MethodGet, "/-/ls/org/model/data?recursive=1", nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
	}
	got := listingNames(t, body)
	want := []string{"org/model/data/a.csv", "org/model/data/nested", "org/model/data/nested/c.csv"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("recursive listing = %v, want %v", got, want)
	}

	resp, body = doRequest(t, app, fiber.MethodGet, "/-/info/org/model/README.md", nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
	}
	var info struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Name != "org/model/README.md" || info.Size != 7 || info.Type != "file" {
		t.Fatalf("unexpected info %+v", info)
	}

	resp, _ = doRequest(t, app, fiber.MethodGet, "/-/info/org/model/dev.txt?revision=dev", nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("info with revision returned %d", resp.StatusCode)
	}
}

func TestPutUploadsBody(t *testing.T) {
	app, srv := newGateway(t)

	resp, body := doRequest(t, app, fiber.MethodPut, "/org/model/notes/new.txt", strings.NewReader("hello"), map[string]string{
		"X-Commit-Message": "upload via gateway",
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
	}
	content, ok := srv.File(repotype.Model, "org/model", "", "notes/new.txt")
	if !ok || string(content) != "hello" {
		t.Fatalf("uploaded content = %q, %v", content, ok)
	}
	commits := srv.Commits()
	if len(commits) != 1 || commits[0].Summary != "upload via gateway" {
		t.Fatalf("unexpected commits %+v", commits)
	}

	resp, body = doRequest(t, app, fiber.MethodGet, "/org/model/notes/new.txt", nil, nil)
	if resp.StatusCode != fiber.StatusOK || string(body) != "hello" {
		t.Fatalf("read back %d %q", resp.StatusCode, body)
	}
}

func TestDeleteRequiresRecursiveForDirectories(t *testing.T) {
	app, srv := newGateway(t)

	resp, body := doRequest(t, app, fiber.MethodDelete, "/org/model/data", nil, nil)
	if resp.StatusCode != fiber.StatusConflict || !strings.Contains(string(body), "is_directory") {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, body)
	}
	if len(srv.Commits()) != 0 {
		t.Fatalf("no commit expected")
	}

	resp, body = doRequest(t, app, fiber.MethodDelete, "/org/model/data?recursive=1", nil, nil)
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
	}
	commits := srv.Commits()
	if len(commits) != 1 || len(commits[0].Deleted) != 2 {
		t.Fatalf("unexpected commits %+v", commits)
	}
}

func TestErrorStatuses(t *testing.T) {
	app, _ := newGateway(t)

	cases := []struct {
		method string
		target string
		status int
		code   string
	}{
		{fiber.MethodGet, "/org/model/missing.txt", fiber.StatusNotFound, "not_found"},
		{fiber.MethodGet, "/org/missing/file", fiber.StatusNotFound, "not_found"},
		{fiber.MethodGet, "/", fiber.StatusNotImplemented, "not_implemented"},
		{fiber.MethodGet, "/-/ls/datasets", fiber.StatusNotImplemented, "not_implemented"},
		{fiber.MethodGet, "/org/model/README.md?revision=v1", fiber.StatusNotFound, "not_found"},
		{fiber.MethodPost, "/org/model/README.md", fiber.StatusMethodNotAllowed, "method_not_allowed"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.target, func(t *testing.T) {
			resp, body := doRequest(t, app, tc.method, tc.target, nil, nil)
			if resp.StatusCode != tc.status || !strings.Contains(string(body), tc.code) {
				t.Fatalf("got %d %s, want %d %s", resp.StatusCode, body, tc.status, tc.code)
			}
		})
	}
}

func TestOperation(t *testing.T) {
	cases := []struct {
		method, path, op, target string
	}{
		{fiber.MethodGet, "/-/ls/org/model", opList, "org/model"},
		{fiber.MethodGet, "/-/ls", opList, ""},
		{fiber.MethodHead, "/-/info/org/model/a", opInfo, "org/model/a"},
		{fiber.MethodGet, "/-/lsx/org", opRead, "-/lsx/org"},
		{fiber.MethodPut, "/org/model/a", opUpload, "org/model/a"},
		{fiber.MethodDelete, "/org/model/a", opDelete, "org/model/a"},
		{fiber.MethodPatch, "/org/model/a", opUnsupported, "org/model/a"},
	}
	for _, tc := range cases {
		op, target := operation(tc.method, tc.path)
		if op != tc.op || target != tc.target {
			t.Fatalf("operation(%s, %s) = %s, %s", tc.method, tc.path, op, target)
		}
	}
}

func TestHostRoutingSelectsHubFileSystem(t *testing.T) {
	primary := hubtest.NewServer(t)
	primary.PutFile(repotype.Model, "org/model", "", "hub.txt", []byte("primary"))
	mirror := hubtest.NewServer(t)
	mirror.PutFile(repotype.Model, "org/model", "", "hub.txt", []byte("mirror"))

	logger := logging.Discard()
	cfg := &config.Config{
		Global: config.GlobalConfig{ListenPort: 5000, ScratchPath: t.TempDir()},
		Hubs: []config.HubConfig{
			{Name: "hf", Domain: "hf.hub.local", Endpoint: primary.URL, Revision: "main", Protocol: "hf://"},
			{Name: "mirror", Domain: "mirror.hub.local", Endpoint: mirror.URL, Revision: "main", Protocol: "hf://"},
		},
	}
	registry, err := server.NewHubRegistry(cfg, logger)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	app, err := server.NewApp(server.AppOptions{Logger: logger, Registry: registry, Handler: New(logger), ListenPort: 5000})
	if err != nil {
		t.Fatalf("app: %v", err)
	}

	for host, want := range map[string]string{"hf.hub.local": "primary", "mirror.hub.local:5000": "mirror"} {
		req := httptest.NewRequest(fiber.MethodGet, "http://"+host+"/org/model/hub.txt", nil)
		req.Host = host
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: %v", host, err)
		}
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != fiber.StatusOK || string(body) != want {
			t.Fatalf("%s: got %d %q, want %q", host, resp.StatusCode, body, want)
		}
	}
}
