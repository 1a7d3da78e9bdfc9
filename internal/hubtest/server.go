// Package hubtest provides an in-process fake hub for tests. It serves the
// subset of the hub REST API that hubfs talks to (repository probes,
// paginated tree listings, commits and resolve downloads with Range support)
// from in-memory repositories and records every request so tests can assert
// how many round-trips an operation took.
package hubtest

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/hubfs/internal/hub"
	"github.com/any-hub/hubfs/internal/repotype"
)

// 请求分类，用于 Count。
const (
	KindProbe   = "probe"
	KindTree    = "tree"
	KindCommit  = "commit"
	KindResolve = "resolve"
	KindOther   = "other"
)

// Request 记录一次请求的方法、分类、路径与查询参数。
type Request struct {
	Kind   string
	Method string
	Path   string
	Query  url.Values
	Header http.Header
}

// CommitRecord 描述一次被接受的提交。
type CommitRecord struct {
	RepoType    repotype.Type
	RepoID      string
	Revision    string
	Summary     string
	Description string
	Added       []string
	Deleted     []string
	Copied      []string
}

type file struct {
	content  []byte
	lfs      bool
	modified time.Time
}

type repo struct {
	revisions map[string]map[string]*file
}

// Server 是基于 httptest 的假 Hub。
type Server struct {
	URL   string
	Token string

	srv *httptest.Server

	mu           sync.Mutex
	repos        map[string]*repo
	requests     []Request
	commits      []CommitRecord
	pageSize     int
	commitStatus int
	clock        time.Time
}

// NewServer 启动假 Hub，并在测试结束时关闭。
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		repos:    make(map[string]*repo),
		pageSize: 1000,
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	s.URL = s.srv.URL
	t.Cleanup(s.srv.Close)
	return s
}

// NewClient 返回指向假 Hub 的 *hub.Client，不做重试，日志丢弃。
func (s *Server) NewClient() *hub.Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return hub.NewClient(hub.Options{
		Name:     "hubtest",
		Endpoint: s.URL,
		Token:    s.Token,
		Logger:   logger,
	})
}

// AddRepo 创建仓库，main 分支总是存在，revisions 为额外分支。
func (s *Server) AddRepo(repoType repotype.Type, repoID string, revisions ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.repos[repoKey(repoType, repoID)]
	if r == nil {
		r = &repo{revisions: map[string]map[string]*file{"main": {}}}
		s.repos[repoKey(repoType, repoID)] = r
	}
	for _, rev := range revisions {
		if _, ok := r.revisions[rev]; !ok {
			r.revisions[rev] = map[string]*file{}
		}
	}
}

// PutFile 写入普通文件，仓库不存在时自动创建。
func (s *Server) PutFile(repoType repotype.Type, repoID, revision, pathInRepo string, content []byte) {
	s.putFile(repoType, repoID, revision, pathInRepo, content, false)
}

// PutLFSFile 写入存放在 LFS 中的文件。
func (s *Server) PutLFSFile(repoType repotype.Type, repoID, revision, pathInRepo string, content []byte) {
	s.putFile(repoType, repoID, revision, pathInRepo, content, true)
}

func (s *Server) putFile(repoType repotype.Type, repoID, revision, pathInRepo string, content []byte, lfs bool) {
	if revision == "" {
		revision = "main"
	}
	s.AddRepo(repoType, repoID, revision)
	s.mu.Lock()
	defer s.mu.Unlock()
	files := s.repos[repoKey(repoType, repoID)].revisions[revision]
	files[strings.Trim(pathInRepo, "/")] = &file{content: bytes.Clone(content), lfs: lfs, modified: s.tick()}
}

// File 返回文件内容。
func (s *Server) File(repoType repotype.Type, repoID, revision, pathInRepo string) ([]byte, bool) {
	if revision == "" {
		revision = "main"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.repos[repoKey(repoType, repoID)]
	if r == nil {
		return nil, false
	}
	f, ok := r.revisions[revision][strings.Trim(pathInRepo, "/")]
	if !ok {
		return nil, false
	}
	return bytes.Clone(f.content), true
}

// SetPageSize 设置 tree 分页大小。
func (s *Server) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSize = n
}

// FailCommits 让后续提交返回 status；传 0 恢复正常。
func (s *Server) FailCommits(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitStatus = status
}

// Requests 返回已记录请求的副本。
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count 返回指定分类的请求次数。
func (s *Server) Count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, req := range s.requests {
		if req.Kind == kind {
			n++
		}
	}
	return n
}

// Commits 返回已接受的提交。
func (s *Server) Commits() []CommitRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CommitRecord, len(s.commits))
	copy(out, s.commits)
	return out
}

// ResetRequests 清空请求记录。
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

func (s *Server) tick() time.Time {
	s.clock = s.clock.Add(time.Minute)
	return s.clock
}

func repoKey(repoType repotype.Type, repoID string) string {
	return string(repoType) + ":" + repoID
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	segments := splitEscaped(r.URL.EscapedPath())
	kind := KindOther
	handler := func() { writeError(w, http.StatusNotFound, "", "not found") }

	if len(segments) > 0 && segments[0] == "api" {
		kind, handler = s.routeAPI(w, r, segments[1:])
	} else if len(segments) > 0 {
		kind, handler = s.routeResolve(w, r, segments)
	}

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Kind:   kind,
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
	})
	s.mu.Unlock()

	if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
		writeError(w, http.StatusUnauthorized, "", "invalid credentials")
		return
	}
	handler()
}

func (s *Server) routeAPI(w http.ResponseWriter, r *http.Request, segments []string) (string, func()) {
	if len(segments) < 2 {
		return KindOther, func() { writeError(w, http.StatusNotFound, "", "not found") }
	}
	meta, ok := repotype.Resolve(segments[0])
	if !ok {
		return KindOther, func() { writeError(w, http.StatusNotFound, "", "unknown repo type") }
	}
	repoID, rest := s.splitRepo(meta.Key, segments[1:])

	switch {
	case len(rest) == 0:
		return KindProbe, func() { s.handleProbe(w, meta.Key, repoID, "") }
	case rest[0] == "revision" && len(rest) == 2:
		return KindProbe, func() { s.handleProbe(w, meta.Key, repoID, rest[1]) }
	case rest[0] == "tree" && len(rest) >= 2:
		return KindTree, func() { s.handleTree(w, r, meta.Key, repoID, rest[1], strings.Join(rest[2:], "/")) }
	case rest[0] == "commit" && len(rest) == 2 && r.Method == http.MethodPost:
		return KindCommit, func() { s.handleCommit(w, r, meta.Key, repoID, rest[1]) }
	}
	kind := KindOther
	if r.Method == http.MethodGet && !slices.Contains(rest, "tree") {
		// 形如 a/b 但只有 a 存在：仍然是一次（失败的）仓库探测。
		kind = KindProbe
	}
	return kind, func() { writeError(w, http.StatusNotFound, "RepoNotFound", "Repository not found") }
}

func (s *Server) routeResolve(w http.ResponseWriter, r *http.Request, segments []string) (string, func()) {
	repoType := repotype.Default()
	if meta, ok := repotype.FromPrefix(segments[0]); ok {
		repoType = meta.Key
		segments = segments[1:]
	}
	repoID, rest := s.splitRepo(repoType, segments)
	if len(rest) < 3 || rest[0] != "resolve" {
		return KindOther, func() { writeError(w, http.StatusNotFound, "RepoNotFound", "Repository not found") }
	}
	return KindResolve, func() { s.handleResolve(w, r, repoType, repoID, rest[1], strings.Join(rest[2:], "/")) }
}

// splitRepo 优先把前两段识别为已存在的 namespace/name 仓库。
func (s *Server) splitRepo(repoType repotype.Type, segments []string) (string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(segments) >= 2 {
		if _, ok := s.repos[repoKey(repoType, segments[0]+"/"+segments[1])]; ok {
			return segments[0] + "/" + segments[1], segments[2:]
		}
	}
	if len(segments) >= 1 {
		if _, ok := s.repos[repoKey(repoType, segments[0])]; ok {
			return segments[0], segments[1:]
		}
	}
	if len(segments) == 2 {
		return segments[0] + "/" + segments[1], nil
	}
	if len(segments) == 1 {
		return segments[0], nil
	}
	return "", []string{"unknown"}
}

func (s *Server) lookup(repoType repotype.Type, repoID, revision string) (map[string]*file, string, int) {
	r := s.repos[repoKey(repoType, repoID)]
	if r == nil {
		return nil, "RepoNotFound", http.StatusNotFound
	}
	files, ok := r.revisions[revision]
	if !ok {
		return nil, "RevisionNotFound", http.StatusNotFound
	}
	return files, "", http.StatusOK
}

func (s *Server) handleProbe(w http.ResponseWriter, repoType repotype.Type, repoID, revision string) {
	if revision == "" {
		revision = "main"
	}
	s.mu.Lock()
	_, code, status := s.lookup(repoType, repoID, revision)
	s.mu.Unlock()
	if status != http.StatusOK {
		writeError(w, status, code, code)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": repoID, "sha": gitOID([]byte(repoID + revision))})
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request, repoType repotype.Type, repoID, revision, dir string) {
	s.mu.Lock()
	files, code, status := s.lookup(repoType, repoID, revision)
	if status != http.StatusOK {
		s.mu.Unlock()
		writeError(w, status, code, code)
		return
	}
	entries, ok := listTree(files, dir, r.URL.Query().Get("recursive") != "")
	pageSize := s.pageSize
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "EntryNotFound", fmt.Sprintf("%s does not exist on %q", dir, revision))
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("cursor"))
	if offset > len(entries) {
		offset = len(entries)
	}
	end := offset + pageSize
	if end > len(entries) {
		end = len(entries)
	}
	if end < len(entries) {
		query := r.URL.Query()
		query.Set("cursor", strconv.Itoa(end))
		next := fmt.Sprintf("http://%s%s?%s", r.Host, r.URL.EscapedPath(), query.Encode())
		w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, next))
	}
	writeJSON(w, http.StatusOK, entries[offset:end])
}

func listTree(files map[string]*file, dir string, recursive bool) ([]hub.TreeEntry, bool) {
	dir = strings.Trim(dir, "/")
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	var entries []hub.TreeEntry
	seenDirs := map[string]bool{}
	found := dir == ""
	for name, f := range files {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		found = true
		parts := strings.Split(strings.TrimPrefix(name, prefix), "/")
		if !recursive && len(parts) > 1 {
			sub := prefix + parts[0]
			if !seenDirs[sub] {
				seenDirs[sub] = true
				entries = append(entries, dirEntry(sub))
			}
			continue
		}
		if recursive {
			for i := 1; i < len(parts); i++ {
				sub := prefix + strings.Join(parts[:i], "/")
				if !seenDirs[sub] {
					seenDirs[sub] = true
					entries = append(entries, dirEntry(sub))
				}
			}
		}
		entries = append(entries, fileEntry(name, f))
	}
	if !found {
		return nil, false
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	if entries == nil {
		entries = []hub.TreeEntry{}
	}
	return entries, true
}

func dirEntry(p string) hub.TreeEntry {
	return hub.TreeEntry{Type: hub.EntryDirectory, OID: gitOID([]byte("tree " + p)), Path: p}
}

func fileEntry(p string, f *file) hub.TreeEntry {
	entry := hub.TreeEntry{
		Type: hub.EntryFile,
		OID:  gitOID(f.content),
		Size: int64(len(f.content)),
		Path: p,
		LastCommit: &hub.LastCommit{
			ID:    gitOID([]byte(f.modified.String())),
			Title: "Upload " + p,
			Date:  f.modified,
		},
	}
	if f.lfs {
		entry.LFS = &hub.LFSInfo{OID: lfsOID(f.content), Size: int64(len(f.content)), PointerSize: 134}
	}
	return entry
}

type commitPayload struct {
	Summary      string `json:"summary"`
	Description  string `json:"description"`
	DeletedFiles []struct {
		Path string `json:"path"`
	} `json:"deletedFiles"`
	LFSFiles []struct {
		Path string `json:"path"`
		Algo string `json:"algo"`
		OID  string `json:"oid"`
	} `json:"lfsFiles"`
	Files []struct {
		Path     string `json:"path"`
		Encoding string `json:"encoding"`
		Content  string `json:"content"`
	} `json:"files"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request, repoType repotype.Type, repoID, revision string) {
	var payload commitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid commit payload: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitStatus != 0 {
		writeError(w, s.commitStatus, "", "commit rejected")
		return
	}
	files, code, status := s.lookup(repoType, repoID, revision)
	if status != http.StatusOK {
		writeError(w, status, code, code)
		return
	}

	record := CommitRecord{
		RepoType:    repoType,
		RepoID:      repoID,
		Revision:    revision,
		Summary:     payload.Summary,
		Description: payload.Description,
	}
	staged := make(map[string]*file, len(files))
	for name, f := range files {
		staged[name] = f
	}
	for _, del := range payload.DeletedFiles {
		if _, ok := staged[del.Path]; !ok {
			writeError(w, http.StatusNotFound, "EntryNotFound", del.Path+" does not exist")
			return
		}
		delete(staged, del.Path)
		record.Deleted = append(record.Deleted, del.Path)
	}
	now := s.tick()
	for _, cp := range payload.LFSFiles {
		src := findLFS(s.repos[repoKey(repoType, repoID)], cp.OID)
		if src == nil {
			writeError(w, http.StatusBadRequest, "", "unknown lfs object "+cp.OID)
			return
		}
		staged[cp.Path] = &file{content: src.content, lfs: true, modified: now}
		record.Copied = append(record.Copied, cp.Path)
	}
	for _, add := range payload.Files {
		content, err := base64.StdEncoding.DecodeString(add.Content)
		if err != nil {
			writeError(w, http.StatusBadRequest, "", "invalid base64 for "+add.Path)
			return
		}
		staged[add.Path] = &file{content: content, modified: now}
		record.Added = append(record.Added, add.Path)
	}

	s.repos[repoKey(repoType, repoID)].revisions[revision] = staged
	s.commits = append(s.commits, record)
	writeJSON(w, http.StatusOK, map[string]string{"commitOid": gitOID([]byte(now.String()))})
}

// findLFS 在仓库的全部 revision 中查找 LFS 对象。
func findLFS(r *repo, oid string) *file {
	for _, files := range r.revisions {
		for _, f := range files {
			if f.lfs && lfsOID(f.content) == oid {
				return f
			}
		}
	}
	return nil
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request, repoType repotype.Type, repoID, revision, pathInRepo string) {
	s.mu.Lock()
	files, code, status := s.lookup(repoType, repoID, revision)
	var f *file
	if status == http.StatusOK {
		f = files[pathInRepo]
	}
	s.mu.Unlock()
	if status != http.StatusOK {
		writeError(w, status, code, code)
		return
	}
	if f == nil {
		writeError(w, http.StatusNotFound, "EntryNotFound", pathInRepo+" does not exist")
		return
	}
	w.Header().Set("ETag", `"`+gitOID(f.content)+`"`)
	http.ServeContent(w, r, pathInRepo, f.modified, bytes.NewReader(f.content))
}

func splitEscaped(escaped string) []string {
	trimmed := strings.Trim(escaped, "/")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, "/")
	for i, part := range parts {
		if unescaped, err := url.PathUnescape(part); err == nil {
			parts[i] = unescaped
		}
	}
	return parts
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	if code != "" {
		w.Header().Set("X-Error-Code", code)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func gitOID(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])
}

func lfsOID(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// LFSOID 返回内容的 sha256，与 tree 中 lfs.oid 一致。
func LFSOID(content []byte) string {
	return lfsOID(content)
}
