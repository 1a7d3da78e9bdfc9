package hub

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/hubfs/internal/metrics"
	"github.com/any-hub/hubfs/internal/repotype"
)

// Operation 是单次提交中的一个变更。
type Operation interface {
	commitPath() string
}

// CommitOperationAdd 上传文件内容：LocalPath 优先，否则使用 Content。
type CommitOperationAdd struct {
	PathInRepo string
	LocalPath  string
	Content    []byte
}

// CommitOperationDelete 删除仓库内的单个文件。
type CommitOperationDelete struct {
	PathInRepo string
}

// CommitOperationCopy 通过 LFS 对象 ID 在仓库内复制文件，无需重新上传内容。
type CommitOperationCopy struct {
	PathInRepo string
	Algo       string
	OID        string
}

func (op CommitOperationAdd) commitPath() string    { return op.PathInRepo }
func (op CommitOperationDelete) commitPath() string { return op.PathInRepo }
func (op CommitOperationCopy) commitPath() string   { return op.PathInRepo }

// Commit 描述一次原子提交。
type Commit struct {
	Summary     string
	Description string
	Operations  []Operation
}

// ErrEmptyCommit 表示提交不包含任何操作。
var ErrEmptyCommit = errors.New("commit has no operations")

// Commit 将 commit 作为一次原子提交写入 revision。
func (c *Client) Commit(ctx context.Context, repoType repotype.Type, repoID, revision string, commit Commit) error {
	if len(commit.Operations) == 0 {
		return ErrEmptyCommit
	}
	if err := ValidateRepoID(repoID); err != nil {
		return err
	}
	for _, op := range commit.Operations {
		if strings.Trim(op.commitPath(), "/") == "" {
			return fmt.Errorf("commit: empty path in %T", op)
		}
	}
	if revision == "" {
		revision = DefaultRevision
	}
	target := c.apiURL(repoType, repoID) + "/commit/" + url.PathEscape(revision)

	// 每次（重）试都会重新生成请求体，大文件以 base64 流式写出，不整体驻留内存。
	body := func() (io.Reader, error) {
		pr, pw := io.Pipe()
		go func() {
			pw.CloseWithError(writeCommitBody(pw, commit))
		}()
		return pr, nil
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, http.MethodPost, target, body, header)
	if err != nil {
		metrics.RecordCommit(c.name, commitKind(commit), err)
		return err
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		herr := newResponseError(resp)
		metrics.RecordCommit(c.name, commitKind(commit), herr)
		return herr
	}
	metrics.RecordCommit(c.name, commitKind(commit), nil)
	for _, op := range commit.Operations {
		if add, ok := op.(CommitOperationAdd); ok {
			metrics.RecordUpload(c.name, addSize(add))
		}
	}
	c.logger.WithFields(logrus.Fields{
		"action":     "commit",
		"hub":        c.name,
		"repo_id":    repoID,
		"revision":   revision,
		"operations": len(commit.Operations),
	}).Info("hub_commit_created")
	return nil
}

func commitKind(commit Commit) string {
	kind := ""
	for _, op := range commit.Operations {
		var current string
		switch op.(type) {
		case CommitOperationAdd:
			current = "add"
		case CommitOperationDelete:
			current = "delete"
		case CommitOperationCopy:
			current = "copy"
		}
		if kind == "" {
			kind = current
		} else if kind != current {
			return "mixed"
		}
	}
	return kind
}

func addSize(op CommitOperationAdd) int64 {
	if op.LocalPath == "" {
		return int64(len(op.Content))
	}
	info, err := os.Stat(op.LocalPath)
	if err != nil {
		return 0
	}
	return info.Size()
}

type commitPathRef struct {
	Path string `json:"path"`
}

type commitLFSFile struct {
	Path string `json:"path"`
	Algo string `json:"algo"`
	OID  string `json:"oid"`
}

// writeCommitBody 输出
// {"summary","description","deletedFiles":[...],"lfsFiles":[...],"files":[...]}。
func writeCommitBody(w io.Writer, commit Commit) error {
	bw := bufio.NewWriter(w)
	deleted := []commitPathRef{}
	lfsFiles := []commitLFSFile{}
	var adds []CommitOperationAdd
	for _, op := range commit.Operations {
		switch v := op.(type) {
		case CommitOperationDelete:
			deleted = append(deleted, commitPathRef{Path: strings.Trim(v.PathInRepo, "/")})
		case CommitOperationCopy:
			algo := v.Algo
			if algo == "" {
				algo = "sha256"
			}
			lfsFiles = append(lfsFiles, commitLFSFile{Path: strings.Trim(v.PathInRepo, "/"), Algo: algo, OID: v.OID})
		case CommitOperationAdd:
			adds = append(adds, v)
		default:
			return fmt.Errorf("commit: unsupported operation %T", op)
		}
	}

	if _, err := bw.WriteString("{"); err != nil {
		return err
	}
	fields := []struct {
		key   string
		value interface{}
	}{
		{"summary", commit.Summary},
		{"description", commit.Description},
		{"deletedFiles", deleted},
		{"lfsFiles", lfsFiles},
	}
	for _, field := range fields {
		encoded, err := json.Marshal(field.value)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(bw, "%q:%s,", field.key, encoded); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString(`"files":[`); err != nil {
		return err
	}
	for i, add := range adds {
		if i > 0 {
			if err := bw.WriteByte(','); err != nil {
				return err
			}
		}
		if err := writeAddEntry(bw, add); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("]}"); err != nil {
		return err
	}
	return bw.Flush()
}

func writeAddEntry(w *bufio.Writer, add CommitOperationAdd) error {
	path, err := json.Marshal(strings.Trim(add.PathInRepo, "/"))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, `{"path":%s,"encoding":"base64","content":"`, path); err != nil {
		return err
	}
	var src io.Reader
	if add.LocalPath != "" {
		file, err := os.Open(add.LocalPath)
		if err != nil {
			return fmt.Errorf("commit: open %s: %w", add.LocalPath, err)
		}
		defer file.Close()
		src = file
	} else {
		src = bytes.NewReader(add.Content)
	}
	enc := base64.NewEncoder(base64.StdEncoding, w)
	if _, err := io.Copy(enc, src); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err = w.WriteString(`"}`)
	return err
}
