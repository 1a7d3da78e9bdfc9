package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrRepositoryNotFound 表示仓库不存在（或无权访问）。
	ErrRepositoryNotFound = errors.New("repository not found")
	// ErrRevisionNotFound 表示仓库存在但指定的 revision 不存在。
	ErrRevisionNotFound = errors.New("revision not found")
	// ErrEntryNotFound 表示仓库内的路径不存在，或该路径不是目录。
	ErrEntryNotFound = errors.New("entry not found")
	// ErrInvalidRepoID 表示 repo_id 不满足 Hub 的命名规则，无需请求即可判定不存在。
	ErrInvalidRepoID = errors.New("invalid repository id")
)

// Hub 在 X-Error-Code 头中返回的错误码。
const (
	codeRepoNotFound     = "RepoNotFound"
	codeRevisionNotFound = "RevisionNotFound"
	codeEntryNotFound    = "EntryNotFound"
)

// Error 描述一次失败的上游请求，保留状态码与 Hub 错误码，供调用方用 errors.Is 分类。
type Error struct {
	Method     string
	URL        string
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RequestID != "" {
		msg += " [request_id=" + e.RequestID + "]"
	}
	return msg
}

// Unwrap 将 Hub 错误码映射为包级哨兵错误。
func (e *Error) Unwrap() error {
	switch e.Code {
	case codeRepoNotFound:
		return ErrRepositoryNotFound
	case codeRevisionNotFound:
		return ErrRevisionNotFound
	case codeEntryNotFound:
		return ErrEntryNotFound
	}
	return nil
}

// IsNotFound 判断错误是否属于仓库/revision/路径不存在这一类。
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRepositoryNotFound) ||
		errors.Is(err, ErrRevisionNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrInvalidRepoID)
}

const maxErrorBody = 64 * 1024

// newResponseError 读取错误响应体并构造 *Error，调用方负责关闭 Body。
func newResponseError(resp *http.Response) *Error {
	herr := &Error{
		StatusCode: resp.StatusCode,
		Code:       resp.Header.Get("X-Error-Code"),
		Message:    resp.Header.Get("X-Error-Message"),
		RequestID:  resp.Header.Get("X-Request-Id"),
	}
	if resp.Request != nil {
		herr.Method = resp.Request.Method
		if resp.Request.URL != nil {
			herr.URL = resp.Request.URL.String()
		}
	}
	if herr.Message == "" && resp.Body != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		herr.Message = errorMessage(body)
	}
	return herr
}

func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
