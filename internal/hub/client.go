package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/hubfs/internal/metrics"
	"github.com/any-hub/hubfs/internal/repotype"
	"github.com/any-hub/hubfs/internal/version"
)

// DefaultEndpoint 是未配置 Endpoint 时使用的 Hub 地址。
const DefaultEndpoint = "https://huggingface.co"

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// Options 控制 Client 的上游地址、凭证与重试策略。
type Options struct {
	Name           string
	Endpoint       string
	Token          string
	Proxy          *url.URL
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *logrus.Logger
}

// Client 封装 Hub REST API：仓库探测、tree 分页、区间下载与提交。
// 重试与退避由 go-retryablehttp 负责，核心逻辑不做本地重试。
type Client struct {
	name     string
	endpoint string
	token    string
	http     *retryablehttp.Client
	logger   *logrus.Logger
}

// NewClient 根据 Options 构建 Client，零值字段回退到默认配置。
func NewClient(opts Options) *Client {
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := defaultTransport.Clone()
	if opts.Proxy != nil {
		transport.Proxy = http.ProxyURL(opts.Proxy)
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
	rc.RetryMax = opts.MaxRetries
	if opts.InitialBackoff > 0 {
		rc.RetryWaitMin = opts.InitialBackoff
	}
	if opts.MaxBackoff > 0 {
		rc.RetryWaitMax = opts.MaxBackoff
	}
	if rc.RetryWaitMax < rc.RetryWaitMin {
		rc.RetryWaitMax = rc.RetryWaitMin
	}
	// 重试耗尽后把最后一次响应交还给调用方，统一由 checkResponse 转换为 *Error。
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{entry: logger.WithFields(logrus.Fields{"hub": opts.Name, "component": "transport"})}

	return &Client{
		name:     opts.Name,
		endpoint: endpoint,
		token:    opts.Token,
		http:     rc,
		logger:   logger,
	}
}

// Endpoint 返回当前 Client 指向的 Hub 地址。
func (c *Client) Endpoint() string {
	return c.endpoint
}

// ProbeRepo 查询仓库（及可选 revision）是否存在。返回 nil 表示存在；
// ErrRepositoryNotFound / ErrRevisionNotFound 表示不存在；其它错误为传输失败。
func (c *Client) ProbeRepo(ctx context.Context, repoType repotype.Type, repoID, revision string) error {
	if err := ValidateRepoID(repoID); err != nil {
		return err
	}
	target := c.apiURL(repoType, repoID)
	if revision != "" {
		target += "/revision/" + url.PathEscape(revision)
	}

	resp, err := c.do(ctx, http.MethodGet, target, nil, nil)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	herr := newResponseError(resp)
	if herr.Code == "" && resp.StatusCode == http.StatusNotFound {
		if revision != "" {
			return fmt.Errorf("%w: %w", ErrRevisionNotFound, herr)
		}
		return fmt.Errorf("%w: %w", ErrRepositoryNotFound, herr)
	}
	return herr
}

// RangeGet 下载 [start, end) 区间的字节，url 通常来自 FileURL。
func (c *Client) RangeGet(ctx context.Context, fileURL string, start, end int64) ([]byte, error) {
	if end <= start {
		return nil, nil
	}
	header := http.Header{}
	header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end-1))

	resp, err := c.do(ctx, http.MethodGet, fileURL, nil, header)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp)

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return c.readRange(resp.Body, end-start)
	case http.StatusOK:
		// 上游忽略了 Range，手动截取所需区间。
		if _, err := io.CopyN(io.Discard, resp.Body, start); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, err
		}
		return c.readRange(resp.Body, end-start)
	case http.StatusRequestedRangeNotSatisfiable:
		return nil, nil
	default:
		return nil, newResponseError(resp)
	}
}

func (c *Client) readRange(body io.Reader, n int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, n))
	if err != nil {
		return nil, err
	}
	metrics.RecordDownload(c.name, len(data))
	return data, nil
}

// FileURL 返回仓库内文件的 resolve 下载地址。
func (c *Client) FileURL(repoType repotype.Type, repoID, revision, pathInRepo string) string {
	if revision == "" {
		revision = DefaultRevision
	}
	return fmt.Sprintf("%s/%s%s/resolve/%s/%s",
		c.endpoint,
		repotype.Prefix(repoType),
		repoID,
		url.PathEscape(revision),
		escapePath(pathInRepo),
	)
}

// DefaultRevision 是 Hub 仓库的默认分支。
const DefaultRevision = "main"

func (c *Client) apiURL(repoType repotype.Type, repoID string) string {
	return fmt.Sprintf("%s/api/%s/%s", c.endpoint, repotype.APISegment(repoType), repoID)
}

// do 构建并发送请求，统一注入鉴权、User-Agent 与请求 ID。
func (c *Client) do(ctx context.Context, method, target string, body interface{}, header http.Header) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("User-Agent", "hubfs/"+version.Version)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if authHeader := buildCredentialHeader(c.token); authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"action": "hub_request",
			"hub":    c.name,
			"method": method,
			"url":    target,
		}).Warn("hub_request_failed")
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	return resp, nil
}

func buildCredentialHeader(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

func decodeJSON(resp *http.Response, dst interface{}) error {
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", resp.Request.URL, err)
	}
	return nil
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

// leveledLogger 让 retryablehttp 的日志落到 logrus 结构化输出中。
type leveledLogger struct {
	entry *logrus.Entry
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Error(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Info(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Warn(msg)
}

func (l leveledLogger) with(keysAndValues []interface{}) *logrus.Entry {
	if len(keysAndValues) == 0 {
		return l.entry
	}
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return l.entry.WithFields(fields)
}
