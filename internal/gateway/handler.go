package gateway

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/hubfs/internal/hubfs"
	"github.com/any-hub/hubfs/internal/logging"
	"github.com/any-hub/hubfs/internal/metrics"
	"github.com/any-hub/hubfs/internal/server"
)

const (
	lsPrefix   = "-/ls"
	infoPrefix = "-/info"
)

// 网关操作名，同时用作日志与指标标签。
const (
	opList        = "ls"
	opInfo        = "info"
	opRead        = "read"
	opUpload      = "upload"
	opDelete      = "delete"
	opUnsupported = "unsupported"
)

// Handler 将 HTTP 请求翻译为 FileSystem 调用。
type Handler struct {
	logger *logrus.Logger
}

var _ server.Handler = (*Handler)(nil)

// New 构建网关 Handler。
func New(logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{logger: logger}
}

// Handle 在 HubRoute 锁内执行一次文件系统操作并写回响应。
func (h *Handler) Handle(c fiber.Ctx, route *server.HubRoute) error {
	started := time.Now()
	op, target := operation(c.Method(), requestPath(c))

	var err error
	if op == opUnsupported {
		err = writeError(c, fiber.StatusMethodNotAllowed, "method_not_allowed")
		h.logResult(c, route, op, target, started, nil)
		return err
	}

	opErr := route.Do(func(fsys *hubfs.FileSystem) error {
		return h.dispatch(c, fsys, op, target)
	})
	if opErr != nil {
		status, code := classify(opErr)
		err = writeError(c, status, code)
	}
	h.logResult(c, route, op, target, started, opErr)
	return err
}

func (h *Handler) dispatch(c fiber.Ctx, fsys *hubfs.FileSystem, op, target string) error {
	ctx := c.Context()
	revision := c.Query("revision")

	switch op {
	case opList:
		items, err := fsys.Ls(ctx, target, hubfs.ListOptions{
			Revision:  revision,
			Refresh:   queryBool(c, "refresh"),
			Recursive: queryBool(c, "recursive"),
		})
		if err != nil {
			return err
		}
		return c.JSON(items)
	case opInfo:
		item, err := fsys.InfoAt(ctx, target, revision)
		if err != nil {
			return err
		}
		return c.JSON(item)
	case opRead:
		return serveFile(c, fsys, target, revision)
	case opUpload:
		body := c.Body()
		if err := fsys.Upload(ctx, target, bytes.NewReader(body), commitOptions(c, revision)); err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"path": target,
			"size": len(body),
		})
	case opDelete:
		err := fsys.Rm(ctx, target, hubfs.RmOptions{
			Recursive:     queryBool(c, "recursive"),
			CommitOptions: commitOptions(c, revision),
		})
		if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
	return errors.New("unknown operation " + op)
}

// serveFile 以 http.ServeContent 输出文件，目录则回退为列表。
func serveFile(c fiber.Ctx, fsys *hubfs.FileSystem, target, revision string) error {
	ctx := c.Context()
	f, err := fsys.OpenFile(ctx, target, "rb", hubfs.OpenOptions{
		CommitOptions: hubfs.CommitOptions{Revision: revision},
	})
	if errors.Is(err, hubfs.ErrIsDir) {
		items, lsErr := fsys.Ls(ctx, target, hubfs.ListOptions{Revision: revision})
		if lsErr != nil {
			return lsErr
		}
		return c.JSON(items)
	}
	if err != nil {
		return err
	}
	defer f.Close()

	content := &trackingReader{ReadSeeker: f}
	serve := adaptor.HTTPHandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, path.Base(f.Name()), time.Time{}, content)
	})
	if err := serve(c); err != nil {
		return err
	}
	return content.err
}

// trackingReader 记录第一次非 EOF 错误，ServeContent 自身会吞掉读取失败。
type trackingReader struct {
	io.ReadSeeker
	err error
}

func (r *trackingReader) Read(p []byte) (int, error) {
	n, err := r.ReadSeeker.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && r.err == nil {
		r.err = err
	}
	return n, err
}

func (r *trackingReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := r.ReadSeeker.Seek(offset, whence)
	if err != nil && r.err == nil {
		r.err = err
	}
	return pos, err
}

// operation 根据方法与路径确定操作及目标路径。
func operation(method, raw string) (string, string) {
	p := strings.TrimPrefix(raw, "/")
	switch method {
	case fiber.MethodGet, fiber.MethodHead:
		if target, ok := cutPrefix(p, lsPrefix); ok {
			return opList, target
		}
		if target, ok := cutPrefix(p, infoPrefix); ok {
			return opInfo, target
		}
		return opRead, p
	case fiber.MethodPut:
		return opUpload, p
	case fiber.MethodDelete:
		return opDelete, p
	}
	return opUnsupported, p
}

func cutPrefix(p, prefix string) (string, bool) {
	if p == prefix {
		return "", true
	}
	if rest, ok := strings.CutPrefix(p, prefix+"/"); ok {
		return rest, true
	}
	return "", false
}

// requestPath 返回已解码的请求路径。
func requestPath(c fiber.Ctx) string {
	pathVal := string(c.Request().URI().Path())
	if pathVal == "" {
		return "/"
	}
	return pathVal
}

func commitOptions(c fiber.Ctx, revision string) hubfs.CommitOptions {
	return hubfs.CommitOptions{
		Message:     c.Get("X-Commit-Message"),
		Description: c.Get("X-Commit-Description"),
		Revision:    revision,
	}
}

func queryBool(c fiber.Ctx, key string) bool {
	value, err := strconv.ParseBool(c.Query(key))
	return err == nil && value
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(c fiber.Ctx, route *server.HubRoute, op, target string, started time.Time, err error) {
	status := c.Response().StatusCode()
	elapsed := time.Since(started)
	metrics.ObserveGatewayRequest(route.Config.Name, op, status, elapsed)

	fields := logging.RequestFields(route.Config.Name, route.Config.Domain, c.Method(), target, status)
	fields["action"] = "gateway"
	fields["operation"] = op
	fields["elapsed_ms"] = elapsed.Milliseconds()
	if requestID := server.RequestID(c); requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		if status >= fiber.StatusInternalServerError {
			h.logger.WithFields(fields).Error("gateway_failed")
			return
		}
		h.logger.WithFields(fields).Warn("gateway_rejected")
		return
	}
	h.logger.WithFields(fields).Info("gateway_complete")
}
