package gateway

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/hubfs/internal/hub"
	"github.com/any-hub/hubfs/internal/hubfs"
)

// classify 将文件系统错误映射为 HTTP 状态码与错误码。
// 顺序有意义：目录错误可能同时包裹 ErrFileNotFound。
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, hubfs.ErrIsDir):
		return fiber.StatusConflict, "is_directory"
	case errors.Is(err, hubfs.ErrValidation):
		return fiber.StatusBadRequest, "invalid_request"
	case errors.Is(err, hubfs.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, hubfs.ErrNotImplemented):
		return fiber.StatusNotImplemented, "not_implemented"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "upstream_timeout"
	}

	var herr *hub.Error
	if errors.As(err, &herr) && herr.StatusCode >= 400 && herr.StatusCode < 500 {
		return herr.StatusCode, "upstream_rejected"
	}
	return fiber.StatusBadGateway, "upstream_failed"
}
