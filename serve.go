package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/any-hub/hubfs/internal/config"
	"github.com/any-hub/hubfs/internal/gateway"
	"github.com/any-hub/hubfs/internal/logging"
	"github.com/any-hub/hubfs/internal/server"
	"github.com/any-hub/hubfs/internal/server/routes"
	"github.com/any-hub/hubfs/internal/version"
)

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 网关，按 Host 将请求路由到各 Hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, path, err := loadConfig(opts)
			if err != nil {
				return err
			}

			// 启动顺序为 配置 → HubRegistry（每个 Hub 一个 FileSystem）→ Fiber server，
			// 所有请求共享同一套缓存。
			registry, err := server.NewHubRegistry(cfg, logger)
			if err != nil {
				return fmt.Errorf("构建 Hub 注册表失败: %w", err)
			}

			fields := logging.BaseFields("startup", path)
			fields["hubs"] = len(cfg.Hubs)
			fields["listen_port"] = cfg.Global.ListenPort
			fields["credentials"] = config.CredentialModes(cfg.Hubs)
			fields["version"] = version.Full()
			logger.WithFields(fields).Info("配置加载完成")

			if err := startHTTPServer(cmd.Context(), cfg, registry, logger); err != nil {
				return fmt.Errorf("HTTP 服务启动失败: %w", err)
			}
			return nil
		},
	}
}

func newCheckConfigCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "仅校验配置后退出",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, path, err := loadConfig(opts)
			if err != nil {
				return err
			}
			fields := logging.BaseFields("check_config", path)
			fields["hubs"] = len(cfg.Hubs)
			fields["credentials"] = config.CredentialModes(cfg.Hubs)
			fields["result"] = "ok"
			logger.WithFields(fields).Info("配置校验通过")
			return nil
		},
	}
}

// startHTTPServer 监听 ListenPort，ctx 取消时优雅关闭。
func startHTTPServer(ctx context.Context, cfg *config.Config, registry *server.HubRegistry, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Handler:    gateway.New(logger),
		ListenPort: port,
		BodyLimit:  cfg.Global.MaxUploadSize.Int(),
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnosticRoutes(app, registry)

	logger.WithFields(logrus.Fields{
		"action":          "listen",
		"port":            port,
		"max_upload_size": cfg.Global.MaxUploadSize.String(),
	}).Info("Fiber 服务启动")

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.WithFields(logrus.Fields{
		"action": "shutdown",
		"port":   port,
	}).Info("Fiber 服务关闭")
	if err := app.Shutdown(); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
