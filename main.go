package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/any-hub/hubfs/internal/config"
	"github.com/any-hub/hubfs/internal/hubfs"
	"github.com/any-hub/hubfs/internal/logging"
	"github.com/any-hub/hubfs/internal/server"
)

// cliOptions 汇总全局标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath string
	hubName    string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
	stdIn  io.Reader = os.Stdin
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run 构建命令树并执行，返回退出码，方便测试。
func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdOut)
	root.SetErr(stdErr)
	root.SetIn(stdIn)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stdErr, "错误: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:   "hubfs",
		Short: "以文件系统方式访问模型 Hub",
		Long: `hubfs 把模型 Hub 上的 model/dataset/space 仓库映射为统一的路径空间，
支持列表、读取、上传、复制与删除，也可以作为 HTTP 网关对外提供同样的能力。

路径格式: [datasets/|spaces/]<namespace>/<name>[@<revision>]/<path>`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "配置文件路径（默认 ./config.toml，可被 HUBFS_CONFIG 覆盖）")
	root.PersistentFlags().StringVar(&opts.hubName, "hub", "", "使用的 Hub 名称（默认配置中的第一个 Hub）")

	root.AddCommand(
		newLsCmd(opts),
		newInfoCmd(opts),
		newFindCmd(opts),
		newCatCmd(opts),
		newPutCmd(opts),
		newRmCmd(opts),
		newCpCmd(opts),
		newServeCmd(opts),
		newCheckConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// resolveConfigPath 结合 --config 与 HUBFS_CONFIG 计算最终的配置路径，flag 优先。
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("HUBFS_CONFIG"); env != "" {
		return env
	}
	return "config.toml"
}

// loadConfig 加载配置并初始化日志，日志写入 stderr 以保持 stdout 干净。
func loadConfig(opts *cliOptions) (*config.Config, *logrus.Logger, string, error) {
	path := resolveConfigPath(opts.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, path, fmt.Errorf("加载配置失败: %w", err)
	}
	logger, err := logging.InitLogger(cfg.Global, stdErr)
	if err != nil {
		return nil, nil, path, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, logger, path, nil
}

// openFileSystem 为 --hub 选中的 Hub 构建 FileSystem。
func openFileSystem(opts *cliOptions) (*hubfs.FileSystem, error) {
	cfg, logger, _, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	hubCfg, ok := cfg.Hub(opts.hubName)
	if !ok {
		return nil, fmt.Errorf("未找到 Hub %q", opts.hubName)
	}
	return server.NewFileSystem(cfg.Global, hubCfg, logger)
}
