package server

import (
	"github.com/sirupsen/logrus"

	"github.com/any-hub/hubfs/internal/config"
	"github.com/any-hub/hubfs/internal/hub"
	"github.com/any-hub/hubfs/internal/hubfs"
)

// NewHubClient 根据全局与 Hub 配置构建 Hub 传输层。
func NewHubClient(global config.GlobalConfig, hubCfg config.HubConfig, logger *logrus.Logger) *hub.Client {
	return hub.NewClient(hub.Options{
		Name:           hubCfg.Name,
		Endpoint:       hubCfg.Endpoint,
		Token:          hubCfg.Token,
		Proxy:          hubCfg.ProxyURL(),
		Timeout:        global.UpstreamTimeout.DurationValue(),
		MaxRetries:     global.MaxRetries,
		InitialBackoff: global.InitialBackoff.DurationValue(),
		MaxBackoff:     global.MaxBackoff.DurationValue(),
		Logger:         logger,
	})
}

// NewFileSystem 为单个 Hub 构建 FileSystem，CLI 与网关共用。
func NewFileSystem(global config.GlobalConfig, hubCfg config.HubConfig, logger *logrus.Logger) (*hubfs.FileSystem, error) {
	return hubfs.New(NewHubClient(global, hubCfg, logger), hubfs.Options{
		Name:            hubCfg.Name,
		Protocol:        hubCfg.Protocol,
		DefaultRevision: hubCfg.Revision,
		BlockSize:       global.BlockSize,
		ReadCacheBlocks: global.ReadCacheBlocks,
		ScratchPath:     global.ScratchPath,
		Logger:          logger,
	})
}
