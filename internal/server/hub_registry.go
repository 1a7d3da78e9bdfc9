package server

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/hubfs/internal/config"
	"github.com/any-hub/hubfs/internal/hubfs"
)

// HubRoute 将 Hub 配置与该 Hub 独占的 FileSystem 聚合在一起。
// FileSystem 不支持并发访问，所有请求经 Do 串行执行。
type HubRoute struct {
	// Config 是用户在 config.toml 中声明的 Hub 字段副本，避免外部修改。
	Config config.HubConfig
	// ListenPort 记录当前网关监听端口，方便日志输出。
	ListenPort int
	// EndpointURL/ProxyURL 在构造 Registry 时提前解析完成。
	EndpointURL *url.URL
	ProxyURL    *url.URL

	mu sync.Mutex
	fs *hubfs.FileSystem
}

// Do 在持有该 Hub 锁的情况下执行 fn。
func (r *HubRoute) Do(fn func(*hubfs.FileSystem) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.fs)
}

// Stats 返回该 Hub 的缓存规模。
func (r *HubRoute) Stats() hubfs.CacheStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fs.Stats()
}

// HubRegistry 提供 Host/Host:port 到 HubRoute 的查询能力，所有 Hub 共享同一个监听端口。
type HubRegistry struct {
	routes  map[string]*HubRoute
	ordered []*HubRoute
}

// NewHubRegistry 根据配置为每个 Hub 构建 FileSystem 并建立 Host 映射。
// 调用方应在启动阶段创建一次并复用。
func NewHubRegistry(cfg *config.Config, logger *logrus.Logger) (*HubRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	registry := &HubRegistry{
		routes: make(map[string]*HubRoute, len(cfg.Hubs)),
	}

	for _, hubCfg := range cfg.Hubs {
		normalizedHost := normalizeDomain(hubCfg.Domain)
		if normalizedHost == "" {
			return nil, fmt.Errorf("invalid domain for hub %s", hubCfg.Name)
		}
		if _, exists := registry.routes[normalizedHost]; exists {
			return nil, fmt.Errorf("duplicate domain mapping detected for %s", normalizedHost)
		}

		route, err := buildHubRoute(cfg, hubCfg, logger)
		if err != nil {
			return nil, err
		}

		registry.routes[normalizedHost] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据 Host 或 Host:port 查找 HubRoute。
func (r *HubRegistry) Lookup(host string) (*HubRoute, bool) {
	if r == nil {
		return nil, false
	}

	normalizedHost, _ := normalizeHost(host)
	if normalizedHost == "" {
		return nil, false
	}

	route, ok := r.routes[normalizedHost]
	return route, ok
}

// List 返回当前注册的 HubRoute 列表（按配置定义的顺序），用于 /-/hubs 输出。
func (r *HubRegistry) List() []*HubRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	return append([]*HubRoute(nil), r.ordered...)
}

func buildHubRoute(cfg *config.Config, hubCfg config.HubConfig, logger *logrus.Logger) (*HubRoute, error) {
	endpointURL, err := url.Parse(hubCfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint for hub %s: %w", hubCfg.Name, err)
	}

	var proxyURL *url.URL
	if hubCfg.Proxy != "" {
		proxyURL, err = url.Parse(hubCfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy for hub %s: %w", hubCfg.Name, err)
		}
	}

	fsys, err := NewFileSystem(cfg.Global, hubCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("hub %s: %w", hubCfg.Name, err)
	}

	return &HubRoute{
		Config:      hubCfg,
		ListenPort:  cfg.Global.ListenPort,
		EndpointURL: endpointURL,
		ProxyURL:    proxyURL,
		fs:          fsys,
	}, nil
}

func normalizeDomain(domain string) string {
	host, _ := normalizeHost(domain)
	return host
}

func normalizeHost(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	host := raw
	port := 0

	if strings.Contains(raw, ":") {
		if h, p, err := net.SplitHostPort(raw); err == nil {
			host = h
			if parsedPort, err := strconv.Atoi(p); err == nil {
				port = parsedPort
			}
		} else if idx := strings.LastIndex(raw, ":"); idx > -1 && strings.Count(raw[idx+1:], ":") == 0 {
			if parsedPort, err := strconv.Atoi(raw[idx+1:]); err == nil {
				host = raw[:idx]
				port = parsedPort
			}
		}
	}

	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	return host, port
}
