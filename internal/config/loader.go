package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 默认值与 hubfs 包保持一致。
const (
	defaultBlockSize       = 5 * 1024 * 1024
	defaultReadCacheBlocks = 8
	defaultEndpoint        = "https://huggingface.co"
	defaultRevision        = "main"
	defaultProtocol        = "hf://"
	defaultMaxUploadSize   = "512MiB"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectRetiredHubKeys(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		byteSizeDecodeHook(),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Hubs {
		applyHubDefaults(&cfg.Hubs[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Global.ScratchPath != "" {
		absScratch, err := filepath.Abs(cfg.Global.ScratchPath)
		if err != nil {
			return nil, fmt.Errorf("无法解析临时目录: %w", err)
		}
		cfg.Global.ScratchPath = absScratch
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("ScratchPath", "")
	v.SetDefault("MaxRetries", 3)
	v.SetDefault("InitialBackoff", "1s")
	v.SetDefault("MaxBackoff", "30s")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("BlockSize", defaultBlockSize)
	v.SetDefault("ReadCacheBlocks", defaultReadCacheBlocks)
	v.SetDefault("MaxUploadSize", defaultMaxUploadSize)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.InitialBackoff.DurationValue() == 0 {
		g.InitialBackoff = Duration(time.Second)
	}
	if g.MaxBackoff.DurationValue() == 0 {
		g.MaxBackoff = Duration(30 * time.Second)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.BlockSize == 0 {
		g.BlockSize = defaultBlockSize
	}
	if g.ReadCacheBlocks == 0 {
		g.ReadCacheBlocks = defaultReadCacheBlocks
	}
}

func applyHubDefaults(h *HubConfig) {
	h.Domain = strings.ToLower(strings.TrimSpace(h.Domain))
	if strings.TrimSpace(h.Endpoint) == "" {
		h.Endpoint = defaultEndpoint
	}
	h.Endpoint = strings.TrimRight(strings.TrimSpace(h.Endpoint), "/")
	if strings.TrimSpace(h.Revision) == "" {
		h.Revision = defaultRevision
	}
	if strings.TrimSpace(h.Protocol) == "" {
		h.Protocol = defaultProtocol
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// byteSizeDecodeHook 接受 "512MiB" 形式的字符串或纯数字字节数。
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(ByteSize(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return parseByteSize(v)
		case int:
			if v < 0 {
				return nil, fmt.Errorf("字节数不能为负数: %d", v)
			}
			return ByteSize(v), nil
		case int64:
			if v < 0 {
				return nil, fmt.Errorf("字节数不能为负数: %d", v)
			}
			return ByteSize(v), nil
		case ByteSize:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的字节数类型: %T", v)
		}
	}
}

// retiredHubKeys 列出已不再支持的 Hub 级字段及替代写法。
var retiredHubKeys = map[string]string{
	"Port":     "字段已弃用，请移除并使用全局 ListenPort",
	"Upstream": "字段已更名，请改用 Endpoint",
	"Username": "不再支持用户名密码，请改用 Token",
	"Password": "不再支持用户名密码，请改用 Token",
}

func rejectRetiredHubKeys(v *viper.Viper) error {
	raw := v.Get("Hub")
	hubs, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	for idx, entry := range hubs {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		name := fmt.Sprintf("#%d", idx)
		for key, value := range m {
			if rawName, ok := value.(string); ok && rawName != "" && strings.EqualFold(key, "Name") {
				name = rawName
			}
		}
		for key := range m {
			for retired, reason := range retiredHubKeys {
				if strings.EqualFold(key, retired) {
					return newFieldError(hubField(name, retired), reason)
				}
			}
		}
	}

	return nil
}
