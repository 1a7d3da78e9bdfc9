package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// ByteSize 表示字节数，配置中可写作 "512MiB"、"2GB" 或纯数字。
type ByteSize uint64

// UnmarshalText 使用 go-humanize 解析带单位的大小。
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := parseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Int 返回 int 形式的字节数，超出 int 范围时截断为最大值。
func (b ByteSize) Int() int {
	const maxInt = int(^uint(0) >> 1)
	if uint64(b) > uint64(maxInt) {
		return maxInt
	}
	return int(b)
}

// String 以 IEC 单位输出，便于日志阅读。
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

func parseByteSize(raw string) (ByteSize, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	parsed, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size value: %s", raw)
	}
	return ByteSize(parsed), nil
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，所有 Hub 共享同一份参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	ScratchPath     string   `mapstructure:"ScratchPath"`
	MaxRetries      int      `mapstructure:"MaxRetries"`
	InitialBackoff  Duration `mapstructure:"InitialBackoff"`
	MaxBackoff      Duration `mapstructure:"MaxBackoff"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	BlockSize       int      `mapstructure:"BlockSize"`
	ReadCacheBlocks int      `mapstructure:"ReadCacheBlocks"`
	// MaxUploadSize 限制网关 PUT 请求体大小。
	MaxUploadSize ByteSize `mapstructure:"MaxUploadSize"`
}

// HubConfig 描述一个 Hub 端点：网关按 Domain 路由，CLI 按 Name 选择。
type HubConfig struct {
	Name     string `mapstructure:"Name"`
	Domain   string `mapstructure:"Domain"`
	Endpoint string `mapstructure:"Endpoint"`
	Token    string `mapstructure:"Token"`
	Revision string `mapstructure:"Revision"`
	Proxy    string `mapstructure:"Proxy"`
	Protocol string `mapstructure:"Protocol"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Hubs   []HubConfig  `mapstructure:"Hub"`
}

// HasToken 表示当前 Hub 是否配置了访问令牌。
func (h HubConfig) HasToken() bool {
	return h.Token != ""
}

// AuthMode 输出 `token` 或 `anonymous`，供日志字段使用。
func (h HubConfig) AuthMode() string {
	if h.HasToken() {
		return "token"
	}
	return "anonymous"
}

// ProxyURL 返回解析后的代理地址，未配置时为 nil。
func (h HubConfig) ProxyURL() *url.URL {
	if h.Proxy == "" {
		return nil
	}
	parsed, err := url.Parse(h.Proxy)
	if err != nil {
		return nil
	}
	return parsed
}

// CredentialModes 返回所有 Hub 的鉴权模式摘要，例如 hf:token。
func CredentialModes(hubs []HubConfig) []string {
	if len(hubs) == 0 {
		return nil
	}
	result := make([]string, len(hubs))
	for i, hub := range hubs {
		result[i] = fmt.Sprintf("%s:%s", hub.Name, hub.AuthMode())
	}
	return result
}

// Hub 按名称查找 Hub；name 为空时返回第一个。
func (c *Config) Hub(name string) (HubConfig, bool) {
	if len(c.Hubs) == 0 {
		return HubConfig{}, false
	}
	if name == "" {
		return c.Hubs[0], true
	}
	for _, hub := range c.Hubs {
		if hub.Name == name {
			return hub, true
		}
	}
	return HubConfig{}, false
}
