package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.MaxBackoff.DurationValue() < g.InitialBackoff.DurationValue() {
		return newFieldError("Global.MaxBackoff", "不能小于 InitialBackoff")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.BlockSize <= 0 {
		return newFieldError("Global.BlockSize", "必须大于 0")
	}
	if g.ReadCacheBlocks <= 0 {
		return newFieldError("Global.ReadCacheBlocks", "必须大于 0")
	}

	if g.MaxUploadSize == 0 {
		return newFieldError("Global.MaxUploadSize", "必须大于 0")
	}

	if len(c.Hubs) == 0 {
		return errors.New("至少需要配置一个 Hub")
	}

	seenNames := map[string]struct{}{}
	seenDomains := map[string]string{}
	for i := range c.Hubs {
		hub := &c.Hubs[i]
		if hub.Name == "" {
			return newFieldError("Hub[].Name", "不能为空")
		}
		if strings.ContainsAny(hub.Name, "/\\ ") {
			return newValueError(hubField(hub.Name, "Name"), hub.Name, "不允许包含斜杠或空格")
		}
		if _, exists := seenNames[hub.Name]; exists {
			return newFieldError(hubField(hub.Name, "Name"), "重复")
		}
		seenNames[hub.Name] = struct{}{}

		if err := validateDomain(hub.Domain); err != nil {
			return fmt.Errorf("%s: %w", hubField(hub.Name, "Domain"), err)
		}
		if other, exists := seenDomains[hub.Domain]; exists {
			return newFieldError(hubField(hub.Name, "Domain"), "与 "+other+" 重复")
		}
		seenDomains[hub.Domain] = hub.Name

		if err := validateEndpoint(hub.Endpoint); err != nil {
			return fmt.Errorf("%s: %w", hubField(hub.Name, "Endpoint"), err)
		}
		if hub.Proxy != "" {
			if err := validateEndpoint(hub.Proxy); err != nil {
				return fmt.Errorf("%s: %w", hubField(hub.Name, "Proxy"), err)
			}
		}
		if strings.ContainsAny(hub.Revision, " @") {
			return newValueError(hubField(hub.Name, "Revision"), hub.Revision, "不允许包含空格或 @")
		}
		if hub.Protocol != "" && !strings.HasSuffix(hub.Protocol, "://") {
			return newValueError(hubField(hub.Name, "Protocol"), hub.Protocol, "必须以 :// 结尾")
		}
	}

	return nil
}

func validateDomain(domain string) error {
	if domain == "" {
		return errors.New("Domain 不能为空")
	}
	if strings.Contains(domain, "/") {
		return errors.New("Domain 不允许包含路径")
	}
	if strings.Contains(domain, " ") {
		return errors.New("Domain 不允许包含空格")
	}
	if strings.HasPrefix(domain, "http") {
		return errors.New("Domain 不应包含协议头")
	}
	return nil
}

func validateEndpoint(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
