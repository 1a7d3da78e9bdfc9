package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RepoFields 提供 hub/仓库/revision 字段，供解析、列表与提交日志复用。
func RepoFields(hub, repoType, repoID, revision string) logrus.Fields {
	return logrus.Fields{
		"hub":       hub,
		"repo_type": repoType,
		"repo_id":   repoID,
		"revision":  revision,
	}
}

// RequestFields 提供网关请求的 hub/domain/方法字段。
func RequestFields(hub, domain, method, path string, status int) logrus.Fields {
	return logrus.Fields{
		"hub":    hub,
		"domain": domain,
		"method": method,
		"path":   path,
		"status": status,
	}
}
