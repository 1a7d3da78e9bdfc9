// Package repotype 维护 Hub 仓库类型（model/dataset/space）的注册表，
// 负责路径前缀、API 路由段与类型键之间的相互映射。
package repotype

// Type 是仓库类型键。
type Type string

const (
	Model   Type = "model"
	Dataset Type = "dataset"
	Space   Type = "space"
)

// Default 返回路径中未出现类型前缀时使用的类型。
func Default() Type {
	return Model
}

// Metadata 描述一种仓库类型在路径与 API 中的表现形式。
type Metadata struct {
	Key Type
	// URLPrefix 是路径中的类型前缀（含结尾斜杠），model 没有前缀。
	URLPrefix string
	// APISegment 是 /api/<segment>/<repo_id> 中的路由段。
	APISegment  string
	Description string
}

// Prefix 返回给定类型的路径前缀，未注册的类型返回空串。
func Prefix(t Type) string {
	meta, ok := Resolve(string(t))
	if !ok {
		return ""
	}
	return meta.URLPrefix
}

// APISegment 返回给定类型的 API 路由段，未注册时按 "<type>s" 推导。
func APISegment(t Type) string {
	meta, ok := Resolve(string(t))
	if !ok {
		return string(t) + "s"
	}
	return meta.APISegment
}

func init() {
	MustRegister(Metadata{
		Key:         Model,
		APISegment:  "models",
		Description: "model repositories, addressed without a path prefix",
	})
	MustRegister(Metadata{
		Key:         Dataset,
		URLPrefix:   "datasets/",
		APISegment:  "datasets",
		Description: "dataset repositories under datasets/",
	})
	MustRegister(Metadata{
		Key:         Space,
		URLPrefix:   "spaces/",
		APISegment:  "spaces",
		Description: "space repositories under spaces/",
	})
}
