package repotype

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var globalRegistry = newRegistry()

type registry struct {
	mu       sync.RWMutex
	types    map[Type]Metadata
	prefixes map[string]Type
}

func newRegistry() *registry {
	return &registry{
		types:    make(map[Type]Metadata),
		prefixes: make(map[string]Type),
	}
}

// Register 将仓库类型加入全局注册表，重复的键或路径前缀会返回错误。
func Register(meta Metadata) error {
	return globalRegistry.register(meta)
}

// MustRegister 在注册失败时 panic，适合 init() 中调用。
func MustRegister(meta Metadata) {
	if err := Register(meta); err != nil {
		panic(err)
	}
}

// Resolve 返回指定键（model/dataset/space，也接受复数形式）的元数据。
func Resolve(key string) (Metadata, bool) {
	return globalRegistry.resolve(key)
}

// FromPrefix 判断路径的首段是否是仓库类型前缀（如 datasets、spaces）。
func FromPrefix(segment string) (Metadata, bool) {
	return globalRegistry.fromPrefix(segment)
}

// List 返回按键排序的仓库类型列表。
func List() []Metadata {
	return globalRegistry.list()
}

// Keys 返回所有已注册类型的键值。
func Keys() []Type {
	items := List()
	result := make([]Type, len(items))
	for i, meta := range items {
		result[i] = meta.Key
	}
	return result
}

func (r *registry) normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(meta Metadata) error {
	key := Type(r.normalizeKey(string(meta.Key)))
	if key == "" {
		return fmt.Errorf("repo type key is required")
	}
	meta.Key = key
	if meta.APISegment == "" {
		meta.APISegment = string(key) + "s"
	}
	prefix := strings.Trim(meta.URLPrefix, "/")

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[key]; exists {
		return fmt.Errorf("repo type %s already registered", key)
	}
	if prefix != "" {
		if owner, exists := r.prefixes[prefix]; exists {
			return fmt.Errorf("path prefix %s already claimed by %s", prefix, owner)
		}
		r.prefixes[prefix] = key
		meta.URLPrefix = prefix + "/"
	} else {
		meta.URLPrefix = ""
	}
	r.types[key] = meta
	return nil
}

func (r *registry) resolve(key string) (Metadata, bool) {
	normalized := r.normalizeKey(key)
	if normalized == "" {
		return Metadata{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if meta, ok := r.types[Type(normalized)]; ok {
		return meta, true
	}
	for _, meta := range r.types {
		if meta.APISegment == normalized {
			return meta, true
		}
	}
	return Metadata{}, false
}

func (r *registry) fromPrefix(segment string) (Metadata, bool) {
	if segment == "" {
		return Metadata{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.prefixes[segment]
	if !ok {
		return Metadata{}, false
	}
	return r.types[key], true
}

func (r *registry) list() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.types) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.types))
	for key := range r.types {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)

	result := make([]Metadata, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.types[Type(key)])
	}
	return result
}
