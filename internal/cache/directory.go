package cache

import (
	"encoding/json"
	"path"
	"strings"
	"time"

	"github.com/any-hub/hubfs/internal/metrics"
)

// EntryType 区分文件与目录描述。
type EntryType string

const (
	TypeFile      EntryType = "file"
	TypeDirectory EntryType = "directory"
)

// LFSPointer 指向存放在 LFS 中的实际内容。
type LFSPointer struct {
	Algo string `json:"algo,omitempty"`
	OID  string `json:"oid"`
	Size int64  `json:"size"`
}

// Info 描述目录中的一个条目，Name 为完整的未解析路径。
type Info struct {
	Name         string
	Size         int64
	Type         EntryType
	BlobID       string
	LFS          *LFSPointer
	LastModified time.Time
}

// IsDir 表示条目是否为目录。
func (i Info) IsDir() bool {
	return i.Type == TypeDirectory
}

// MarshalJSON 输出 {name,size,type,blob_id?,lfs?,last_modified?}，目录的 size 为 null。
func (i Info) MarshalJSON() ([]byte, error) {
	payload := struct {
		Name         string      `json:"name"`
		Size         *int64      `json:"size"`
		Type         EntryType   `json:"type"`
		BlobID       string      `json:"blob_id,omitempty"`
		LFS          *LFSPointer `json:"lfs,omitempty"`
		LastModified *time.Time  `json:"last_modified,omitempty"`
	}{
		Name:   i.Name,
		Type:   i.Type,
		BlobID: i.BlobID,
		LFS:    i.LFS,
	}
	if !i.IsDir() {
		size := i.Size
		payload.Size = &size
	}
	if !i.LastModified.IsZero() {
		modified := i.LastModified
		payload.LastModified = &modified
	}
	return json.Marshal(payload)
}

// Directory 以未解析路径为键缓存目录列表，列表顺序即插入顺序。
// 实例不加锁，由持有者保证单一调用方。
type Directory struct {
	name    string
	entries map[string][]Info
	seen    map[string]map[string]struct{}
}

// NewDirectory 构建空的目录缓存，name 用于指标标签。
func NewDirectory(name string) *Directory {
	return &Directory{
		name:    name,
		entries: make(map[string][]Info),
		seen:    make(map[string]map[string]struct{}),
	}
}

// Get 返回目录列表的副本。
func (d *Directory) Get(dir string) ([]Info, bool) {
	dir = normalizeKey(dir)
	items, ok := d.entries[dir]
	metrics.RecordDircacheLookup(d.name, ok)
	if !ok {
		return nil, false
	}
	out := make([]Info, len(items))
	copy(out, items)
	return out, true
}

// Has 判断目录是否已缓存，不计入命中统计。
func (d *Directory) Has(dir string) bool {
	_, ok := d.entries[normalizeKey(dir)]
	return ok
}

// Set 用 items 替换目录列表，同名条目只保留第一个。
func (d *Directory) Set(dir string, items []Info) {
	dir = normalizeKey(dir)
	d.entries[dir] = make([]Info, 0, len(items))
	d.seen[dir] = make(map[string]struct{}, len(items))
	for _, item := range items {
		d.Add(dir, item)
	}
}

// Ensure 确保目录存在条目（可能为空列表）。
func (d *Directory) Ensure(dir string) {
	dir = normalizeKey(dir)
	if _, ok := d.entries[dir]; ok {
		return
	}
	d.entries[dir] = []Info{}
	d.seen[dir] = make(map[string]struct{})
}

// Add 向目录追加条目，按 Name 去重；返回是否实际追加。
func (d *Directory) Add(dir string, item Info) bool {
	dir = normalizeKey(dir)
	d.Ensure(dir)
	seen := d.seen[dir]
	if _, ok := seen[item.Name]; ok {
		return false
	}
	seen[item.Name] = struct{}{}
	d.entries[dir] = append(d.entries[dir], item)
	return true
}

// Invalidate 移除 p 本身、p 的全部后代以及 p 的各级祖先（根 "" 除外）。
// 空路径等价于 Clear。
func (d *Directory) Invalidate(p string) {
	p = normalizeKey(p)
	if p == "" {
		d.Clear()
		return
	}
	prefix := p + "/"
	for key := range d.entries {
		if key == p || strings.HasPrefix(key, prefix) {
			d.drop(key)
		}
	}
	for parent := parentKey(p); parent != ""; parent = parentKey(parent) {
		d.drop(parent)
	}
}

// Clear 清空全部条目。
func (d *Directory) Clear() {
	clear(d.entries)
	clear(d.seen)
}

// Len 返回已缓存目录数量。
func (d *Directory) Len() int {
	return len(d.entries)
}

// Keys 返回已缓存的目录键，顺序不固定。
func (d *Directory) Keys() []string {
	keys := make([]string, 0, len(d.entries))
	for key := range d.entries {
		keys = append(keys, key)
	}
	return keys
}

func (d *Directory) drop(key string) {
	delete(d.entries, key)
	delete(d.seen, key)
}

func normalizeKey(p string) string {
	return strings.Trim(p, "/")
}

func parentKey(p string) string {
	parent := path.Dir(p)
	if parent == "." || parent == "/" {
		return ""
	}
	return parent
}
