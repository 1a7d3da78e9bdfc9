package hub

import "time"

// Tree 条目类型。
const (
	EntryFile      = "file"
	EntryDirectory = "directory"
)

// TreeEntry 是 tree 接口返回的单个条目，Path 始终相对仓库根目录。
type TreeEntry struct {
	Type       string      `json:"type"`
	OID        string      `json:"oid"`
	Size       int64       `json:"size"`
	Path       string      `json:"path"`
	LFS        *LFSInfo    `json:"lfs,omitempty"`
	LastCommit *LastCommit `json:"lastCommit,omitempty"`
}

// LFSInfo 描述存放在 LFS 中的大文件指针。
type LFSInfo struct {
	OID         string `json:"oid"`
	Size        int64  `json:"size"`
	PointerSize int64  `json:"pointerSize,omitempty"`
}

// LastCommit 记录最后一次修改该条目的提交。
type LastCommit struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Date  time.Time `json:"date"`
}

// IsDir 表示条目是否为目录。
func (e TreeEntry) IsDir() bool {
	return e.Type == EntryDirectory
}
