package object

import (
	"context"
	"io"
	"time"
)

// Store 对象存储接口，保存原始上传文件与处理器产出的派生制品
type Store interface {
	// Put 写入对象
	Put(ctx context.Context, path string, data io.Reader, size int64, metadata map[string]string) error
	// Get 读取对象
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	// Delete 删除对象
	Delete(ctx context.Context, path string) error
	// List 按前缀列出对象，按 Path 升序
	List(ctx context.Context, prefix string) ([]*ObjectInfo, error)
	// Exists 检查对象是否存在
	Exists(ctx context.Context, path string) (bool, error)
	// GetMetadata 获取对象元数据
	GetMetadata(ctx context.Context, path string) (map[string]string, error)
	// Close 关闭存储连接
	Close() error
}

// ObjectInfo 对象信息
type ObjectInfo struct {
	Path      string            `json:"path"`
	Size      int64             `json:"size"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
