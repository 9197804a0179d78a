package metadata

import (
	"context"
	"fmt"

	"doc-platform/pkg/config"
)

// NewStore 根据配置创建元数据存储
func NewStore(ctx context.Context, cfg config.MetadataConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres 元数据存储缺少 dsn")
		}
		return NewPostgresStore(ctx, cfg.DSN, cfg.PoolSize)
	default:
		return nil, fmt.Errorf("不支持的元数据存储类型: %s", cfg.Type)
	}
}
