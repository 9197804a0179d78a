package app

import (
	"context"
	"strings"
	"time"

	"doc-platform/internal/model"
	"doc-platform/internal/model/embedding"
	"doc-platform/internal/storage/cache"
	"doc-platform/pkg/config"
	"doc-platform/pkg/secrets"
)

// embedCacheTTL 远端模型向量的缓存时长
const embedCacheTTL = 24 * time.Hour

// NewEmbedderFromConfig 按 defaults.embedding 装配 Embedder 并登记到模型注册表。
// 未配置时使用内置本地向量化，离线环境开箱即用。远端模型在有缓存存储时
// 套一层按内容寻址的向量缓存，重试与重复提交不再重复调远端
func NewEmbedderFromConfig(ctx context.Context, cfg *config.Config, sec secrets.Store, store cache.Store) (embedding.Embedder, error) {
	var modelCfg config.ModelConfig
	if cfg != nil {
		modelCfg = cfg.Model
	}
	emb, err := embedding.NewFromConfig(ctx, modelCfg, sec)
	if err != nil {
		return nil, err
	}

	name := modelCfg.Defaults.Embedding
	if name == "" {
		name = "local"
	}
	if store != nil && !strings.HasPrefix(name, "local") {
		emb = embedding.NewCached(emb, store, embedCacheTTL)
	}
	model.RegisterEmbedding(name, emb)
	return emb, nil
}
