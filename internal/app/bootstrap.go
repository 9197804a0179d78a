// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"context"
	"fmt"

	"doc-platform/internal/storage/cache"
	"doc-platform/internal/storage/metadata"
	"doc-platform/internal/storage/object"
	"doc-platform/internal/storage/vector"
	"doc-platform/pkg/config"
	"doc-platform/pkg/log"
	"doc-platform/pkg/secrets"
)

// Bootstrap 统一初始化：供 api 与 worker 复用，避免在 cmd 内写装配逻辑
type Bootstrap struct {
	Config        *config.Config
	Logger        *log.Logger
	Secrets       secrets.Store
	MetadataStore metadata.Store
	ObjectStore   object.Store
	VectorStore   vector.Store
	Cache         cache.Store
}

// NewBootstrap 根据配置创建基础设施（日志、secret、四类存储）
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	b := &Bootstrap{Config: cfg, Logger: logger}
	if cfg == nil {
		return b, nil
	}

	b.Secrets, err = secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Provider,
		Vault: secrets.VaultConfig{
			Address:    cfg.Secrets.VaultAddress,
			Token:      cfg.Secrets.VaultToken,
			PathPrefix: cfg.Secrets.VaultPathPrefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 secret 存储失败: %w", err)
	}

	b.MetadataStore, err = metadata.NewStore(ctx, cfg.Storage.Metadata)
	if err != nil {
		return nil, fmt.Errorf("初始化元数据存储失败: %w", err)
	}
	b.ObjectStore, err = object.NewStore(cfg.Storage.Object)
	if err != nil {
		return nil, fmt.Errorf("初始化对象存储失败: %w", err)
	}
	b.VectorStore, err = vector.NewStore(cfg.Storage.Vector)
	if err != nil {
		return nil, fmt.Errorf("初始化向量存储失败: %w", err)
	}
	b.Cache, err = cache.NewCache(ctx, cfg.Storage.Cache)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存失败: %w", err)
	}

	return b, nil
}

// Collection 向量索引名；配置为空时使用默认 "chunks"
func (b *Bootstrap) Collection() string {
	if b.Config != nil && b.Config.Storage.Vector.Collection != "" {
		return b.Config.Storage.Vector.Collection
	}
	return "chunks"
}

// Close 释放存储连接，创建失败与正常退出都应调用
func (b *Bootstrap) Close() error {
	var firstErr error
	closeAll := []func() error{}
	if b.Cache != nil {
		closeAll = append(closeAll, b.Cache.Close)
	}
	if b.VectorStore != nil {
		closeAll = append(closeAll, b.VectorStore.Close)
	}
	if b.ObjectStore != nil {
		closeAll = append(closeAll, b.ObjectStore.Close)
	}
	if b.MetadataStore != nil {
		closeAll = append(closeAll, b.MetadataStore.Close)
	}
	for _, fn := range closeAll {
		if err := fn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
