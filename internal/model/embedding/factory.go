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

package embedding

import (
	"context"
	"fmt"
	"strings"

	"doc-platform/pkg/config"
	"doc-platform/pkg/secrets"
)

// NewFromConfig 按 model 配置装配 Embedder。
// defaults.embedding 形如 "provider.model"，指向 providers 下的一个模型条目；
// 空串使用内置本地向量化。API key 优先取配置内联值（含 ${ENV} 展开），
// 缺省时从 secret 存储读 model/<provider>/api_key。
func NewFromConfig(ctx context.Context, cfg config.ModelConfig, sec secrets.Store) (Embedder, error) {
	ref := cfg.Defaults.Embedding
	if ref == "" {
		return NewLocalEmbedder(0), nil
	}

	providerName, modelKey, ok := strings.Cut(ref, ".")
	if !ok {
		return nil, fmt.Errorf("defaults.embedding 应为 provider.model 形式: %q", ref)
	}
	provider, ok := cfg.Embedding.Providers[providerName]
	if !ok {
		return nil, fmt.Errorf("未配置的 embedding 提供商: %s", providerName)
	}
	info, ok := provider.Models[modelKey]
	if !ok {
		return nil, fmt.Errorf("提供商 %s 没有模型 %s", providerName, modelKey)
	}

	// 本地提供商不需要鉴权
	if providerName == "local" {
		return NewLocalEmbedder(info.Dimension), nil
	}

	apiKey := provider.APIKey
	if apiKey == "" && sec != nil {
		if v, err := sec.Get(ctx, "model/"+providerName+"/api_key"); err == nil {
			apiKey = v
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("提供商 %s 缺少 api_key（配置与 secret 存储均未提供）", providerName)
	}

	var emb Embedder = NewOpenAIEmbedder(apiKey, provider.BaseURL, info.Name, info.Dimension, info.InputLimit)
	if provider.Limits != nil {
		limiter := NewProviderRateLimiter(map[string]config.ProviderLimitConfig{providerName: *provider.Limits}, provider.Limits)
		emb = NewRateLimited(emb, limiter, providerName)
	}
	return emb, nil
}
