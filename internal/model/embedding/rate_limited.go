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
	"time"

	"doc-platform/pkg/metrics"
)

// RateLimited 包装任意 Embedder，在真实调用前执行提供商维度的限流。
// limiter 为 nil 时退化为直接调用。
type RateLimited struct {
	inner    Embedder
	limiter  *ProviderRateLimiter
	provider string
}

// NewRateLimited 创建带限流的 Embedder
func NewRateLimited(inner Embedder, limiter *ProviderRateLimiter, provider string) *RateLimited {
	return &RateLimited{inner: inner, limiter: limiter, provider: provider}
}

// Embed 实现 Embedder，调用前等待配额
func (r *RateLimited) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if r.limiter != nil {
		start := time.Now()
		if err := r.limiter.Wait(ctx, r.provider, estimateTokens(texts)); err != nil {
			return nil, err
		}
		if waited := time.Since(start); waited > 100*time.Millisecond {
			metrics.RateLimitWaitSeconds.WithLabelValues("embedding", r.provider).Observe(waited.Seconds())
		}
		defer r.limiter.Release(r.provider)
	}

	return r.inner.Embed(ctx, texts)
}

// Model 返回底层模型名称
func (r *RateLimited) Model() string { return r.inner.Model() }

// Dimension 返回底层模型维度
func (r *RateLimited) Dimension() int { return r.inner.Dimension() }

// estimateTokens 粗略估算请求 token 数（4 字符 ≈ 1 token）
func estimateTokens(texts []string) int {
	total := 0
	for _, t := range texts {
		total += len(t)
	}
	estimated := total / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}
