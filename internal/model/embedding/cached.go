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
	"crypto/sha256"
	"fmt"
	"time"

	"doc-platform/internal/pipeline/common"
	"doc-platform/internal/storage/cache"
)

// Cached 在底层 Embedder 外加一层按内容寻址的缓存。
// 任务重试、文档重新提交会反复向量化同一批片段，缓存命中时不再调用远端模型。
// 缓存读写失败只降级为未命中，不影响向量化结果。
type Cached struct {
	inner Embedder
	store cache.Store
	ttl   time.Duration
}

// NewCached 包装 inner，向量按 ttl 缓存在 store 中；ttl 非正表示不过期
func NewCached(inner Embedder, store cache.Store, ttl time.Duration) *Cached {
	if ttl < 0 {
		ttl = 0
	}
	return &Cached{inner: inner, store: store, ttl: ttl}
}

// Embed 实现 Embedder：先查缓存，只把未命中的文本交给底层模型
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float64, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		var vec []float64
		if err := c.store.Get(ctx, c.key(text), &vec); err == nil && len(vec) > 0 {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("%w: 底层模型返回向量数 %d 与输入数 %d 不符", common.ErrEmbeddingFailed, len(vecs), len(missTexts))
	}

	for j, i := range missIdx {
		out[i] = vecs[j]
		_ = c.store.Set(ctx, c.key(texts[i]), vecs[j], c.ttl)
	}
	return out, nil
}

// key 以模型名 + 内容摘要作缓存键，换模型后旧缓存自然失效
func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%x", c.inner.Model(), sum[:16])
}

// Model 返回底层模型名称
func (c *Cached) Model() string {
	return c.inner.Model()
}

// Dimension 返回底层模型维度
func (c *Cached) Dimension() int {
	return c.inner.Dimension()
}
