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
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"doc-platform/internal/pipeline/common"
)

// OpenAIEmbedder 调用 OpenAI 兼容的 /embeddings 接口。
// openai、azure、dashscope、ollama 等提供商都讲这套协议，base_url 区分。
type OpenAIEmbedder struct {
	client     *resty.Client
	apiKey     string
	baseURL    string
	model      string
	dimension  int
	inputLimit int
}

// NewOpenAIEmbedder 创建 embeddings 客户端。
// model 空则 text-embedding-3-small，dimension 非正则 1536，
// inputLimit 限制单次请求的文本条数（非正表示不分批）。
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimension, inputLimit int) *OpenAIEmbedder {
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dimension <= 0 {
		dimension = 1536
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetRetryCount(3)
	client.SetRetryWaitTime(1 * time.Second)
	client.SetRetryMaxWaitTime(5 * time.Second)

	return &OpenAIEmbedder{
		client:     client,
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		dimension:  dimension,
		inputLimit: inputLimit,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed 实现 Embedder，超出 inputLimit 的输入分批提交
func (o *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batch := o.inputLimit
	if batch <= 0 {
		batch = len(texts)
	}

	out := make([][]float64, len(texts))
	for start := 0; start < len(texts); start += batch {
		end := min(start+batch, len(texts))
		if err := o.embedBatch(ctx, texts[start:end], out[start:end]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (o *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string, out [][]float64) error {
	var result embeddingResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(o.apiKey).
		SetBody(embeddingRequest{Model: o.model, Input: texts}).
		SetResult(&result).
		Post(o.baseURL + "/embeddings")
	if err != nil {
		// 双重包装保留底层 context.DeadlineExceeded 等哨兵，故障分类依赖它们
		return fmt.Errorf("%w: 调用 embeddings API: %w", common.ErrEmbeddingFailed, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: embeddings API 限流: %s", common.ErrRateLimit, resp.String())
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: embeddings API 鉴权失败（HTTP %d）", common.ErrUnauthorized, resp.StatusCode())
	default:
		return fmt.Errorf("%w: embeddings API 返回 HTTP %d: %s", common.ErrEmbeddingFailed, resp.StatusCode(), resp.String())
	}

	if len(result.Data) != len(texts) {
		return fmt.Errorf("%w: 返回向量数 %d 与输入数 %d 不符", common.ErrEmbeddingFailed, len(result.Data), len(texts))
	}
	for _, item := range result.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return fmt.Errorf("%w: 返回越界的向量序号 %d", common.ErrEmbeddingFailed, item.Index)
		}
		out[item.Index] = item.Embedding
	}
	return nil
}

// Model 返回模型名称
func (o *OpenAIEmbedder) Model() string {
	return o.model
}

// Dimension 返回向量维度
func (o *OpenAIEmbedder) Dimension() int {
	return o.dimension
}
