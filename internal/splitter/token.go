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

package splitter

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"doc-platform/internal/pipeline/common"
)

// TokenSplitter Token 切片器：空白分词后按固定窗口滑动
type TokenSplitter struct {
	name string
}

// NewTokenSplitter 创建新的 Token 切片器
func NewTokenSplitter() *TokenSplitter {
	return &TokenSplitter{
		name: "token_splitter",
	}
}

// Name 返回切片器名称
func (s *TokenSplitter) Name() string {
	return s.name
}

// Split 执行 Token 切片
func (s *TokenSplitter) Split(ctx context.Context, content string, opts Options) ([]common.Chunk, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	overlap := opts.ChunkOverlap
	if overlap < 0 || overlap >= maxTokens {
		overlap = maxTokens / 5
	}
	return s.splitByTokens(content, maxTokens, overlap), nil
}

func (s *TokenSplitter) splitByTokens(content string, maxTokens, overlap int) []common.Chunk {
	tokens := tokenize(content)
	var chunks []common.Chunk
	var current []string
	var chunkIndex int

	for _, token := range tokens {
		if len(current)+1 > maxTokens {
			chunks = append(chunks, s.createChunk(detokenize(current), chunkIndex))
			chunkIndex++
			if overlap > 0 && len(current) > overlap {
				current = append([]string(nil), current[len(current)-overlap:]...)
			} else {
				current = nil
			}
		}
		current = append(current, token)
	}
	if len(current) > 0 {
		chunks = append(chunks, s.createChunk(detokenize(current), chunkIndex))
	}
	return chunks
}

// tokenize 空白分词。没有引入真实 tokenizer，token 数只作分块度量。
func tokenize(content string) []string {
	return strings.Fields(content)
}

func detokenize(tokens []string) string {
	return strings.Join(tokens, " ")
}

func (s *TokenSplitter) createChunk(content string, index int) common.Chunk {
	return common.Chunk{
		ID:      uuid.New().String(),
		Content: content,
		Metadata: map[string]string{
			"splitter": "token",
			"type":     "token",
		},
		Index:      index,
		TokenCount: len(tokenize(content)),
	}
}
