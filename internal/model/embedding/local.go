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
	"hash/fnv"
	"math"
	"strings"
)

const defaultLocalDimension = 256

// LocalEmbedder 内置的确定性向量化器：词条经 FNV 哈希落桶累加，再做 L2 归一。
// 不依赖外部服务，是开发环境和未配置远端模型时的缺省实现。
// 相同文本永远得到相同向量，余弦相似度随共享词条数上升。
type LocalEmbedder struct {
	dimension int
}

// NewLocalEmbedder 创建本地向量化器，dimension 非正时取 256
func NewLocalEmbedder(dimension int) *LocalEmbedder {
	if dimension <= 0 {
		dimension = defaultLocalDimension
	}
	return &LocalEmbedder{dimension: dimension}
}

// Embed 实现 Embedder
func (l *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = l.embedOne(text)
	}
	return out, nil
}

func (l *LocalEmbedder) embedOne(text string) []float64 {
	vec := make([]float64, l.dimension)
	for _, term := range hashTerms(text) {
		h := fnv.New32a()
		h.Write([]byte(term))
		sum := h.Sum32()
		// 符号也由哈希决定，避免所有分量同号导致任意两段文本都偏相似
		if sum&0x80000000 != 0 {
			vec[sum%uint32(l.dimension)] -= 1
		} else {
			vec[sum%uint32(l.dimension)] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// hashTerms 提取哈希特征：按空白切词；CJK 文本没有空白分词，
// 对含多字节字符的词补充 rune 二元组
func hashTerms(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, f)
		if runes := []rune(f); len(f) > len(runes) {
			for i := 0; i+1 < len(runes); i++ {
				terms = append(terms, string(runes[i:i+2]))
			}
		}
	}
	return terms
}

// Model 返回模型标识
func (l *LocalEmbedder) Model() string {
	return "local-hash"
}

// Dimension 返回向量维度
func (l *LocalEmbedder) Dimension() int {
	return l.dimension
}
