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

package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	pkgerrors "doc-platform/pkg/errors"
)

// MemoryStore 内存向量存储实现
type MemoryStore struct {
	indexes map[string]*index
	mu      sync.RWMutex
}

type index struct {
	meta    *Index
	vectors map[string]*Vector
}

// NewMemoryStore 创建新的内存向量存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		indexes: make(map[string]*index),
	}
}

// Create 创建向量索引
func (s *MemoryStore) Create(ctx context.Context, idx *Index) error {
	if idx.Name == "" || idx.Dimension <= 0 {
		return pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "索引需要非空名称与正维度")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.indexes[idx.Name]; exists {
		return pkgerrors.Wrapf(pkgerrors.ErrConflict, "索引 %s 已存在", idx.Name)
	}
	s.indexes[idx.Name] = &index{
		meta:    idx,
		vectors: make(map[string]*Vector),
	}
	return nil
}

// Add 添加向量；维度不符时整批拒绝
func (s *MemoryStore) Add(ctx context.Context, indexName string, vectors []*Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, exists := s.indexes[indexName]
	if !exists {
		return pkgerrors.Wrapf(pkgerrors.ErrNotFound, "索引 %s", indexName)
	}
	for _, v := range vectors {
		if len(v.Values) != idx.meta.Dimension {
			return pkgerrors.Wrapf(pkgerrors.ErrInvalidArg,
				"向量 %s 维度 %d 与索引维度 %d 不符", v.ID, len(v.Values), idx.meta.Dimension)
		}
	}
	for _, v := range vectors {
		idx.vectors[v.ID] = v
	}
	return nil
}

// Search 搜索向量
func (s *MemoryStore) Search(ctx context.Context, indexName string, query []float64, options *SearchOptions) ([]*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, exists := s.indexes[indexName]
	if !exists {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "索引 %s", indexName)
	}
	if len(query) != idx.meta.Dimension {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrInvalidArg,
			"查询维度 %d 与索引维度 %d 不符", len(query), idx.meta.Dimension)
	}
	if options == nil {
		options = &SearchOptions{TopK: 10}
	}

	var results []*SearchResult
	for id, vector := range idx.vectors {
		if !matchFilter(vector.Metadata, options.Filter) {
			continue
		}
		score := similarity(query, vector.Values, idx.meta.Distance)
		if score < options.Threshold {
			continue
		}
		result := &SearchResult{
			ID:       id,
			Score:    score,
			Metadata: vector.Metadata,
		}
		if options.IncludeVectors {
			result.Values = vector.Values
		}
		results = append(results, result)
	}

	// 得分降序，同分按 ID 升序保证稳定
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if options.TopK > 0 && len(results) > options.TopK {
		results = results[:options.TopK]
	}
	return results, nil
}

// Get 根据 ID 获取向量
func (s *MemoryStore) Get(ctx context.Context, indexName string, id string) (*Vector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, exists := s.indexes[indexName]
	if !exists {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "索引 %s", indexName)
	}
	vector, exists := idx.vectors[id]
	if !exists {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "向量 %s", id)
	}
	return vector, nil
}

// Delete 删除向量
func (s *MemoryStore) Delete(ctx context.Context, indexName string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, exists := s.indexes[indexName]
	if !exists {
		return pkgerrors.Wrapf(pkgerrors.ErrNotFound, "索引 %s", indexName)
	}
	if _, exists := idx.vectors[id]; !exists {
		return pkgerrors.Wrapf(pkgerrors.ErrNotFound, "向量 %s", id)
	}
	delete(idx.vectors, id)
	return nil
}

// DeleteIndex 删除索引
func (s *MemoryStore) DeleteIndex(ctx context.Context, indexName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.indexes[indexName]; !exists {
		return pkgerrors.Wrapf(pkgerrors.ErrNotFound, "索引 %s", indexName)
	}
	delete(s.indexes, indexName)
	return nil
}

// ListIndexes 列出所有索引
func (s *MemoryStore) ListIndexes(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name := range s.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close 关闭存储连接
func (s *MemoryStore) Close() error {
	return nil
}

func matchFilter(meta, filter map[string]string) bool {
	for key, value := range filter {
		if meta == nil || meta[key] != value {
			return false
		}
	}
	return true
}

// similarity 距离度量统一折算为越大越相似的得分
func similarity(query, vector []float64, distance string) float64 {
	switch distance {
	case "euclidean":
		return 1.0 / (1.0 + euclideanDistance(query, vector))
	case "manhattan":
		return 1.0 / (1.0 + manhattanDistance(query, vector))
	default:
		return cosineSimilarity(query, vector)
	}
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}
	dotProduct := 0.0
	normA := 0.0
	normB := 0.0
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func euclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

func manhattanDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}
	sum := 0.0
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum
}
