package vector

import (
	"context"
)

// Store 向量存储接口
type Store interface {
	// Create 创建向量索引
	Create(ctx context.Context, index *Index) error
	// Add 添加向量
	Add(ctx context.Context, indexName string, vectors []*Vector) error
	// Search 搜索向量
	Search(ctx context.Context, indexName string, query []float64, options *SearchOptions) ([]*SearchResult, error)
	// Get 根据 ID 获取向量
	Get(ctx context.Context, indexName string, id string) (*Vector, error)
	// Delete 删除向量
	Delete(ctx context.Context, indexName string, id string) error
	// DeleteIndex 删除索引
	DeleteIndex(ctx context.Context, indexName string) error
	// ListIndexes 列出所有索引
	ListIndexes(ctx context.Context) ([]string, error)
	// Close 关闭存储连接
	Close() error
}

// Index 向量索引
type Index struct {
	Name      string            `json:"name"`
	Dimension int               `json:"dimension"`
	Distance  string            `json:"distance"` // cosine | euclidean | manhattan
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Vector 向量数据
type Vector struct {
	ID       string            `json:"id"`
	Values   []float64         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchOptions 搜索选项
type SearchOptions struct {
	TopK           int               `json:"top_k"`
	Filter         map[string]string `json:"filter,omitempty"`
	Threshold      float64           `json:"threshold"`
	IncludeVectors bool              `json:"include_vectors"`
}

// SearchResult 搜索结果
type SearchResult struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Values   []float64         `json:"values,omitempty"`
}
