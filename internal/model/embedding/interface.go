package embedding

import (
	"context"
)

// Embedder 文本向量化接口，嵌入处理器和语义切片器都依赖它
type Embedder interface {
	// Embed 批量向量化 texts，返回与输入一一对应的向量
	Embed(ctx context.Context, texts []string) ([][]float64, error)

	// Model 返回模型标识，用于缓存键与向量索引命名
	Model() string

	// Dimension 返回向量维度
	Dimension() int
}
