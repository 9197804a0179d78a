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
	"fmt"
	"sort"

	"doc-platform/internal/pipeline/common"
)

// Options 切片参数；零值字段使用各切片器默认值
type Options struct {
	ChunkSize         int     // structural/semantic 的目标切片字符数
	ChunkOverlap      int     // 相邻切片重叠量（structural 为字符，token 为 token 数）
	MaxTokens         int     // token 切片器的窗口大小
	SemanticThreshold float64 // semantic 切片器的断块相似度阈值
}

// Splitter 切片器接口
type Splitter interface {
	Split(ctx context.Context, content string, opts Options) ([]common.Chunk, error)
	Name() string
}

// TextEmbedder semantic 切片器所需的最小向量化面
type TextEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Engine 切片引擎
type Engine struct {
	name      string
	splitters map[string]Splitter
}

// NewEngine 创建新的切片引擎；embedder 可选，传入时 semantic 切片器按语义相似度断块
func NewEngine(embedder TextEmbedder) *Engine {
	engine := &Engine{
		name:      "splitter_engine",
		splitters: make(map[string]Splitter),
	}
	engine.splitters["structural"] = NewStructuralSplitter()
	engine.splitters["semantic"] = NewSemanticSplitter(embedder)
	engine.splitters["token"] = NewTokenSplitter()
	return engine
}

// Name 返回引擎名称
func (e *Engine) Name() string {
	return e.name
}

// AddSplitter 添加自定义切片器
func (e *Engine) AddSplitter(name string, splitter Splitter) {
	e.splitters[name] = splitter
}

// GetSplitter 获取切片器
func (e *Engine) GetSplitter(name string) (Splitter, error) {
	splitter, exists := e.splitters[name]
	if !exists {
		return nil, fmt.Errorf("切片器不存在: %s", name)
	}
	return splitter, nil
}

// Split 执行切片
func (e *Engine) Split(ctx context.Context, content string, splitterName string, opts Options) ([]common.Chunk, error) {
	splitter, err := e.GetSplitter(splitterName)
	if err != nil {
		return nil, err
	}
	chunks, err := splitter.Split(ctx, content, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrSplittingFailed, err)
	}
	return chunks, nil
}

// SplitDocument 切片文档并回填 DocumentID
func (e *Engine) SplitDocument(ctx context.Context, doc *common.Document, splitterName string, opts Options) (*common.Document, error) {
	chunks, err := e.Split(ctx, doc.Content, splitterName, opts)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
	}
	doc.Chunks = chunks
	return doc, nil
}

// GetSplitters 获取所有切片器名称，按字典序
func (e *Engine) GetSplitters() []string {
	names := make([]string, 0, len(e.splitters))
	for name := range e.splitters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
