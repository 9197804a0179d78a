package splitter

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"doc-platform/internal/pipeline/common"
)

// SemanticSplitter 语义切片器：按句子分割，相邻句向量相似度低于阈值处断块。
// 未注入 embedder 时退化为按大小合并。
type SemanticSplitter struct {
	name     string
	embedder TextEmbedder
}

// NewSemanticSplitter 创建新的语义切片器
func NewSemanticSplitter(embedder TextEmbedder) *SemanticSplitter {
	return &SemanticSplitter{
		name:     "semantic_splitter",
		embedder: embedder,
	}
}

// Name 返回切片器名称
func (s *SemanticSplitter) Name() string {
	return s.name
}

// Split 执行语义切片；ChunkOverlap 在语义断块下无意义，忽略
func (s *SemanticSplitter) Split(ctx context.Context, content string, opts Options) ([]common.Chunk, error) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	threshold := opts.SemanticThreshold
	if threshold <= 0 {
		threshold = 0.3
	}

	sentences := splitBySentence(content)
	if len(sentences) == 0 {
		return nil, nil
	}

	var embeddings [][]float64
	if s.embedder != nil {
		var err error
		embeddings, err = s.embedder.Embed(ctx, sentences)
		if err != nil {
			return nil, fmt.Errorf("%w: 句向量计算: %v", common.ErrEmbeddingFailed, err)
		}
		if len(embeddings) != len(sentences) {
			return nil, fmt.Errorf("%w: 句向量数量 %d 与句子数 %d 不符",
				common.ErrEmbeddingFailed, len(embeddings), len(sentences))
		}
	}

	return s.merge(sentences, embeddings, chunkSize, threshold), nil
}

// splitBySentence 按中英文句子结束符分割
func splitBySentence(content string) []string {
	enders := []string{". ", "。", "! ", "！", "? ", "？", "\n"}
	for _, ender := range enders {
		content = strings.ReplaceAll(content, ender, "\n")
	}

	var sentences []string
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}

// merge 合并句子：语义相似度跌破阈值或达到目标大小即断块
func (s *SemanticSplitter) merge(sentences []string, embeddings [][]float64, chunkSize int, threshold float64) []common.Chunk {
	var chunks []common.Chunk
	var current strings.Builder
	var chunkIndex int

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, s.createChunk(current.String(), chunkIndex))
		chunkIndex++
		current.Reset()
	}

	for i, sentence := range sentences {
		semanticBreak := false
		if i > 0 && embeddings != nil {
			semanticBreak = cosine(embeddings[i-1], embeddings[i]) < threshold
		}
		if current.Len() > 0 && (semanticBreak || current.Len()+len(sentence)+1 > chunkSize) {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	flush()
	return chunks
}

func (s *SemanticSplitter) createChunk(content string, index int) common.Chunk {
	return common.Chunk{
		ID:      uuid.New().String(),
		Content: content,
		Metadata: map[string]string{
			"splitter": "semantic",
			"type":     "semantic",
		},
		Index:      index,
		TokenCount: len([]rune(content)),
	}
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
