package splitter

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"doc-platform/internal/pipeline/common"
)

// StructuralSplitter 结构切片器：按空行划段，按目标大小合并
type StructuralSplitter struct {
	name string
}

// NewStructuralSplitter 创建新的结构切片器
func NewStructuralSplitter() *StructuralSplitter {
	return &StructuralSplitter{
		name: "structural_splitter",
	}
}

// Name 返回切片器名称
func (s *StructuralSplitter) Name() string {
	return s.name
}

// Split 执行结构切片
func (s *StructuralSplitter) Split(ctx context.Context, content string, opts Options) ([]common.Chunk, error) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	chunkOverlap := opts.ChunkOverlap
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 100
	}

	paragraphs := splitByParagraph(content)
	return s.mergeAndSplit(paragraphs, chunkSize, chunkOverlap), nil
}

// splitByParagraph 按空行分段，段内换行折叠为空格
func splitByParagraph(content string) []string {
	lines := strings.Split(content, "\n")

	var paragraphs []string
	var current strings.Builder
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if current.Len() > 0 {
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
			continue
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(trimmed)
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}
	return paragraphs
}

// mergeAndSplit 合并短段落、拆分超长段落
func (s *StructuralSplitter) mergeAndSplit(paragraphs []string, chunkSize, chunkOverlap int) []common.Chunk {
	var chunks []common.Chunk
	var current strings.Builder
	var chunkIndex int

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, s.createChunk(current.String(), chunkIndex))
		chunkIndex++

		// 新切片带上尾部重叠
		if chunkOverlap > 0 && current.Len() > chunkOverlap {
			runes := []rune(current.String())
			if len(runes) > chunkOverlap {
				overlap := string(runes[len(runes)-chunkOverlap:])
				current.Reset()
				current.WriteString(overlap)
				current.WriteString(" ")
				return
			}
		}
		current.Reset()
	}

	for _, paragraph := range paragraphs {
		if len([]rune(paragraph)) > chunkSize {
			if current.Len() > 0 {
				chunks = append(chunks, s.createChunk(current.String(), chunkIndex))
				chunkIndex++
				current.Reset()
			}
			long := s.splitLongParagraph(paragraph, chunkIndex, chunkSize, chunkOverlap)
			chunks = append(chunks, long...)
			chunkIndex += len(long)
			continue
		}
		if current.Len()+len(paragraph)+1 > chunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(paragraph)
	}
	if current.Len() > 0 {
		chunks = append(chunks, s.createChunk(current.String(), chunkIndex))
	}
	return chunks
}

// splitLongParagraph 按固定窗口拆分超长段落，窗口按 rune 计数避免截断多字节字符
func (s *StructuralSplitter) splitLongParagraph(paragraph string, startIndex, chunkSize, chunkOverlap int) []common.Chunk {
	runes := []rune(paragraph)
	step := chunkSize - chunkOverlap
	if step <= 0 {
		step = chunkSize
	}

	var chunks []common.Chunk
	chunkIndex := startIndex
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, s.createChunk(string(runes[i:end]), chunkIndex))
		chunkIndex++
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func (s *StructuralSplitter) createChunk(content string, index int) common.Chunk {
	return common.Chunk{
		ID:      uuid.New().String(),
		Content: content,
		Metadata: map[string]string{
			"splitter": "structural",
			"type":     "paragraph",
		},
		Index:      index,
		TokenCount: len([]rune(content)),
	}
}
