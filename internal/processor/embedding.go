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

package processor

import (
	"context"
	"fmt"
	"strconv"

	"doc-platform/internal/pipeline/common"
	"doc-platform/internal/storage/vector"
	"doc-platform/internal/task"
	"doc-platform/internal/taskqueue"
	"doc-platform/pkg/tracing"
)

// embedBatchSize 每批向量化的片段数；批间回报进度并响应取消
const embedBatchSize = 32

// NewEmbedding 创建向量化处理器：解析文本 → 切片 → 向量 → 向量索引。
// 向量 ID 为 <文档ID>#<片段序号>，重复执行按 ID 覆盖，幂等。
func NewEmbedding(deps Deps) taskqueue.Processor {
	return func(ctx context.Context, t *task.Task) (*task.Result, error) {
		docID, err := documentID(t)
		if err != nil {
			return nil, err
		}
		doc, err := loadDocument(ctx, deps, docID)
		if err != nil {
			return nil, err
		}
		markProcessing(ctx, deps, doc)

		task.ReportProgress(ctx, task.ProgressDelta{TotalSteps: 3, Step: 1, Operation: "读取解析文本"})
		text, err := loadText(ctx, deps, docID)
		if err != nil {
			return nil, err
		}

		splitterName, opts := splitOptions(t)
		chunks, err := deps.Splitter.Split(ctx, text, splitterName, opts)
		if err != nil {
			return nil, err
		}
		if len(chunks) == 0 {
			return &task.Result{
				Data: map[string]interface{}{"document_id": docID, "vectors": 0},
			}, nil
		}

		indexName := t.Config["index"]
		if indexName == "" {
			indexName = deps.collection()
		}
		if err := vector.EnsureIndex(ctx, deps.Vectors, indexName, deps.Embedder.Dimension(), "cosine"); err != nil {
			return nil, fmt.Errorf("%w: 准备向量索引 %s: %v", common.ErrIndexingFailed, indexName, err)
		}

		task.ReportProgress(ctx, task.ProgressDelta{TotalSteps: 3, Step: 2, Operation: "计算向量"})
		stored := 0
		for start := 0; start < len(chunks); start += embedBatchSize {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			end := min(start+embedBatchSize, len(chunks))
			batch := chunks[start:end]

			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Content
			}
			stageCtx, span := tracing.StartStageSpan(ctx, "embed", docID)
			embs, err := deps.Embedder.Embed(stageCtx, texts)
			span.End()
			if err != nil {
				return nil, err
			}
			if len(embs) != len(batch) {
				return nil, fmt.Errorf("%w: 返回向量数 %d 与片段数 %d 不符", common.ErrEmbeddingFailed, len(embs), len(batch))
			}

			vectors := make([]*vector.Vector, len(batch))
			for i, c := range batch {
				vectors[i] = &vector.Vector{
					ID:     fmt.Sprintf("%s#%d", docID, c.Index),
					Values: embs[i],
					Metadata: map[string]string{
						"document_id": docID,
						"chunk_index": strconv.Itoa(c.Index),
						"content":     c.Content,
					},
				}
			}
			if err := deps.Vectors.Add(ctx, indexName, vectors); err != nil {
				return nil, fmt.Errorf("%w: 写入向量索引 %s: %v", common.ErrIndexingFailed, indexName, err)
			}
			stored += len(vectors)
			task.ReportProgress(ctx, task.ProgressDelta{
				Operation: fmt.Sprintf("计算向量 %d/%d", stored, len(chunks)),
			})
		}

		task.ReportProgress(ctx, task.ProgressDelta{Step: 3, Operation: "更新元数据"})
		doc.VectorCount = stored
		if err := deps.Metadata.Update(ctx, doc); err != nil {
			return nil, fmt.Errorf("%w: 更新文档元数据: %v", common.ErrInternal, err)
		}

		deps.logger().Info("文档向量化完成",
			"document_id", docID,
			"index", indexName,
			"vectors", stored,
			"model", deps.Embedder.Model(),
		)

		return &task.Result{
			Data: map[string]interface{}{
				"document_id": docID,
				"index":       indexName,
				"vectors":     stored,
				"model":       deps.Embedder.Model(),
			},
			Metrics: map[string]float64{"vectors": float64(stored)},
		}, nil
	}
}
