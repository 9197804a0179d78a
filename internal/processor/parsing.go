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
	"strings"

	"doc-platform/internal/pipeline/common"
	"doc-platform/internal/pipeline/ingest"
	"doc-platform/internal/storage/metadata"
	"doc-platform/internal/task"
	"doc-platform/internal/taskqueue"
	"doc-platform/pkg/tracing"
)

// NewParsing 创建解析处理器：原始字节 → 正文文本 → 切片统计。
// 正文写到 derived/<文档ID>/text.txt，Chunks 数落元数据，
// 成功后文档状态推进到 ready。
func NewParsing(deps Deps) taskqueue.Processor {
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

		task.ReportProgress(ctx, task.ProgressDelta{TotalSteps: 4, Step: 1, Operation: "加载原始文件"})
		data, err := loadRaw(ctx, deps, doc)
		if err != nil {
			return nil, err
		}

		contentType := doc.ContentType
		if contentType == "" {
			contentType = ingest.DetectContentType(doc.Name, data)
		}

		task.ReportProgress(ctx, task.ProgressDelta{Step: 2, Operation: "解析正文"})
		stageCtx, span := tracing.StartStageSpan(ctx, "parse", docID)
		text, err := deps.Parser.Parse(stageCtx, contentType, data)
		span.End()
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		task.ReportProgress(ctx, task.ProgressDelta{Step: 3, Operation: "切片"})
		splitterName, opts := splitOptions(t)
		stageCtx, span = tracing.StartStageSpan(ctx, "split", docID)
		chunks, err := deps.Splitter.Split(stageCtx, text, splitterName, opts)
		span.End()
		if err != nil {
			return nil, err
		}

		task.ReportProgress(ctx, task.ProgressDelta{Step: 4, Operation: "写回产物"})
		textPath := textArtifact(docID)
		putMeta := map[string]string{"content_type": "text/plain; charset=utf-8", "source": doc.Path}
		if err := deps.Objects.Put(ctx, textPath, strings.NewReader(text), int64(len(text)), putMeta); err != nil {
			return nil, fmt.Errorf("%w: 写入解析文本: %v", common.ErrInternal, err)
		}

		doc.ContentType = contentType
		doc.Chunks = len(chunks)
		doc.Status = metadata.StatusReady
		if err := deps.Metadata.Update(ctx, doc); err != nil {
			return nil, fmt.Errorf("%w: 更新文档元数据: %v", common.ErrInternal, err)
		}

		deps.logger().Info("文档解析完成",
			"document_id", docID,
			"content_type", contentType,
			"chunks", len(chunks),
			"text_bytes", len(text),
		)

		return &task.Result{
			Data: map[string]interface{}{
				"document_id":  docID,
				"content_type": contentType,
				"chunks":       len(chunks),
			},
			Artifacts: []string{textPath},
			Metrics: map[string]float64{
				"chunks":     float64(len(chunks)),
				"text_bytes": float64(len(text)),
			},
		}, nil
	}
}
