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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"doc-platform/internal/pipeline/common"
	"doc-platform/internal/pipeline/ingest"
	"doc-platform/internal/task"
	"doc-platform/internal/taskqueue"
)

// ocrReport OCR 产物（占位：真实识别引擎接入前 Text 恒为空，
// 先产出图像元信息保证任务链路完整）
type ocrReport struct {
	DocumentID  string    `json:"document_id"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Format      string    `json:"format"`
	Engine      string    `json:"engine"`
	Text        string    `json:"text"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewOCR 创建 OCR 处理器：校验图像、提取尺寸与格式，
// 报告写到 derived/<文档ID>/ocr.json
func NewOCR(deps Deps) taskqueue.Processor {
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

		task.ReportProgress(ctx, task.ProgressDelta{TotalSteps: 2, Step: 1, Operation: "读取图像"})
		data, err := loadRaw(ctx, deps, doc)
		if err != nil {
			return nil, err
		}

		contentType := doc.ContentType
		if contentType == "" {
			contentType = ingest.DetectContentType(doc.Name, data)
		}
		if !strings.HasPrefix(contentType, "image/") {
			return nil, fmt.Errorf("%w: OCR 仅支持图像文档，实际类型 %s", common.ErrValidationFailed, contentType)
		}

		cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: 解码图像: %v", common.ErrParsingFailed, err)
		}

		report := &ocrReport{
			DocumentID:  docID,
			Width:       cfg.Width,
			Height:      cfg.Height,
			Format:      format,
			Engine:      "none",
			GeneratedAt: time.Now(),
		}
		payload, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("%w: 序列化 OCR 报告: %v", common.ErrInternal, err)
		}

		task.ReportProgress(ctx, task.ProgressDelta{Step: 2, Operation: "写回报告"})
		reportPath := derivedPath(docID, "ocr.json")
		putMeta := map[string]string{"content_type": "application/json"}
		if err := deps.Objects.Put(ctx, reportPath, bytes.NewReader(payload), int64(len(payload)), putMeta); err != nil {
			return nil, fmt.Errorf("%w: 写入 OCR 报告: %v", common.ErrInternal, err)
		}

		deps.logger().Info("图像识别完成",
			"document_id", docID,
			"format", format,
			"width", cfg.Width,
			"height", cfg.Height,
		)

		return &task.Result{
			Data: map[string]interface{}{
				"document_id": docID,
				"width":       cfg.Width,
				"height":      cfg.Height,
				"format":      format,
			},
			Artifacts: []string{reportPath},
		}, nil
	}
}
