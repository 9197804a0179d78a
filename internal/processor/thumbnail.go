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
	"fmt"
	"image"
	"image/png"
	"strconv"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	"doc-platform/internal/pipeline/common"
	"doc-platform/internal/pipeline/ingest"
	"doc-platform/internal/task"
	"doc-platform/internal/taskqueue"
)

// defaultMaxEdge 缩略图长边像素数，config.max_edge 可覆盖
const defaultMaxEdge = 256

// NewThumbnail 创建缩略图处理器：图像等比缩放到长边 max_edge，
// PNG 产物写到 derived/<文档ID>/thumbnail.png。只缩不放。
func NewThumbnail(deps Deps) taskqueue.Processor {
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

		task.ReportProgress(ctx, task.ProgressDelta{TotalSteps: 3, Step: 1, Operation: "读取图像"})
		data, err := loadRaw(ctx, deps, doc)
		if err != nil {
			return nil, err
		}

		contentType := doc.ContentType
		if contentType == "" {
			contentType = ingest.DetectContentType(doc.Name, data)
		}
		if !strings.HasPrefix(contentType, "image/") {
			return nil, fmt.Errorf("%w: 缩略图仅支持图像文档，实际类型 %s", common.ErrValidationFailed, contentType)
		}

		src, format, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: 解码图像: %v", common.ErrParsingFailed, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		maxEdge := defaultMaxEdge
		if v, err := strconv.Atoi(t.Config["max_edge"]); err == nil && v > 0 {
			maxEdge = v
		}

		task.ReportProgress(ctx, task.ProgressDelta{Step: 2, Operation: "缩放"})
		bounds := src.Bounds()
		width, height := thumbnailSize(bounds.Dx(), bounds.Dy(), maxEdge)
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

		var buf bytes.Buffer
		if err := png.Encode(&buf, dst); err != nil {
			return nil, fmt.Errorf("%w: 编码缩略图: %v", common.ErrInternal, err)
		}

		task.ReportProgress(ctx, task.ProgressDelta{Step: 3, Operation: "写回产物"})
		thumbPath := derivedPath(docID, "thumbnail.png")
		putMeta := map[string]string{"content_type": "image/png", "source_format": format}
		if err := deps.Objects.Put(ctx, thumbPath, bytes.NewReader(buf.Bytes()), int64(buf.Len()), putMeta); err != nil {
			return nil, fmt.Errorf("%w: 写入缩略图: %v", common.ErrInternal, err)
		}

		deps.logger().Info("缩略图生成完成",
			"document_id", docID,
			"source", fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()),
			"thumbnail", fmt.Sprintf("%dx%d", width, height),
		)

		return &task.Result{
			Data: map[string]interface{}{
				"document_id":   docID,
				"width":         width,
				"height":        height,
				"source_width":  bounds.Dx(),
				"source_height": bounds.Dy(),
			},
			Artifacts: []string{thumbPath},
		}, nil
	}
}

// thumbnailSize 等比缩放后的尺寸；原图长边不超过 maxEdge 时保持原尺寸
func thumbnailSize(width, height, maxEdge int) (int, int) {
	longest := max(width, height)
	if longest <= maxEdge {
		return width, height
	}
	scale := float64(maxEdge) / float64(longest)
	w := int(float64(width)*scale + 0.5)
	h := int(float64(height)*scale + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
