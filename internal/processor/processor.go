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

// Package processor 提供五个内置任务处理器：parsing、embedding、analysis、
// ocr、thumbnail。任务的 Topic 指向文档 ID，原始字节在对象存储，
// 派生产物写回 derived/<文档ID>/ 下，统计量落元数据存储。
// 处理器通过返回值携带哨兵错误（pipeline/common），故障分类器据此决定重试策略；
// 同一任务重复执行产生相同的产物路径与元数据，天然幂等。
package processor

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"doc-platform/internal/model/embedding"
	"doc-platform/internal/pipeline/common"
	"doc-platform/internal/pipeline/ingest"
	"doc-platform/internal/splitter"
	"doc-platform/internal/storage/metadata"
	"doc-platform/internal/storage/object"
	"doc-platform/internal/storage/vector"
	"doc-platform/internal/task"
	"doc-platform/internal/taskqueue"
	"doc-platform/pkg/log"
)

// Deps 处理器共享的外部依赖，由 app 装配后传入
type Deps struct {
	Logger   *log.Logger
	Objects  object.Store
	Metadata metadata.Store
	Vectors  vector.Store
	Embedder embedding.Embedder
	Splitter *splitter.Engine
	Parser   *ingest.DocumentParser

	// Collection 向量索引名，空则 "chunks"
	Collection string
}

func (d Deps) logger() *log.Logger {
	if d.Logger == nil {
		return log.Discard()
	}
	return d.Logger
}

func (d Deps) collection() string {
	if d.Collection == "" {
		return "chunks"
	}
	return d.Collection
}

// All 返回全部内置处理器，键为任务类型；调用方逐个注册到队列
func All(deps Deps) map[task.Type]taskqueue.Processor {
	return map[task.Type]taskqueue.Processor{
		task.TypeParsing:   NewParsing(deps),
		task.TypeEmbedding: NewEmbedding(deps),
		task.TypeAnalysis:  NewAnalysis(deps),
		task.TypeOCR:       NewOCR(deps),
		task.TypeThumbnail: NewThumbnail(deps),
	}
}

// documentID 从任务中取目标文档 ID：优先 config.document_id，缺省用 Topic
func documentID(t *task.Task) (string, error) {
	if id := t.Config["document_id"]; id != "" {
		return id, nil
	}
	if t.Topic != "" {
		return t.Topic, nil
	}
	return "", fmt.Errorf("%w: 任务未携带 document_id", common.ErrInvalidInput)
}

// loadDocument 读取文档元数据记录
func loadDocument(ctx context.Context, deps Deps, docID string) (*metadata.Document, error) {
	doc, err := deps.Metadata.Get(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("%w: 文档 %s: %v", common.ErrDocumentNotFound, docID, err)
	}
	return doc, nil
}

// loadRaw 读取文档的原始字节
func loadRaw(ctx context.Context, deps Deps, doc *metadata.Document) ([]byte, error) {
	rc, err := deps.Objects.Get(ctx, doc.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取原始文件 %s: %v", common.ErrLoadingFailed, doc.Path, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取原始文件 %s: %v", common.ErrLoadingFailed, doc.Path, err)
	}
	return data, nil
}

// derivedPath 派生产物在对象存储内的路径
func derivedPath(docID, name string) string {
	return "derived/" + docID + "/" + name
}

// textArtifact parsing 产出的纯文本路径，embedding/analysis 从这里取正文
func textArtifact(docID string) string {
	return derivedPath(docID, "text.txt")
}

// loadText 读取 parsing 产出的正文文本。
// 产物缺失说明 parsing 尚未完成，错误按 file_access 归类，
// 重试退避期间 parsing 任务落地后即可成功。
func loadText(ctx context.Context, deps Deps, docID string) (string, error) {
	rc, err := deps.Objects.Get(ctx, textArtifact(docID))
	if err != nil {
		return "", fmt.Errorf("%w: 文档 %s 尚无解析文本（需先执行 parsing）: %v", common.ErrLoadingFailed, docID, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("%w: 读取解析文本: %v", common.ErrLoadingFailed, err)
	}
	return string(data), nil
}

// markProcessing 把文档状态推进到 processing（uploaded → processing）
func markProcessing(ctx context.Context, deps Deps, doc *metadata.Document) {
	if doc.Status != metadata.StatusUploaded {
		return
	}
	doc.Status = metadata.StatusProcessing
	if err := deps.Metadata.Update(ctx, doc); err != nil {
		deps.logger().Warn("更新文档状态失败", "document_id", doc.ID, "error", err)
	}
}

// splitOptions 从任务配置解析切片参数；splitter 名缺省 structural
func splitOptions(t *task.Task) (string, splitter.Options) {
	name := t.Config["splitter"]
	if name == "" {
		name = "structural"
	}
	var opts splitter.Options
	if v, err := strconv.Atoi(t.Config["chunk_size"]); err == nil && v > 0 {
		opts.ChunkSize = v
	}
	if v, err := strconv.Atoi(t.Config["chunk_overlap"]); err == nil && v >= 0 {
		opts.ChunkOverlap = v
	}
	if v, err := strconv.Atoi(t.Config["max_tokens"]); err == nil && v > 0 {
		opts.MaxTokens = v
	}
	return name, opts
}
