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

package app

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"doc-platform/internal/pipeline/ingest"
	"doc-platform/internal/storage/metadata"
	"doc-platform/internal/storage/object"
	"doc-platform/internal/storage/vector"
	pkgerrors "doc-platform/pkg/errors"
	"doc-platform/pkg/log"
)

// DocumentInfo 文档信息 DTO，供 API 层使用，不依赖 storage 具体类型
type DocumentInfo struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Path        string            `json:"path"`
	Status      string            `json:"status"`
	Chunks      int               `json:"chunks"`
	VectorCount int               `json:"vector_count"`
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   int64             `json:"created_at"`
	UpdatedAt   int64             `json:"updated_at"`
}

// DocumentListOptions 列表查询条件；零值字段不参与过滤
type DocumentListOptions struct {
	Status string
	Search string
	Offset int
	Limit  int
}

// DocumentService 文档门面：API 层仅依赖此接口，不直接调用 storage
type DocumentService interface {
	UploadDocument(ctx context.Context, name string, data []byte, meta map[string]string) (*DocumentInfo, error)
	ListDocuments(ctx context.Context, opts DocumentListOptions) ([]*DocumentInfo, int64, error)
	GetDocument(ctx context.Context, id string) (*DocumentInfo, error)
	DeleteDocument(ctx context.Context, id string) error
}

// documentService 组合元数据、对象与向量存储实现 DocumentService
type documentService struct {
	meta       metadata.Store
	objects    object.Store
	vectors    vector.Store
	collection string
	logger     *log.Logger
}

// NewDocumentService 创建文档门面（由 bootstrap 或 app 装配时调用）
func NewDocumentService(meta metadata.Store, objects object.Store, vectors vector.Store, collection string, logger *log.Logger) DocumentService {
	if collection == "" {
		collection = "chunks"
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &documentService{
		meta:       meta,
		objects:    objects,
		vectors:    vectors,
		collection: collection,
		logger:     logger,
	}
}

// UploadDocument 原始字节入对象存储（raw/<ID>/<文件名>），元数据记录状态 uploaded。
// 元数据写入失败时回收已写入的对象，避免孤儿
func (s *documentService) UploadDocument(ctx context.Context, name string, data []byte, meta map[string]string) (*DocumentInfo, error) {
	if len(data) == 0 {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "上传内容为空")
	}
	name = filepath.Base(name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "unnamed"
	}

	id := uuid.New().String()
	contentType := ingest.DetectContentType(name, data)
	path := "raw/" + id + "/" + name

	err := s.objects.Put(ctx, path, bytes.NewReader(data), int64(len(data)), map[string]string{
		"content_type": contentType,
		"filename":     name,
	})
	if err != nil {
		return nil, fmt.Errorf("写入对象存储失败: %w", err)
	}

	doc := &metadata.Document{
		ID:          id,
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Path:        path,
		Status:      metadata.StatusUploaded,
		Metadata:    meta,
	}
	if err := s.meta.Create(ctx, doc); err != nil {
		_ = s.objects.Delete(ctx, path)
		return nil, fmt.Errorf("写入元数据失败: %w", err)
	}

	s.logger.Info("文档已上传",
		"id", id, "name", name, "content_type", contentType, "size", doc.Size)
	return docToInfo(doc), nil
}

// ListDocuments 列出文档并返回过滤后的总数；Limit 上限 1000
func (s *documentService) ListDocuments(ctx context.Context, opts DocumentListOptions) ([]*DocumentInfo, int64, error) {
	filter := &metadata.Filter{Search: opts.Search}
	if opts.Status != "" {
		filter.Statuses = []string{opts.Status}
	}
	limit := opts.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	docs, err := s.meta.List(ctx, filter, &metadata.Pagination{Offset: opts.Offset, Limit: limit})
	if err != nil {
		return nil, 0, err
	}
	total, err := s.meta.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	out := make([]*DocumentInfo, len(docs))
	for i, d := range docs {
		out[i] = docToInfo(d)
	}
	return out, total, nil
}

func (s *documentService) GetDocument(ctx context.Context, id string) (*DocumentInfo, error) {
	d, err := s.meta.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return docToInfo(d), nil
}

// DeleteDocument 删除文档及其派生数据：向量（按 <ID>#<序号> 规则）、
// 原始对象、derived/ 产物，最后移除元数据。派生清理失败只记日志
func (s *documentService) DeleteDocument(ctx context.Context, id string) error {
	doc, err := s.meta.Get(ctx, id)
	if err != nil {
		return err
	}

	for i := 0; i < doc.VectorCount; i++ {
		vid := fmt.Sprintf("%s#%d", doc.ID, i)
		if err := s.vectors.Delete(ctx, s.collection, vid); err != nil {
			s.logger.Warn("删除向量失败", "vector_id", vid, "error", err)
		}
	}

	if doc.Path != "" {
		if err := s.objects.Delete(ctx, doc.Path); err != nil {
			s.logger.Warn("删除原始对象失败", "path", doc.Path, "error", err)
		}
	}
	if derived, err := s.objects.List(ctx, "derived/"+id+"/"); err == nil {
		for _, obj := range derived {
			if err := s.objects.Delete(ctx, obj.Path); err != nil {
				s.logger.Warn("删除派生产物失败", "path", obj.Path, "error", err)
			}
		}
	}

	if err := s.meta.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("文档已删除", "id", id)
	return nil
}

func docToInfo(d *metadata.Document) *DocumentInfo {
	if d == nil {
		return nil
	}
	return &DocumentInfo{
		ID:          d.ID,
		Name:        d.Name,
		ContentType: d.ContentType,
		Size:        d.Size,
		Path:        d.Path,
		Status:      d.Status,
		Chunks:      d.Chunks,
		VectorCount: d.VectorCount,
		Metadata:    d.Metadata,
		CreatedAt:   d.CreatedAt.Unix(),
		UpdatedAt:   d.UpdatedAt.Unix(),
	}
}
