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

package metadata

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	pkgerrors "doc-platform/pkg/errors"
)

// MemoryStore 内存元数据存储；读写均返回拷贝，调用方持有的文档不会被
// 后续写入悄悄改动
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]*Document
	events map[string][]*TaskEvent
}

// NewMemoryStore 创建内存元数据存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]*Document),
		events: make(map[string][]*TaskEvent),
	}
}

// Create 创建文档；ID 已存在返回 ErrConflict
func (s *MemoryStore) Create(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return pkgerrors.Wrapf(pkgerrors.ErrConflict, "文档 %s 已存在", doc.ID)
	}
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	s.docs[doc.ID] = cloneDoc(doc)
	return nil
}

// Get 按 ID 获取文档；不存在返回 ErrNotFound
func (s *MemoryStore) Get(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, exists := s.docs[id]
	if !exists {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "文档 %s", id)
	}
	return cloneDoc(doc), nil
}

// Update 更新文档；不存在返回 ErrNotFound
func (s *MemoryStore) Update(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, exists := s.docs[doc.ID]
	if !exists {
		return pkgerrors.Wrapf(pkgerrors.ErrNotFound, "文档 %s", doc.ID)
	}
	doc.CreatedAt = old.CreatedAt
	doc.UpdatedAt = time.Now()
	s.docs[doc.ID] = cloneDoc(doc)
	return nil
}

// Delete 按 ID 删除文档；不存在返回 ErrNotFound
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[id]; !exists {
		return pkgerrors.Wrapf(pkgerrors.ErrNotFound, "文档 %s", id)
	}
	delete(s.docs, id)
	return nil
}

// List 列出文档，CreatedAt 降序（同时间按 ID 升序）
func (s *MemoryStore) List(ctx context.Context, filter *Filter, page *Pagination) ([]*Document, error) {
	s.mu.RLock()
	var results []*Document
	for _, doc := range s.docs {
		if matches(doc, filter) {
			results = append(results, cloneDoc(doc))
		}
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].ID < results[j].ID
	})

	if page != nil {
		if page.Offset >= len(results) {
			return []*Document{}, nil
		}
		results = results[page.Offset:]
		if page.Limit > 0 && page.Limit < len(results) {
			results = results[:page.Limit]
		}
	}
	return results, nil
}

// Count 统计满足条件的文档数
func (s *MemoryStore) Count(ctx context.Context, filter *Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, doc := range s.docs {
		if matches(doc, filter) {
			count++
		}
	}
	return count, nil
}

// SaveTaskEvent 追加任务变更记录
func (s *MemoryStore) SaveTaskEvent(ctx context.Context, ev *TaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ev
	s.events[ev.TaskID] = append(s.events[ev.TaskID], &cp)
	return nil
}

// ListTaskEvents 按时间升序返回任务的变更记录；limit<=0 返回全部
func (s *MemoryStore) ListTaskEvents(ctx context.Context, taskID string, limit int) ([]*TaskEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evs := s.events[taskID]
	if limit > 0 && limit < len(evs) {
		evs = evs[len(evs)-limit:]
	}
	out := make([]*TaskEvent, len(evs))
	for i, ev := range evs {
		cp := *ev
		out[i] = &cp
	}
	return out, nil
}

// Close 实现 Store
func (s *MemoryStore) Close() error {
	return nil
}

// matches 文档是否满足过滤条件；filter 为 nil 时恒为 true
func matches(doc *Document, filter *Filter) bool {
	if filter == nil {
		return true
	}
	if len(filter.IDs) > 0 && !containsString(filter.IDs, doc.ID) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsString(filter.Statuses, doc.Status) {
		return false
	}
	if len(filter.ContentTypes) > 0 && !containsString(filter.ContentTypes, doc.ContentType) {
		return false
	}
	for key, value := range filter.Metadata {
		if doc.Metadata == nil || doc.Metadata[key] != value {
			return false
		}
	}
	if filter.Search != "" && !strings.Contains(strings.ToLower(doc.Name), strings.ToLower(filter.Search)) {
		return false
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func cloneDoc(doc *Document) *Document {
	cp := *doc
	if doc.Metadata != nil {
		cp.Metadata = make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
