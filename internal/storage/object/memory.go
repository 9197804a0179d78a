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

package object

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	pkgerrors "doc-platform/pkg/errors"
)

// MemoryStore 内存对象存储实现
type MemoryStore struct {
	objects map[string]*memObject
	mu      sync.RWMutex
}

type memObject struct {
	data      []byte
	metadata  map[string]string
	createdAt time.Time
}

// NewMemoryStore 创建新的内存对象存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*memObject),
	}
}

// Put 写入对象
func (s *MemoryStore) Put(ctx context.Context, path string, data io.Reader, size int64, metadata map[string]string) error {
	buffer := &bytes.Buffer{}
	if size > 0 {
		buffer.Grow(int(size))
	}
	if _, err := io.Copy(buffer, data); err != nil {
		return fmt.Errorf("读取对象数据失败: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = &memObject{
		data:      buffer.Bytes(),
		metadata:  cloneMeta(metadata),
		createdAt: time.Now(),
	}
	return nil
}

// Get 读取对象
func (s *MemoryStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[path]
	if !exists {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "对象 %s", path)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete 删除对象
func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[path]; !exists {
		return pkgerrors.Wrapf(pkgerrors.ErrNotFound, "对象 %s", path)
	}
	delete(s.objects, path)
	return nil
}

// List 按前缀列出对象
func (s *MemoryStore) List(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	s.mu.RLock()
	var results []*ObjectInfo
	for path, obj := range s.objects {
		if prefix != "" && !strings.HasPrefix(path, prefix) {
			continue
		}
		results = append(results, &ObjectInfo{
			Path:      path,
			Size:      int64(len(obj.data)),
			Metadata:  cloneMeta(obj.metadata),
			CreatedAt: obj.createdAt,
		})
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, nil
}

// Exists 检查对象是否存在
func (s *MemoryStore) Exists(ctx context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.objects[path]
	return exists, nil
}

// GetMetadata 获取对象元数据
func (s *MemoryStore) GetMetadata(ctx context.Context, path string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[path]
	if !exists {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "对象 %s", path)
	}
	return cloneMeta(obj.metadata), nil
}

// Close 关闭存储连接
func (s *MemoryStore) Close() error {
	return nil
}

func cloneMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
