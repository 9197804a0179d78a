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

package model

import (
	"fmt"
	"sort"
	"sync"

	"doc-platform/internal/model/embedding"
)

// Registry 模型注册表，按名称解析 Embedding 实现，便于运行时切换
var (
	embeddingRegistry = make(map[string]embedding.Embedder)
	registryMu        sync.RWMutex
)

// RegisterEmbedding 注册 Embedding 实现，同名覆盖
func RegisterEmbedding(name string, e embedding.Embedder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	embeddingRegistry[name] = e
}

// GetEmbedding 按名称获取 Embedding
func GetEmbedding(name string) (embedding.Embedder, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := embeddingRegistry[name]
	if !ok {
		return nil, fmt.Errorf("Embedding not registered: %s", name)
	}
	return e, nil
}

// ListEmbeddings 返回已注册的 Embedding 名称，按字典序
func ListEmbeddings() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(embeddingRegistry))
	for name := range embeddingRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
