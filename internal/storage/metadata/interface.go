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
	"time"
)

// 文档处理状态
const (
	StatusUploaded   = "uploaded"   // 原始文件已入对象存储，任务未开始
	StatusProcessing = "processing" // 至少一个派生任务在跑
	StatusReady      = "ready"      // 解析完成，正文与派生产物可用
	StatusFailed     = "failed"     // 有任务终态失败
)

// Document 平台管理的文档元数据；原始字节在对象存储，派生统计在这里
type Document struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	ContentType string            `json:"content_type"` // 入库时探测的 MIME 类型
	Size        int64             `json:"size"`
	Path        string            `json:"path"`   // 对象存储内的原始文件路径
	Status      string            `json:"status"` // uploaded | processing | ready | failed
	Chunks      int               `json:"chunks"`
	VectorCount int               `json:"vector_count"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TaskEvent 任务状态变更的持久化记录，StatusHub 的持久化通道逐条写入
type TaskEvent struct {
	TaskID   string    `json:"task_id"`
	Topic    string    `json:"topic,omitempty"`
	Previous string    `json:"previous"`
	Status   string    `json:"status"`
	At       time.Time `json:"at"`
}

// Filter 文档查询条件；零值字段不参与过滤
type Filter struct {
	IDs          []string
	Statuses     []string
	ContentTypes []string
	Search       string            // 名称子串匹配
	Metadata     map[string]string // 逐键精确匹配
}

// Pagination 分页；Limit<=0 表示不限制
type Pagination struct {
	Offset int
	Limit  int
}

// Store 元数据存储；实现需保证 List 按 CreatedAt 降序（同时间按 ID）稳定排序
type Store interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	Update(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter *Filter, page *Pagination) ([]*Document, error)
	Count(ctx context.Context, filter *Filter) (int64, error)

	// SaveTaskEvent 追加一条任务变更记录；ListTaskEvents 按时间升序返回
	SaveTaskEvent(ctx context.Context, ev *TaskEvent) error
	ListTaskEvents(ctx context.Context, taskID string, limit int) ([]*TaskEvent, error)

	Close() error
}
