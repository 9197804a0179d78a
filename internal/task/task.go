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

package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type 任务类型，决定由哪个 Processor 执行
type Type string

const (
	TypeParsing   Type = "parsing"
	TypeEmbedding Type = "embedding"
	TypeAnalysis  Type = "analysis"
	TypeOCR       Type = "ocr"
	TypeThumbnail Type = "thumbnail"
)

// ParseType 解析外部输入的任务类型（HTTP/CLI 边界用）；内建五种之外返回错误
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeParsing, TypeEmbedding, TypeAnalysis, TypeOCR, TypeThumbnail:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown task type: %q", s)
	}
}

func (t Type) String() string { return string(t) }

// Priority 任务优先级，数值越大越优先
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// ParsePriority 解析优先级字符串；空串默认 normal
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority: %q", s)
	}
}

// MarshalJSON 优先级以字符串形式序列化
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := ParsePriority(raw)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Priorities 按调度顺序（urgent → low）排列的全部优先级
func Priorities() []Priority {
	return []Priority{PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}
}

// Status 任务状态
type Status int

const (
	StatusPending Status = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
	StatusCancelled
	StatusRetrying
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	case StatusRetrying:
		return "retrying"
	default:
		return "unknown"
	}
}

// Terminal 是否终态（Completed/Failed/Cancelled 之后不再变化）
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ParseStatus 解析状态字符串（查询过滤用）
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "processing":
		return StatusProcessing, nil
	case "completed":
		return StatusCompleted, nil
	case "failed":
		return StatusFailed, nil
	case "cancelled":
		return StatusCancelled, nil
	case "retrying":
		return StatusRetrying, nil
	default:
		return StatusPending, fmt.Errorf("unknown status: %q", s)
	}
}

// MarshalJSON 状态以字符串形式序列化
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Result 任务执行结果
type Result struct {
	Success   bool                   `json:"success"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Artifacts []string               `json:"artifacts,omitempty"` // 产出物路径（对象存储内）
	Metrics   map[string]float64     `json:"metrics,omitempty"`   // 执行指标（耗时、数量等）
}

// Clone 深拷贝结果
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := &Result{Success: r.Success}
	if r.Data != nil {
		out.Data = make(map[string]interface{}, len(r.Data))
		for k, v := range r.Data {
			out.Data[k] = v
		}
	}
	if r.Artifacts != nil {
		out.Artifacts = append([]string(nil), r.Artifacts...)
	}
	if r.Metrics != nil {
		out.Metrics = make(map[string]float64, len(r.Metrics))
		for k, v := range r.Metrics {
			out.Metrics[k] = v
		}
	}
	return out
}

// Error 任务失败记录；Processor 可直接返回 *Error 以携带错误码
type Error struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	RetryCount int                    `json:"retry_count"`
	Retryable  bool                   `json:"retryable"`
}

// NewError 创建可重试的任务错误
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: true}
}

// NewPermanentError 创建不可重试的任务错误（分类后也不会重试）
func NewPermanentError(code, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: false}
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// Clone 深拷贝错误记录
func (e *Error) Clone() *Error {
	if e == nil {
		return nil
	}
	out := *e
	if e.Details != nil {
		out.Details = make(map[string]interface{}, len(e.Details))
		for k, v := range e.Details {
			out.Details[k] = v
		}
	}
	return &out
}

// RetryState 重试进度：Count 为已重试次数，MaxRetries 记录当前匹配模式的上限
type RetryState struct {
	MaxRetries int           `json:"max_retries"`
	Count      int           `json:"count"`
	NextDelay  time.Duration `json:"next_delay"`
}

// Task 异步任务实体，由 Queue 持有并在状态变更时向 StatusHub 下发快照
type Task struct {
	ID       string   `json:"id"`
	Type     Type     `json:"type"`
	Priority Priority `json:"priority"`
	// Topic 任务所属主题（如文档 ID），订阅与查询按 Topic 聚合
	Topic  string            `json:"topic,omitempty"`
	Config map[string]string `json:"config,omitempty"` // 透传给 Processor 的键值配置

	Status   Status     `json:"status"`
	Progress Progress   `json:"progress"`
	Retry    RetryState `json:"retry"`

	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	Result *Result `json:"result,omitempty"`
	Error  *Error  `json:"error,omitempty"`
}

// New 创建 Pending 状态的新任务并分配 ID
func New(typ Type, priority Priority, topic string, config map[string]string) *Task {
	return &Task{
		ID:        uuid.New().String(),
		Type:      typ,
		Priority:  priority,
		Topic:     topic,
		Config:    config,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

// Clone 深拷贝任务，快照与订阅方共享时避免数据竞争
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	if t.Config != nil {
		out.Config = make(map[string]string, len(t.Config))
		for k, v := range t.Config {
			out.Config[k] = v
		}
	}
	out.Result = t.Result.Clone()
	out.Error = t.Error.Clone()
	return &out
}
