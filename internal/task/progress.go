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

import "context"

// Progress 任务实时进度；Percentage 始终保持在 [0,100]
type Progress struct {
	CurrentStep int     `json:"current_step"`
	TotalSteps  int     `json:"total_steps"`
	Percentage  float64 `json:"percentage"`
	Operation   string  `json:"operation,omitempty"` // 当前执行的操作描述
	ETASeconds  int     `json:"eta_seconds,omitempty"`
}

// ProgressDelta 进度增量，零值字段表示不变；Percentage 由步数推导
type ProgressDelta struct {
	Step       int    `json:"step,omitempty"`
	TotalSteps int    `json:"total_steps,omitempty"`
	Operation  string `json:"operation,omitempty"`
	ETASeconds int    `json:"eta_seconds,omitempty"`
}

// Apply 按增量更新进度并重算百分比，越界截断到 [0,100]
func (p *Progress) Apply(d ProgressDelta) {
	if d.TotalSteps > 0 {
		p.TotalSteps = d.TotalSteps
	}
	if d.Step > 0 {
		p.CurrentStep = d.Step
	}
	if d.Operation != "" {
		p.Operation = d.Operation
	}
	if d.ETASeconds > 0 {
		p.ETASeconds = d.ETASeconds
	}
	if p.TotalSteps > 0 {
		p.Percentage = float64(p.CurrentStep) / float64(p.TotalSteps) * 100
	}
	if p.Percentage < 0 {
		p.Percentage = 0
	}
	if p.Percentage > 100 {
		p.Percentage = 100
	}
}

// progressSinkKey Processor 进度回报回调的 context key
type progressSinkKey struct{}

// ProgressFunc 接收 Processor 在执行中回报的进度增量
type ProgressFunc func(d ProgressDelta)

// WithProgressSink 向 context 挂载进度回调；Processor 通过 ReportProgress 回报
func WithProgressSink(ctx context.Context, fn ProgressFunc) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, progressSinkKey{}, fn)
}

// ReportProgress 回报进度增量；context 未挂载回调时为 no-op
func ReportProgress(ctx context.Context, d ProgressDelta) {
	if ctx == nil {
		return
	}
	fn, ok := ctx.Value(progressSinkKey{}).(ProgressFunc)
	if !ok || fn == nil {
		return
	}
	fn(d)
}
