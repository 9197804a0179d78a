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

package http

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"doc-platform/pkg/metrics"
)

// QueueStats 队列运行统计（状态、各优先级深度、吞吐计数）
// GET /api/queue/stats
func (h *Handler) QueueStats(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, h.queue.GetStats())
}

// PauseQueue 暂停消费；在途任务继续跑完，四条优先级队列停止出队
// POST /api/queue/pause
func (h *Handler) PauseQueue(c context.Context, ctx *app.RequestContext) {
	if err := h.queue.Pause(); err != nil {
		ctx.JSON(queueErrorStatus(err), map[string]string{
			"error": err.Error(),
		})
		return
	}
	h.logger.Info("队列已暂停")
	ctx.JSON(consts.StatusOK, map[string]string{"state": "paused"})
}

// ResumeQueue 恢复消费
// POST /api/queue/resume
func (h *Handler) ResumeQueue(c context.Context, ctx *app.RequestContext) {
	if err := h.queue.Resume(); err != nil {
		ctx.JSON(queueErrorStatus(err), map[string]string{
			"error": err.Error(),
		})
		return
	}
	h.logger.Info("队列已恢复")
	ctx.JSON(consts.StatusOK, map[string]string{"state": "active"})
}

// Summary 主题或全局的聚合视图；topic 为空表示全局
// GET /api/summary?topic=<文档ID>
func (h *Handler) Summary(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, h.status.GetSummary(ctx.Query("topic")))
}

// Activity 最近的状态变更，跨主题按时间倒序
// GET /api/activity?limit=50
func (h *Handler) Activity(c context.Context, ctx *app.RequestContext) {
	limit := 50
	if v := ctx.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	transitions := h.status.Recent(limit)
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"transitions": transitions,
		"total":       len(transitions),
	})
}

// minuteStats 错误分钟桶的响应形态
type minuteStats struct {
	Minute     time.Time      `json:"minute"`
	Total      int            `json:"total"`
	ByPattern  map[string]int `json:"by_pattern"`
	ByCategory map[string]int `json:"by_category"`
	ByType     map[string]int `json:"by_type"`
}

// ErrorStats 分钟粒度的错误分类统计
// GET /api/errors/stats?window=1h
func (h *Handler) ErrorStats(c context.Context, ctx *app.RequestContext) {
	window := time.Hour
	if v := ctx.Query("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			ctx.JSON(consts.StatusBadRequest, map[string]string{
				"error": "invalid window",
			})
			return
		}
		window = d
	}

	raw := h.faults.RecentStats(window)
	minutes := make([]minuteStats, len(raw))
	for i, m := range raw {
		minutes[i] = minuteStats{
			Minute:     m.Minute,
			Total:      m.Total,
			ByPattern:  m.ByPattern,
			ByCategory: m.ByCategory,
			ByType:     m.ByType,
		}
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"window":  window.String(),
		"minutes": minutes,
	})
}

// Metrics Prometheus 文本格式指标导出
// GET /metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
