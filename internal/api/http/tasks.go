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
	"context"
	"fmt"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"doc-platform/internal/task"
)

// submitTaskRequest POST /api/tasks 请求体
type submitTaskRequest struct {
	Type     string            `json:"type"`
	Priority string            `json:"priority"`
	Topic    string            `json:"topic"`
	Config   map[string]string `json:"config"`
}

// SubmitTask 提交任务；入队即返回 202，执行结果走状态查询
// POST /api/tasks
func (h *Handler) SubmitTask(c context.Context, ctx *app.RequestContext) {
	var req submitTaskRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "invalid request",
		})
		return
	}

	typ, err := task.ParseType(req.Type)
	if err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	pri, err := task.ParsePriority(req.Priority)
	if err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	t := task.New(typ, pri, req.Topic, req.Config)
	if err := h.queue.Submit(t); err != nil {
		h.logger.Warn("任务提交被拒绝", "type", req.Type, "topic", req.Topic, "error", err)
		ctx.JSON(queueErrorStatus(err), map[string]string{
			"error": err.Error(),
		})
		return
	}

	ctx.JSON(consts.StatusAccepted, map[string]interface{}{
		"id":       t.ID,
		"type":     t.Type,
		"priority": t.Priority,
		"topic":    t.Topic,
		"status":   t.Status,
	})
}

// GetTask 查询任务快照与状态变更历史
// GET /api/tasks/:id
func (h *Handler) GetTask(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	snap, history, ok := h.status.GetTaskDetails(id)
	if !ok {
		ctx.JSON(consts.StatusNotFound, map[string]string{
			"error": "任务不存在",
		})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"task":    snap,
		"history": history,
	})
}

// CancelTask 取消任务；Pending 直接作废，Processing 发协作取消信号
// DELETE /api/tasks/:id
func (h *Handler) CancelTask(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	if h.queue.Cancel(id) {
		ctx.JSON(consts.StatusOK, map[string]interface{}{
			"id":        id,
			"cancelled": true,
		})
		return
	}
	if snap, _, ok := h.status.GetTaskDetails(id); ok {
		ctx.JSON(consts.StatusConflict, map[string]string{
			"error": fmt.Sprintf("任务已处于终态: %s", snap.Status),
		})
		return
	}
	ctx.JSON(consts.StatusNotFound, map[string]string{
		"error": "任务不存在",
	})
}

// RetryTask 手动重试失败任务：生成继承原配置的新任务重新入队
// POST /api/tasks/:id/retry
func (h *Handler) RetryTask(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	newID, err := h.queue.Retry(id)
	if err != nil {
		ctx.JSON(queueErrorStatus(err), map[string]string{
			"error": err.Error(),
		})
		return
	}

	ctx.JSON(consts.StatusAccepted, map[string]interface{}{
		"id":       newID,
		"retry_of": id,
	})
}

// ListTopicTasks 按主题查询任务，最新提交在前
// GET /api/topics/:topic/tasks?status=failed&limit=20
func (h *Handler) ListTopicTasks(c context.Context, ctx *app.RequestContext) {
	topic := ctx.Param("topic")

	var filter *task.Status
	if s := ctx.Query("status"); s != "" {
		st, err := task.ParseStatus(s)
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		filter = &st
	}

	limit := 0
	if v := ctx.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	tasks := h.status.GetTopicTasks(topic, filter, limit)
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"topic": topic,
		"tasks": tasks,
		"total": len(tasks),
	})
}
