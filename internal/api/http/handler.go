package http

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	appcore "doc-platform/internal/app"
	"doc-platform/internal/faults"
	"doc-platform/internal/statushub"
	"doc-platform/internal/task"
	"doc-platform/internal/taskqueue"
	"doc-platform/pkg/log"
)

// TaskQueue 队列操作面（由 taskqueue.Queue 实现）
type TaskQueue interface {
	Submit(t *task.Task) error
	Cancel(id string) bool
	Retry(failedID string) (string, error)
	Pause() error
	Resume() error
	GetStats() task.QueueStats
}

// StatusReader 状态查询面（由 statushub.Hub 实现）
type StatusReader interface {
	GetTaskDetails(id string) (*task.Task, []statushub.Transition, bool)
	GetTopicTasks(topic string, filter *task.Status, limit int) []*task.Task
	GetSummary(topic string) statushub.Summary
	Recent(limit int) []statushub.Transition
}

// FaultReader 错误统计查询面（由 faults.Classifier 实现）
type FaultReader interface {
	RecentStats(window time.Duration) []faults.MinuteStats
}

var (
	_ TaskQueue    = (*taskqueue.Queue)(nil)
	_ StatusReader = (*statushub.Hub)(nil)
	_ FaultReader  = (*faults.Classifier)(nil)
)

// Handler HTTP 处理器：只依赖注入的操作面与文档门面，不直接碰 storage
type Handler struct {
	queue  TaskQueue
	status StatusReader
	faults FaultReader
	docs   appcore.DocumentService
	logger *log.Logger
}

// NewHandler 创建 HTTP 处理器
func NewHandler(queue TaskQueue, status StatusReader, faults FaultReader, docs appcore.DocumentService, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Discard()
	}
	return &Handler{
		queue:  queue,
		status: status,
		faults: faults,
		docs:   docs,
		logger: logger,
	}
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "doc-platform-api",
		"timestamp": time.Now().Unix(),
	})
}

// queueErrorStatus 队列拒绝原因到 HTTP 状态码的映射：
// 参数类 400、容量类 429、停机类 503、目标缺失 404、状态不符 409
func queueErrorStatus(err error) int {
	switch {
	case errors.Is(err, taskqueue.ErrNoProcessor):
		return consts.StatusBadRequest
	case errors.Is(err, taskqueue.ErrQueueFull):
		return consts.StatusTooManyRequests
	case errors.Is(err, taskqueue.ErrQueueStopped):
		return consts.StatusServiceUnavailable
	case errors.Is(err, taskqueue.ErrNotFound):
		return consts.StatusNotFound
	case errors.Is(err, taskqueue.ErrNotFailed):
		return consts.StatusConflict
	default:
		return consts.StatusInternalServerError
	}
}
