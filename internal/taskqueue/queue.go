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

package taskqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"doc-platform/internal/faults"
	"doc-platform/internal/task"
	pkgerrors "doc-platform/pkg/errors"
	"doc-platform/pkg/log"
	"doc-platform/pkg/metrics"
	"doc-platform/pkg/utils"
)

// 提交与控制操作的同步拒绝原因
var (
	ErrQueueStopped = errors.New("任务队列已停止")
	ErrQueueFull    = errors.New("任务队列已满")
	ErrNoProcessor  = errors.New("任务类型未注册 Processor")
	ErrNotFound     = errors.New("任务不存在")
	ErrNotFailed    = errors.New("任务不处于失败终态")
	ErrStarted      = errors.New("任务队列已启动")
	ErrStopTimeout  = errors.New("等待在途任务完成超时")
)

// rollingWindow 滚动平均处理耗时的样本窗口
const rollingWindow = 100

// Processor 任务处理函数，按任务类型注册；收到的是任务快照，
// 需遵守 ctx 取消并保证幂等（同一任务 ID 可能被重试多次）
type Processor func(ctx context.Context, t *task.Task) (*task.Result, error)

// StatusSink 状态变更下沉接口（由 statushub.Hub 实现；nil 时不通知）
type StatusSink interface {
	UpdateStatus(snap *task.Task, delta *task.ProgressDelta)
}

// Config 队列配置
type Config struct {
	Workers      int           // Worker 数量，<=0 时取 4
	MaxQueueSize int           // 四条通道排队总数上限，达到后 Submit 直接拒绝
	TaskTimeout  time.Duration // 单任务执行超时，默认 300s
	IdlePoll     time.Duration // 空闲轮询间隔，默认 200ms
}

func (c *Config) setDefaults() {
	c.Workers = utils.DefaultInt(c.Workers, 4)
	c.MaxQueueSize = utils.DefaultInt(c.MaxQueueSize, 100)
	c.TaskTimeout = utils.DefaultDuration(c.TaskTimeout, 300*time.Second)
	c.IdlePoll = utils.DefaultDuration(c.IdlePoll, 200*time.Millisecond)
}

// Queue 优先级多通道任务队列 + 固定 Worker 池。
// Urgent→Low 严格优先、同通道 FIFO；持续的高优先级提交会饿死低优先级，
// 公平性由调用方自行限速。
type Queue struct {
	cfg        Config
	logger     *log.Logger
	classifier *faults.Classifier
	sink       StatusSink

	mu         sync.Mutex
	state      task.RunState
	lanes      map[task.Priority][]*task.Task
	queued     int
	processors map[task.Type]Processor
	pending    map[string]*task.Task
	active     map[string]*task.Task
	waiting    map[string]*retryWait
	completed  map[string]*task.Task
	failed     map[string]*task.Task
	cancelled  map[string]*task.Task
	durations  []time.Duration
	busy       int

	started  bool
	workers  int
	stopCh   chan struct{}
	baseCtx  context.Context
	baseStop context.CancelFunc
	wg       sync.WaitGroup
}

// retryWait 处于重试等待的任务与其定时器（取消时需停表并结束等待 span）
type retryWait struct {
	t     *task.Task
	timer *time.Timer
	span  trace.Span // 覆盖整个退避等待，重入队或丢弃时结束
}

// New 创建队列；classifier 为失败分类与重试决策的唯一权威，不可为 nil
func New(cfg Config, classifier *faults.Classifier, sink StatusSink, logger *log.Logger) *Queue {
	cfg.setDefaults()
	if logger == nil {
		logger = log.Discard()
	}
	return &Queue{
		cfg:        cfg,
		logger:     logger,
		classifier: classifier,
		sink:       sink,
		state:      task.RunStateActive,
		lanes:      make(map[task.Priority][]*task.Task, 4),
		processors: make(map[task.Type]Processor),
		pending:    make(map[string]*task.Task),
		active:     make(map[string]*task.Task),
		waiting:    make(map[string]*retryWait),
		completed:  make(map[string]*task.Task),
		failed:     make(map[string]*task.Task),
		cancelled:  make(map[string]*task.Task),
		stopCh:     make(chan struct{}),
	}
}

// RegisterHandler 关联任务类型与 Processor；必须先于该类型的 Submit 完成注册
func (q *Queue) RegisterHandler(typ task.Type, p Processor) error {
	if typ == "" || p == nil {
		return pkgerrors.ErrInvalidArg
	}
	q.mu.Lock()
	q.processors[typ] = p
	q.mu.Unlock()
	return nil
}

// Submit 入队：队列停止、类型未注册、容量已满均同步拒绝，从不阻塞。
// 满载拒绝即背压，调用方自行退避重试。
func (q *Queue) Submit(t *task.Task) error {
	if t == nil {
		return pkgerrors.ErrInvalidArg
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Priority < task.PriorityLow || t.Priority > task.PriorityUrgent {
		t.Priority = task.PriorityNormal
	}

	q.mu.Lock()
	if q.state == task.RunStateDraining || q.state == task.RunStateStopped {
		q.mu.Unlock()
		metrics.TaskRejectTotal.WithLabelValues("queue_stopped").Inc()
		return ErrQueueStopped
	}
	if _, ok := q.processors[t.Type]; !ok {
		q.mu.Unlock()
		metrics.TaskRejectTotal.WithLabelValues("no_processor").Inc()
		return ErrNoProcessor
	}
	if q.queued >= q.cfg.MaxQueueSize {
		q.mu.Unlock()
		metrics.TaskRejectTotal.WithLabelValues("queue_full").Inc()
		return ErrQueueFull
	}
	t.Status = task.StatusPending
	q.lanes[t.Priority] = append(q.lanes[t.Priority], t)
	q.pending[t.ID] = t
	q.queued++
	metrics.QueueDepth.WithLabelValues(t.Priority.String()).Set(float64(len(q.lanes[t.Priority])))
	snap := t.Clone()
	q.mu.Unlock()

	q.notify(snap, nil)
	q.logger.Debug("任务入队", "task_id", snap.ID, "type", snap.Type, "priority", snap.Priority.String())
	return nil
}

// Start 启动 workerCount 个 Worker 循环；<=0 时取配置值。只允许启动一次
func (q *Queue) Start(workerCount int) error {
	q.mu.Lock()
	if q.state == task.RunStateDraining || q.state == task.RunStateStopped {
		q.mu.Unlock()
		return ErrQueueStopped
	}
	if q.started {
		q.mu.Unlock()
		return ErrStarted
	}
	if workerCount <= 0 {
		workerCount = q.cfg.Workers
	}
	q.workers = workerCount
	q.started = true
	q.baseCtx, q.baseStop = context.WithCancel(context.Background())
	q.mu.Unlock()

	for i := 0; i < workerCount; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.logger.Info("任务队列已启动", "workers", workerCount)
	return nil
}

// Stop 优雅停止：置为 Draining、丢弃未触发的重试定时器、等待在途任务完成；
// 超过 timeout 后取消在途任务的 context 强制收尾。停止后不可重新启动
func (q *Queue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if q.state == task.RunStateDraining || q.state == task.RunStateStopped {
		q.mu.Unlock()
		return nil
	}
	q.state = task.RunStateDraining
	for id, w := range q.waiting {
		w.timer.Stop()
		w.span.End()
		delete(q.waiting, id)
	}
	started := q.started
	q.mu.Unlock()

	close(q.stopCh)

	var timedOut bool
	if started {
		done := make(chan struct{})
		go func() {
			q.wg.Wait()
			close(done)
		}()
		if timeout > 0 {
			select {
			case <-done:
			case <-time.After(timeout):
				timedOut = true
				q.baseStop()
				<-done
			}
		} else {
			<-done
		}
		q.baseStop()
	}

	q.mu.Lock()
	q.state = task.RunStateStopped
	q.mu.Unlock()

	if timedOut {
		q.logger.Warn("等待在途任务超时，已强制取消")
		return ErrStopTimeout
	}
	q.logger.Info("任务队列已停止")
	return nil
}

// Pause 暂停出队；不影响 Submit，在途任务继续执行
func (q *Queue) Pause() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == task.RunStateDraining || q.state == task.RunStateStopped {
		return ErrQueueStopped
	}
	q.state = task.RunStatePaused
	q.logger.Info("任务队列已暂停")
	return nil
}

// Resume 恢复出队
func (q *Queue) Resume() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == task.RunStateDraining || q.state == task.RunStateStopped {
		return ErrQueueStopped
	}
	q.state = task.RunStateActive
	q.logger.Info("任务队列已恢复")
	return nil
}

// Cancel 取消任务：排队中的移出通道、重试等待中的停表，均立即置 Cancelled；
// 执行中的仅标记（协作式取消），调用跑完后结果被丢弃。
// 不存在或已终态返回 false
func (q *Queue) Cancel(id string) bool {
	now := time.Now()

	q.mu.Lock()
	if t, ok := q.pending[id]; ok {
		q.removeFromLane(t)
		delete(q.pending, id)
		q.queued--
		t.Status = task.StatusCancelled
		t.CompletedAt = now
		q.cancelled[id] = t
		metrics.QueueDepth.WithLabelValues(t.Priority.String()).Set(float64(len(q.lanes[t.Priority])))
		snap := t.Clone()
		q.mu.Unlock()
		q.finishCancel(snap)
		return true
	}
	if w, ok := q.waiting[id]; ok {
		w.timer.Stop()
		w.span.End()
		delete(q.waiting, id)
		w.t.Status = task.StatusCancelled
		w.t.CompletedAt = now
		q.cancelled[id] = w.t
		snap := w.t.Clone()
		q.mu.Unlock()
		q.finishCancel(snap)
		return true
	}
	if t, ok := q.active[id]; ok && t.Status == task.StatusProcessing {
		t.Status = task.StatusCancelled
		t.CompletedAt = now
		snap := t.Clone()
		q.mu.Unlock()
		q.finishCancel(snap)
		return true
	}
	q.mu.Unlock()
	return false
}

func (q *Queue) finishCancel(snap *task.Task) {
	metrics.TaskTotal.WithLabelValues(snap.Type.String(), "cancelled").Inc()
	q.notify(snap, nil)
	q.logger.Info("任务已取消", "task_id", snap.ID)
}

// Retry 以失败任务为模板重新提交一个新任务，返回新任务 ID；
// 原任务保持 Failed 终态，新任务经 Config["retry_of"] 关联血缘
func (q *Queue) Retry(failedID string) (string, error) {
	q.mu.Lock()
	orig, ok := q.failed[failedID]
	var snap *task.Task
	if ok {
		snap = orig.Clone()
	} else if q.exists(failedID) {
		q.mu.Unlock()
		return "", ErrNotFailed
	}
	q.mu.Unlock()
	if snap == nil {
		return "", ErrNotFound
	}

	config := snap.Config
	if config == nil {
		config = make(map[string]string, 1)
	}
	config["retry_of"] = failedID
	nt := task.New(snap.Type, snap.Priority, snap.Topic, config)
	if err := q.Submit(nt); err != nil {
		return "", err
	}
	q.logger.Info("失败任务已重新提交", "failed_id", failedID, "new_id", nt.ID)
	return nt.ID, nil
}

// exists 检查 ID 是否在任一登记表中；调用方需持有 q.mu
func (q *Queue) exists(id string) bool {
	if _, ok := q.pending[id]; ok {
		return true
	}
	if _, ok := q.active[id]; ok {
		return true
	}
	if _, ok := q.waiting[id]; ok {
		return true
	}
	if _, ok := q.completed[id]; ok {
		return true
	}
	if _, ok := q.cancelled[id]; ok {
		return true
	}
	return false
}

// GetStats 按需重算队列统计快照
func (q *Queue) GetStats() task.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := task.QueueStats{
		State:         q.state,
		Workers:       q.workers,
		ActiveWorkers: q.busy,
		Queued:        q.queued,
		LaneDepths:    make(map[string]int, 4),
		WaitingRetry:  len(q.waiting),
		Completed:     len(q.completed),
		Failed:        len(q.failed),
		Cancelled:     len(q.cancelled),
	}
	for _, p := range task.Priorities() {
		stats.LaneDepths[p.String()] = len(q.lanes[p])
	}
	for _, t := range q.active {
		if t.Status == task.StatusProcessing {
			stats.Processing++
		}
	}
	if n := len(q.durations); n > 0 {
		var sum time.Duration
		for _, d := range q.durations {
			sum += d
		}
		stats.AvgProcessing = sum / time.Duration(n)
	}
	return stats
}

// Cleanup 清理终态登记表中完成时间早于 olderThan 的任务，返回清理数量
func (q *Queue) Cleanup(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for _, m := range []map[string]*task.Task{q.completed, q.failed, q.cancelled} {
		for id, t := range m {
			if !t.CompletedAt.IsZero() && t.CompletedAt.Before(cutoff) {
				delete(m, id)
				removed++
			}
		}
	}
	return removed
}

// removeFromLane 从所属通道移除任务（线性扫描，队列容量有界）；调用方需持有 q.mu
func (q *Queue) removeFromLane(t *task.Task) {
	lane := q.lanes[t.Priority]
	for i, qt := range lane {
		if qt.ID == t.ID {
			q.lanes[t.Priority] = append(lane[:i], lane[i+1:]...)
			return
		}
	}
}

func (q *Queue) notify(snap *task.Task, delta *task.ProgressDelta) {
	if q.sink != nil {
		q.sink.UpdateStatus(snap, delta)
	}
}
