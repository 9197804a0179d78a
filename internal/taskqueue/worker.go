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
	"fmt"
	"strconv"
	"time"

	"doc-platform/internal/task"
	"doc-platform/pkg/metrics"
	"doc-platform/pkg/tracing"
)

// worker Worker 主循环：取最高优先级任务执行；队列空或 Paused 时空转等待。
// 处理失败永远不会让循环退出
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	wid := strconv.Itoa(id)
	for {
		select {
		case <-q.stopCh:
			return
		default:
		}
		t := q.dequeue()
		if t == nil {
			select {
			case <-q.stopCh:
				return
			case <-time.After(q.cfg.IdlePoll):
			}
			continue
		}
		q.execute(t, wid)
	}
}

// dequeue 严格按 Urgent→Low 扫描，取首个非空通道的队首；
// 仅 Active 状态出队，Paused/Draining 返回 nil
func (q *Queue) dequeue() *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state != task.RunStateActive {
		return nil
	}
	for _, p := range task.Priorities() {
		lane := q.lanes[p]
		if len(lane) == 0 {
			continue
		}
		t := lane[0]
		q.lanes[p] = lane[1:]
		delete(q.pending, t.ID)
		q.queued--
		t.Status = task.StatusProcessing
		t.StartedAt = time.Now()
		q.active[t.ID] = t
		q.busy++
		metrics.QueueDepth.WithLabelValues(p.String()).Set(float64(len(q.lanes[p])))
		return t
	}
	return nil
}

// execute 执行单个任务：挂进度回调、带超时调用 Processor，按结果走完成或失败路径
func (q *Queue) execute(t *task.Task, workerID string) {
	metrics.WorkerBusy.WithLabelValues(workerID).Set(1)
	defer metrics.WorkerBusy.WithLabelValues(workerID).Set(0)

	q.notify(q.snapshot(t), nil)

	q.mu.Lock()
	proc := q.processors[t.Type]
	base := q.baseCtx
	q.mu.Unlock()
	if base == nil {
		base = context.Background()
	}
	if proc == nil {
		q.finishFailure(base, t, task.NewPermanentError("configuration", "任务类型未注册 Processor"))
		return
	}

	ctx, cancel := context.WithTimeout(base, q.cfg.TaskTimeout)
	defer cancel()
	ctx, span := tracing.StartTaskSpan(ctx, t.ID, t.Type.String())
	defer span.End()
	ctx = task.WithProgressSink(ctx, func(d task.ProgressDelta) {
		q.applyProgress(t.ID, d)
	})

	start := time.Now()
	res, err := q.invoke(ctx, proc, t)
	dur := time.Since(start)

	if err != nil {
		span.RecordError(err)
		q.finishFailure(ctx, t, err)
		return
	}
	q.finishSuccess(t, res, dur)
}

type outcome struct {
	res *task.Result
	err error
}

// invoke 在独立 goroutine 中运行 Processor 并与超时竞争；panic 被捕获转为错误。
// 超时后调用不被打断（协作式），在后台跑完但结果被丢弃
func (q *Queue) invoke(ctx context.Context, proc Processor, t *task.Task) (*task.Result, error) {
	ch := make(chan outcome, 1)
	snap := q.snapshot(t)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: task.NewError("panic", fmt.Sprintf("processor panic: %v", r))}
			}
		}()
		res, err := proc(ctx, snap)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case out := <-ch:
		return out.res, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, task.NewError("shutdown", "队列停止，任务被强制结束")
		}
		return nil, task.NewError("timeout", fmt.Sprintf("任务执行超过 %s", q.cfg.TaskTimeout))
	}
}

// applyProgress Processor 进度回报：更新在途任务的实时进度并通知 StatusHub
func (q *Queue) applyProgress(id string, d task.ProgressDelta) {
	q.mu.Lock()
	t, ok := q.active[id]
	if !ok || t.Status != task.StatusProcessing {
		q.mu.Unlock()
		return
	}
	t.Progress.Apply(d)
	snap := t.Clone()
	q.mu.Unlock()
	q.notify(snap, &d)
}

// finishSuccess 完成路径；执行期间被取消的任务保持 Cancelled，结果丢弃
func (q *Queue) finishSuccess(t *task.Task, res *task.Result, dur time.Duration) {
	q.mu.Lock()
	if t.Status == task.StatusCancelled {
		delete(q.active, t.ID)
		q.busy--
		q.cancelled[t.ID] = t
		q.mu.Unlock()
		q.logger.Debug("任务跑完但已被取消，结果丢弃", "task_id", t.ID)
		return
	}
	t.Status = task.StatusCompleted
	t.CompletedAt = time.Now()
	if res == nil {
		res = &task.Result{}
	}
	res.Success = true
	t.Result = res
	delete(q.active, t.ID)
	q.completed[t.ID] = t
	q.busy--
	q.durations = append(q.durations, dur)
	if len(q.durations) > rollingWindow {
		q.durations = q.durations[1:]
	}
	snap := t.Clone()
	q.mu.Unlock()

	metrics.TaskDuration.WithLabelValues(snap.Type.String()).Observe(dur.Seconds())
	metrics.TaskTotal.WithLabelValues(snap.Type.String(), "completed").Inc()
	q.notify(snap, nil)
	q.logger.Info("任务完成", "task_id", snap.ID, "type", snap.Type, "duration", dur)
}

// finishFailure 失败路径：分类 → 重试决策 → Retrying（定时重入）或 Failed 终态。
// Draining/Stopped 期间不再调度重试
func (q *Queue) finishFailure(ctx context.Context, t *task.Task, procErr error) {
	rec := errorRecord(procErr)
	pattern := q.classifier.Classify(t.Type, procErr)

	q.mu.Lock()
	if t.Status == task.StatusCancelled {
		delete(q.active, t.ID)
		q.busy--
		q.cancelled[t.ID] = t
		q.mu.Unlock()
		q.logger.Debug("任务失败但已被取消", "task_id", t.ID)
		return
	}

	retry := q.classifier.ShouldRetry(t, rec, pattern) &&
		q.state != task.RunStateDraining && q.state != task.RunStateStopped

	if retry {
		t.Retry.Count++
		t.Retry.MaxRetries = pattern.MaxRetries
		delay := q.classifier.ComputeDelay(pattern, t.Retry.Count)
		t.Retry.NextDelay = delay
		rec.RetryCount = t.Retry.Count
		t.Error = rec
		t.Status = task.StatusRetrying
		delete(q.active, t.ID)
		q.busy--
		w := &retryWait{t: t}
		_, w.span = tracing.StartRetrySpan(ctx, t.ID, t.Retry.Count, pattern.Name)
		// 定时器回调自行取锁，等待期间不持有任何锁
		w.timer = time.AfterFunc(delay, func() { q.requeue(t.ID) })
		q.waiting[t.ID] = w
		snap := t.Clone()
		q.mu.Unlock()

		metrics.RetryTotal.WithLabelValues(pattern.Name).Inc()
		q.notify(snap, nil)
		q.logger.Warn("任务失败，已调度重试",
			"task_id", snap.ID,
			"pattern", pattern.Name,
			"attempt", snap.Retry.Count,
			"delay", snap.Retry.NextDelay,
			"error", procErr.Error(),
		)
		return
	}

	rec.RetryCount = t.Retry.Count
	t.Error = rec
	t.Status = task.StatusFailed
	t.CompletedAt = time.Now()
	delete(q.active, t.ID)
	q.busy--
	q.failed[t.ID] = t
	snap := t.Clone()
	q.mu.Unlock()

	metrics.TaskTotal.WithLabelValues(snap.Type.String(), "failed").Inc()
	q.notify(snap, nil)
	q.logger.Error("任务失败",
		"task_id", snap.ID,
		"type", snap.Type,
		"pattern", pattern.Name,
		"retries", snap.Retry.Count,
		"error", procErr.Error(),
	)
}

// requeue 重试延迟到期，把任务送回原通道尾部；
// 队列已进入 Draining/Stopped 时直接丢弃，不复活重试任务
func (q *Queue) requeue(id string) {
	q.mu.Lock()
	w, ok := q.waiting[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	delete(q.waiting, id)
	if q.state == task.RunStateDraining || q.state == task.RunStateStopped {
		q.mu.Unlock()
		w.span.End()
		q.logger.Debug("队列停止，丢弃待重试任务", "task_id", id)
		return
	}
	t := w.t
	t.Status = task.StatusPending
	q.lanes[t.Priority] = append(q.lanes[t.Priority], t)
	q.pending[id] = t
	q.queued++
	metrics.QueueDepth.WithLabelValues(t.Priority.String()).Set(float64(len(q.lanes[t.Priority])))
	snap := t.Clone()
	q.mu.Unlock()
	w.span.End()
	q.notify(snap, nil)
}

// snapshot 在锁内克隆任务，供跨 goroutine 只读共享
func (q *Queue) snapshot(t *task.Task) *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return t.Clone()
}

// errorRecord 把任意错误规整为任务错误记录；保留 Processor 自带的错误码
func errorRecord(err error) *task.Error {
	var te *task.Error
	if errors.As(err, &te) {
		return te.Clone()
	}
	return task.NewError("processor_error", err.Error())
}
