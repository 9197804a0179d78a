package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"doc-platform/internal/faults"
	"doc-platform/internal/task"
	pkgerrors "doc-platform/pkg/errors"
	"doc-platform/pkg/log"
)

// captureSink 收集下发到 StatusHub 的快照，供断言状态序列
type captureSink struct {
	mu     sync.Mutex
	events []*task.Task
}

func (s *captureSink) UpdateStatus(snap *task.Task, delta *task.ProgressDelta) {
	s.mu.Lock()
	s.events = append(s.events, snap)
	s.mu.Unlock()
}

func (s *captureSink) statuses(id string) []task.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []task.Status
	for _, e := range s.events {
		if e.ID == id {
			out = append(out, e.Status)
		}
	}
	return out
}

func (s *captureSink) last(id string) *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].ID == id {
			return s.events[i]
		}
	}
	return nil
}

func (s *captureSink) retryDelays(id string) []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, e := range s.events {
		if e.ID == id && e.Status == task.StatusRetrying {
			out = append(out, e.Retry.NextDelay)
		}
	}
	return out
}

func newTestQueue(t *testing.T, cfg Config, sink StatusSink) (*Queue, *faults.Classifier) {
	t.Helper()
	if cfg.IdlePoll == 0 {
		cfg.IdlePoll = 10 * time.Millisecond
	}
	if cfg.TaskTimeout == 0 {
		cfg.TaskTimeout = 2 * time.Second
	}
	cls := faults.NewClassifier(faults.Config{}, log.Discard())
	q := New(cfg, cls, sink, log.Discard())
	t.Cleanup(func() { _ = q.Stop(2 * time.Second) })
	return q, cls
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("等待超时: %s", what)
}

func okProcessor(atomicCount *int32) Processor {
	return func(ctx context.Context, tk *task.Task) (*task.Result, error) {
		if atomicCount != nil {
			atomic.AddInt32(atomicCount, 1)
		}
		return &task.Result{Data: map[string]interface{}{"ok": true}}, nil
	}
}

func TestQueue_SubmitRejectsUnknownType(t *testing.T) {
	q, _ := newTestQueue(t, Config{Workers: 1, MaxQueueSize: 4}, nil)
	err := q.Submit(task.New(task.TypeOCR, task.PriorityNormal, "doc", nil))
	if !errors.Is(err, ErrNoProcessor) {
		t.Fatalf("expected ErrNoProcessor, got %v", err)
	}
}

func TestQueue_RegisterHandlerValidation(t *testing.T) {
	q, _ := newTestQueue(t, Config{}, nil)
	if err := q.RegisterHandler(task.TypeParsing, nil); !errors.Is(err, pkgerrors.ErrInvalidArg) {
		t.Fatalf("expected ErrInvalidArg, got %v", err)
	}
	if err := q.RegisterHandler("", okProcessor(nil)); !errors.Is(err, pkgerrors.ErrInvalidArg) {
		t.Fatalf("expected ErrInvalidArg, got %v", err)
	}
}

// 边界容量：第 11 次提交被拒绝，释放一个槽位后立即恢复
func TestQueue_BoundedSubmit(t *testing.T) {
	q, _ := newTestQueue(t, Config{Workers: 1, MaxQueueSize: 10}, nil)
	_ = q.RegisterHandler(task.TypeParsing, okProcessor(nil))

	var first string
	for i := 0; i < 10; i++ {
		tk := task.New(task.TypeParsing, task.PriorityNormal, "doc", nil)
		if i == 0 {
			first = tk.ID
		}
		if err := q.Submit(tk); err != nil {
			t.Fatalf("submit %d rejected: %v", i, err)
		}
	}
	if err := q.Submit(task.New(task.TypeParsing, task.PriorityNormal, "doc", nil)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if !q.Cancel(first) {
		t.Fatal("cancel queued task failed")
	}
	if err := q.Submit(task.New(task.TypeParsing, task.PriorityNormal, "doc", nil)); err != nil {
		t.Fatalf("submit after slot freed rejected: %v", err)
	}
}

// 严格优先级：Urgent 先于所有排队中的 Normal 被处理，同通道保持 FIFO
func TestQueue_StrictPriorityOrder(t *testing.T) {
	sink := &captureSink{}
	q, _ := newTestQueue(t, Config{Workers: 1, MaxQueueSize: 20}, sink)

	var mu sync.Mutex
	var order []string
	_ = q.RegisterHandler(task.TypeParsing, func(ctx context.Context, tk *task.Task) (*task.Result, error) {
		mu.Lock()
		order = append(order, tk.Config["n"])
		mu.Unlock()
		return nil, nil
	})

	if err := q.Pause(); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 5; i++ {
		tk := task.New(task.TypeParsing, task.PriorityNormal, "doc", map[string]string{"n": fmt.Sprintf("n%d", i)})
		if err := q.Submit(tk); err != nil {
			t.Fatal(err)
		}
	}
	urgent := task.New(task.TypeParsing, task.PriorityUrgent, "doc", map[string]string{"n": "u"})
	if err := q.Submit(urgent); err != nil {
		t.Fatal(err)
	}

	if err := q.Start(1); err != nil {
		t.Fatal(err)
	}
	if err := q.Resume(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 3*time.Second, "全部任务完成", func() bool {
		return q.GetStats().Completed == 6
	})

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "u" {
		t.Fatalf("urgent task not processed first: %v", order)
	}
	for i := 1; i <= 5; i++ {
		if order[i] != fmt.Sprintf("n%d", i) {
			t.Fatalf("normal lane lost FIFO order: %v", order)
		}
	}
}

// 限速类故障按指数退避重试，用尽次数后进入 Failed 终态
func TestQueue_RetryExponentialThenFail(t *testing.T) {
	sink := &captureSink{}
	q, cls := newTestQueue(t, Config{Workers: 1, MaxQueueSize: 4}, sink)
	cls.RegisterPatternBefore("network_timeout", &faults.Pattern{
		Name:       "flaky",
		Category:   faults.CategoryRateLimited,
		Strategy:   faults.StrategyExponential,
		MaxRetries: 2,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   40 * time.Millisecond,
		Codes:      []string{"flaky"},
	})

	var attempts int32
	_ = q.RegisterHandler(task.TypeEmbedding, func(ctx context.Context, tk *task.Task) (*task.Result, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, task.NewError("flaky", "provider throttled")
	})

	tk := task.New(task.TypeEmbedding, task.PriorityNormal, "doc", nil)
	if err := q.Submit(tk); err != nil {
		t.Fatal(err)
	}
	if err := q.Start(1); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 3*time.Second, "任务进入 Failed", func() bool {
		last := sink.last(tk.ID)
		return last != nil && last.Status == task.StatusFailed
	})

	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries), got %d", got)
	}

	want := []task.Status{
		task.StatusPending, task.StatusProcessing, task.StatusRetrying,
		task.StatusPending, task.StatusProcessing, task.StatusRetrying,
		task.StatusPending, task.StatusProcessing, task.StatusFailed,
	}
	got := sink.statuses(tk.ID)
	if len(got) != len(want) {
		t.Fatalf("status sequence = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("status[%d] = %s, want %s (full: %v)", i, got[i], want[i], got)
		}
	}

	delays := sink.retryDelays(tk.ID)
	if len(delays) != 2 || delays[0] != 10*time.Millisecond || delays[1] != 20*time.Millisecond {
		t.Fatalf("retry delays not exponential: %v", delays)
	}

	final := sink.last(tk.ID)
	if final.Retry.Count != 2 || final.Retry.Count > final.Retry.MaxRetries {
		t.Fatalf("retry bookkeeping wrong: %+v", final.Retry)
	}
	if final.Error == nil || final.Error.Code != "flaky" || final.Error.RetryCount != 2 {
		t.Fatalf("error record wrong: %+v", final.Error)
	}
}

// 取消排队中的任务：移出通道，后续 Worker 不会再取到
func TestQueue_CancelQueued(t *testing.T) {
	sink := &captureSink{}
	q, _ := newTestQueue(t, Config{Workers: 1, MaxQueueSize: 4}, sink)

	var processed sync.Map
	_ = q.RegisterHandler(task.TypeParsing, func(ctx context.Context, tk *task.Task) (*task.Result, error) {
		processed.Store(tk.ID, true)
		return nil, nil
	})

	if err := q.Pause(); err != nil {
		t.Fatal(err)
	}
	t1 := task.New(task.TypeParsing, task.PriorityNormal, "doc", nil)
	t2 := task.New(task.TypeParsing, task.PriorityNormal, "doc", nil)
	_ = q.Submit(t1)
	_ = q.Submit(t2)

	if !q.Cancel(t1.ID) {
		t.Fatal("cancel queued task failed")
	}
	if q.Cancel(t1.ID) {
		t.Fatal("cancel on terminal task should return false")
	}

	if err := q.Start(1); err != nil {
		t.Fatal(err)
	}
	if err := q.Resume(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, "剩余任务完成", func() bool {
		return q.GetStats().Completed == 1
	})

	if _, ok := processed.Load(t1.ID); ok {
		t.Fatal("cancelled task must never be dequeued")
	}
	if last := sink.last(t1.ID); last == nil || last.Status != task.StatusCancelled {
		t.Fatalf("cancelled task final status = %+v", last)
	}
	if got := q.GetStats(); got.Cancelled != 1 || got.Queued != 0 {
		t.Fatalf("stats after cancel: %+v", got)
	}
}

// 取消执行中的任务：协作式，仅标记；调用跑完后结果被丢弃
func TestQueue_CancelActiveDiscardsResult(t *testing.T) {
	sink := &captureSink{}
	q, _ := newTestQueue(t, Config{Workers: 1, MaxQueueSize: 4}, sink)

	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	_ = q.RegisterHandler(task.TypeAnalysis, func(ctx context.Context, tk *task.Task) (*task.Result, error) {
		started <- struct{}{}
		<-gate
		return &task.Result{Data: map[string]interface{}{"should": "be discarded"}}, nil
	})

	tk := task.New(task.TypeAnalysis, task.PriorityNormal, "doc", nil)
	_ = q.Submit(tk)
	if err := q.Start(1); err != nil {
		t.Fatal(err)
	}
	<-started

	if !q.Cancel(tk.ID) {
		t.Fatal("cancel active task failed")
	}
	close(gate)

	waitFor(t, 2*time.Second, "Worker 收尾", func() bool {
		s := q.GetStats()
		return s.Cancelled == 1 && s.ActiveWorkers == 0
	})

	got := sink.statuses(tk.ID)
	for _, st := range got {
		if st == task.StatusCompleted {
			t.Fatalf("discarded result must not surface as Completed: %v", got)
		}
	}
	if last := sink.last(tk.ID); last.Status != task.StatusCancelled || last.Result != nil {
		t.Fatalf("final snapshot = %+v", last)
	}
	if q.GetStats().Completed != 0 {
		t.Fatal("completed count must stay 0")
	}
}

func TestQueue_CancelMissing(t *testing.T) {
	q, _ := newTestQueue(t, Config{}, nil)
	if q.Cancel("no-such-task") {
		t.Fatal("cancel unknown id should return false")
	}
}

// Pause 只停止出队，不影响 Submit
func TestQueue_PauseResume(t *testing.T) {
	q, _ := newTestQueue(t, Config{Workers: 1, MaxQueueSize: 4}, nil)
	var count int32
	_ = q.RegisterHandler(task.TypeParsing, okProcessor(&count))
	if err := q.Start(1); err != nil {
		t.Fatal(err)
	}

	if err := q.Pause(); err != nil {
		t.Fatal(err)
	}
	if err := q.Submit(task.New(task.TypeParsing, task.PriorityNormal, "doc", nil)); err != nil {
		t.Fatalf("submit while paused rejected: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&count) != 0 {
		t.Fatal("paused queue must not dequeue")
	}

	if err := q.Resume(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, "恢复后任务完成", func() bool {
		return atomic.LoadInt32(&count) == 1
	})
}

// Stop 等待在途任务完成；停止后提交与再次启动均被拒绝
func TestQueue_StopDrainsInFlight(t *testing.T) {
	sink := &captureSink{}
	q, _ := newTestQueue(t, Config{Workers: 1, MaxQueueSize: 4}, sink)
	started := make(chan struct{}, 1)
	_ = q.RegisterHandler(task.TypeParsing, func(ctx context.Context, tk *task.Task) (*task.Result, error) {
		started <- struct{}{}
		time.Sleep(80 * time.Millisecond)
		return nil, nil
	})

	tk := task.New(task.TypeParsing, task.PriorityNormal, "doc", nil)
	_ = q.Submit(tk)
	if err := q.Start(1); err != nil {
		t.Fatal(err)
	}
	<-started

	if err := q.Stop(2 * time.Second); err != nil {
		t.Fatalf("graceful stop failed: %v", err)
	}
	if last := sink.last(tk.ID); last == nil || last.Status != task.StatusCompleted {
		t.Fatalf("in-flight task not drained: %+v", last)
	}
	if err := q.Submit(task.New(task.TypeParsing, task.PriorityNormal, "doc", nil)); !errors.Is(err, ErrQueueStopped) {
		t.Fatalf("expected ErrQueueStopped, got %v", err)
	}
	if err := q.Start(1); !errors.Is(err, ErrQueueStopped) {
		t.Fatalf("restart should be rejected, got %v", err)
	}
	if got := q.GetStats().State; got != task.RunStateStopped {
		t.Fatalf("state = %s", got)
	}
}

// 超过 Stop 超时后，在途任务的 context 被取消强制收尾；重试不再调度
func TestQueue_StopTimeoutForceCancels(t *testing.T) {
	sink := &captureSink{}
	q, _ := newTestQueue(t, Config{Workers: 1, MaxQueueSize: 4}, sink)
	started := make(chan struct{}, 1)
	_ = q.RegisterHandler(task.TypeParsing, func(ctx context.Context, tk *task.Task) (*task.Result, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	})

	tk := task.New(task.TypeParsing, task.PriorityNormal, "doc", nil)
	_ = q.Submit(tk)
	if err := q.Start(1); err != nil {
		t.Fatal(err)
	}
	<-started

	if err := q.Stop(50 * time.Millisecond); !errors.Is(err, ErrStopTimeout) {
		t.Fatalf("expected ErrStopTimeout, got %v", err)
	}
	last := sink.last(tk.ID)
	if last == nil || last.Status != task.StatusFailed {
		t.Fatalf("force-cancelled task should fail terminally, got %+v", last)
	}
}

// 同一任务同一时刻只被一个 Worker 持有
func TestQueue_SingleOwnership(t *testing.T) {
	q, _ := newTestQueue(t, Config{Workers: 4, MaxQueueSize: 40}, nil)

	var inFlight sync.Map
	var violations int32
	_ = q.RegisterHandler(task.TypeParsing, func(ctx context.Context, tk *task.Task) (*task.Result, error) {
		v, _ := inFlight.LoadOrStore(tk.ID, new(int32))
		if n := atomic.AddInt32(v.(*int32), 1); n != 1 {
			atomic.AddInt32(&violations, 1)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(v.(*int32), -1)
		return nil, nil
	})

	for i := 0; i < 20; i++ {
		_ = q.Submit(task.New(task.TypeParsing, task.PriorityNormal, "doc", nil))
	}
	if err := q.Start(4); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, "全部任务完成", func() bool {
		return q.GetStats().Completed == 20
	})
	if atomic.LoadInt32(&violations) != 0 {
		t.Fatalf("%d tasks held by more than one worker", violations)
	}
}

// Processor panic 被捕获：Worker 不退出，任务按系统故障调度重试
func TestQueue_PanicRecovered(t *testing.T) {
	sink := &captureSink{}
	q, _ := newTestQueue(t, Config{Workers: 1, MaxQueueSize: 4}, sink)

	var count int32
	_ = q.RegisterHandler(task.TypeAnalysis, func(ctx context.Context, tk *task.Task) (*task.Result, error) {
		if tk.Config["boom"] == "yes" {
			panic("processor exploded")
		}
		atomic.AddInt32(&count, 1)
		return nil, nil
	})

	bad := task.New(task.TypeAnalysis, task.PriorityNormal, "doc", map[string]string{"boom": "yes"})
	good := task.New(task.TypeAnalysis, task.PriorityNormal, "doc", nil)
	_ = q.Submit(bad)
	_ = q.Submit(good)
	if err := q.Start(1); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, "正常任务完成", func() bool {
		return atomic.LoadInt32(&count) == 1
	})
	waitFor(t, 2*time.Second, "panic 任务进入重试等待", func() bool {
		last := sink.last(bad.ID)
		return last != nil && last.Status == task.StatusRetrying
	})
	if last := sink.last(bad.ID); last.Error == nil || last.Error.Code != "panic" {
		t.Fatalf("panic error record = %+v", last.Error)
	}
}

// Retry 以失败任务为模板生成新任务并保留血缘
func TestQueue_RetryOperation(t *testing.T) {
	sink := &captureSink{}
	q, _ := newTestQueue(t, Config{Workers: 1, MaxQueueSize: 4}, sink)
	_ = q.RegisterHandler(task.TypeOCR, func(ctx context.Context, tk *task.Task) (*task.Result, error) {
		if tk.Config["retry_of"] != "" {
			return nil, nil
		}
		return nil, task.NewPermanentError("invalid_content", "识别不了")
	})

	tk := task.New(task.TypeOCR, task.PriorityHigh, "doc-7", map[string]string{"path": "a.png"})
	_ = q.Submit(tk)
	if err := q.Start(1); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, "初始任务失败", func() bool {
		last := sink.last(tk.ID)
		return last != nil && last.Status == task.StatusFailed
	})

	newID, err := q.Retry(tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if newID == tk.ID {
		t.Fatal("retry must assign a fresh task id")
	}
	waitFor(t, 2*time.Second, "重试任务完成", func() bool {
		last := sink.last(newID)
		return last != nil && last.Status == task.StatusCompleted
	})
	if last := sink.last(newID); last.Config["retry_of"] != tk.ID || last.Priority != task.PriorityHigh || last.Topic != "doc-7" {
		t.Fatalf("retried task lost template fields: %+v", last)
	}
	// 原任务保持 Failed 终态
	if last := sink.last(tk.ID); last.Status != task.StatusFailed {
		t.Fatalf("original task mutated: %+v", last)
	}

	if _, err := q.Retry("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := q.Retry(newID); !errors.Is(err, ErrNotFailed) {
		t.Fatalf("expected ErrNotFailed for completed task, got %v", err)
	}
}

// 进度回报经 context 回调流入状态快照
func TestQueue_ProgressReporting(t *testing.T) {
	sink := &captureSink{}
	q, _ := newTestQueue(t, Config{Workers: 1, MaxQueueSize: 4}, sink)
	_ = q.RegisterHandler(task.TypeParsing, func(ctx context.Context, tk *task.Task) (*task.Result, error) {
		task.ReportProgress(ctx, task.ProgressDelta{Step: 1, TotalSteps: 2, Operation: "解析文本"})
		task.ReportProgress(ctx, task.ProgressDelta{Step: 2, TotalSteps: 2, Operation: "写入切片"})
		return nil, nil
	})

	tk := task.New(task.TypeParsing, task.PriorityNormal, "doc", nil)
	_ = q.Submit(tk)
	if err := q.Start(1); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, "任务完成", func() bool {
		last := sink.last(tk.ID)
		return last != nil && last.Status == task.StatusCompleted
	})

	var sawHalf, sawFull bool
	sink.mu.Lock()
	for _, e := range sink.events {
		if e.ID != tk.ID {
			continue
		}
		if e.Progress.Percentage == 50 && e.Progress.Operation == "解析文本" {
			sawHalf = true
		}
		if e.Progress.Percentage == 100 {
			sawFull = true
		}
	}
	sink.mu.Unlock()
	if !sawHalf || !sawFull {
		t.Fatal("progress snapshots missing")
	}
}

func TestQueue_GetStats(t *testing.T) {
	q, _ := newTestQueue(t, Config{Workers: 2, MaxQueueSize: 10}, nil)
	_ = q.RegisterHandler(task.TypeParsing, func(ctx context.Context, tk *task.Task) (*task.Result, error) {
		if tk.Config["fail"] == "yes" {
			return nil, task.NewPermanentError("invalid_content", "坏文件")
		}
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	})

	for i := 0; i < 3; i++ {
		_ = q.Submit(task.New(task.TypeParsing, task.PriorityNormal, "doc", nil))
	}
	_ = q.Submit(task.New(task.TypeParsing, task.PriorityLow, "doc", map[string]string{"fail": "yes"}))
	if err := q.Start(2); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 3*time.Second, "全部任务收尾", func() bool {
		s := q.GetStats()
		return s.Completed == 3 && s.Failed == 1
	})

	s := q.GetStats()
	if s.Queued != 0 || s.Processing != 0 {
		t.Fatalf("queue not drained: %+v", s)
	}
	if s.AvgProcessing <= 0 {
		t.Fatal("rolling average missing")
	}
	if len(s.LaneDepths) != 4 {
		t.Fatalf("lane depths = %+v", s.LaneDepths)
	}
	if s.Workers != 2 || s.State != task.RunStateActive {
		t.Fatalf("stats = %+v", s)
	}
}

func TestQueue_CleanupTerminal(t *testing.T) {
	q, _ := newTestQueue(t, Config{Workers: 1, MaxQueueSize: 4}, nil)
	var count int32
	_ = q.RegisterHandler(task.TypeParsing, okProcessor(&count))
	_ = q.Submit(task.New(task.TypeParsing, task.PriorityNormal, "doc", nil))
	if err := q.Start(1); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, "任务完成", func() bool {
		return atomic.LoadInt32(&count) == 1
	})

	if removed := q.Cleanup(time.Hour); removed != 0 {
		t.Fatalf("fresh tasks must be retained, removed %d", removed)
	}
	waitFor(t, time.Second, "完成时间超过清理窗口", func() bool {
		return q.Cleanup(10*time.Millisecond) == 1
	})
	if got := q.GetStats().Completed; got != 0 {
		t.Fatalf("completed registry not purged: %d", got)
	}
}
