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

package statushub

import (
	"context"
	"errors"
	"sync"
	"time"

	"doc-platform/internal/task"
	"doc-platform/pkg/log"
	"doc-platform/pkg/metrics"
	"doc-platform/pkg/utils"
)

// 通知类型
const (
	KindTaskUpdate = "task_update" // 单任务状态/进度变更
	KindQueueStats = "queue_stats" // 周期广播的队列统计
)

var (
	ErrBadSubscription = errors.New("订阅参数不完整")
	ErrHubStopped      = errors.New("状态中心已停止")
)

// Transition 一次状态变更记录；任务历史与全局日志的条目
type Transition struct {
	TaskID   string              `json:"task_id"`
	Topic    string              `json:"topic,omitempty"`
	Previous task.Status         `json:"previous"`
	Status   task.Status         `json:"status"`
	Delta    *task.ProgressDelta `json:"delta,omitempty"`
	At       time.Time           `json:"at"`
}

// Notification 推送给订阅方的结构化消息；task_update 携带 Task 快照与
// Transition，queue_stats 携带 Stats
type Notification struct {
	Kind       string           `json:"kind"`
	Topic      string           `json:"topic,omitempty"`
	Task       *task.Task       `json:"task,omitempty"`
	Transition *Transition      `json:"transition,omitempty"`
	Stats      *task.QueueStats `json:"stats,omitempty"`
	At         time.Time        `json:"at"`
}

// PushHandle 推送句柄，对 WebSocket/SSE 等传输的最小抽象。
// Send 返回错误即视为连接死亡，订阅会在下一次推送失败时被摘除
type PushHandle interface {
	Send(n Notification) error
}

// PersistenceHook 持久化通道：按产生顺序接收与推送通道相同的变更记录。
// 失败只记日志与计数，不影响推送
type PersistenceHook interface {
	SaveTransition(ctx context.Context, rec Transition) error
}

// StatsSource 队列统计来源（由 taskqueue.Queue 实现）
type StatsSource interface {
	GetStats() task.QueueStats
}

// Summary 主题或全局的聚合视图
type Summary struct {
	Queue        task.QueueStats `json:"queue"`
	StatusCounts map[string]int  `json:"status_counts"`
	// RecentTypes 最近一小时有变更的任务数（按类型）
	RecentTypes map[string]int `json:"recent_types"`
	LastUpdated time.Time      `json:"last_updated"`
}

// recentWindow Summary 中 RecentTypes 的统计窗口
const recentWindow = time.Hour

// Config 状态中心配置
type Config struct {
	BroadcastInterval time.Duration // 队列统计广播间隔，<=0 取 5s
	GlobalLogCapacity int           // 全局环形日志容量，<=0 取 1000
	SubscriberBuffer  int           // 单个订阅的推送缓冲，<=0 取 16
}

func (c *Config) setDefaults() {
	c.BroadcastInterval = utils.DefaultDuration(c.BroadcastInterval, 5*time.Second)
	c.GlobalLogCapacity = utils.DefaultInt(c.GlobalLogCapacity, 1000)
	c.SubscriberBuffer = utils.DefaultInt(c.SubscriberBuffer, 16)
}

// taskRecord 单任务在 Hub 侧的登记：最新快照 + 有序历史
type taskRecord struct {
	snap    *task.Task
	history []Transition
	lastAt  time.Time
}

// subscription 一个 (topic, client) 订阅；mailbox 由独立 goroutine 消费，
// 推送路径上从不阻塞 Hub 锁
type subscription struct {
	topic   string
	client  string
	handle  PushHandle
	mailbox chan Notification
}

// Hub 状态中心：记录每次状态变更、维护任务历史与全局日志，并把通知
// 扇出到订阅者、持久化通道与 Redis 发布通道。实现 taskqueue.StatusSink
type Hub struct {
	cfg    Config
	logger *log.Logger

	mu      sync.Mutex
	tasks   map[string]*taskRecord
	byTopic map[string][]string // topic → 提交顺序的任务 ID 列表
	ring    *transitionRing
	subs    map[string]map[string]*subscription
	source  StatsSource
	stopped bool

	persist PersistenceHook
	perCh   chan Transition
	pub     *redisPublisher
	pubCh   chan Notification

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option Hub 的可选通道配置
type Option func(*Hub)

// WithPersistence 开启持久化通道
func WithPersistence(hook PersistenceHook, buffer int) Option {
	return func(h *Hub) {
		if hook == nil {
			return
		}
		if buffer <= 0 {
			buffer = 256
		}
		h.persist = hook
		h.perCh = make(chan Transition, buffer)
	}
}

// New 创建 Hub；opts 按需开启持久化与 Redis 发布通道
func New(cfg Config, logger *log.Logger, opts ...Option) *Hub {
	cfg.setDefaults()
	if logger == nil {
		logger = log.Discard()
	}
	h := &Hub{
		cfg:     cfg,
		logger:  logger,
		tasks:   make(map[string]*taskRecord),
		byTopic: make(map[string][]string),
		ring:    newTransitionRing(cfg.GlobalLogCapacity),
		subs:    make(map[string]map[string]*subscription),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.perCh != nil {
		h.wg.Add(1)
		go h.drainPersist()
	}
	if h.pubCh != nil {
		h.wg.Add(1)
		go h.drainPublish()
	}
	return h
}

// BindSource 关联队列统计来源；需在 StartBroadcaster 与 GetSummary 之前调用
func (h *Hub) BindSource(source StatsSource) {
	h.mu.Lock()
	h.source = source
	h.mu.Unlock()
}

// UpdateStatus 记录一次状态变更并扇出通知。快照所有权随调用转移给 Hub。
// 已处于终态的任务到达的迟到更新（取消与完成竞态）直接丢弃，保证历史
// 只追加且终态之后不再变化
func (h *Hub) UpdateStatus(snap *task.Task, delta *task.ProgressDelta) {
	if snap == nil || snap.ID == "" {
		return
	}
	now := time.Now()

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	rec, ok := h.tasks[snap.ID]
	var prev task.Status
	if !ok {
		rec = &taskRecord{}
		h.tasks[snap.ID] = rec
		h.byTopic[snap.Topic] = append(h.byTopic[snap.Topic], snap.ID)
		// 首条记录没有前态，previous 即当前状态（入队即 Pending→Pending）
		prev = snap.Status
	} else {
		if rec.snap.Status.Terminal() {
			h.mu.Unlock()
			return
		}
		prev = rec.snap.Status
	}
	rec.snap = snap
	rec.lastAt = now
	tr := Transition{
		TaskID:   snap.ID,
		Topic:    snap.Topic,
		Previous: prev,
		Status:   snap.Status,
		Delta:    delta,
		At:       now,
	}
	rec.history = append(rec.history, tr)
	h.ring.push(tr)

	n := Notification{
		Kind:       KindTaskUpdate,
		Topic:      snap.Topic,
		Task:       snap,
		Transition: &tr,
		At:         now,
	}
	h.dispatchLocked(snap.Topic, n)
	h.enqueuePersistLocked(tr)
	h.enqueuePublishLocked(n)
	h.mu.Unlock()
}

// Subscribe 注册推送句柄；同一 (topic, client) 重复订阅时替换旧句柄
func (h *Hub) Subscribe(topic, client string, handle PushHandle) error {
	if topic == "" || client == "" || handle == nil {
		return ErrBadSubscription
	}
	sub := &subscription{
		topic:   topic,
		client:  client,
		handle:  handle,
		mailbox: make(chan Notification, h.cfg.SubscriberBuffer),
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return ErrHubStopped
	}
	clients, ok := h.subs[topic]
	if !ok {
		clients = make(map[string]*subscription)
		h.subs[topic] = clients
	}
	if old, ok := clients[client]; ok {
		close(old.mailbox)
		metrics.SubscriberCount.Dec()
	}
	clients[client] = sub
	h.mu.Unlock()

	h.wg.Add(1)
	go h.drainSubscription(sub)
	metrics.SubscriberCount.Inc()
	h.logger.Debug("订阅建立", "topic", topic, "client", client)
	return nil
}

// Unsubscribe 移除订阅；不存在时为 no-op
func (h *Hub) Unsubscribe(topic, client string) {
	h.mu.Lock()
	removed := h.removeLocked(topic, client)
	h.mu.Unlock()
	if removed {
		h.logger.Debug("订阅移除", "topic", topic, "client", client)
	}
}

// Subscribers 当前订阅总数
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, clients := range h.subs {
		total += len(clients)
	}
	return total
}

// GetTaskDetails 返回任务快照与完整变更历史；未知任务返回 false
func (h *Hub) GetTaskDetails(id string) (*task.Task, []Transition, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.tasks[id]
	if !ok {
		return nil, nil, false
	}
	history := make([]Transition, len(rec.history))
	copy(history, rec.history)
	return rec.snap.Clone(), history, true
}

// GetTopicTasks 返回主题下的任务快照，新任务在前；filter 非 nil 时按状态过滤，
// limit<=0 表示不限制
func (h *Hub) GetTopicTasks(topic string, filter *task.Status, limit int) []*task.Task {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := h.byTopic[topic]
	var out []*task.Task
	for i := len(ids) - 1; i >= 0; i-- {
		rec, ok := h.tasks[ids[i]]
		if !ok {
			continue
		}
		if filter != nil && rec.snap.Status != *filter {
			continue
		}
		out = append(out, rec.snap.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// GetSummary 主题聚合视图；topic 为空时统计全部任务。
// 队列统计从 StatsSource 现取，未绑定时为零值
func (h *Hub) GetSummary(topic string) Summary {
	h.mu.Lock()
	source := h.source
	h.mu.Unlock()

	var queue task.QueueStats
	if source != nil {
		// 不持 Hub 锁拉取队列统计，避免与队列的通知路径相互等待
		queue = source.GetStats()
	}

	cutoff := time.Now().Add(-recentWindow)
	out := Summary{
		Queue:        queue,
		StatusCounts: make(map[string]int),
		RecentTypes:  make(map[string]int),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, rec := range h.tasks {
		if topic != "" && rec.snap.Topic != topic {
			continue
		}
		out.StatusCounts[rec.snap.Status.String()]++
		if rec.lastAt.After(cutoff) {
			out.RecentTypes[rec.snap.Type.String()]++
		}
		if rec.lastAt.After(out.LastUpdated) {
			out.LastUpdated = rec.lastAt
		}
	}
	return out
}

// Recent 全局日志中最近的 limit 条变更，新条目在前；limit<=0 返回全部
func (h *Hub) Recent(limit int) []Transition {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ring.snapshot(limit)
}

// Cleanup 清理 olderThan 之前的历史：终态且无后续变更的任务整条移除，
// 全局日志同步裁剪。返回移除的任务数
func (h *Hub) Cleanup(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for id, rec := range h.tasks {
		if rec.snap.Status.Terminal() && rec.lastAt.Before(cutoff) {
			delete(h.tasks, id)
			h.dropTopicIndexLocked(rec.snap.Topic, id)
			removed++
		}
	}
	h.ring.purge(cutoff)
	return removed
}

// Stop 停止后台 goroutine 并关闭全部订阅；幂等
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	close(h.stopCh)
	for _, clients := range h.subs {
		for _, sub := range clients {
			close(sub.mailbox)
			metrics.SubscriberCount.Dec()
		}
	}
	h.subs = make(map[string]map[string]*subscription)
	if h.perCh != nil {
		close(h.perCh)
	}
	if h.pubCh != nil {
		close(h.pubCh)
	}
	h.mu.Unlock()

	h.wg.Wait()
	h.logger.Info("状态中心已停止")
}

// dispatchLocked 向主题订阅者投递；邮箱已满说明消费过慢，与死连接同样摘除。
// 调用方需持有 h.mu
func (h *Hub) dispatchLocked(topic string, n Notification) {
	clients := h.subs[topic]
	if len(clients) == 0 {
		return
	}
	for client, sub := range clients {
		select {
		case sub.mailbox <- n:
		default:
			h.removeLocked(topic, client)
			metrics.NotifyTotal.WithLabelValues("subscriber", "dropped").Inc()
			h.logger.Warn("订阅消费过慢，已摘除", "topic", topic, "client", client)
		}
	}
}

// broadcastLocked 向全部订阅者投递（队列统计广播用）；调用方需持有 h.mu
func (h *Hub) broadcastLocked(n Notification) {
	for topic := range h.subs {
		h.dispatchLocked(topic, n)
	}
}

// removeLocked 摘除订阅并关闭其邮箱；调用方需持有 h.mu
func (h *Hub) removeLocked(topic, client string) bool {
	clients, ok := h.subs[topic]
	if !ok {
		return false
	}
	sub, ok := clients[client]
	if !ok {
		return false
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.subs, topic)
	}
	close(sub.mailbox)
	metrics.SubscriberCount.Dec()
	return true
}

// drainSubscription 顺序消费邮箱并调用 Send；Send 失败即摘除该订阅
func (h *Hub) drainSubscription(sub *subscription) {
	defer h.wg.Done()
	for n := range sub.mailbox {
		if err := sub.handle.Send(n); err != nil {
			metrics.NotifyTotal.WithLabelValues("subscriber", "failed").Inc()
			h.logger.Warn("推送失败，摘除订阅", "topic", sub.topic, "client", sub.client, "error", err)
			h.mu.Lock()
			// 可能已被慢消费摘除；只在仍登记时关闭
			if cur, ok := h.subs[sub.topic][sub.client]; ok && cur == sub {
				h.removeLocked(sub.topic, sub.client)
			}
			h.mu.Unlock()
			for range sub.mailbox {
			}
			return
		}
		metrics.NotifyTotal.WithLabelValues("subscriber", "ok").Inc()
	}
}

// enqueuePersistLocked 投递到持久化通道；满则丢弃并计数。调用方需持有 h.mu
func (h *Hub) enqueuePersistLocked(tr Transition) {
	if h.perCh == nil {
		return
	}
	select {
	case h.perCh <- tr:
	default:
		metrics.NotifyTotal.WithLabelValues("persist", "dropped").Inc()
	}
}

// drainPersist 顺序写持久化通道，失败不影响其它通道
func (h *Hub) drainPersist() {
	defer h.wg.Done()
	for tr := range h.perCh {
		if err := h.persist.SaveTransition(context.Background(), tr); err != nil {
			metrics.NotifyTotal.WithLabelValues("persist", "failed").Inc()
			h.logger.Warn("状态变更持久化失败", "task_id", tr.TaskID, "error", err)
			continue
		}
		metrics.NotifyTotal.WithLabelValues("persist", "ok").Inc()
	}
}

// dropTopicIndexLocked 从主题索引移除任务 ID；调用方需持有 h.mu
func (h *Hub) dropTopicIndexLocked(topic, id string) {
	ids := h.byTopic[topic]
	for i, v := range ids {
		if v == id {
			h.byTopic[topic] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(h.byTopic[topic]) == 0 {
		delete(h.byTopic, topic)
	}
}
