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

package app

import (
	"context"
	"fmt"
	"time"

	"doc-platform/internal/faults"
	"doc-platform/internal/model/embedding"
	"doc-platform/internal/pipeline/ingest"
	"doc-platform/internal/processor"
	"doc-platform/internal/splitter"
	"doc-platform/internal/statushub"
	"doc-platform/internal/storage/cache"
	"doc-platform/internal/storage/vector"
	"doc-platform/internal/taskqueue"
	"doc-platform/pkg/log"
)

// Platform 平台核心装配：错误分类器、状态中心、任务队列与五个内置处理器。
// api 与 worker 共用；Start 之前不产生任何后台 goroutine
type Platform struct {
	Queue      *taskqueue.Queue
	Hub        *statushub.Hub
	Classifier *faults.Classifier
	Embedder   embedding.Embedder
	Documents  DocumentService

	logger      *log.Logger
	stopTimeout time.Duration

	cleanupInterval time.Duration
	historyTTL      time.Duration
	cleanupStop     chan struct{}
	cleanupDone     chan struct{}
}

// NewPlatform 装配平台核心；依赖 Bootstrap 先就位
func NewPlatform(ctx context.Context, b *Bootstrap) (*Platform, error) {
	cfg := b.Config
	if cfg == nil {
		return nil, fmt.Errorf("缺少配置")
	}
	logger := b.Logger

	embedder, err := NewEmbedderFromConfig(ctx, cfg, b.Secrets, b.Cache)
	if err != nil {
		return nil, fmt.Errorf("初始化 Embedding failed: %w", err)
	}

	// 向量索引提前就位，首个 embedding 任务不必建索引
	collection := b.Collection()
	if err := vector.EnsureIndex(ctx, b.VectorStore, collection, embedder.Dimension(), "cosine"); err != nil {
		logger.Warn("创建向量索引失败（首次写入时重建）", "collection", collection, "error", err)
	}

	classifier := faults.NewClassifier(faults.Config{
		AlertTotalPerMinute:   cfg.Faults.AlertTotalPerMinute,
		AlertPatternPerMinute: cfg.Faults.AlertPatternPerMinute,
		StatsRetention:        parseDuration(cfg.Faults.StatsRetention, 24*time.Hour),
	}, logger)

	hubOpts := []statushub.Option{
		statushub.WithPersistence(&transitionRecorder{store: b.MetadataStore}, 256),
	}
	if cfg.StatusHub.Redis.Enable {
		if rs, ok := b.Cache.(*cache.RedisStore); ok {
			hubOpts = append(hubOpts,
				statushub.WithRedisPublisher(rs.Client(), cfg.StatusHub.Redis.Channel, cfg.StatusHub.Redis.Buffer))
			logger.Info("状态变更 Redis 发布已启用", "channel", cfg.StatusHub.Redis.Channel)
		} else {
			logger.Warn("状态变更 Redis 发布需要 storage.cache.type=redis，已跳过")
		}
	}
	hub := statushub.New(statushub.Config{
		BroadcastInterval: parseDuration(cfg.StatusHub.BroadcastInterval, 5*time.Second),
		GlobalLogCapacity: cfg.StatusHub.GlobalLogCapacity,
		SubscriberBuffer:  cfg.StatusHub.SubscriberBuffer,
	}, logger, hubOpts...)

	// 队列的状态下发经 documentStateSink：转发给 Hub，并在核心任务
	// 终态失败时把文档标记为 failed
	sink := &documentStateSink{hub: hub, meta: b.MetadataStore, logger: logger}
	queue := taskqueue.New(taskqueue.Config{
		Workers:      cfg.Queue.Workers,
		MaxQueueSize: cfg.Queue.MaxQueueSize,
		TaskTimeout:  parseDuration(cfg.Queue.TaskTimeout, 0),
		IdlePoll:     parseDuration(cfg.Queue.IdlePoll, 0),
	}, classifier, sink, logger)

	deps := processor.Deps{
		Logger:     logger,
		Objects:    b.ObjectStore,
		Metadata:   b.MetadataStore,
		Vectors:    b.VectorStore,
		Embedder:   embedder,
		Splitter:   splitter.NewEngine(embedder),
		Parser:     ingest.NewDocumentParser(),
		Collection: collection,
	}
	for typ, p := range processor.All(deps) {
		if err := queue.RegisterHandler(typ, p); err != nil {
			return nil, fmt.Errorf("注册处理器 %s failed: %w", typ, err)
		}
	}

	hub.BindSource(queue)

	return &Platform{
		Queue:      queue,
		Hub:        hub,
		Classifier: classifier,
		Embedder:   embedder,
		Documents:  NewDocumentService(b.MetadataStore, b.ObjectStore, b.VectorStore, collection, logger),

		logger:          logger,
		stopTimeout:     parseDuration(cfg.Queue.StopTimeout, 30*time.Second),
		cleanupInterval: parseDuration(cfg.StatusHub.CleanupInterval, 0),
		historyTTL:      parseDuration(cfg.StatusHub.HistoryTTL, 24*time.Hour),
	}, nil
}

// Start 启动 Worker 池、统计广播与可选的历史清理循环
func (p *Platform) Start() error {
	if err := p.Queue.Start(0); err != nil {
		return err
	}
	p.Hub.StartBroadcaster()
	if p.cleanupInterval > 0 {
		p.cleanupStop = make(chan struct{})
		p.cleanupDone = make(chan struct{})
		go p.cleanupLoop()
	}
	return nil
}

// Stop 优雅停止：先停队列（等待在途任务），再停状态中心
func (p *Platform) Stop() error {
	if p.cleanupStop != nil {
		close(p.cleanupStop)
		<-p.cleanupDone
	}
	err := p.Queue.Stop(p.stopTimeout)
	p.Hub.Stop()
	return err
}

// cleanupLoop 按 cleanup_interval 周期清除超过 history_ttl 的终态任务记录
func (p *Platform) cleanupLoop() {
	defer close(p.cleanupDone)
	ticker := time.NewTicker(p.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			removedQ := p.Queue.Cleanup(p.historyTTL)
			removedH := p.Hub.Cleanup(p.historyTTL)
			if removedQ > 0 || removedH > 0 {
				p.logger.Info("历史任务已清理", "queue", removedQ, "hub", removedH)
			}
		case <-p.cleanupStop:
			return
		}
	}
}

// parseDuration 解析时长字符串，无效或空时返回 defaultVal
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
