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
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"doc-platform/pkg/metrics"
)

const (
	defaultRedisChannel = "task_updates"
	publishTimeout      = 5 * time.Second
)

// redisPublisher 把通知 JSON 序列化后 PUBLISH 到固定频道，
// 供跨进程的订阅端（如独立的 WebSocket 网关）消费
type redisPublisher struct {
	client  *redis.Client
	channel string
}

// WithRedisPublisher 开启 Redis 发布通道；client 由调用方创建并负责关闭。
// channel 为空时使用 task_updates
func WithRedisPublisher(client *redis.Client, channel string, buffer int) Option {
	return func(h *Hub) {
		if client == nil {
			return
		}
		if channel == "" {
			channel = defaultRedisChannel
		}
		if buffer <= 0 {
			buffer = 256
		}
		h.pub = &redisPublisher{client: client, channel: channel}
		h.pubCh = make(chan Notification, buffer)
	}
}

// enqueuePublishLocked 投递到发布通道；满则丢弃并计数。调用方需持有 h.mu
func (h *Hub) enqueuePublishLocked(n Notification) {
	if h.pubCh == nil {
		return
	}
	select {
	case h.pubCh <- n:
	default:
		metrics.NotifyTotal.WithLabelValues("redis", "dropped").Inc()
	}
}

// drainPublish 顺序发布通知；单条失败只计数，不中断通道
func (h *Hub) drainPublish() {
	defer h.wg.Done()
	for n := range h.pubCh {
		payload, err := json.Marshal(n)
		if err != nil {
			metrics.NotifyTotal.WithLabelValues("redis", "failed").Inc()
			h.logger.Warn("通知序列化失败", "kind", n.Kind, "error", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err = h.pub.client.Publish(ctx, h.pub.channel, payload).Err()
		cancel()
		if err != nil {
			metrics.NotifyTotal.WithLabelValues("redis", "failed").Inc()
			h.logger.Warn("Redis 发布失败", "channel", h.pub.channel, "error", err)
			continue
		}
		metrics.NotifyTotal.WithLabelValues("redis", "ok").Inc()
	}
}
