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

import "time"

// StartBroadcaster 周期性拉取队列统计并广播给全部订阅者，让空闲连接也有
// 心跳与实时队列深度。与单任务事件相互独立，双方都是幂等通知，不保证
// 先后顺序。需先 BindSource；Stop 时随 Hub 一起退出
func (h *Hub) StartBroadcaster() {
	h.mu.Lock()
	if h.stopped || h.source == nil {
		h.mu.Unlock()
		h.logger.Warn("统计广播未启动：Hub 已停止或未绑定队列")
		return
	}
	source := h.source
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.cfg.BroadcastInterval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stopCh:
				return
			case <-ticker.C:
				// 先取统计再入锁，避免与队列通知路径互相等待
				stats := source.GetStats()
				n := Notification{Kind: KindQueueStats, Stats: &stats, At: time.Now()}
				h.mu.Lock()
				if h.stopped {
					h.mu.Unlock()
					return
				}
				h.broadcastLocked(n)
				h.enqueuePublishLocked(n)
				h.mu.Unlock()
			}
		}
	}()
	h.logger.Info("统计广播已启动", "interval", h.cfg.BroadcastInterval)
}
