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

// transitionRing 固定容量的全局变更日志，写满后覆盖最旧条目。
// 非并发安全，由 Hub 持锁访问
type transitionRing struct {
	buf   []Transition
	head  int // 下一写入位置
	count int
}

func newTransitionRing(capacity int) *transitionRing {
	if capacity <= 0 {
		capacity = 1000
	}
	return &transitionRing{buf: make([]Transition, capacity)}
}

func (r *transitionRing) push(tr Transition) {
	r.buf[r.head] = tr
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// snapshot 返回最近的 limit 条，新条目在前；limit<=0 返回全部
func (r *transitionRing) snapshot(limit int) []Transition {
	n := r.count
	if limit > 0 && limit < n {
		n = limit
	}
	if n == 0 {
		return nil
	}
	out := make([]Transition, 0, n)
	// head-1 是最新条目，向回遍历
	for i := 0; i < n; i++ {
		idx := (r.head - 1 - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// purge 丢弃 cutoff 之前的条目，返回丢弃数量
func (r *transitionRing) purge(cutoff time.Time) int {
	if r.count == 0 {
		return 0
	}
	keep := make([]Transition, 0, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		tr := r.buf[(start+i)%len(r.buf)]
		if !tr.At.Before(cutoff) {
			keep = append(keep, tr)
		}
	}
	dropped := r.count - len(keep)
	if dropped == 0 {
		return 0
	}
	r.buf = make([]Transition, len(r.buf))
	copy(r.buf, keep)
	r.head = len(keep) % len(r.buf)
	r.count = len(keep)
	return dropped
}
