package faults

import (
	"sort"
	"sync"
	"time"
)

// MinuteStats 单分钟错误统计快照
type MinuteStats struct {
	Minute     time.Time
	Total      int
	ByPattern  map[string]int
	ByCategory map[string]int
	ByType     map[string]int
}

// minuteLog 分钟粒度错误计数；写入时在分钟翻转处惰性清理过期桶
type minuteLog struct {
	mu        sync.Mutex
	retention time.Duration
	buckets   map[int64]*minuteBucket
	lastKey   int64
}

type minuteBucket struct {
	total      int
	byPattern  map[string]int
	byCategory map[string]int
	byType     map[string]int
}

func newMinuteLog(retention time.Duration) *minuteLog {
	return &minuteLog{
		retention: retention,
		buckets:   make(map[int64]*minuteBucket),
	}
}

// record 记录一次错误，返回当前分钟的错误总数与该模式的计数（供告警检查）
func (l *minuteLog) record(now time.Time, pattern, category, taskType string) (int, int) {
	key := now.Unix() / 60

	l.mu.Lock()
	defer l.mu.Unlock()

	if key != l.lastKey {
		l.prune(now)
		l.lastKey = key
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &minuteBucket{
			byPattern:  make(map[string]int),
			byCategory: make(map[string]int),
			byType:     make(map[string]int),
		}
		l.buckets[key] = b
	}
	b.total++
	b.byPattern[pattern]++
	b.byCategory[category]++
	b.byType[taskType]++
	return b.total, b.byPattern[pattern]
}

// prune 删除超过保留时长的桶；调用方需持有 l.mu
func (l *minuteLog) prune(now time.Time) {
	cutoff := now.Add(-l.retention).Unix() / 60
	for k := range l.buckets {
		if k < cutoff {
			delete(l.buckets, k)
		}
	}
}

// snapshot 返回 since 之后的分钟统计，按时间升序
func (l *minuteLog) snapshot(since time.Time) []MinuteStats {
	sinceKey := since.Unix() / 60

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]MinuteStats, 0, len(l.buckets))
	for k, b := range l.buckets {
		if k < sinceKey {
			continue
		}
		s := MinuteStats{
			Minute:     time.Unix(k*60, 0),
			Total:      b.total,
			ByPattern:  make(map[string]int, len(b.byPattern)),
			ByCategory: make(map[string]int, len(b.byCategory)),
			ByType:     make(map[string]int, len(b.byType)),
		}
		for name, n := range b.byPattern {
			s.ByPattern[name] = n
		}
		for name, n := range b.byCategory {
			s.ByCategory[name] = n
		}
		for name, n := range b.byType {
			s.ByType[name] = n
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Minute.Before(out[j].Minute) })
	return out
}
