package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API/Worker 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		TaskDuration, TaskTotal, TaskRejectTotal,
		RetryTotal, ErrorTotal,
		QueueDepth, WorkerBusy,
		NotifyTotal, SubscriberCount,
		RateLimitWaitSeconds,
	)
}

// TaskDuration 任务执行耗时（秒）
var TaskDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "codoc_task_duration_seconds",
		Help:    "任务执行耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"type"},
)

// TaskTotal 任务终态总数（按类型与状态）
var TaskTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "codoc_task_total",
		Help: "任务终态总数（按类型与状态）",
	},
	[]string{"type", "status"}, // completed | failed | cancelled
)

// TaskRejectTotal 提交被拒绝总数（按原因）
var TaskRejectTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "codoc_task_reject_total",
		Help: "提交被拒绝总数（按原因）",
	},
	[]string{"reason"}, // queue_full | queue_stopped | no_processor
)

// RetryTotal 重试调度总数（按错误模式）
var RetryTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "codoc_retry_total",
		Help: "重试调度总数（按错误模式）",
	},
	[]string{"pattern"},
)

// ErrorTotal 已分类错误总数（按类别）
var ErrorTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "codoc_error_total",
		Help: "已分类错误总数（按类别）",
	},
	[]string{"category"},
)

// QueueDepth 各优先级队列当前深度
var QueueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "codoc_queue_depth",
		Help: "各优先级队列当前深度",
	},
	[]string{"lane"}, // urgent | high | normal | low
)

// WorkerBusy 当前正在执行任务的 Worker 标记（每 Worker 0/1）
var WorkerBusy = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "codoc_worker_busy",
		Help: "当前正在执行任务的 Worker",
	},
	[]string{"worker_id"},
)

// NotifyTotal 状态推送总数（按通道与结果）
var NotifyTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "codoc_notify_total",
		Help: "状态推送总数（按通道与结果）",
	},
	[]string{"channel", "result"}, // subscriber|persist|redis, ok|dropped|failed
)

// SubscriberCount 当前订阅者数量
var SubscriberCount = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "codoc_subscriber_count",
		Help: "当前订阅者数量",
	},
)

// RateLimitWaitSeconds 限流等待耗时（仅记录超过 100ms 的等待）
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "codoc_rate_limit_wait_seconds",
		Help:    "限流等待耗时（秒）",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{"scope", "provider"}, // embedding|http
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
