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

package faults

import (
	"context"
	"io/fs"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"doc-platform/internal/pipeline/common"
	"doc-platform/internal/task"
	"doc-platform/pkg/log"
	"doc-platform/pkg/metrics"
	"doc-platform/pkg/utils"
)

// Config 分类器配置：告警阈值与分钟级统计保留时长
type Config struct {
	AlertTotalPerMinute   int           // 单分钟错误总数告警阈值
	AlertPatternPerMinute int           // 单分钟同一模式错误告警阈值
	StatsRetention        time.Duration // 分钟级统计保留时长
}

// Classifier 故障分类器：按注册顺序匹配模式，给出重试决策与延迟。
// 告警与统计只做记录，永不影响重试决策。
type Classifier struct {
	cfg    Config
	logger *log.Logger

	mu       sync.RWMutex
	patterns []*Pattern
	recovery map[Category][]HandlerFunc

	stats        *minuteLog
	alertLimiter *rate.Limiter // 告警日志节流
}

// NewClassifier 创建分类器并注册内建故障模式
func NewClassifier(cfg Config, logger *log.Logger) *Classifier {
	if logger == nil {
		logger = log.Discard()
	}
	cfg.AlertTotalPerMinute = utils.DefaultInt(cfg.AlertTotalPerMinute, 10)
	cfg.AlertPatternPerMinute = utils.DefaultInt(cfg.AlertPatternPerMinute, 5)
	cfg.StatsRetention = utils.DefaultDuration(cfg.StatsRetention, 24*time.Hour)
	c := &Classifier{
		cfg:          cfg,
		logger:       logger,
		recovery:     make(map[Category][]HandlerFunc),
		stats:        newMinuteLog(cfg.StatsRetention),
		alertLimiter: rate.NewLimiter(rate.Every(30*time.Second), 1),
	}
	c.registerDefaults()
	return c
}

// registerDefaults 注册内建模式；谓词保持窄匹配，宽泛归类交给 synthesize
func (c *Classifier) registerDefaults() {
	c.RegisterPattern(&Pattern{
		Name:       "network_timeout",
		Category:   CategoryTransient,
		Strategy:   StrategyExponential,
		MaxRetries: 3,
		BaseDelay:  30 * time.Second,
		MaxDelay:   10 * time.Minute,
		Codes:      []string{"timeout", "network_error", "connection_error"},
		Targets:    []error{context.DeadlineExceeded, common.ErrTimeout, common.ErrEmbeddingFailed},
		Substrings: []string{"timed out", "timeout", "connection refused", "connection reset", "no such host", "network is unreachable", "超时"},
	})
	c.RegisterPattern(&Pattern{
		Name:       "rate_limit",
		Category:   CategoryRateLimited,
		Strategy:   StrategyExponential,
		MaxRetries: 5,
		BaseDelay:  120 * time.Second,
		MaxDelay:   3600 * time.Second,
		Codes:      []string{"rate_limit", "too_many_requests"},
		Targets:    []error{common.ErrRateLimit},
		Substrings: []string{"rate limit", "too many requests", "quota exceeded", "429", "速率限制"},
	})
	c.RegisterPattern(&Pattern{
		Name:       "resource_exhausted",
		Category:   CategoryResource,
		Strategy:   StrategyLinear,
		MaxRetries: 3,
		BaseDelay:  300 * time.Second,
		MaxDelay:   30 * time.Minute,
		Codes:      []string{"resource_exhausted", "out_of_memory", "no_space"},
		Substrings: []string{"out of memory", "no space left", "too many open files", "cannot allocate memory", "resource temporarily unavailable", "内存不足", "磁盘空间不足"},
	})
	c.RegisterPattern(&Pattern{
		Name:       "file_access",
		Category:   CategoryData,
		Strategy:   StrategyFixed,
		MaxRetries: 2,
		BaseDelay:  60 * time.Second,
		MaxDelay:   60 * time.Second,
		Codes:      []string{"file_access", "not_found", "permission_denied"},
		Targets:    []error{fs.ErrNotExist, fs.ErrPermission, common.ErrLoadingFailed, common.ErrDocumentNotFound},
		Substrings: []string{"no such file", "permission denied", "is a directory", "文件不存在"},
	})
	c.RegisterPattern(&Pattern{
		Name:       "configuration",
		Category:   CategoryConfiguration,
		Strategy:   StrategyFixed,
		MaxRetries: 1,
		BaseDelay:  60 * time.Second,
		MaxDelay:   60 * time.Second,
		Codes:      []string{"configuration", "missing_api_key", "invalid_credentials"},
		Targets:    []error{common.ErrUnauthorized, common.ErrForbidden},
		Substrings: []string{"api key", "credential", "unauthorized", "forbidden", "未配置", "未授权"},
	})
	c.RegisterPattern(&Pattern{
		Name:       "content_parse",
		Category:   CategoryData,
		Strategy:   StrategyImmediate,
		MaxRetries: 1,
		Codes:      []string{"parse_error", "invalid_content", "unsupported_format"},
		Targets:    []error{common.ErrParsingFailed, common.ErrSplittingFailed, common.ErrInvalidInput, common.ErrValidationFailed},
		Substrings: []string{"parse error", "invalid format", "unsupported format", "malformed", "解析失败", "格式无法解析"},
	})
	c.RegisterPattern(&Pattern{
		Name:       "system_failure",
		Category:   CategorySystem,
		Strategy:   StrategyExponential,
		MaxRetries: 2,
		BaseDelay:  300 * time.Second,
		MaxDelay:   3600 * time.Second,
		Codes:      []string{"internal", "system_failure", "panic"},
		Targets:    []error{common.ErrInternal, common.ErrIndexingFailed},
		Substrings: []string{"internal error", "panic", "runtime error", "内部错误"},
	})
}

// RegisterPattern 注册模式；同名则原位替换，否则追加到匹配序列末尾
func (c *Classifier) RegisterPattern(p *Pattern) {
	if p == nil || p.Name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.patterns {
		if existing.Name == p.Name {
			c.patterns[i] = p
			return
		}
	}
	c.patterns = append(c.patterns, p)
}

// RegisterPatternBefore 将模式插入到指定锚点之前以提升匹配优先级；锚点不存在时插入队首
func (c *Classifier) RegisterPatternBefore(anchor string, p *Pattern) {
	if p == nil || p.Name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := 0
	for i, existing := range c.patterns {
		if existing.Name == anchor {
			idx = i
			break
		}
	}
	c.patterns = append(c.patterns, nil)
	copy(c.patterns[idx+1:], c.patterns[idx:])
	c.patterns[idx] = p
}

// OnCategory 注册类别级恢复回调（如熔断），在模式自带 Handler 之后执行
func (c *Classifier) OnCategory(cat Category, fn HandlerFunc) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.recovery[cat] = append(c.recovery[cat], fn)
	c.mu.Unlock()
}

// Classify 按注册顺序返回首个命中的模式；无命中时按关键词启发式合成默认模式。
// 同时记录分钟级统计、触发告警检查并调用恢复回调，三者均不影响返回值。
func (c *Classifier) Classify(taskType task.Type, err error) *Pattern {
	c.mu.RLock()
	var matched *Pattern
	for _, p := range c.patterns {
		if p.Matches(err) {
			matched = p
			break
		}
	}
	c.mu.RUnlock()
	if matched == nil {
		matched = synthesize(err)
	}

	metrics.ErrorTotal.WithLabelValues(matched.Category.String()).Inc()
	c.recordAndAlert(taskType, matched, err)
	c.invokeHandlers(taskType, matched, err)
	return matched
}

// ShouldRetry 重试决策：不可重试错误、超出模式上限、Permanent 类别均不重试；
// Configuration 类别仅允许首次重试
func (c *Classifier) ShouldRetry(t *task.Task, rec *task.Error, p *Pattern) bool {
	if rec != nil && !rec.Retryable {
		return false
	}
	if p.Category == CategoryPermanent {
		return false
	}
	if t.Retry.Count >= p.MaxRetries {
		return false
	}
	if p.Category == CategoryConfiguration && t.Retry.Count > 0 {
		return false
	}
	return true
}

// ComputeDelay 计算第 attempt 次重试前的等待时长（attempt 从 1 开始），钳制到 MaxDelay
func (c *Classifier) ComputeDelay(p *Pattern, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d float64
	switch p.Strategy {
	case StrategyImmediate:
		return 0
	case StrategyLinear:
		d = float64(p.BaseDelay) * float64(attempt)
	case StrategyExponential:
		d = float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	default: // StrategyFixed
		d = float64(p.BaseDelay)
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// recordAndAlert 更新分钟级统计并做阈值检查；告警仅打日志并经节流器限频
func (c *Classifier) recordAndAlert(taskType task.Type, p *Pattern, err error) {
	total, patternCount := c.stats.record(time.Now(), p.Name, p.Category.String(), taskType.String())
	if total > c.cfg.AlertTotalPerMinute && c.alertLimiter.Allow() {
		c.logger.Warn("错误速率超过阈值",
			"minute_total", total,
			"threshold", c.cfg.AlertTotalPerMinute,
			"last_error", err.Error(),
		)
		return
	}
	if patternCount > c.cfg.AlertPatternPerMinute && c.alertLimiter.Allow() {
		c.logger.Warn("单一错误模式速率超过阈值",
			"pattern", p.Name,
			"minute_count", patternCount,
			"threshold", c.cfg.AlertPatternPerMinute,
		)
	}
}

// invokeHandlers 依次调用模式 Handler 与类别级恢复回调；回调 panic 被吸收，只记日志
func (c *Classifier) invokeHandlers(taskType task.Type, p *Pattern, err error) {
	var callbacks []HandlerFunc
	if p.Handler != nil {
		callbacks = append(callbacks, p.Handler)
	}
	c.mu.RLock()
	callbacks = append(callbacks, c.recovery[p.Category]...)
	c.mu.RUnlock()

	for _, fn := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("恢复回调 panic", "pattern", p.Name, "panic", r)
				}
			}()
			fn(taskType, p, err)
		}()
	}
}

// RecentStats 返回窗口内的分钟级错误统计（升序），供运维接口与告警排查
func (c *Classifier) RecentStats(window time.Duration) []MinuteStats {
	return c.stats.snapshot(time.Now().Add(-window))
}

// synthesize 无模式命中时按消息关键词归类，统一采用指数退避、3 次重试、60s 基准
func synthesize(err error) *Pattern {
	msg := ""
	if err != nil {
		msg = strings.ToLower(err.Error())
	}
	category := CategorySystem
	switch {
	case containsAny(msg, "timeout", "connection", "network", "unavailable", "超时", "连接"):
		category = CategoryTransient
	case containsAny(msg, "rate", "quota", "throttle", "限流", "配额"):
		category = CategoryRateLimited
	case containsAny(msg, "memory", "disk", "space", "resource", "capacity", "内存", "磁盘"):
		category = CategoryResource
	case containsAny(msg, "config", "credential", "key", "permission", "配置", "凭证"):
		category = CategoryConfiguration
	case containsAny(msg, "parse", "format", "decode", "invalid", "corrupt", "解析", "格式"):
		category = CategoryData
	}
	return &Pattern{
		Name:       "default_" + category.String(),
		Category:   category,
		Strategy:   StrategyExponential,
		MaxRetries: 3,
		BaseDelay:  60 * time.Second,
	}
}

func containsAny(msg string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
