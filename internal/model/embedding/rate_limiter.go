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

package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"doc-platform/pkg/config"
)

// ProviderRateLimiter 提供商维度的限流器，支持 token budget + RPS + 并发控制。
// 未配置的提供商首次使用时按默认配额建限流器。
type ProviderRateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*providerLimiter // provider -> limiter
	defaults config.ProviderLimitConfig
}

type providerLimiter struct {
	requestLimiter *rate.Limiter // RPS 限流器
	tokenLimiter   *rate.Limiter // Token 限流器
	semaphore      chan struct{} // 并发控制
	config         config.ProviderLimitConfig

	// Token 统计
	mu               sync.Mutex
	tokensUsedMinute int
	minuteStart      time.Time
}

// NewProviderRateLimiter 创建限流器。defaults 为 nil 时使用内置默认配额。
func NewProviderRateLimiter(configs map[string]config.ProviderLimitConfig, defaults *config.ProviderLimitConfig) *ProviderRateLimiter {
	if defaults == nil {
		defaults = &config.ProviderLimitConfig{
			TokensPerMinute:   90000,
			RequestsPerMinute: 3500,
			MaxConcurrent:     50,
		}
	}

	limiter := &ProviderRateLimiter{
		limiters: make(map[string]*providerLimiter),
		defaults: *defaults,
	}
	for provider, cfg := range configs {
		limiter.addProviderLimiter(provider, cfg)
	}
	return limiter
}

func (l *ProviderRateLimiter) addProviderLimiter(provider string, cfg config.ProviderLimitConfig) {
	limiter := &providerLimiter{
		config:      cfg,
		minuteStart: time.Now(),
	}

	// RPS 限流器（转换为每秒，burst 取 2 秒配额）
	if cfg.RequestsPerMinute > 0 {
		rps := cfg.RequestsPerMinute / 60.0
		burst := int(rps * 2)
		if burst < 1 {
			burst = 1
		}
		limiter.requestLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	// Token 限流器（转换为每秒，burst 取 2 秒配额）
	if cfg.TokensPerMinute > 0 {
		tps := float64(cfg.TokensPerMinute) / 60.0
		burst := cfg.TokensPerMinute / 60 * 2
		if burst < 1 {
			burst = 1
		}
		limiter.tokenLimiter = rate.NewLimiter(rate.Limit(tps), burst)
	}

	if cfg.MaxConcurrent > 0 {
		limiter.semaphore = make(chan struct{}, cfg.MaxConcurrent)
	}

	l.mu.Lock()
	l.limiters[provider] = limiter
	l.mu.Unlock()
}

func (l *ProviderRateLimiter) limiterFor(provider string) *providerLimiter {
	l.mu.RLock()
	limiter, exists := l.limiters[provider]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.addProviderLimiter(provider, l.defaults)
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiters[provider]
}

// Wait 阻塞直到获得执行许可，或 ctx 结束
func (l *ProviderRateLimiter) Wait(ctx context.Context, provider string, estimatedTokens int) error {
	limiter := l.limiterFor(provider)

	if limiter.requestLimiter != nil {
		if err := limiter.requestLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("等待请求配额失败: %w", err)
		}
	}

	// 预扣 token 配额
	if limiter.tokenLimiter != nil && estimatedTokens > 0 {
		if err := limiter.tokenLimiter.WaitN(ctx, estimatedTokens); err != nil {
			return fmt.Errorf("等待 token 配额失败: %w", err)
		}
	}

	if limiter.semaphore != nil {
		select {
		case limiter.semaphore <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	limiter.recordTokens(estimatedTokens)
	return nil
}

// Release 释放并发 slot，调用完成后执行
func (l *ProviderRateLimiter) Release(provider string) {
	l.mu.RLock()
	limiter, exists := l.limiters[provider]
	l.mu.RUnlock()

	if exists && limiter.semaphore != nil {
		select {
		case <-limiter.semaphore:
		default:
		}
	}
}

// Allow 非阻塞检查是否允许执行；返回 true 时已占用并发 slot，用毕需 Release
func (l *ProviderRateLimiter) Allow(provider string, estimatedTokens int) bool {
	l.mu.RLock()
	limiter, exists := l.limiters[provider]
	l.mu.RUnlock()
	if !exists {
		return true
	}

	if limiter.requestLimiter != nil && !limiter.requestLimiter.Allow() {
		return false
	}
	if limiter.tokenLimiter != nil && estimatedTokens > 0 {
		if !limiter.tokenLimiter.AllowN(time.Now(), estimatedTokens) {
			return false
		}
	}
	if limiter.semaphore != nil {
		select {
		case limiter.semaphore <- struct{}{}:
		default:
			return false
		}
	}
	return true
}

// RecordTokenUsage 记录实际用量（响应中带精确 token 数时调用）
func (l *ProviderRateLimiter) RecordTokenUsage(provider string, actualTokens int) {
	l.mu.RLock()
	limiter, exists := l.limiters[provider]
	l.mu.RUnlock()
	if !exists {
		return
	}
	limiter.recordTokens(actualTokens)
}

func (p *providerLimiter) recordTokens(tokens int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if now.Sub(p.minuteStart) > time.Minute {
		p.tokensUsedMinute = tokens
		p.minuteStart = now
	} else {
		p.tokensUsedMinute += tokens
	}
}

// GetStats 返回限流统计信息，未知提供商返回 nil
func (l *ProviderRateLimiter) GetStats(provider string) map[string]interface{} {
	l.mu.RLock()
	limiter, exists := l.limiters[provider]
	l.mu.RUnlock()
	if !exists {
		return nil
	}

	limiter.mu.Lock()
	tokensUsed := limiter.tokensUsedMinute
	limiter.mu.Unlock()

	stats := map[string]interface{}{
		"requests_per_minute": limiter.config.RequestsPerMinute,
		"tokens_per_minute":   limiter.config.TokensPerMinute,
		"tokens_used_minute":  tokensUsed,
		"max_concurrent":      limiter.config.MaxConcurrent,
	}
	if limiter.semaphore != nil {
		stats["current_concurrent"] = len(limiter.semaphore)
		stats["available_slots"] = cap(limiter.semaphore) - len(limiter.semaphore)
	}
	return stats
}
