package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"golang.org/x/time/rate"

	"doc-platform/pkg/config"
	"doc-platform/pkg/log"
)

// Middleware 中间件管理器，持有 API 配置与全局限流器
type Middleware struct {
	cfg     config.APIConfig
	logger  *log.Logger
	limiter *rate.Limiter
}

// NewMiddleware 创建中间件管理器；未启用 rate_limit 时不建限流器
func NewMiddleware(cfg config.APIConfig, logger *log.Logger) *Middleware {
	if logger == nil {
		logger = log.Discard()
	}
	m := &Middleware{cfg: cfg, logger: logger}
	if cfg.Middleware.RateLimit {
		rps := cfg.Middleware.RateLimitRPS
		if rps <= 0 {
			rps = 50
		}
		// 突发容量给 2 倍 RPS，短促峰值不至于立刻 429
		m.limiter = rate.NewLimiter(rate.Limit(rps), rps*2)
	}
	return m
}

// CORS 跨域响应头；OPTIONS 预检直接短路
func (m *Middleware) CORS() app.HandlerFunc {
	allowOrigin := "*"
	if len(m.cfg.CORS.AllowOrigins) > 0 {
		allowOrigin = strings.Join(m.cfg.CORS.AllowOrigins, ", ")
	}
	return func(ctx context.Context, c *app.RequestContext) {
		c.Header("Access-Control-Allow-Origin", allowOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if string(c.Method()) == consts.MethodOptions {
			c.AbortWithStatus(consts.StatusNoContent)
			return
		}

		c.Next(ctx)
	}
}

// RateLimit 全局速率限制；限流器未启用时为直通。
// 与队列 Submit 同一风格：不排队等待，超限立即 429
func (m *Middleware) RateLimit() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if m.limiter != nil && !m.limiter.Allow() {
			c.JSON(consts.StatusTooManyRequests, map[string]string{
				"error": "请求过于频繁，请稍后再试",
			})
			c.Abort()
			return
		}
		c.Next(ctx)
	}
}

// AccessLog 请求访问日志
func (m *Middleware) AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)
		m.logger.Info("http request",
			"method", string(c.Method()),
			"path", string(c.Path()),
			"status", c.Response.StatusCode(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}
