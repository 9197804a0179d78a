package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/hertz-contrib/jwt"

	"doc-platform/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler *Handler
	mw      *middleware.Middleware
	jwt     *jwt.HertzJWTMiddleware
}

// NewRouter 创建路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{
		handler: handler,
		mw:      mw,
	}
}

// SetJWT 启用 JWT 认证；/api 下除 health 与 auth/refresh 外全部生效
func (r *Router) SetJWT(auth *jwt.HertzJWTMiddleware) {
	r.jwt = auth
}

// Build 构建 Hertz server 并注册全部路由；opts 透传给 server（如链路追踪）
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	serverOpts := append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(serverOpts...)

	h.Use(r.mw.AccessLog(), r.mw.CORS(), r.mw.RateLimit())

	// 指标在 /api 之外，不经过认证
	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)

	if r.jwt != nil {
		api.GET("/auth/refresh", r.jwt.RefreshHandler)
		api.Use(r.jwt.MiddlewareFunc())
	}

	// 任务生命周期
	tasks := api.Group("/tasks")
	{
		tasks.POST("", r.handler.SubmitTask)
		tasks.GET("/:id", r.handler.GetTask)
		tasks.DELETE("/:id", r.handler.CancelTask)
		tasks.POST("/:id/retry", r.handler.RetryTask)
	}

	// 状态查询
	api.GET("/topics/:topic/tasks", r.handler.ListTopicTasks)
	api.GET("/summary", r.handler.Summary)
	api.GET("/activity", r.handler.Activity)
	api.GET("/errors/stats", r.handler.ErrorStats)

	// 队列控制
	queue := api.Group("/queue")
	{
		queue.GET("/stats", r.handler.QueueStats)
		queue.POST("/pause", r.handler.PauseQueue)
		queue.POST("/resume", r.handler.ResumeQueue)
	}

	// 文档管理
	documents := api.Group("/documents")
	{
		documents.POST("/upload", r.handler.UploadDocument)
		documents.GET("", r.handler.ListDocuments)
		documents.GET("/:id", r.handler.GetDocument)
		documents.DELETE("/:id", r.handler.DeleteDocument)
	}

	return h
}
