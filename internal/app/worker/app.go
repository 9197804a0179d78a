package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"doc-platform/internal/app"
	"doc-platform/internal/task"
	"doc-platform/internal/taskqueue"
	"doc-platform/pkg/config"
	"doc-platform/pkg/metrics"
	"doc-platform/pkg/tracing"
	"doc-platform/pkg/utils"
)

// App Worker 应用（无对外 API；启动队列 Worker 池，批量入库本地目录）
type App struct {
	config         *config.Config
	bootstrap      *app.Bootstrap
	platform       *app.Platform
	metricsSrv     *http.Server
	tracerProvider *sdktrace.TracerProvider
	shutdown       chan struct{}
}

// NewApp 创建新的 Worker 应用
func NewApp(cfg *config.Config) (*App, error) {
	bootstrap, err := app.NewBootstrap(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化基础设施失败: %w", err)
	}

	platform, err := app.NewPlatform(context.Background(), bootstrap)
	if err != nil {
		return nil, fmt.Errorf("初始化平台核心失败: %w", err)
	}

	return &App{
		config:    cfg,
		bootstrap: bootstrap,
		platform:  platform,
		shutdown:  make(chan struct{}),
	}, nil
}

// Start 启动应用（队列 Worker 池 + 可选 Prometheus 端口 + 批量入库）
func (a *App) Start() error {
	a.bootstrap.Logger.Info("启动 worker 应用")

	// 可选：启用链路追踪（Worker 无 HTTP 入口，直接初始化全局 TracerProvider）
	if a.config != nil && a.config.Monitoring.Tracing.Enable {
		serviceName := utils.CoalesceString(a.config.Monitoring.Tracing.ServiceName, "doc-worker")
		exportEndpoint := utils.CoalesceString(
			a.config.Monitoring.Tracing.ExportEndpoint,
			os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		)
		if exportEndpoint != "" {
			tp, err := tracing.InitTracer(tracing.OTelConfig{
				ServiceName:    serviceName,
				ExportEndpoint: exportEndpoint,
				Insecure:       a.config.Monitoring.Tracing.Insecure,
			})
			if err != nil {
				a.bootstrap.Logger.Warn("链路追踪初始化失败", "error", err)
			} else {
				a.tracerProvider = tp
				a.bootstrap.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
			}
		}
	}

	if err := a.platform.Start(); err != nil {
		return fmt.Errorf("启动平台核心失败: %w", err)
	}

	if a.config != nil && a.config.Monitoring.Prometheus.Enable && a.config.Monitoring.Prometheus.Port > 0 {
		a.startMetricsServer(a.config.Monitoring.Prometheus.Port)
	}

	if a.config != nil && a.config.Worker.InputDir != "" {
		go a.ingestDir(a.config.Worker.InputDir)
	}

	a.bootstrap.Logger.Info("worker 应用启动成功")
	return nil
}

// Shutdown 关闭应用
func (a *App) Shutdown(ctx context.Context) error {
	a.bootstrap.Logger.Info("关闭 worker 应用")

	close(a.shutdown)

	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			a.bootstrap.Logger.Error("关闭指标服务失败", "error", err)
		}
	}

	if err := a.platform.Stop(); err != nil {
		a.bootstrap.Logger.Error("停止平台核心失败", "error", err)
	}

	// 平台先停再关 provider，确保在途任务的 span 被批量导出
	if a.tracerProvider != nil {
		_ = a.tracerProvider.Shutdown(ctx)
	}

	if err := a.bootstrap.Close(); err != nil {
		a.bootstrap.Logger.Error("关闭存储失败", "error", err)
	}

	a.bootstrap.Logger.Info("worker 应用关闭成功")
	return nil
}

// startMetricsServer 在独立端口暴露 /metrics（Worker 无 HTTP API，指标走专用端口）
func (a *App) startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.DefaultRegistry, promhttp.HandlerOpts{}))
	a.metricsSrv = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.bootstrap.Logger.Warn("指标服务退出", "error", err)
		}
	}()
	a.bootstrap.Logger.Info("Prometheus 指标已暴露", "port", port)
}

// ingestDir 批量入库：上传目录内每个文件，并按 worker.tasks 配置为其提交任务
func (a *App) ingestDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		a.bootstrap.Logger.Error("读取输入目录失败", "dir", dir, "error", err)
		return
	}

	taskTypes := a.config.Worker.Tasks
	if len(taskTypes) == 0 {
		taskTypes = []string{"parsing", "embedding"}
	}
	priority := task.PriorityNormal
	if a.config.Worker.Priority != "" {
		if p, err := task.ParsePriority(a.config.Worker.Priority); err == nil {
			priority = p
		} else {
			a.bootstrap.Logger.Warn("无效的优先级配置，使用 normal", "priority", a.config.Worker.Priority)
		}
	}

	var uploaded, submitted int
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		select {
		case <-a.shutdown:
			return
		default:
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			a.bootstrap.Logger.Warn("读取文件失败，已跳过", "path", path, "error", err)
			continue
		}
		doc, err := a.platform.Documents.UploadDocument(context.Background(), entry.Name(), data, map[string]string{"source": "worker"})
		if err != nil {
			a.bootstrap.Logger.Warn("上传文档失败，已跳过", "path", path, "error", err)
			continue
		}
		uploaded++

		topic := utils.CoalesceString(a.config.Worker.Topic, entry.Name())
		for _, name := range taskTypes {
			typ, err := task.ParseType(name)
			if err != nil {
				a.bootstrap.Logger.Warn("未知任务类型，已跳过", "type", name)
				continue
			}
			t := task.New(typ, priority, topic, map[string]string{"document_id": doc.ID})
			if err := a.submitWithRetry(t); err != nil {
				a.bootstrap.Logger.Warn("任务提交失败", "type", name, "document_id", doc.ID, "error", err)
				continue
			}
			submitted++
		}
	}

	a.bootstrap.Logger.Info("批量入库完成", "dir", dir, "uploaded", uploaded, "tasks", submitted)
}

// submitWithRetry 队列满时退避重试；队列已停止或应用关闭则放弃
func (a *App) submitWithRetry(t *task.Task) error {
	for {
		err := a.platform.Queue.Submit(t)
		if err == nil || !errors.Is(err, taskqueue.ErrQueueFull) {
			return err
		}
		select {
		case <-a.shutdown:
			return err
		case <-time.After(500 * time.Millisecond):
		}
	}
}
