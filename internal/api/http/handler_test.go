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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	appcore "doc-platform/internal/app"
	"doc-platform/internal/faults"
	"doc-platform/internal/statushub"
	"doc-platform/internal/storage/metadata"
	"doc-platform/internal/storage/object"
	"doc-platform/internal/storage/vector"
	"doc-platform/internal/task"
	"doc-platform/internal/taskqueue"
)

// newTestHandler 以真实内存组件装配 Handler：队列注册 parsing 处理器，
// 文档门面挂内存存储
func newTestHandler(t *testing.T) (*Handler, *taskqueue.Queue, *statushub.Hub) {
	t.Helper()
	classifier := faults.NewClassifier(faults.Config{}, nil)
	hub := statushub.New(statushub.Config{}, nil)
	queue := taskqueue.New(taskqueue.Config{MaxQueueSize: 4, IdlePoll: 10 * time.Millisecond}, classifier, hub, nil)
	err := queue.RegisterHandler(task.TypeParsing, func(ctx context.Context, tk *task.Task) (*task.Result, error) {
		return &task.Result{Success: true}, nil
	})
	if err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}
	docs := appcore.NewDocumentService(metadata.NewMemoryStore(), object.NewMemoryStore(), vector.NewMemoryStore(), "chunks", nil)
	return NewHandler(queue, hub, classifier, docs, nil), queue, hub
}

func TestHealthCheck(t *testing.T) {
	h := server.Default(server.WithHostPorts(":0"))
	handler, _, _ := newTestHandler(t)
	h.GET("/api/health", func(ctx context.Context, c *app.RequestContext) {
		handler.HealthCheck(ctx, c)
	})
	w := ut.PerformRequest(h.Engine, "GET", "/api/health", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Errorf("HealthCheck status: got %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("ok")) {
		t.Errorf("HealthCheck body: %s", resp.Body())
	}
}

func TestSubmitTask(t *testing.T) {
	handler, _, hub := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.POST("/api/tasks", func(ctx context.Context, c *app.RequestContext) {
		handler.SubmitTask(ctx, c)
	})

	body := []byte(`{"type":"parsing","priority":"high","topic":"doc-1","config":{"document_id":"doc-1"}}`)
	w := ut.PerformRequest(h.Engine, "POST", "/api/tasks", &ut.Body{Body: bytes.NewReader(body), Len: len(body)})
	resp := w.Result()
	if resp.StatusCode() != 202 {
		t.Fatalf("SubmitTask status: got %d, want 202, body=%s", resp.StatusCode(), resp.Body())
	}

	var out struct {
		ID       string `json:"id"`
		Priority string `json:"priority"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if out.ID == "" {
		t.Fatal("response id should not be empty")
	}
	if out.Priority != "high" {
		t.Errorf("priority = %q, want high", out.Priority)
	}
	if out.Status != "pending" {
		t.Errorf("status = %q, want pending", out.Status)
	}

	// 入队即到达状态中心
	if _, _, ok := hub.GetTaskDetails(out.ID); !ok {
		t.Errorf("task %s not registered in hub", out.ID)
	}
}

func TestSubmitTask_InvalidType(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.POST("/api/tasks", func(ctx context.Context, c *app.RequestContext) {
		handler.SubmitTask(ctx, c)
	})

	body := []byte(`{"type":"bogus"}`)
	w := ut.PerformRequest(h.Engine, "POST", "/api/tasks", &ut.Body{Body: bytes.NewReader(body), Len: len(body)})
	resp := w.Result()
	if resp.StatusCode() != 400 {
		t.Errorf("invalid type status: got %d, want 400", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("unknown task type")) {
		t.Errorf("invalid type body: %s", resp.Body())
	}
}

func TestSubmitTask_NoProcessor(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.POST("/api/tasks", func(ctx context.Context, c *app.RequestContext) {
		handler.SubmitTask(ctx, c)
	})

	// ocr 是合法类型但未注册处理器
	body := []byte(`{"type":"ocr"}`)
	w := ut.PerformRequest(h.Engine, "POST", "/api/tasks", &ut.Body{Body: bytes.NewReader(body), Len: len(body)})
	resp := w.Result()
	if resp.StatusCode() != 400 {
		t.Errorf("no processor status: got %d, want 400, body=%s", resp.StatusCode(), resp.Body())
	}
}

func TestSubmitTask_QueueFull(t *testing.T) {
	handler, queue, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.POST("/api/tasks", func(ctx context.Context, c *app.RequestContext) {
		handler.SubmitTask(ctx, c)
	})

	// 占满容量（MaxQueueSize=4）
	for i := 0; i < 4; i++ {
		if err := queue.Submit(task.New(task.TypeParsing, task.PriorityNormal, "doc-1", nil)); err != nil {
			t.Fatalf("Submit #%d: %v", i, err)
		}
	}

	body := []byte(`{"type":"parsing"}`)
	w := ut.PerformRequest(h.Engine, "POST", "/api/tasks", &ut.Body{Body: bytes.NewReader(body), Len: len(body)})
	resp := w.Result()
	if resp.StatusCode() != 429 {
		t.Errorf("queue full status: got %d, want 429, body=%s", resp.StatusCode(), resp.Body())
	}
}

func TestSubmitTask_QueueStopped(t *testing.T) {
	handler, queue, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.POST("/api/tasks", func(ctx context.Context, c *app.RequestContext) {
		handler.SubmitTask(ctx, c)
	})

	if err := queue.Stop(0); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	body := []byte(`{"type":"parsing"}`)
	w := ut.PerformRequest(h.Engine, "POST", "/api/tasks", &ut.Body{Body: bytes.NewReader(body), Len: len(body)})
	resp := w.Result()
	if resp.StatusCode() != 503 {
		t.Errorf("queue stopped status: got %d, want 503, body=%s", resp.StatusCode(), resp.Body())
	}
}

func TestGetTask(t *testing.T) {
	handler, queue, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.GET("/api/tasks/:id", func(ctx context.Context, c *app.RequestContext) {
		handler.GetTask(ctx, c)
	})

	tk := task.New(task.TypeParsing, task.PriorityNormal, "doc-1", nil)
	if err := queue.Submit(tk); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	w := ut.PerformRequest(h.Engine, "GET", "/api/tasks/"+tk.ID, &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("GetTask status: got %d, body=%s", resp.StatusCode(), resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(tk.ID)) {
		t.Errorf("GetTask body missing task id: %s", resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(`"history"`)) {
		t.Errorf("GetTask body missing history: %s", resp.Body())
	}
}

func TestGetTask_NotFound(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.GET("/api/tasks/:id", func(ctx context.Context, c *app.RequestContext) {
		handler.GetTask(ctx, c)
	})

	w := ut.PerformRequest(h.Engine, "GET", "/api/tasks/no-such-id", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 404 {
		t.Errorf("GetTask missing status: got %d, want 404", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("任务不存在")) {
		t.Errorf("GetTask missing body: %s", resp.Body())
	}
}

func TestCancelTask_Pending(t *testing.T) {
	handler, queue, hub := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.DELETE("/api/tasks/:id", func(ctx context.Context, c *app.RequestContext) {
		handler.CancelTask(ctx, c)
	})

	tk := task.New(task.TypeParsing, task.PriorityNormal, "doc-1", nil)
	if err := queue.Submit(tk); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	w := ut.PerformRequest(h.Engine, "DELETE", "/api/tasks/"+tk.ID, &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("CancelTask status: got %d, body=%s", resp.StatusCode(), resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(`"cancelled":true`)) {
		t.Errorf("CancelTask body: %s", resp.Body())
	}

	snap, _, ok := hub.GetTaskDetails(tk.ID)
	if !ok || snap.Status != task.StatusCancelled {
		t.Errorf("hub snapshot after cancel: ok=%v status=%v", ok, snap.Status)
	}
}

func TestCancelTask_Terminal(t *testing.T) {
	handler, _, hub := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.DELETE("/api/tasks/:id", func(ctx context.Context, c *app.RequestContext) {
		handler.CancelTask(ctx, c)
	})

	done := task.New(task.TypeParsing, task.PriorityNormal, "doc-1", nil)
	done.Status = task.StatusCompleted
	hub.UpdateStatus(done, nil)

	w := ut.PerformRequest(h.Engine, "DELETE", "/api/tasks/"+done.ID, &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 409 {
		t.Errorf("cancel terminal status: got %d, want 409", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("终态")) {
		t.Errorf("cancel terminal body: %s", resp.Body())
	}
}

func TestCancelTask_NotFound(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.DELETE("/api/tasks/:id", func(ctx context.Context, c *app.RequestContext) {
		handler.CancelTask(ctx, c)
	})

	w := ut.PerformRequest(h.Engine, "DELETE", "/api/tasks/no-such-id", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 404 {
		t.Errorf("cancel missing status: got %d, want 404", got)
	}
}

func TestRetryTask_NotFound(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.POST("/api/tasks/:id/retry", func(ctx context.Context, c *app.RequestContext) {
		handler.RetryTask(ctx, c)
	})

	w := ut.PerformRequest(h.Engine, "POST", "/api/tasks/no-such-id/retry", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 404 {
		t.Errorf("retry missing status: got %d, want 404", got)
	}
}

func TestRetryTask_NotFailed(t *testing.T) {
	handler, queue, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.POST("/api/tasks/:id/retry", func(ctx context.Context, c *app.RequestContext) {
		handler.RetryTask(ctx, c)
	})

	tk := task.New(task.TypeParsing, task.PriorityNormal, "doc-1", nil)
	if err := queue.Submit(tk); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	w := ut.PerformRequest(h.Engine, "POST", "/api/tasks/"+tk.ID+"/retry", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 409 {
		t.Errorf("retry pending status: got %d, want 409, body=%s", resp.StatusCode(), resp.Body())
	}
}

func TestListTopicTasks(t *testing.T) {
	handler, queue, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.GET("/api/topics/:topic/tasks", func(ctx context.Context, c *app.RequestContext) {
		handler.ListTopicTasks(ctx, c)
	})

	for i := 0; i < 2; i++ {
		if err := queue.Submit(task.New(task.TypeParsing, task.PriorityNormal, "doc-1", nil)); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if err := queue.Submit(task.New(task.TypeParsing, task.PriorityNormal, "doc-2", nil)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	w := ut.PerformRequest(h.Engine, "GET", "/api/topics/doc-1/tasks", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("ListTopicTasks status: got %d", resp.StatusCode())
	}
	var out struct {
		Topic string            `json:"topic"`
		Tasks []json.RawMessage `json:"tasks"`
		Total int               `json:"total"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Total != 2 {
		t.Errorf("total = %d, want 2", out.Total)
	}

	// 非法状态过滤
	w = ut.PerformRequest(h.Engine, "GET", "/api/topics/doc-1/tasks?status=bogus", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 400 {
		t.Errorf("bogus status filter: got %d, want 400", got)
	}
}

func TestQueueStatsAndPauseResume(t *testing.T) {
	handler, queue, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.GET("/api/queue/stats", func(ctx context.Context, c *app.RequestContext) {
		handler.QueueStats(ctx, c)
	})
	h.POST("/api/queue/pause", func(ctx context.Context, c *app.RequestContext) {
		handler.PauseQueue(ctx, c)
	})
	h.POST("/api/queue/resume", func(ctx context.Context, c *app.RequestContext) {
		handler.ResumeQueue(ctx, c)
	})

	w := ut.PerformRequest(h.Engine, "GET", "/api/queue/stats", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("stats status: got %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte(`"state":"active"`)) {
		t.Errorf("stats body: %s", resp.Body())
	}

	w = ut.PerformRequest(h.Engine, "POST", "/api/queue/pause", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("pause status: got %d", got)
	}
	w = ut.PerformRequest(h.Engine, "GET", "/api/queue/stats", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if !bytes.Contains(w.Result().Body(), []byte(`"state":"paused"`)) {
		t.Errorf("stats after pause: %s", w.Result().Body())
	}

	w = ut.PerformRequest(h.Engine, "POST", "/api/queue/resume", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("resume status: got %d", got)
	}

	// 停止后控制操作报 503
	if err := queue.Stop(0); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	w = ut.PerformRequest(h.Engine, "POST", "/api/queue/pause", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 503 {
		t.Errorf("pause after stop: got %d, want 503", got)
	}
}

func TestSummaryAndActivity(t *testing.T) {
	handler, queue, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.GET("/api/summary", func(ctx context.Context, c *app.RequestContext) {
		handler.Summary(ctx, c)
	})
	h.GET("/api/activity", func(ctx context.Context, c *app.RequestContext) {
		handler.Activity(ctx, c)
	})

	if err := queue.Submit(task.New(task.TypeParsing, task.PriorityNormal, "doc-1", nil)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	w := ut.PerformRequest(h.Engine, "GET", "/api/summary?topic=doc-1", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("summary status: got %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte(`"pending":1`)) {
		t.Errorf("summary body: %s", resp.Body())
	}

	w = ut.PerformRequest(h.Engine, "GET", "/api/activity?limit=10", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp = w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("activity status: got %d", resp.StatusCode())
	}
	var out struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Total < 1 {
		t.Errorf("activity total = %d, want >= 1", out.Total)
	}
}

func TestErrorStats(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.GET("/api/errors/stats", func(ctx context.Context, c *app.RequestContext) {
		handler.ErrorStats(ctx, c)
	})

	w := ut.PerformRequest(h.Engine, "GET", "/api/errors/stats", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("error stats status: got %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte(`"window"`)) {
		t.Errorf("error stats body: %s", resp.Body())
	}

	w = ut.PerformRequest(h.Engine, "GET", "/api/errors/stats?window=bogus", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 400 {
		t.Errorf("bogus window status: got %d, want 400", got)
	}
}

func TestErrorStats_RecordedErrors(t *testing.T) {
	classifier := faults.NewClassifier(faults.Config{}, nil)
	hub := statushub.New(statushub.Config{}, nil)
	queue := taskqueue.New(taskqueue.Config{}, classifier, hub, nil)
	docs := appcore.NewDocumentService(metadata.NewMemoryStore(), object.NewMemoryStore(), vector.NewMemoryStore(), "chunks", nil)
	handler := NewHandler(queue, hub, classifier, docs, nil)

	classifier.Classify(task.TypeParsing, context.DeadlineExceeded)

	h := server.Default(server.WithHostPorts(":0"))
	h.GET("/api/errors/stats", func(ctx context.Context, c *app.RequestContext) {
		handler.ErrorStats(ctx, c)
	})
	w := ut.PerformRequest(h.Engine, "GET", "/api/errors/stats?window=5m", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("error stats status: got %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("network_timeout")) {
		t.Errorf("error stats should include recorded pattern: %s", resp.Body())
	}
}

// multipartUpload 构造 multipart 请求体
func multipartUpload(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField %s: %v", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadDocument(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.POST("/api/documents/upload", func(ctx context.Context, c *app.RequestContext) {
		handler.UploadDocument(ctx, c)
	})
	h.GET("/api/documents", func(ctx context.Context, c *app.RequestContext) {
		handler.ListDocuments(ctx, c)
	})

	buf, contentType := multipartUpload(t, "报告.txt", []byte("第一季度统计数据"), map[string]string{
		"tasks":    "parsing",
		"priority": "high",
	})
	w := ut.PerformRequest(h.Engine, "POST", "/api/documents/upload",
		&ut.Body{Body: bytes.NewReader(buf.Bytes()), Len: buf.Len()},
		ut.Header{Key: "Content-Type", Value: contentType})
	resp := w.Result()
	if resp.StatusCode() != 201 {
		t.Fatalf("upload status: got %d, body=%s", resp.StatusCode(), resp.Body())
	}
	var out struct {
		Document struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"document"`
		Tasks []string `json:"tasks"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Document.ID == "" {
		t.Fatal("document id should not be empty")
	}
	if out.Document.Status != "uploaded" {
		t.Errorf("document status = %q, want uploaded", out.Document.Status)
	}
	if len(out.Tasks) != 1 {
		t.Errorf("tasks = %v, want 1 submitted task", out.Tasks)
	}

	w = ut.PerformRequest(h.Engine, "GET", "/api/documents", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp = w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("list status: got %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte(out.Document.ID)) {
		t.Errorf("list body missing uploaded document: %s", resp.Body())
	}
}

func TestUploadDocument_MissingFile(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.POST("/api/documents/upload", func(ctx context.Context, c *app.RequestContext) {
		handler.UploadDocument(ctx, c)
	})

	body := []byte(`{}`)
	w := ut.PerformRequest(h.Engine, "POST", "/api/documents/upload", &ut.Body{Body: bytes.NewReader(body), Len: len(body)})
	resp := w.Result()
	if resp.StatusCode() != 400 {
		t.Errorf("missing file status: got %d, want 400", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("请上传文件")) {
		t.Errorf("missing file body: %s", resp.Body())
	}
}

func TestUploadDocument_BadTaskType(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.POST("/api/documents/upload", func(ctx context.Context, c *app.RequestContext) {
		handler.UploadDocument(ctx, c)
	})

	buf, contentType := multipartUpload(t, "a.txt", []byte("hello"), map[string]string{
		"tasks": "bogus",
	})
	w := ut.PerformRequest(h.Engine, "POST", "/api/documents/upload",
		&ut.Body{Body: bytes.NewReader(buf.Bytes()), Len: buf.Len()},
		ut.Header{Key: "Content-Type", Value: contentType})
	resp := w.Result()
	// 文档已入库，任务提交失败以 202 + task_error 报告
	if resp.StatusCode() != 202 {
		t.Fatalf("bad task type status: got %d, want 202, body=%s", resp.StatusCode(), resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte("task_error")) {
		t.Errorf("bad task type body: %s", resp.Body())
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.GET("/api/documents/:id", func(ctx context.Context, c *app.RequestContext) {
		handler.GetDocument(ctx, c)
	})

	w := ut.PerformRequest(h.Engine, "GET", "/api/documents/no-such-id", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 404 {
		t.Errorf("get missing doc status: got %d, want 404", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("文档不存在")) {
		t.Errorf("get missing doc body: %s", resp.Body())
	}
}

func TestDeleteDocument(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.POST("/api/documents/upload", func(ctx context.Context, c *app.RequestContext) {
		handler.UploadDocument(ctx, c)
	})
	h.DELETE("/api/documents/:id", func(ctx context.Context, c *app.RequestContext) {
		handler.DeleteDocument(ctx, c)
	})

	buf, contentType := multipartUpload(t, "b.txt", []byte("content"), nil)
	w := ut.PerformRequest(h.Engine, "POST", "/api/documents/upload",
		&ut.Body{Body: bytes.NewReader(buf.Bytes()), Len: buf.Len()},
		ut.Header{Key: "Content-Type", Value: contentType})
	var out struct {
		Document struct {
			ID string `json:"id"`
		} `json:"document"`
	}
	if err := json.Unmarshal(w.Result().Body(), &out); err != nil {
		t.Fatalf("unmarshal upload: %v", err)
	}

	w = ut.PerformRequest(h.Engine, "DELETE", "/api/documents/"+out.Document.ID, &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("delete status: got %d, body=%s", resp.StatusCode(), resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(`"deleted":true`)) {
		t.Errorf("delete body: %s", resp.Body())
	}

	// 再删一次应 404
	w = ut.PerformRequest(h.Engine, "DELETE", "/api/documents/"+out.Document.ID, &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 404 {
		t.Errorf("second delete status: got %d, want 404", got)
	}
}

// TestTaskLifecycleThroughAPI 启动 Worker 后通过 API 观察任务到达终态
func TestTaskLifecycleThroughAPI(t *testing.T) {
	handler, queue, _ := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.POST("/api/tasks", func(ctx context.Context, c *app.RequestContext) {
		handler.SubmitTask(ctx, c)
	})
	h.GET("/api/tasks/:id", func(ctx context.Context, c *app.RequestContext) {
		handler.GetTask(ctx, c)
	})

	if err := queue.Start(1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer queue.Stop(time.Second)

	body := []byte(`{"type":"parsing","topic":"doc-1"}`)
	w := ut.PerformRequest(h.Engine, "POST", "/api/tasks", &ut.Body{Body: bytes.NewReader(body), Len: len(body)})
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Result().Body(), &out); err != nil {
		t.Fatalf("unmarshal submit: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		w = ut.PerformRequest(h.Engine, "GET", "/api/tasks/"+out.ID, &ut.Body{Body: bytes.NewReader(nil), Len: 0})
		if bytes.Contains(w.Result().Body(), []byte(`"status":"completed"`)) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task did not complete in time: %s", w.Result().Body())
		}
		time.Sleep(20 * time.Millisecond)
	}
}
