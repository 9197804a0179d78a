package http

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	appcore "doc-platform/internal/app"
	"doc-platform/internal/task"
	pkgerrors "doc-platform/pkg/errors"
)

// UploadDocument 上传文档。multipart 字段：
//   - file     原始文件（必填）
//   - tasks    上传后立即提交的任务类型，逗号分隔，如 "parsing,embedding"（可选）
//   - priority 提交任务的优先级（可选，默认 normal）
//
// POST /api/documents/upload
func (h *Handler) UploadDocument(c context.Context, ctx *app.RequestContext) {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "请上传文件",
		})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "读取上传文件失败",
		})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": "读取上传文件失败",
		})
		return
	}

	doc, err := h.docs.UploadDocument(c, fileHeader.Filename, data, nil)
	if err != nil {
		h.logger.Error("上传文档失败", "name", fileHeader.Filename, "error", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error":   "上传文档失败",
			"details": err.Error(),
		})
		return
	}

	taskIDs, err := h.submitUploadTasks(ctx, doc.ID)
	if err != nil {
		// 文档已入库，任务提交失败单独报告，客户端可改走 POST /api/tasks
		ctx.JSON(consts.StatusAccepted, map[string]interface{}{
			"document":   doc,
			"tasks":      taskIDs,
			"task_error": err.Error(),
		})
		return
	}

	ctx.JSON(consts.StatusCreated, map[string]interface{}{
		"document": doc,
		"tasks":    taskIDs,
	})
}

// submitUploadTasks 解析 tasks/priority 表单字段并逐个提交任务
func (h *Handler) submitUploadTasks(ctx *app.RequestContext, docID string) ([]string, error) {
	raw := strings.TrimSpace(ctx.PostForm("tasks"))
	if raw == "" {
		return []string{}, nil
	}
	pri, err := task.ParsePriority(ctx.PostForm("priority"))
	if err != nil {
		return []string{}, err
	}

	ids := make([]string, 0, 4)
	for _, name := range strings.Split(raw, ",") {
		typ, err := task.ParseType(strings.TrimSpace(name))
		if err != nil {
			return ids, err
		}
		t := task.New(typ, pri, docID, map[string]string{"document_id": docID})
		if err := h.queue.Submit(t); err != nil {
			return ids, err
		}
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// ListDocuments 列出文档
// GET /api/documents?status=ready&search=报告&offset=0&limit=20
func (h *Handler) ListDocuments(c context.Context, ctx *app.RequestContext) {
	opts := appcore.DocumentListOptions{
		Status: ctx.Query("status"),
		Search: ctx.Query("search"),
	}
	if v := ctx.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Offset = n
		}
	}
	if v := ctx.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}

	docs, total, err := h.docs.ListDocuments(c, opts)
	if err != nil {
		h.logger.Error("获取文档列表失败", "error", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": "获取文档列表失败",
		})
		return
	}

	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     total,
	})
}

// GetDocument 获取单个文档
// GET /api/documents/:id
func (h *Handler) GetDocument(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	doc, err := h.docs.GetDocument(c, id)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.ErrNotFound) {
			ctx.JSON(consts.StatusNotFound, map[string]string{
				"error": "文档不存在",
			})
			return
		}
		h.logger.Error("获取文档失败", "id", id, "error", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": "获取文档失败",
		})
		return
	}
	ctx.JSON(consts.StatusOK, doc)
}

// DeleteDocument 删除文档及其全部派生数据（原始对象、产物、向量、元数据）
// DELETE /api/documents/:id
func (h *Handler) DeleteDocument(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	if err := h.docs.DeleteDocument(c, id); err != nil {
		if pkgerrors.Is(err, pkgerrors.ErrNotFound) {
			ctx.JSON(consts.StatusNotFound, map[string]string{
				"error": "文档不存在",
			})
			return
		}
		h.logger.Error("删除文档失败", "id", id, "error", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": "删除文档失败",
		})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"id":      id,
		"deleted": true,
	})
}
