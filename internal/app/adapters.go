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

package app

import (
	"context"
	"time"

	"doc-platform/internal/statushub"
	"doc-platform/internal/storage/metadata"
	"doc-platform/internal/task"
	"doc-platform/internal/taskqueue"
	"doc-platform/pkg/log"
)

// transitionRecorder 把 StatusHub 的持久化通道落到元数据存储的任务事件表
type transitionRecorder struct {
	store metadata.Store
}

var _ statushub.PersistenceHook = (*transitionRecorder)(nil)

func (r *transitionRecorder) SaveTransition(ctx context.Context, rec statushub.Transition) error {
	return r.store.SaveTaskEvent(ctx, &metadata.TaskEvent{
		TaskID:   rec.TaskID,
		Topic:    rec.Topic,
		Previous: rec.Previous.String(),
		Status:   rec.Status.String(),
		At:       rec.At,
	})
}

// documentStateSink 队列状态下发的前置挡板：原样转发 Hub，并在 parsing/embedding
// 终态失败时把对应文档标记为 failed。analysis/ocr/thumbnail 是增强任务，
// 失败不影响文档可用性
type documentStateSink struct {
	hub    *statushub.Hub
	meta   metadata.Store
	logger *log.Logger
}

var _ taskqueue.StatusSink = (*documentStateSink)(nil)

func (s *documentStateSink) UpdateStatus(snap *task.Task, delta *task.ProgressDelta) {
	s.hub.UpdateStatus(snap, delta)

	if snap == nil || snap.Status != task.StatusFailed {
		return
	}
	if snap.Type != task.TypeParsing && snap.Type != task.TypeEmbedding {
		return
	}
	docID := snap.Config["document_id"]
	if docID == "" {
		docID = snap.Topic
	}
	if docID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	doc, err := s.meta.Get(ctx, docID)
	if err != nil {
		return
	}
	if doc.Status == metadata.StatusFailed {
		return
	}
	doc.Status = metadata.StatusFailed
	if err := s.meta.Update(ctx, doc); err != nil {
		s.logger.Warn("标记文档失败状态出错", "document_id", docID, "error", err)
		return
	}
	s.logger.Info("文档标记为 failed",
		"document_id", docID, "task_id", snap.ID, "task_type", snap.Type)
}
