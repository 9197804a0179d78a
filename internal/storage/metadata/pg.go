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

package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgerrors "doc-platform/pkg/errors"
)

// PgStore PostgreSQL 实现，使用 documents 与 task_events 两张表。
// 建表由部署侧负责：
//
//	documents(id text primary key, name text, content_type text, size bigint,
//	          path text, status text, chunks int, vector_count int,
//	          metadata jsonb, created_at timestamptz, updated_at timestamptz)
//	task_events(id bigserial primary key, task_id text, topic text,
//	            previous text, status text, at timestamptz)
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore 创建基于 PostgreSQL 的元数据存储
func NewPostgresStore(ctx context.Context, dsn string, poolSize int) (*PgStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if poolSize > 0 {
		config.MaxConns = int32(poolSize)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PgStore{pool: pool}, nil
}

// Create 实现 Store
func (s *PgStore) Create(ctx context.Context, doc *Document) error {
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, name, content_type, size, path, status, chunks, vector_count, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
ON CONFLICT (id) DO NOTHING`,
		doc.ID, doc.Name, doc.ContentType, doc.Size, doc.Path, doc.Status, doc.Chunks, doc.VectorCount, metaJSON,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.Wrapf(pkgerrors.ErrConflict, "文档 %s 已存在", doc.ID)
	}
	return nil
}

// Get 实现 Store
func (s *PgStore) Get(ctx context.Context, id string) (*Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, content_type, size, path, status, chunks, vector_count, metadata, created_at, updated_at
FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "文档 %s", id)
		}
		return nil, err
	}
	return doc, nil
}

// Update 实现 Store
func (s *PgStore) Update(ctx context.Context, doc *Document) error {
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET name = $2, content_type = $3, size = $4, path = $5, status = $6,
chunks = $7, vector_count = $8, metadata = $9, updated_at = now() WHERE id = $1`,
		doc.ID, doc.Name, doc.ContentType, doc.Size, doc.Path, doc.Status, doc.Chunks, doc.VectorCount, metaJSON,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.Wrapf(pkgerrors.ErrNotFound, "文档 %s", doc.ID)
	}
	return nil
}

// Delete 实现 Store
func (s *PgStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.Wrapf(pkgerrors.ErrNotFound, "文档 %s", id)
	}
	return nil
}

// List 实现 Store
func (s *PgStore) List(ctx context.Context, filter *Filter, page *Pagination) ([]*Document, error) {
	where, args := buildWhere(filter)
	query := `SELECT id, name, content_type, size, path, status, chunks, vector_count, metadata, created_at, updated_at
FROM documents` + where + ` ORDER BY created_at DESC, id`
	if page != nil {
		if page.Limit > 0 {
			args = append(args, page.Limit)
			query += fmt.Sprintf(" LIMIT $%d", len(args))
		}
		if page.Offset > 0 {
			args = append(args, page.Offset)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Count 实现 Store
func (s *PgStore) Count(ctx context.Context, filter *Filter) (int64, error) {
	where, args := buildWhere(filter)
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM documents`+where, args...).Scan(&count)
	return count, err
}

// SaveTaskEvent 实现 Store
func (s *PgStore) SaveTaskEvent(ctx context.Context, ev *TaskEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_events (task_id, topic, previous, status, at) VALUES ($1, $2, $3, $4, $5)`,
		ev.TaskID, ev.Topic, ev.Previous, ev.Status, ev.At,
	)
	return err
}

// ListTaskEvents 实现 Store
func (s *PgStore) ListTaskEvents(ctx context.Context, taskID string, limit int) ([]*TaskEvent, error) {
	query := `SELECT task_id, topic, previous, status, at FROM task_events WHERE task_id = $1 ORDER BY at`
	args := []interface{}{taskID}
	if limit > 0 {
		args = append(args, limit)
		query = `SELECT task_id, topic, previous, status, at FROM (
  SELECT task_id, topic, previous, status, at FROM task_events WHERE task_id = $1 ORDER BY at DESC LIMIT $2
) sub ORDER BY at`
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TaskEvent
	for rows.Next() {
		var ev TaskEvent
		if err := rows.Scan(&ev.TaskID, &ev.Topic, &ev.Previous, &ev.Status, &ev.At); err != nil {
			return nil, err
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// Close 关闭连接池
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}

// rowScanner pgx.Row 与 pgx.Rows 的公共 Scan 面
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var metaBytes []byte
	err := row.Scan(&doc.ID, &doc.Name, &doc.ContentType, &doc.Size, &doc.Path, &doc.Status,
		&doc.Chunks, &doc.VectorCount, &metaBytes, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(metaBytes) > 0 {
		_ = json.Unmarshal(metaBytes, &doc.Metadata)
	}
	return &doc, nil
}

// buildWhere 由过滤条件拼 WHERE 子句；空条件返回空串
func buildWhere(filter *Filter) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if len(filter.IDs) > 0 {
		add("id = ANY($%d)", filter.IDs)
	}
	if len(filter.Statuses) > 0 {
		add("status = ANY($%d)", filter.Statuses)
	}
	if len(filter.ContentTypes) > 0 {
		add("content_type = ANY($%d)", filter.ContentTypes)
	}
	if filter.Search != "" {
		add("name ILIKE $%d", "%"+filter.Search+"%")
	}
	for key, value := range filter.Metadata {
		args = append(args, key, value)
		conds = append(conds, fmt.Sprintf("metadata->>$%d = $%d", len(args)-1, len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
