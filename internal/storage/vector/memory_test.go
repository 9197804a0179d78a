package vector

import (
	"context"
	"errors"
	"testing"

	pkgerrors "doc-platform/pkg/errors"
)

func TestMemoryStore_Create_Add_Search(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Create(ctx, &Index{Name: "idx1", Dimension: 2, Distance: "cosine"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	vecs := []*Vector{
		{ID: "v1", Values: []float64{1, 0}, Metadata: map[string]string{"doc": "d1"}},
		{ID: "v2", Values: []float64{0, 1}, Metadata: map[string]string{"doc": "d2"}},
	}
	if err := s.Add(ctx, "idx1", vecs); err != nil {
		t.Fatalf("Add: %v", err)
	}
	results, err := s.Search(ctx, "idx1", []float64{1, 0}, &SearchOptions{TopK: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search: 期望 2 条，实际 %d", len(results))
	}
	if results[0].ID != "v1" {
		t.Errorf("Search: 余弦相似度应使 v1 居首，实际 %s", results[0].ID)
	}
	if results[0].Values != nil {
		t.Error("默认不应返回向量值")
	}
}

func TestMemoryStore_Search_FilterThresholdVectors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Create(ctx, &Index{Name: "i", Dimension: 2})
	_ = s.Add(ctx, "i", []*Vector{
		{ID: "a", Values: []float64{1, 0}, Metadata: map[string]string{"doc": "d1"}},
		{ID: "b", Values: []float64{0.9, 0.1}, Metadata: map[string]string{"doc": "d2"}},
		{ID: "c", Values: []float64{0, 1}, Metadata: map[string]string{"doc": "d1"}},
	})

	// 元数据过滤
	got, err := s.Search(ctx, "i", []float64{1, 0}, &SearchOptions{TopK: 10, Filter: map[string]string{"doc": "d1"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" {
		t.Errorf("Filter: %+v", got)
	}

	// 阈值过滤掉正交向量
	got, _ = s.Search(ctx, "i", []float64{1, 0}, &SearchOptions{TopK: 10, Threshold: 0.5})
	for _, r := range got {
		if r.ID == "c" {
			t.Error("阈值应滤掉正交向量 c")
		}
	}

	// IncludeVectors 返回向量值
	got, _ = s.Search(ctx, "i", []float64{1, 0}, &SearchOptions{TopK: 1, IncludeVectors: true})
	if len(got) != 1 || len(got[0].Values) != 2 {
		t.Errorf("IncludeVectors: %+v", got)
	}
}

func TestMemoryStore_Create_DuplicateIndex(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Create(ctx, &Index{Name: "x", Dimension: 2})
	err := s.Create(ctx, &Index{Name: "x", Dimension: 2})
	if !errors.Is(err, pkgerrors.ErrConflict) {
		t.Errorf("重复创建索引: %v", err)
	}
}

func TestMemoryStore_Add_IndexNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	err := s.Add(ctx, "missing", []*Vector{{ID: "v1", Values: []float64{1}}})
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("Add: %v", err)
	}
}

func TestMemoryStore_Add_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Create(ctx, &Index{Name: "i", Dimension: 2})
	err := s.Add(ctx, "i", []*Vector{
		{ID: "ok", Values: []float64{1, 0}},
		{ID: "bad", Values: []float64{1, 0, 0}},
	})
	if !errors.Is(err, pkgerrors.ErrInvalidArg) {
		t.Errorf("维度不符: %v", err)
	}
	// 整批拒绝，合法向量也不应写入
	if _, err := s.Get(ctx, "i", "ok"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("维度不符应整批拒绝: %v", err)
	}
}

func TestMemoryStore_Get_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Create(ctx, &Index{Name: "i", Dimension: 1})
	_ = s.Add(ctx, "i", []*Vector{{ID: "v1", Values: []float64{1}}})

	v, err := s.Get(ctx, "i", "v1")
	if err != nil || v.ID != "v1" {
		t.Fatalf("Get: %v %+v", err, v)
	}
	if err := s.Delete(ctx, "i", "v1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "i", "v1"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("Get after Delete: %v", err)
	}
	if err := s.Delete(ctx, "i", "v1"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("Delete twice: %v", err)
	}
}

func TestMemoryStore_DeleteIndex_List(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Create(ctx, &Index{Name: "b", Dimension: 1})
	_ = s.Create(ctx, &Index{Name: "a", Dimension: 1})

	names, _ := s.ListIndexes(ctx)
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("ListIndexes: %v", names)
	}
	if err := s.DeleteIndex(ctx, "a"); err != nil {
		t.Fatalf("DeleteIndex: %v", err)
	}
	names, _ = s.ListIndexes(ctx)
	if len(names) != 1 || names[0] != "b" {
		t.Errorf("ListIndexes after delete: %v", names)
	}
}

func TestEnsureIndex_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := EnsureIndex(ctx, s, "emb", 4, ""); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if err := EnsureIndex(ctx, s, "emb", 4, ""); err != nil {
		t.Fatalf("EnsureIndex 重复调用: %v", err)
	}
	names, _ := s.ListIndexes(ctx)
	if len(names) != 1 {
		t.Errorf("EnsureIndex 应幂等: %v", names)
	}
}
