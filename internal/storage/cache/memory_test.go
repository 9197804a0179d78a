package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "doc-platform/pkg/errors"
)

func TestMemoryStore_Set_Get_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var v string
	if err := s.Get(ctx, "k1", &v); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "v1" {
		t.Errorf("Get: got %q", v)
	}
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Get(ctx, "k1", &v); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("Get after Delete: %v", err)
	}
	// 缓存语义：删除不存在的键不报错
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	var v string
	if err := s.Get(ctx, "missing", &v); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("Get missing: %v", err)
	}
}

func TestMemoryStore_StructValue(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	type entry struct {
		ID     string    `json:"id"`
		Vector []float64 `json:"vector"`
	}
	if err := s.Set(ctx, "emb:abc", entry{ID: "c1", Vector: []float64{0.1, 0.2}}, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var got entry
	if err := s.Get(ctx, "emb:abc", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "c1" || len(got.Vector) != 2 {
		t.Errorf("Get: %+v", got)
	}
}

func TestMemoryStore_Expiration(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, "short", "v", 5*time.Millisecond)
	_ = s.Set(ctx, "long", "v", time.Hour)

	time.Sleep(20 * time.Millisecond)

	var v string
	if err := s.Get(ctx, "short", &v); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("过期键应返回 ErrNotFound: %v", err)
	}
	ok, _ := s.Exists(ctx, "short")
	if ok {
		t.Error("过期键 Exists 应为 false")
	}
	if err := s.Get(ctx, "long", &v); err != nil {
		t.Errorf("未过期键: %v", err)
	}
}

func TestMemoryStore_Exists(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ok, err := s.Exists(ctx, "k")
	if err != nil || ok {
		t.Errorf("Exists missing: ok=%v err=%v", ok, err)
	}
	_ = s.Set(ctx, "k", "v", 0)
	ok, err = s.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists present: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, "k1", "v1", 0)
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	var v string
	if err := s.Get(ctx, "k1", &v); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("Get after Clear: %v", err)
	}
}
