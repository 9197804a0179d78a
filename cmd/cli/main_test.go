package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseConfigPairs(t *testing.T) {
	cfg := parseConfigPairs([]string{"document_id=doc-1", "lang=zh", "bad", "=nokey"})
	if len(cfg) != 2 {
		t.Fatalf("len = %d, want 2: %v", len(cfg), cfg)
	}
	if cfg["document_id"] != "doc-1" {
		t.Fatalf("document_id = %q", cfg["document_id"])
	}
	if cfg["lang"] != "zh" {
		t.Fatalf("lang = %q", cfg["lang"])
	}
}

func TestSubmitTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tasks" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["type"] != "parsing" {
			t.Errorf("type = %v", body["type"])
		}
		if body["priority"] != "high" {
			t.Errorf("priority = %v", body["priority"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "task-1", "type": "parsing", "priority": "high", "status": "pending",
		})
	}))
	defer srv.Close()
	t.Setenv("DOCP_API_URL", srv.URL)

	out, err := submitTask("parsing", "doc-1", "high", map[string]string{"document_id": "doc-1"})
	if err != nil {
		t.Fatalf("submitTask: %v", err)
	}
	if out["id"] != "task-1" {
		t.Fatalf("id = %v, want task-1", out["id"])
	}
}

func TestGetTaskNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "任务不存在"})
	}))
	defer srv.Close()
	t.Setenv("DOCP_API_URL", srv.URL)

	_, err := getTask("missing")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "任务不存在") {
		t.Fatalf("error should carry response body: %v", err)
	}
}

func TestQueueStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/queue/stats" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"total_submitted": 7, "total_completed": 5, "queue_depth": 2,
		})
	}))
	defer srv.Close()
	t.Setenv("DOCP_API_URL", srv.URL)

	out, err := queueStats()
	if err != nil {
		t.Fatalf("queueStats: %v", err)
	}
	if out["total_submitted"].(float64) != 7 {
		t.Fatalf("total_submitted = %v", out["total_submitted"])
	}
}

func TestAuthTokenHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()
	t.Setenv("DOCP_API_URL", srv.URL)
	t.Setenv("DOCP_TOKEN", "secret-token")

	if _, err := getHealth(); err != nil {
		t.Fatalf("getHealth: %v", err)
	}
}
