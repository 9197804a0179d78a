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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
api:
  port: 9000
  host: "127.0.0.1"
queue:
  workers: 8
  max_queue_size: 200
  task_timeout: "120s"
statushub:
  broadcast_interval: "2s"
  global_log_capacity: 500
log:
  level: "debug"
`
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port: got %d", cfg.API.Port)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host: got %q", cfg.API.Host)
	}
	if cfg.Queue.Workers != 8 {
		t.Errorf("Queue.Workers: got %d", cfg.Queue.Workers)
	}
	if cfg.Queue.MaxQueueSize != 200 {
		t.Errorf("Queue.MaxQueueSize: got %d", cfg.Queue.MaxQueueSize)
	}
	if cfg.Queue.TaskTimeout != "120s" {
		t.Errorf("Queue.TaskTimeout: got %q", cfg.Queue.TaskTimeout)
	}
	if cfg.StatusHub.BroadcastInterval != "2s" {
		t.Errorf("StatusHub.BroadcastInterval: got %q", cfg.StatusHub.BroadcastInterval)
	}
	if cfg.StatusHub.GlobalLogCapacity != 500 {
		t.Errorf("StatusHub.GlobalLogCapacity: got %d", cfg.StatusHub.GlobalLogCapacity)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q", cfg.Log.Level)
	}
}

func TestLoadConfig_EmbeddingAPIKeyFromEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
model:
  embedding:
    providers:
      openai:
        api_key: "${TEST_EMBED_KEY}"
        models:
          small:
            name: "text-embedding-3-small"
            dimension: 1536
`
	path := filepath.Join(dir, "model.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	t.Setenv("TEST_EMBED_KEY", "sk-test")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	got := cfg.Model.Embedding.Providers["openai"].APIKey
	if got != "sk-test" {
		t.Errorf("api_key 未替换为环境变量: got %q", got)
	}
}
