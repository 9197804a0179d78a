// Copyright 2026 fanjia1024
// HashiCorp Vault secret store

package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig Vault 配置
type VaultConfig struct {
	Address    string `yaml:"address"`     // Vault server address (e.g., http://vault:8200)
	Token      string `yaml:"token"`       // Vault token
	PathPrefix string `yaml:"path_prefix"` // 如 "secret/data/doc-platform"（KV v2）或 "secret/doc-platform"（KV v1）
}

// vaultStore KV 存储。path_prefix 含 /data 段时按 KV v2 访问：
// 值嵌套在 data 字段内，列表走 metadata 路径；否则按 KV v1 直读
type vaultStore struct {
	client *vault.Client
	prefix string
	kv2    bool
	mu     sync.RWMutex
	recent map[string]string // 本进程写入值的读缓存
}

// NewVaultStore 创建 Vault secret store；启动时做一次健康检查，连不上直接失败
func NewVaultStore(config VaultConfig) (Store, error) {
	if config.Address == "" {
		config.Address = "http://localhost:8200"
	}

	cfg := vault.DefaultConfig()
	cfg.Address = config.Address

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if config.Token != "" {
		client.SetToken(config.Token)
	}
	if _, err := client.Sys().Health(); err != nil {
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}

	prefix := strings.Trim(config.PathPrefix, "/")
	if prefix == "" {
		prefix = "secret/data/doc-platform"
	}

	return &vaultStore{
		client: client,
		prefix: prefix,
		kv2:    strings.Contains(prefix+"/", "/data/"),
		recent: make(map[string]string),
	}, nil
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	v.mu.RLock()
	if val, ok := v.recent[key]; ok {
		v.mu.RUnlock()
		return val, nil
	}
	v.mu.RUnlock()

	secret, err := v.client.Logical().ReadWithContext(ctx, v.dataPath(key))
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil {
		return "", fmt.Errorf("secret not found: %s", key)
	}

	data := secret.Data
	if v.kv2 {
		inner, ok := data["data"].(map[string]interface{})
		if !ok {
			return "", fmt.Errorf("secret not found: %s", key)
		}
		data = inner
	}
	if val, ok := data["value"].(string); ok {
		return val, nil
	}
	// 没有 value 字段时取第一个字符串值
	for _, raw := range data {
		if s, ok := raw.(string); ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("secret value not found: %s", key)
}

func (v *vaultStore) Set(ctx context.Context, key string, value string) error {
	payload := map[string]interface{}{"value": value}
	if v.kv2 {
		payload = map[string]interface{}{"data": payload}
	}
	if _, err := v.client.Logical().WriteWithContext(ctx, v.dataPath(key), payload); err != nil {
		return fmt.Errorf("failed to write secret to vault: %w", err)
	}

	v.mu.Lock()
	v.recent[key] = value
	v.mu.Unlock()
	return nil
}

func (v *vaultStore) Delete(ctx context.Context, key string) error {
	if _, err := v.client.Logical().DeleteWithContext(ctx, v.dataPath(key)); err != nil {
		return fmt.Errorf("failed to delete secret from vault: %w", err)
	}

	v.mu.Lock()
	delete(v.recent, key)
	v.mu.Unlock()
	return nil
}

// List 列出 prefix 下的 secret key；KV v2 的列表操作走 metadata 路径
func (v *vaultStore) List(ctx context.Context, prefix string) ([]string, error) {
	searchPath := v.listPath()
	cleaned := strings.Trim(prefix, "/")
	if cleaned != "" {
		searchPath = searchPath + "/" + cleaned
	}

	secret, err := v.client.Logical().ListWithContext(ctx, searchPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets from vault: %w", err)
	}
	if secret == nil {
		return nil, nil
	}
	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}

	var result []string
	for _, k := range keys {
		s, ok := k.(string)
		if !ok {
			continue
		}
		if cleaned != "" && !strings.HasPrefix(s, cleaned) {
			s = cleaned + "/" + s
		}
		result = append(result, s)
	}
	return result, nil
}

// dataPath 数据读写路径：<prefix>/<key>
func (v *vaultStore) dataPath(key string) string {
	return v.prefix + "/" + strings.Trim(key, "/")
}

// listPath KV v2 的列表路径把 data 段换成 metadata（secret/data/x → secret/metadata/x）
func (v *vaultStore) listPath() string {
	if !v.kv2 {
		return v.prefix
	}
	if strings.HasSuffix(v.prefix, "/data") {
		return strings.TrimSuffix(v.prefix, "/data") + "/metadata"
	}
	return strings.Replace(v.prefix, "/data/", "/metadata/", 1)
}
