// Copyright 2026 fanjia1024
// Environment variable based secret store

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

type envStore struct{}

// NewEnvStore 创建环境变量 secret store。
// 层级 key 规整为环境变量名后再查，如 model/openai/api_key → MODEL_OPENAI_API_KEY
func NewEnvStore() Store {
	return &envStore{}
}

func (e *envStore) Get(ctx context.Context, key string) (string, error) {
	name := envName(key)
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("environment variable not set: %s", name)
	}
	return value, nil
}

func (e *envStore) Set(ctx context.Context, key string, value string) error {
	return os.Setenv(envName(key), value)
}

func (e *envStore) Delete(ctx context.Context, key string) error {
	return os.Unsetenv(envName(key))
}

func (e *envStore) List(ctx context.Context, prefix string) ([]string, error) {
	want := envName(prefix)
	var keys []string
	for _, env := range os.Environ() {
		name, _, ok := strings.Cut(env, "=")
		if ok && strings.HasPrefix(name, want) {
			keys = append(keys, name)
		}
	}
	return keys, nil
}

// envName 把 key 的分隔符换成下划线并转大写
func envName(key string) string {
	mapped := strings.Map(func(r rune) rune {
		switch r {
		case '/', '.', '-':
			return '_'
		default:
			return r
		}
	}, key)
	return strings.ToUpper(mapped)
}
