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
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Faults     FaultsConfig     `mapstructure:"faults"`
	StatusHub  StatusHubConfig  `mapstructure:"statushub"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Model      ModelConfig      `mapstructure:"model"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Workers      int    `mapstructure:"workers"`        // 固定 Worker 数，<=0 使用默认 4
	MaxQueueSize int    `mapstructure:"max_queue_size"` // 四条优先级队列共享的容量上限，<=0 使用默认 100
	TaskTimeout  string `mapstructure:"task_timeout"`   // 单任务执行超时，如 "300s"，空则默认 300s
	IdlePoll     string `mapstructure:"idle_poll"`      // Worker 空轮询间隔，如 "100ms"
	StopTimeout  string `mapstructure:"stop_timeout"`   // Stop 等待在途任务的默认时长，如 "30s"
}

// FaultsConfig 错误分类与告警配置
type FaultsConfig struct {
	AlertTotalPerMinute   int    `mapstructure:"alert_total_per_minute"`   // 每分钟错误总数告警阈值，<=0 使用默认 10
	AlertPatternPerMinute int    `mapstructure:"alert_pattern_per_minute"` // 单一模式每分钟告警阈值，<=0 使用默认 5
	StatsRetention        string `mapstructure:"stats_retention"`          // 分钟级统计保留时长，如 "24h"
}

// StatusHubConfig 状态中心配置
type StatusHubConfig struct {
	BroadcastInterval string             `mapstructure:"broadcast_interval"` // 队列统计广播间隔，如 "5s"
	GlobalLogCapacity int                `mapstructure:"global_log_capacity"` // 全局状态环形日志容量，<=0 使用默认 1000
	SubscriberBuffer  int                `mapstructure:"subscriber_buffer"`   // 订阅者推送缓冲，<=0 使用默认 16
	CleanupInterval   string             `mapstructure:"cleanup_interval"`    // 历史清理周期，空则不自动清理
	HistoryTTL        string             `mapstructure:"history_ttl"`         // 终态任务历史保留时长，如 "24h"
	Redis             RedisChannelConfig `mapstructure:"redis"`
}

// RedisChannelConfig 状态变更的 Redis 发布通道（可选）
type RedisChannelConfig struct {
	Enable  bool   `mapstructure:"enable"`
	Channel string `mapstructure:"channel"` // PUBLISH 频道名，空则默认 "task_updates"
	Buffer  int    `mapstructure:"buffer"`  // 发布缓冲，满则丢弃并计数
}

// APIConfig API 服务配置
type APIConfig struct {
	Port       int              `mapstructure:"port"`
	Host       string           `mapstructure:"host"`
	Timeout    string           `mapstructure:"timeout"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	Auth          bool   `mapstructure:"auth"`
	RateLimit     bool   `mapstructure:"rate_limit"`
	RateLimitRPS  int    `mapstructure:"rate_limit_rps"`
	JWTKey        string `mapstructure:"jwt_key"`
	JWTTimeout    string `mapstructure:"jwt_timeout"`     // 如 "1h"
	JWTMaxRefresh string `mapstructure:"jwt_max_refresh"` // 如 "1h"
}

// WorkerConfig 批处理 Worker 配置（本地目录批量入库）
type WorkerConfig struct {
	InputDir string   `mapstructure:"input_dir"` // 待处理文件目录
	Topic    string   `mapstructure:"topic"`     // 提交任务所属主题，空则按文件名生成
	Tasks    []string `mapstructure:"tasks"`     // 每个文件提交的任务类型列表，如 ["parsing","embedding"]
	Priority string   `mapstructure:"priority"`  // 提交优先级，如 "normal"
}

// ModelConfig 模型配置
type ModelConfig struct {
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
}

// EmbeddingConfig Embedding 模型配置
type EmbeddingConfig struct {
	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig 模型提供商配置
type ProviderConfig struct {
	APIKey  string               `mapstructure:"api_key"`
	BaseURL string               `mapstructure:"base_url"`
	Models  map[string]ModelInfo `mapstructure:"models"`
	Limits  *ProviderLimitConfig `mapstructure:"limits"` // 为空则不限流
}

// ProviderLimitConfig 提供商维度限流配置
type ProviderLimitConfig struct {
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	TokensPerMinute   int     `mapstructure:"tokens_per_minute"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
}

// ModelInfo 模型信息
type ModelInfo struct {
	Name       string `mapstructure:"name"`
	Dimension  int    `mapstructure:"dimension"`
	InputLimit int    `mapstructure:"input_limit"`
}

// DefaultsConfig 默认模型配置
type DefaultsConfig struct {
	Embedding string `mapstructure:"embedding"` // 如 "openai.text_embedding_3_small"；空则使用内置本地向量化
}

// StorageConfig 存储配置
type StorageConfig struct {
	Metadata MetadataConfig `mapstructure:"metadata"`
	Vector   VectorConfig   `mapstructure:"vector"`
	Object   ObjectConfig   `mapstructure:"object"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// MetadataConfig 元数据存储配置
type MetadataConfig struct {
	Type     string `mapstructure:"type"` // memory | postgres
	DSN      string `mapstructure:"dsn"`  // Postgres 连接串，type=postgres 时必填
	PoolSize int    `mapstructure:"pool_size"`
}

// VectorConfig 向量存储配置
type VectorConfig struct {
	Type       string `mapstructure:"type"`       // memory
	Collection string `mapstructure:"collection"` // 默认索引名，空则 "chunks"
}

// ObjectConfig 对象存储配置
type ObjectConfig struct {
	Type    string `mapstructure:"type"`     // memory | file
	BaseDir string `mapstructure:"base_dir"` // type=file 时的根目录
}

// CacheConfig Redis 连接配置（状态发布通道使用）
type CacheConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// SecretsConfig secret 存储配置
type SecretsConfig struct {
	Provider        string `mapstructure:"provider"` // memory | env | vault
	VaultAddress    string `mapstructure:"vault_address"`
	VaultToken      string `mapstructure:"vault_token"`
	VaultPathPrefix string `mapstructure:"vault_path_prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	// 替换环境变量
	if err := replaceEnvVars(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// replaceEnvVars 替换配置中的环境变量（形如 ${OPENAI_API_KEY} 的 api_key）
func replaceEnvVars(config *Config) error {
	for provider, providerConfig := range config.Model.Embedding.Providers {
		if strings.HasPrefix(providerConfig.APIKey, "$") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(providerConfig.APIKey, "}"), "${")
			if val := os.Getenv(envVar); val != "" {
				providerConfig.APIKey = val
				config.Model.Embedding.Providers[provider] = providerConfig
			}
		}
	}

	if strings.HasPrefix(config.Secrets.VaultToken, "$") {
		envVar := strings.TrimPrefix(strings.TrimSuffix(config.Secrets.VaultToken, "}"), "${")
		if val := os.Getenv(envVar); val != "" {
			config.Secrets.VaultToken = val
		}
	}

	return nil
}

// LoadAPIConfig 加载 API 配置（仅 configs/api.yaml）
func LoadAPIConfig() (*Config, error) {
	return LoadConfig("configs/api.yaml")
}

// LoadAPIConfigWithModel 加载 API 配置并合并 model 配置，便于在 API 进程内执行 Embedding 任务；
// storage 仍来自 api.yaml（缺省为 memory）
func LoadAPIConfigWithModel() (*Config, error) {
	cfg, err := LoadConfig("configs/api.yaml")
	if err != nil {
		return nil, err
	}
	modelCfg, err := LoadConfig("configs/model.yaml")
	if err == nil {
		cfg.Model = modelCfg.Model
	}
	return cfg, nil
}

// LoadWorkerConfig 加载批处理 Worker 配置（仅 configs/worker.yaml）
func LoadWorkerConfig() (*Config, error) {
	return LoadConfig("configs/worker.yaml")
}

// LoadWorkerConfigWithModel 加载 Worker 配置并合并 model 配置。
// model 路径解析为与 worker 配置同目录（configs/），避免 cwd 导致 model.yaml 未加载。
func LoadWorkerConfigWithModel() (*Config, error) {
	cfg, err := LoadConfig("configs/worker.yaml")
	if err != nil {
		return nil, err
	}
	modelPath := "configs/model.yaml"
	if absWorker, errAbs := filepath.Abs("configs/worker.yaml"); errAbs == nil {
		modelPath = filepath.Join(filepath.Dir(absWorker), "model.yaml")
	}
	modelCfg, err := LoadConfig(modelPath)
	if err == nil {
		cfg.Model = modelCfg.Model
	} else {
		log.Printf("[config] 未加载 model 配置 %q，Embedding 将使用内置本地向量化: %v", modelPath, err)
	}
	return cfg, nil
}
