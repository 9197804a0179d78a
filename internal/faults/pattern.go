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

package faults

import (
	"errors"
	"strings"
	"time"

	"doc-platform/internal/task"
)

// Category 故障类别
type Category int

const (
	CategoryTransient Category = iota
	CategoryRateLimited
	CategoryResource
	CategoryConfiguration
	CategoryData
	CategorySystem
	CategoryPermanent
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryResource:
		return "resource"
	case CategoryConfiguration:
		return "configuration"
	case CategoryData:
		return "data"
	case CategorySystem:
		return "system"
	case CategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Strategy 重试延迟策略
type Strategy int

const (
	StrategyImmediate Strategy = iota
	StrategyLinear
	StrategyExponential
	StrategyFixed
)

func (s Strategy) String() string {
	switch s {
	case StrategyImmediate:
		return "immediate"
	case StrategyLinear:
		return "linear"
	case StrategyExponential:
		return "exponential"
	case StrategyFixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// HandlerFunc 模式命中后的回调（Pattern.Handler 与类别级恢复回调共用签名）
type HandlerFunc func(taskType task.Type, p *Pattern, err error)

// Pattern 故障模式：匹配谓词 + 类别 + 重试策略，注册后只读
type Pattern struct {
	Name       string
	Category   Category
	Strategy   Strategy
	MaxRetries int
	BaseDelay  time.Duration
	// MaxDelay 延迟上限；0 表示不设上限
	MaxDelay time.Duration

	// 匹配谓词，任一命中即匹配
	Codes      []string // 匹配 task.Error.Code
	Targets    []error  // errors.Is 匹配的哨兵错误
	Substrings []string // 错误消息子串（忽略大小写）

	// Handler 可选：命中后先于类别级恢复回调执行
	Handler HandlerFunc
}

// Matches 判断错误是否命中该模式
func (p *Pattern) Matches(err error) bool {
	if err == nil {
		return false
	}
	var te *task.Error
	if errors.As(err, &te) && te.Code != "" {
		for _, code := range p.Codes {
			if te.Code == code {
				return true
			}
		}
	}
	for _, target := range p.Targets {
		if target != nil && errors.Is(err, target) {
			return true
		}
	}
	if len(p.Substrings) > 0 {
		msg := strings.ToLower(err.Error())
		for _, sub := range p.Substrings {
			if strings.Contains(msg, strings.ToLower(sub)) {
				return true
			}
		}
	}
	return false
}
