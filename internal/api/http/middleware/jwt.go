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

package middleware

import (
	"time"

	"github.com/hertz-contrib/jwt"
)

// NewJWTAuth 创建 JWT 认证中间件。只做令牌校验与刷新，不提供登录签发：
// 令牌由运维侧用同一密钥签出，请求按 Authorization: Bearer <token> 校验
func NewJWTAuth(key []byte, timeout, maxRefresh time.Duration) (*jwt.HertzJWTMiddleware, error) {
	return jwt.New(&jwt.HertzJWTMiddleware{
		Realm:         "doc-platform",
		Key:           key,
		Timeout:       timeout,
		MaxRefresh:    maxRefresh,
		TokenLookup:   "header: Authorization",
		TokenHeadName: "Bearer",
	})
}
