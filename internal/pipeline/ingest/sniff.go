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

package ingest

import (
	"net/http"
	"path/filepath"
	"strings"
)

// extByType 按文件后缀判定内容类型，后缀比内容嗅探更可靠（嗅探分不出 markdown 和 plain text）
var extByType = map[string]string{
	".txt":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".html":     "text/html",
	".htm":      "text/html",
	".json":     "application/json",
	".jsonl":    "application/x-ndjson",
	".ndjson":   "application/x-ndjson",
	".pdf":      "application/pdf",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".gif":      "image/gif",
	".webp":     "image/webp",
}

// DetectContentType 推断文档的 MIME 类型：先看文件名后缀，后缀未知时嗅探内容前 512 字节。
// 两者都失败返回 application/octet-stream。
func DetectContentType(filename string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := extByType[ext]; ok {
		return ct
	}

	if len(data) > 0 {
		ct := http.DetectContentType(data)
		// DetectContentType 会附带 "; charset=utf-8" 之类的参数，统一剥掉
		if i := strings.Index(ct, ";"); i >= 0 {
			ct = strings.TrimSpace(ct[:i])
		}
		return ct
	}

	return "application/octet-stream"
}
