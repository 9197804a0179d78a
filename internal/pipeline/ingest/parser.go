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

// Package ingest 负责把上传的原始字节变成可切片、可向量化的纯文本。
// DetectContentType 判定文档类型，DocumentParser 按类型路由到对应解析器。
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"doc-platform/internal/pipeline/common"
)

// Parser 将某一类内容的原始字节解析为纯文本
type Parser interface {
	// Parse 提取 data 中的正文文本，失败时返回携带 common.ErrParsingFailed 的错误
	Parse(ctx context.Context, data []byte) (string, error)
	// Supports 报告该解析器是否处理 contentType
	Supports(contentType string) bool
}

// DocumentParser 按内容类型把文档路由到已注册的解析器。
// 查找顺序：精确匹配 → 同族通配（如 text/*）→ 失败。
type DocumentParser struct {
	parsers map[string]Parser
}

// NewDocumentParser 创建带内置解析器的注册表，覆盖 text/plain、text/markdown、
// text/html、application/json、application/x-ndjson、application/pdf
func NewDocumentParser() *DocumentParser {
	p := &DocumentParser{parsers: make(map[string]Parser)}

	p.Register("text/plain", &TextParser{})
	p.Register("text/*", &TextParser{})
	p.Register("text/markdown", &MarkdownParser{})
	p.Register("text/html", &HTMLParser{})
	p.Register("application/json", &JSONParser{})
	p.Register("application/x-ndjson", &JSONLParser{})
	p.Register("application/jsonl", &JSONLParser{})
	p.Register("application/pdf", &PDFParser{})

	return p
}

// Register 注册或替换 contentType 对应的解析器。
// 支持 "<族>/*" 形式的通配键作为同族回退。
func (p *DocumentParser) Register(contentType string, parser Parser) {
	p.parsers[contentType] = parser
}

// Parse 解析指定类型的文档内容
func (p *DocumentParser) Parse(ctx context.Context, contentType string, data []byte) (string, error) {
	parser, err := p.selectParser(contentType)
	if err != nil {
		return "", err
	}
	return parser.Parse(ctx, data)
}

// Supported 返回所有已注册的内容类型，按字典序排列
func (p *DocumentParser) Supported() []string {
	types := make([]string, 0, len(p.parsers))
	for ct := range p.parsers {
		types = append(types, ct)
	}
	sort.Strings(types)
	return types
}

func (p *DocumentParser) selectParser(contentType string) (Parser, error) {
	if parser, ok := p.parsers[contentType]; ok {
		return parser, nil
	}
	// 同族回退：text/csv 等未单独注册的文本子类型按纯文本处理
	if i := strings.Index(contentType, "/"); i > 0 {
		if parser, ok := p.parsers[contentType[:i]+"/*"]; ok {
			return parser, nil
		}
	}
	return nil, fmt.Errorf("%w: 不支持的内容类型 %s", common.ErrParsingFailed, contentType)
}

// TextParser 处理纯文本，仅做编码校验和换行归一
type TextParser struct{}

// Parse 解析文本
func (p *TextParser) Parse(ctx context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: 内容不是合法的 UTF-8 文本", common.ErrParsingFailed)
	}
	return normalizeText(string(data)), nil
}

// Supports 支持的内容类型
func (p *TextParser) Supports(contentType string) bool {
	return strings.HasPrefix(contentType, "text/")
}

// MarkdownParser 处理 Markdown。正文标记留给切片器按段落切分，
// 这里只剥离 YAML front matter 并归一换行。
type MarkdownParser struct{}

// Parse 解析 Markdown
func (p *MarkdownParser) Parse(ctx context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: 内容不是合法的 UTF-8 文本", common.ErrParsingFailed)
	}
	return normalizeText(stripFrontMatter(string(data))), nil
}

// Supports 支持的内容类型
func (p *MarkdownParser) Supports(contentType string) bool {
	return contentType == "text/markdown"
}

// stripFrontMatter 去掉文档开头 "---" 包裹的 YAML front matter 块
func stripFrontMatter(content string) string {
	rest, ok := strings.CutPrefix(content, "---\n")
	if !ok {
		return content
	}
	if _, body, found := strings.Cut(rest, "\n---\n"); found {
		return body
	}
	return content
}

// HTMLParser 提取 HTML 正文文本，跳过 script/style 等不可读节点
type HTMLParser struct{}

// Parse 解析 HTML
func (p *HTMLParser) Parse(ctx context.Context, data []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: 解析 HTML: %v", common.ErrParsingFailed, err)
	}

	var buf strings.Builder
	collectText(root, &buf)
	return normalizeText(buf.String()), nil
}

// Supports 支持的内容类型
func (p *HTMLParser) Supports(contentType string) bool {
	return contentType == "text/html"
}

func collectText(n *html.Node, buf *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		}
	}
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			buf.WriteString(text)
			buf.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, buf)
	}
}

// JSONParser 把 JSON 文档展平成 "路径: 值" 的行文本，使字段值可被检索。
// 对象键按字典序遍历，保证输出稳定。
type JSONParser struct{}

// Parse 解析 JSON
func (p *JSONParser) Parse(ctx context.Context, data []byte) (string, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("%w: 非法 JSON: %v", common.ErrParsingFailed, err)
	}

	var lines []string
	flattenJSON("", v, &lines)
	return strings.Join(lines, "\n"), nil
}

// Supports 支持的内容类型
func (p *JSONParser) Supports(contentType string) bool {
	return contentType == "application/json"
}

func flattenJSON(path string, v interface{}, lines *[]string) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenJSON(joinJSONPath(path, k), val[k], lines)
		}
	case []interface{}:
		for i, item := range val {
			flattenJSON(fmt.Sprintf("%s[%d]", path, i), item, lines)
		}
	case nil:
		// null 不产生可检索文本
	default:
		if path == "" {
			*lines = append(*lines, fmt.Sprintf("%v", val))
			return
		}
		*lines = append(*lines, fmt.Sprintf("%s: %v", path, val))
	}
}

func joinJSONPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// JSONLParser 逐行解析 JSON Lines（NDJSON）：每行独立展平，记录之间以空行
// 分隔，行边界即切片器的天然段落边界。空行跳过，任何一行非法即整体失败。
type JSONLParser struct{}

// Parse 解析 JSONL
func (p *JSONLParser) Parse(ctx context.Context, data []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var blocks []string
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var v interface{}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return "", fmt.Errorf("%w: 第 %d 行非法 JSON: %v", common.ErrParsingFailed, lineNo, err)
		}
		var lines []string
		flattenJSON("", v, &lines)
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("%w: 读取 JSONL: %v", common.ErrParsingFailed, err)
	}
	return strings.Join(blocks, "\n\n"), nil
}

// Supports 支持的内容类型
func (p *JSONLParser) Supports(contentType string) bool {
	return contentType == "application/x-ndjson" || contentType == "application/jsonl"
}

// PDFParser 通过 unipdf 按页提取 PDF 正文
type PDFParser struct{}

// Parse 解析 PDF
func (p *PDFParser) Parse(ctx context.Context, data []byte) (string, error) {
	text, err := extractPDFText(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrParsingFailed, err)
	}
	return text, nil
}

// Supports 支持的内容类型
func (p *PDFParser) Supports(contentType string) bool {
	return contentType == "application/pdf"
}

// normalizeText 统一换行符并去掉首尾空白
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}
