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
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"doc-platform/internal/pipeline/common"
)

func TestDocumentParser_RoutesByContentType(t *testing.T) {
	p := NewDocumentParser()
	ctx := context.Background()

	text, err := p.Parse(ctx, "text/plain", []byte("hello\r\nworld\r\n"))
	if err != nil {
		t.Fatalf("Parse text/plain: %v", err)
	}
	if text != "hello\nworld" {
		t.Errorf("text = %q, want %q", text, "hello\nworld")
	}

	// 未单独注册的文本子类型走 text/* 回退
	text, err = p.Parse(ctx, "text/csv", []byte("a,b,c"))
	if err != nil {
		t.Fatalf("Parse text/csv: %v", err)
	}
	if text != "a,b,c" {
		t.Errorf("text = %q, want %q", text, "a,b,c")
	}
}

func TestDocumentParser_UnsupportedType(t *testing.T) {
	p := NewDocumentParser()

	_, err := p.Parse(context.Background(), "image/png", []byte{0x89, 0x50})
	if !errors.Is(err, common.ErrParsingFailed) {
		t.Fatalf("err = %v, want ErrParsingFailed", err)
	}
	if !strings.Contains(err.Error(), "image/png") {
		t.Errorf("错误信息应包含内容类型: %v", err)
	}
}

func TestDocumentParser_RegisterOverride(t *testing.T) {
	p := NewDocumentParser()
	p.Register("text/plain", &upperParser{})

	text, err := p.Parse(context.Background(), "text/plain", []byte("abc"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if text != "ABC" {
		t.Errorf("text = %q, 自定义解析器未生效", text)
	}
}

type upperParser struct{}

func (u *upperParser) Parse(ctx context.Context, data []byte) (string, error) {
	return strings.ToUpper(string(data)), nil
}

func (u *upperParser) Supports(contentType string) bool { return contentType == "text/plain" }

func TestTextParser_RejectsInvalidUTF8(t *testing.T) {
	p := &TextParser{}

	_, err := p.Parse(context.Background(), []byte{0xff, 0xfe, 0xfd})
	if !errors.Is(err, common.ErrParsingFailed) {
		t.Fatalf("err = %v, want ErrParsingFailed", err)
	}
}

func TestMarkdownParser_StripsFrontMatter(t *testing.T) {
	p := &MarkdownParser{}
	ctx := context.Background()

	doc := "---\ntitle: 年度报告\nlang: zh\n---\n# 概述\n\n正文内容。\n"
	text, err := p.Parse(ctx, []byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if text != "# 概述\n\n正文内容。" {
		t.Errorf("text = %q", text)
	}

	// 没有 front matter 的内容原样返回
	text, err = p.Parse(ctx, []byte("plain markdown"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if text != "plain markdown" {
		t.Errorf("text = %q", text)
	}

	// front matter 未闭合时不截断内容
	text, err = p.Parse(ctx, []byte("---\ntitle: broken\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(text, "title: broken") {
		t.Errorf("未闭合的 front matter 不应被剥离: %q", text)
	}
}

func TestHTMLParser_ExtractsReadableText(t *testing.T) {
	p := &HTMLParser{}

	page := `<html><head><title>Guide</title><style>p{color:red}</style></head>` +
		`<body><h1>标题</h1><p>First line.</p><script>var x=1;</script>` +
		`<p>Second <b>bold</b> text.</p></body></html>`

	text, err := p.Parse(context.Background(), []byte(page))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := "Guide\n标题\nFirst line.\nSecond\nbold\ntext."
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	if strings.Contains(text, "var x") || strings.Contains(text, "color:red") {
		t.Error("script/style 内容不应出现在正文中")
	}
}

func TestJSONParser_FlattensDeterministically(t *testing.T) {
	p := &JSONParser{}

	doc := `{"title":"Annual Report","tags":["go","db"],"meta":{"pages":12,"draft":false},"note":null}`
	text, err := p.Parse(context.Background(), []byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := strings.Join([]string{
		"meta.draft: false",
		"meta.pages: 12",
		"tags[0]: go",
		"tags[1]: db",
		"title: Annual Report",
	}, "\n")
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestJSONParser_TopLevelScalarAndInvalid(t *testing.T) {
	p := &JSONParser{}
	ctx := context.Background()

	text, err := p.Parse(ctx, []byte(`"just text"`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if text != "just text" {
		t.Errorf("text = %q", text)
	}

	_, err = p.Parse(ctx, []byte(`{"broken":`))
	if !errors.Is(err, common.ErrParsingFailed) {
		t.Fatalf("err = %v, want ErrParsingFailed", err)
	}
}

func TestJSONLParser_RecordsBecomeBlocks(t *testing.T) {
	p := &JSONLParser{}

	doc := `{"event":"start","seq":1}

{"event":"stop","seq":2}
`
	text, err := p.Parse(context.Background(), []byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := "event: start\nseq: 1\n\nevent: stop\nseq: 2"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestJSONLParser_ReportsBadLine(t *testing.T) {
	p := &JSONLParser{}

	doc := "{\"ok\":true}\n{broken\n"
	_, err := p.Parse(context.Background(), []byte(doc))
	if !errors.Is(err, common.ErrParsingFailed) {
		t.Fatalf("err = %v, want ErrParsingFailed", err)
	}
	if !strings.Contains(err.Error(), "第 2 行") {
		t.Errorf("错误信息应指出出错行号: %v", err)
	}
}

func TestPDFParser_EmptyData(t *testing.T) {
	p := &PDFParser{}

	text, err := p.Parse(context.Background(), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestDocumentParser_Supported(t *testing.T) {
	p := NewDocumentParser()

	want := []string{
		"application/json",
		"application/jsonl",
		"application/pdf",
		"application/x-ndjson",
		"text/*",
		"text/html",
		"text/markdown",
		"text/plain",
	}
	if got := p.Supported(); !reflect.DeepEqual(got, want) {
		t.Errorf("Supported() = %v, want %v", got, want)
	}
}
