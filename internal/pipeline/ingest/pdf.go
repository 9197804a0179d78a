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
	"bytes"
	"fmt"
	"strings"

	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// extractPDFText 按页提取 PDF 正文，非空页之间以空行分隔
func extractPDFText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("打开 PDF 失败: %w", err)
	}

	numPages, err := reader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("读取 PDF 页数失败: %w", err)
	}

	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		text, err := pdfPageText(reader, i)
		if err != nil {
			return "", err
		}
		if text != "" {
			pages = append(pages, text)
		}
	}

	return strings.TrimSpace(strings.Join(pages, "\n\n")), nil
}

func pdfPageText(reader *model.PdfReader, page int) (string, error) {
	p, err := reader.GetPage(page)
	if err != nil {
		return "", fmt.Errorf("读取第 %d 页失败: %w", page, err)
	}
	ex, err := extractor.New(p)
	if err != nil {
		return "", fmt.Errorf("创建第 %d 页提取器失败: %w", page, err)
	}
	text, err := ex.ExtractText()
	if err != nil {
		return "", fmt.Errorf("提取第 %d 页文本失败: %w", page, err)
	}
	return text, nil
}
