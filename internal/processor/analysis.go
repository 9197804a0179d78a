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

package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"doc-platform/internal/pipeline/common"
	"doc-platform/internal/task"
	"doc-platform/internal/taskqueue"
)

// keywordLimit 报告中保留的关键词条数
const keywordLimit = 10

// analysisReport 文本体量与词频的朴素统计，按空白分词
type analysisReport struct {
	DocumentID  string         `json:"document_id"`
	Chars       int            `json:"chars"`
	Words       int            `json:"words"`
	Lines       int            `json:"lines"`
	Paragraphs  int            `json:"paragraphs"`
	Keywords    []keywordCount `json:"keywords,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

type keywordCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// NewAnalysis 创建分析处理器：解析文本 → 体量/词频统计 →
// derived/<文档ID>/analysis.json，top 关键词同步进文档元数据。
func NewAnalysis(deps Deps) taskqueue.Processor {
	return func(ctx context.Context, t *task.Task) (*task.Result, error) {
		docID, err := documentID(t)
		if err != nil {
			return nil, err
		}
		doc, err := loadDocument(ctx, deps, docID)
		if err != nil {
			return nil, err
		}
		markProcessing(ctx, deps, doc)

		task.ReportProgress(ctx, task.ProgressDelta{TotalSteps: 3, Step: 1, Operation: "读取解析文本"})
		text, err := loadText(ctx, deps, docID)
		if err != nil {
			return nil, err
		}

		task.ReportProgress(ctx, task.ProgressDelta{Step: 2, Operation: "统计词频"})
		report := analyze(docID, text)

		task.ReportProgress(ctx, task.ProgressDelta{Step: 3, Operation: "写回报告"})
		payload, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("%w: 序列化分析报告: %v", common.ErrInternal, err)
		}
		reportPath := derivedPath(docID, "analysis.json")
		putMeta := map[string]string{"content_type": "application/json"}
		if err := deps.Objects.Put(ctx, reportPath, bytes.NewReader(payload), int64(len(payload)), putMeta); err != nil {
			return nil, fmt.Errorf("%w: 写入分析报告: %v", common.ErrInternal, err)
		}

		if len(report.Keywords) > 0 {
			terms := make([]string, 0, min(5, len(report.Keywords)))
			for _, kw := range report.Keywords[:min(5, len(report.Keywords))] {
				terms = append(terms, kw.Term)
			}
			if doc.Metadata == nil {
				doc.Metadata = make(map[string]string)
			}
			doc.Metadata["keywords"] = strings.Join(terms, ",")
			if err := deps.Metadata.Update(ctx, doc); err != nil {
				return nil, fmt.Errorf("%w: 更新文档元数据: %v", common.ErrInternal, err)
			}
		}

		deps.logger().Info("文档分析完成",
			"document_id", docID,
			"words", report.Words,
			"keywords", len(report.Keywords),
		)

		return &task.Result{
			Data: map[string]interface{}{
				"document_id": docID,
				"chars":       report.Chars,
				"words":       report.Words,
				"paragraphs":  report.Paragraphs,
			},
			Artifacts: []string{reportPath},
			Metrics: map[string]float64{
				"chars": float64(report.Chars),
				"words": float64(report.Words),
			},
		}, nil
	}
}

// analyze 统计体量与 top 词条，结果确定（同频按字典序）
func analyze(docID, text string) *analysisReport {
	report := &analysisReport{
		DocumentID:  docID,
		Chars:       utf8.RuneCountInString(text),
		GeneratedAt: time.Now(),
	}
	if text != "" {
		report.Lines = strings.Count(text, "\n") + 1
		for _, para := range strings.Split(text, "\n\n") {
			if strings.TrimSpace(para) != "" {
				report.Paragraphs++
			}
		}
	}

	counts := make(map[string]int)
	for _, field := range strings.Fields(strings.ToLower(text)) {
		report.Words++
		term := strings.Trim(field, ".,;:!?\"'()[]{}。，！？、“”‘’（）…-")
		if utf8.RuneCountInString(term) < 2 {
			continue
		}
		counts[term]++
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > keywordLimit {
		terms = terms[:keywordLimit]
	}
	for _, term := range terms {
		report.Keywords = append(report.Keywords, keywordCount{Term: term, Count: counts[term]})
	}
	return report
}
