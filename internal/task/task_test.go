package task

import (
	"context"
	"testing"
)

func TestParseType(t *testing.T) {
	typ, err := ParseType("embedding")
	if err != nil || typ != TypeEmbedding {
		t.Fatalf("ParseType(embedding) = %v, %v", typ, err)
	}
	if _, err := ParseType("transcode"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("")
	if err != nil || p != PriorityNormal {
		t.Fatalf("empty priority should default to normal, got %v, %v", p, err)
	}
	p, err = ParsePriority("urgent")
	if err != nil || p != PriorityUrgent {
		t.Fatalf("ParsePriority(urgent) = %v, %v", p, err)
	}
	if _, err := ParsePriority("asap"); err == nil {
		t.Fatal("expected error for unknown priority")
	}
	if PriorityUrgent <= PriorityHigh || PriorityHigh <= PriorityNormal || PriorityNormal <= PriorityLow {
		t.Fatal("priority ordering broken")
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusProcessing, StatusRetrying} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestProgressApply(t *testing.T) {
	var p Progress
	p.Apply(ProgressDelta{Step: 1, TotalSteps: 4, Operation: "加载文件"})
	if p.Percentage != 25 {
		t.Fatalf("expected 25%%, got %v", p.Percentage)
	}
	if p.Operation != "加载文件" {
		t.Fatalf("operation not applied: %q", p.Operation)
	}

	// 步数越界时百分比截断到 100
	p.Apply(ProgressDelta{Step: 9})
	if p.Percentage != 100 {
		t.Fatalf("expected clamp to 100, got %v", p.Percentage)
	}

	// 零值增量不改变既有字段
	p.Apply(ProgressDelta{})
	if p.CurrentStep != 9 || p.TotalSteps != 4 || p.Operation != "加载文件" {
		t.Fatalf("zero delta mutated progress: %+v", p)
	}
}

func TestTaskClone(t *testing.T) {
	orig := New(TypeParsing, PriorityHigh, "doc-1", map[string]string{"document_id": "doc-1"})
	orig.Result = &Result{Success: true, Data: map[string]interface{}{"chunks": 3}, Artifacts: []string{"derived/doc-1/text.txt"}}
	orig.Error = NewError("timeout", "任务执行超时")

	cp := orig.Clone()
	cp.Config["document_id"] = "doc-2"
	cp.Result.Data["chunks"] = 9
	cp.Result.Artifacts[0] = "x"
	cp.Error.Code = "other"

	if orig.Config["document_id"] != "doc-1" {
		t.Fatal("clone shares config map")
	}
	if orig.Result.Data["chunks"] != 3 || orig.Result.Artifacts[0] != "derived/doc-1/text.txt" {
		t.Fatal("clone shares result")
	}
	if orig.Error.Code != "timeout" {
		t.Fatal("clone shares error")
	}
}

func TestReportProgress(t *testing.T) {
	// 未挂载回调时 no-op
	ReportProgress(context.Background(), ProgressDelta{Step: 1})

	var got []ProgressDelta
	ctx := WithProgressSink(context.Background(), func(d ProgressDelta) {
		got = append(got, d)
	})
	ReportProgress(ctx, ProgressDelta{Step: 1, TotalSteps: 3})
	ReportProgress(ctx, ProgressDelta{Step: 2, TotalSteps: 3})
	if len(got) != 2 || got[1].Step != 2 {
		t.Fatalf("expected 2 deltas, got %+v", got)
	}
}

func TestErrorKinds(t *testing.T) {
	e := NewError("rate_limit", "too many requests")
	if !e.Retryable {
		t.Fatal("NewError should be retryable")
	}
	if e.Error() != "rate_limit: too many requests" {
		t.Fatalf("unexpected error string: %s", e.Error())
	}
	p := NewPermanentError("invalid_content", "格式无法解析")
	if p.Retryable {
		t.Fatal("permanent error must not be retryable")
	}
}
