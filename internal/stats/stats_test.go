package stats

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/recite/internal/model"
)

func TestPracticeMetrics(t *testing.T) {
	wpm, skip := PracticeMetrics(30, 3, 60000)
	if wpm != 30 || skip != 0.1 {
		t.Fatalf("unexpected metrics wpm=%v skip=%v", wpm, skip)
	}
	wpm, skip = PracticeMetrics(4, 1, 0)
	if wpm != 0 || skip != 0.25 {
		t.Fatalf("expected zero wpm without duration, got wpm=%v skip=%v", wpm, skip)
	}
	if _, skip := PracticeMetrics(0, 0, 1000); skip != 0 {
		t.Fatalf("expected zero skip rate for empty prompt, got %v", skip)
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{1, 2, 3, 4}, 2)
	want := []float64{1, 1.5, 2.5, 3.5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	same := MovingAverage([]float64{5, 7}, 1)
	if same[0] != 5 || same[1] != 7 {
		t.Fatalf("expected copy for window 1, got %v", same)
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{0, 1}); got != " @" {
		t.Fatalf("unexpected sparkline %q", got)
	}
	if got := Sparkline([]float64{3, 3}); got != "++" {
		t.Fatalf("unexpected flat sparkline %q", got)
	}
	if Sparkline(nil) != "" {
		t.Fatalf("expected empty sparkline")
	}
}

func sampleRecords() []model.PracticeRecord {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return []model.PracticeRecord{
		{PromptID: "a", EndedAt: base, Words: 10, Skipped: 1, DurationMs: 60000, PeakLevel: 80},
		{PromptID: "b", EndedAt: base.Add(time.Hour), Words: 4, DurationMs: 30000, PeakLevel: 100},
		{PromptID: "a", EndedAt: base.Add(2 * time.Hour), Words: 10, DurationMs: 40000, PeakLevel: 100},
	}
}

func TestAggregate(t *testing.T) {
	aggs := Aggregate(sampleRecords())
	if len(aggs) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(aggs))
	}
	a := aggs[0]
	if a.PromptID != "a" || a.Sessions != 2 || a.Words != 20 || a.Skipped != 1 || a.BestMs != 40000 || a.DurationMs != 100000 {
		t.Fatalf("unexpected aggregate %+v", a)
	}
	if aggs[1].PromptID != "b" || aggs[1].Sessions != 1 {
		t.Fatalf("unexpected second aggregate %+v", aggs[1])
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderSummary(&buf, nil, 3); err != nil {
		t.Fatalf("render empty: %v", err)
	}
	if buf.String() != "No practice sessions found.\n" {
		t.Fatalf("unexpected empty output %q", buf.String())
	}

	buf.Reset()
	if err := RenderSummary(&buf, sampleRecords(), 1); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Sessions: 3", "Best WPM: 15.00", "Avg Peak Level: 93.3", "WPM Trend: ["} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRenderHistoryAndPrompts(t *testing.T) {
	records := sampleRecords()
	texts := map[string]string{"a": "Hello there.\nHow are you."}
	var buf bytes.Buffer
	if err := RenderHistory(&buf, records, texts); err != nil {
		t.Fatalf("render history: %v", err)
	}
	if err := RenderPrompts(&buf, Aggregate(records), texts); err != nil {
		t.Fatalf("render prompts: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Sessions\n", "Per-Prompt\n", "a Hello there. How are you.", "1m0s", "5.00%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestPromptLabelTruncates(t *testing.T) {
	label := promptLabel("id", map[string]string{"id": strings.Repeat("x", 40)})
	if label != "id "+strings.Repeat("x", excerptWidth-3)+"..." {
		t.Fatalf("unexpected label %q", label)
	}
	if promptLabel("missing", nil) != "missing" {
		t.Fatalf("expected bare id without text")
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(61400); got != "1m1s" {
		t.Fatalf("unexpected duration %q", got)
	}
}

func TestRenderLibrary(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderLibrary(&buf, nil); err != nil {
		t.Fatalf("render empty: %v", err)
	}
	if buf.String() != "No prompts saved.\n" {
		t.Fatalf("unexpected empty output %q", buf.String())
	}

	buf.Reset()
	prompts := []model.Prompt{{ID: "abc", Text: "Hello there.", SaveCount: 2, AccessCount: 5, UpdatedAt: time.Unix(0, 0)}}
	if err := RenderLibrary(&buf, prompts); err != nil {
		t.Fatalf("render: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "abc Hello there.") || !strings.Contains(lines[1], "2      5") {
		t.Fatalf("unexpected library output:\n%s", buf.String())
	}
}
