// Package stats contains practice history calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/verte-zerg/recite/internal/model"
)

const sparkChars = " .:-=+*#%@"

// excerptWidth bounds the prompt text shown in tables.
const excerptWidth = 32

// PracticeMetrics computes words per minute and the skipped word fraction
// for a completed session.
func PracticeMetrics(words, skipped int, durationMs int64) (wpm, skipRate float64) {
	if words > 0 {
		skipRate = float64(skipped) / float64(words)
	}
	if durationMs <= 0 {
		return 0, skipRate
	}
	minutes := float64(durationMs) / 60000.0
	return float64(words) / minutes, skipRate
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		n := i + 1
		if i >= window {
			sum -= values[i-window]
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	last := len(sparkChars) - 1
	for _, v := range values {
		idx := int(math.Round((v - lo) / (hi - lo) * float64(last)))
		b.WriteByte(sparkChars[max(0, min(idx, last))])
	}
	return b.String()
}

// Aggregate groups records by prompt, most recently practiced first.
func Aggregate(records []model.PracticeRecord) []model.PromptAggregate {
	byPrompt := map[string]*model.PromptAggregate{}
	for _, rec := range records {
		agg, ok := byPrompt[rec.PromptID]
		if !ok {
			agg = &model.PromptAggregate{PromptID: rec.PromptID}
			byPrompt[rec.PromptID] = agg
		}
		agg.Sessions++
		agg.Words += rec.Words
		agg.Skipped += rec.Skipped
		agg.DurationMs += rec.DurationMs
		if rec.DurationMs > 0 && (agg.BestMs == 0 || rec.DurationMs < agg.BestMs) {
			agg.BestMs = rec.DurationMs
		}
		if rec.EndedAt.After(agg.LastEnded) {
			agg.LastEnded = rec.EndedAt
		}
	}
	out := make([]model.PromptAggregate, 0, len(byPrompt))
	for _, agg := range byPrompt {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastEnded.Equal(out[j].LastEnded) {
			return out[i].PromptID < out[j].PromptID
		}
		return out[i].LastEnded.After(out[j].LastEnded)
	})
	return out
}

// RenderSummary prints totals and a words-per-minute trend for records.
func RenderSummary(w io.Writer, records []model.PracticeRecord, window int) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No practice sessions found.")
		return err
	}
	var totalWPM, totalSkip, totalPeak float64
	bestWPM := 0.0
	wpms := make([]float64, len(records))
	for i, rec := range records {
		wpm, skip := PracticeMetrics(rec.Words, rec.Skipped, rec.DurationMs)
		wpms[i] = wpm
		totalWPM += wpm
		totalSkip += skip
		totalPeak += rec.PeakLevel
		bestWPM = math.Max(bestWPM, wpm)
	}
	count := float64(len(records))
	lines := []string{
		"Summary",
		fmt.Sprintf("Sessions: %d", len(records)),
		fmt.Sprintf("Avg WPM: %.2f", totalWPM/count),
		fmt.Sprintf("Best WPM: %.2f", bestWPM),
		fmt.Sprintf("Avg Skipped: %.2f%%", totalSkip/count*100),
		fmt.Sprintf("Avg Peak Level: %.1f", totalPeak/count),
	}
	if len(records) > 1 {
		lines = append(lines, fmt.Sprintf("WPM Trend: [%s]", Sparkline(MovingAverage(wpms, window))))
	}
	lines = append(lines, "")
	return writeLines(w, lines)
}

// RenderHistory prints one row per practice session. texts maps prompt ids
// to their text for the excerpt column and may be nil.
func RenderHistory(w io.Writer, records []model.PracticeRecord, texts map[string]string) error {
	if len(records) == 0 {
		return nil
	}
	headers := []string{"Ended", "Prompt", "Sentences", "Words", "Skipped", "WPM", "Duration"}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		wpm, _ := PracticeMetrics(rec.Words, rec.Skipped, rec.DurationMs)
		rows = append(rows, []string{
			rec.EndedAt.Local().Format("2006-01-02 15:04"),
			promptLabel(rec.PromptID, texts),
			fmt.Sprintf("%d", rec.Sentences),
			fmt.Sprintf("%d", rec.Words),
			fmt.Sprintf("%d", rec.Skipped),
			fmt.Sprintf("%.1f", wpm),
			formatDuration(rec.DurationMs),
		})
	}
	lines := append([]string{"Sessions"}, formatTable(headers, rows, map[int]bool{2: true, 3: true, 4: true, 5: true, 6: true})...)
	return writeLines(w, append(lines, ""))
}

// RenderPrompts prints per-prompt aggregates.
func RenderPrompts(w io.Writer, aggs []model.PromptAggregate, texts map[string]string) error {
	if len(aggs) == 0 {
		return nil
	}
	headers := []string{"Prompt", "Sessions", "Avg WPM", "Skipped", "Best"}
	rows := make([][]string, 0, len(aggs))
	for _, agg := range aggs {
		wpm, skip := PracticeMetrics(agg.Words, agg.Skipped, agg.DurationMs)
		rows = append(rows, []string{
			promptLabel(agg.PromptID, texts),
			fmt.Sprintf("%d", agg.Sessions),
			fmt.Sprintf("%.1f", wpm),
			fmt.Sprintf("%.2f%%", skip*100),
			formatDuration(agg.BestMs),
		})
	}
	lines := append([]string{"Per-Prompt"}, formatTable(headers, rows, map[int]bool{1: true, 2: true, 3: true, 4: true})...)
	return writeLines(w, append(lines, ""))
}

func promptLabel(id string, texts map[string]string) string {
	text, ok := texts[id]
	if !ok {
		return id
	}
	text = strings.Join(strings.Fields(text), " ")
	if displayWidth(text) > excerptWidth {
		runes := []rune(text)
		for displayWidth(string(runes))+3 > excerptWidth {
			runes = runes[:len(runes)-1]
		}
		text = string(runes) + "..."
	}
	return id + " " + text
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return d.Round(time.Second).String()
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderLibrary prints the stored prompts with their save and read counts.
func RenderLibrary(w io.Writer, prompts []model.Prompt) error {
	if len(prompts) == 0 {
		_, err := fmt.Fprintln(w, "No prompts saved.")
		return err
	}
	texts := make(map[string]string, len(prompts))
	rows := make([][]string, 0, len(prompts))
	for _, p := range prompts {
		texts[p.ID] = p.Text
		rows = append(rows, []string{
			promptLabel(p.ID, texts),
			fmt.Sprintf("%d", p.SaveCount),
			fmt.Sprintf("%d", p.AccessCount),
			p.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return writeLines(w, formatTable([]string{"Prompt", "Saves", "Reads", "Updated"}, rows, map[int]bool{1: true, 2: true}))
}
