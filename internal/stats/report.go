package stats

import (
	"context"
	"io"

	"github.com/verte-zerg/recite/internal/model"
	"github.com/verte-zerg/recite/internal/store"
)

// Report contains precomputed data for history rendering.
type Report struct {
	Records []model.PracticeRecord
	Prompts []model.PromptAggregate
	Texts   map[string]string
}

// BuildReport loads practice history and the text of every prompt it
// references.
func BuildReport(ctx context.Context, st *store.Store, cfg model.HistoryConfig) (Report, error) {
	records, err := st.ListPractice(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	prompts, err := st.List(ctx)
	if err != nil {
		return Report{}, err
	}
	texts := make(map[string]string, len(prompts))
	for _, p := range prompts {
		texts[p.ID] = p.Text
	}
	return Report{
		Records: records,
		Prompts: Aggregate(records),
		Texts:   texts,
	}, nil
}

// Render writes the summary, session table and per-prompt table.
func (r Report) Render(w io.Writer, window int) error {
	if err := RenderSummary(w, r.Records, window); err != nil {
		return err
	}
	if err := RenderHistory(w, r.Records, r.Texts); err != nil {
		return err
	}
	return RenderPrompts(w, r.Prompts, r.Texts)
}
