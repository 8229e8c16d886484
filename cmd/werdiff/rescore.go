package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/snarg/sttbench/internal/database"
	"github.com/snarg/sttbench/internal/evaluate"
	"github.com/snarg/sttbench/internal/wer"
	"github.com/snarg/sttbench/internal/worddiff"
)

// rescoreStore is the part of *database.DB that rescore needs.
type rescoreStore interface {
	ListRescoreCandidates(ctx context.Context) ([]database.RescoreCandidate, error)
	UpdateScores(ctx context.Context, id int64, row *database.EvaluationRow) error
}

// summaryStore is the part of *database.DB that summary needs.
type summaryStore interface {
	SummarizeProviders(ctx context.Context, since *time.Time) ([]database.ProviderSummary, error)
}

// rescore recomputes every stored score and reports the rows whose rate
// changed. With dryRun false the new scores are written back. Any failed
// update makes the run fail.
func rescore(ctx context.Context, db rescoreStore, w io.Writer, dryRun bool) error {
	candidates, err := db.ListRescoreCandidates(ctx)
	if err != nil {
		return fmt.Errorf("list evaluations: %w", err)
	}

	markup := worddiff.ParseMarkup(os.Getenv("DIFF_MARKUP"))
	changed := []rescored{}
	for _, c := range candidates {
		r, ok := rescoreOne(c, markup)
		if !ok {
			fmt.Fprintf(w, "  skip id=%d: invalid text\n", c.ID)
			continue
		}
		if r.row.WERText != c.WERText {
			changed = append(changed, r)
		}
	}

	fmt.Fprintf(w, "Checked %d evaluations, %d changed\n", len(candidates), len(changed))
	if len(changed) == 0 {
		return nil
	}

	if dryRun {
		fmt.Fprintln(w, "Dry run, no changes made. Run with 'rescore apply' to write.")
		for i, r := range changed {
			if i >= 10 {
				fmt.Fprintf(w, "  ... and %d more\n", len(changed)-10)
				break
			}
			fmt.Fprintf(w, "  id=%d wer %q -> %q\n", r.id, r.old, r.row.WERText)
		}
		return nil
	}

	updated, failures := 0, 0
	for _, r := range changed {
		if err := db.UpdateScores(ctx, r.id, r.row); err != nil {
			fmt.Fprintf(w, "  Error updating id=%d: %v\n", r.id, err)
			failures++
			continue
		}
		updated++
	}
	fmt.Fprintf(w, "Updated %d evaluations, %d errors\n", updated, failures)
	if failures > 0 {
		return fmt.Errorf("%d of %d updates failed", failures, len(changed))
	}
	return nil
}

type rescored struct {
	id  int64
	old string
	row *database.EvaluationRow
}

// rescoreOne scores a stored pair again. ok is false when the text can no
// longer be scored at all.
func rescoreOne(c database.RescoreCandidate, m worddiff.Markup) (rescored, bool) {
	e, err := evaluate.Score(c.Reference, c.Hypothesis, m)
	if e == nil {
		return rescored{}, false
	}
	row := &database.EvaluationRow{}
	if applyErr := e.Apply(row); applyErr != nil {
		return rescored{}, false
	}
	if errors.Is(err, wer.ErrEmptyReference) {
		row.Error = err.Error()
	}
	return rescored{id: c.ID, old: c.WERText, row: row}, true
}

// summary prints the provider ranking.
func summary(ctx context.Context, db summaryStore, w io.Writer) error {
	rows, err := db.SummarizeProviders(ctx, nil)
	if err != nil {
		return fmt.Errorf("summarize providers: %w", err)
	}
	fmt.Fprintf(w, "%-14s %-34s %6s %6s %8s %8s\n", "Provider", "Model", "Evals", "Failed", "AvgWER", "Pooled")
	for _, s := range rows {
		fmt.Fprintf(w, "%-14s %-34s %6d %6d %8s %8s\n",
			s.Provider, s.Model, s.Evaluations, s.Failed, formatRate(s.AvgWER), formatRate(s.PooledWER))
	}
	return nil
}

// formatRate prints an error rate with two decimals, or "-" when unset.
func formatRate(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
