// Package evaluate scores transcripts against references and runs the
// worker pool that turns queued samples into stored evaluations.
package evaluate

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/snarg/sttbench/internal/database"
	"github.com/snarg/sttbench/internal/wer"
	"github.com/snarg/sttbench/internal/worddiff"
)

// Evaluation is the full comparison of one hypothesis against its reference.
type Evaluation struct {
	WER           *float64        `json:"wer"` // nil when the reference is empty
	WERText       string          `json:"wer_text,omitempty"`
	Distance      int             `json:"distance"`
	Substitutions int             `json:"substitutions"`
	Insertions    int             `json:"insertions"`
	Deletions     int             `json:"deletions"`
	RefWords      int             `json:"ref_words"`
	HypWords      int             `json:"hyp_words"`
	Ops           []worddiff.Op   `json:"ops"`
	Counts        worddiff.Counts `json:"counts"`
	Markup        string          `json:"markup"`
}

// Score measures hypothesis against reference and renders the word diff with m.
//
// An empty reference yields a usable Evaluation (diff, markup and counts are
// still meaningful) together with wer.ErrEmptyReference. Invalid input yields
// a nil Evaluation.
func Score(reference, hypothesis string, m worddiff.Markup) (*Evaluation, error) {
	res, werErr := wer.Measure(reference, hypothesis)
	if werErr != nil && !errors.Is(werErr, wer.ErrEmptyReference) {
		return nil, werErr
	}

	ops, err := worddiff.Diff(reference, hypothesis)
	if err != nil {
		return nil, err
	}

	e := &Evaluation{
		Distance:      res.Distance,
		Substitutions: res.Substitutions,
		Insertions:    res.Insertions,
		Deletions:     res.Deletions,
		RefWords:      res.RefWords,
		HypWords:      res.HypWords,
		Ops:           ops,
		Counts:        worddiff.Count(ops),
		Markup:        worddiff.RenderOps(ops, m),
	}
	if werErr != nil {
		// Every hypothesis word is an insertion against an empty reference.
		e.Distance = res.HypWords
		e.Insertions = res.HypWords
		return e, werErr
	}
	rate := res.Rate
	e.WER = &rate
	e.WERText = res.Text
	return e, nil
}

// Apply copies the score columns of e into row.
func (e *Evaluation) Apply(row *database.EvaluationRow) error {
	ops, err := json.Marshal(e.Ops)
	if err != nil {
		return fmt.Errorf("marshal ops: %w", err)
	}
	row.WER = e.WER
	row.WERText = e.WERText
	row.Distance = e.Distance
	row.Substitutions = e.Substitutions
	row.Insertions = e.Insertions
	row.Deletions = e.Deletions
	row.RefWords = e.RefWords
	row.HypWords = e.HypWords
	row.Ops = ops
	row.Markup = e.Markup
	return nil
}
