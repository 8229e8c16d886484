package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested evaluation does not exist.
var ErrNotFound = errors.New("not found")

// EvaluationRow is the input for inserting or rescoring an evaluation.
type EvaluationRow struct {
	SampleID      string
	Reference     string
	Hypothesis    string
	Provider      string
	Model         string
	Language      string
	WER           *float64 // nil when the rate is undefined (empty reference)
	WERText       string
	Distance      int
	Substitutions int
	Insertions    int
	Deletions     int
	RefWords      int
	HypWords      int
	Ops           json.RawMessage
	Markup        string
	AudioKey      string
	DurationMs    int
	Error         string
}

// EvaluationAPI is the evaluation representation for API responses.
type EvaluationAPI struct {
	ID            int64           `json:"id"`
	SampleID      string          `json:"sample_id,omitempty"`
	Reference     string          `json:"reference"`
	Hypothesis    string          `json:"hypothesis"`
	Provider      string          `json:"provider,omitempty"`
	Model         string          `json:"model,omitempty"`
	Language      string          `json:"language,omitempty"`
	WER           *float64        `json:"wer"`
	WERText       string          `json:"wer_text,omitempty"`
	Distance      int             `json:"distance"`
	Substitutions int             `json:"substitutions"`
	Insertions    int             `json:"insertions"`
	Deletions     int             `json:"deletions"`
	RefWords      int             `json:"ref_words"`
	HypWords      int             `json:"hyp_words"`
	Ops           json.RawMessage `json:"ops"`
	Markup        string          `json:"markup"`
	AudioKey      string          `json:"audio_key,omitempty"`
	DurationMs    int             `json:"duration_ms"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// EvaluationFilter specifies filters for listing evaluations.
type EvaluationFilter struct {
	Providers []string
	Models    []string
	SampleID  string
	StartTime *time.Time
	EndTime   *time.Time
	MinWER    *float64
	Failed    *bool
	Sort      string // SQL ORDER BY clause, already validated by the caller
	Limit     int
	Offset    int
}

// ProviderSummary aggregates evaluation results for one provider/model pair.
type ProviderSummary struct {
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Evaluations int       `json:"evaluations"`
	Failed      int       `json:"failed"`
	AvgWER      *float64  `json:"avg_wer"`
	MinWER      *float64  `json:"min_wer"`
	MaxWER      *float64  `json:"max_wer"`
	TotalWords  int       `json:"total_ref_words"`
	TotalErrors int       `json:"total_errors"`
	PooledWER   *float64  `json:"pooled_wer"` // sum(distance) / sum(ref_words)
	LastAt      time.Time `json:"last_at"`
}

// RescoreCandidate is the minimal view of a stored evaluation needed to
// recompute its score.
type RescoreCandidate struct {
	ID         int64
	Reference  string
	Hypothesis string
	WERText    string
}

const evaluationColumns = `id, sample_id, reference, hypothesis, provider, model, language,
	wer, wer_text, distance, substitutions, insertions, deletions,
	ref_words, hyp_words, ops, markup, audio_key, duration_ms, error, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(r rowScanner) (EvaluationAPI, error) {
	var e EvaluationAPI
	err := r.Scan(
		&e.ID, &e.SampleID, &e.Reference, &e.Hypothesis, &e.Provider, &e.Model, &e.Language,
		&e.WER, &e.WERText, &e.Distance, &e.Substitutions, &e.Insertions, &e.Deletions,
		&e.RefWords, &e.HypWords, &e.Ops, &e.Markup, &e.AudioKey, &e.DurationMs, &e.Error, &e.CreatedAt,
	)
	return e, err
}

func opsOrEmpty(ops json.RawMessage) json.RawMessage {
	if len(ops) == 0 {
		return json.RawMessage("[]")
	}
	return ops
}

// InsertEvaluation stores a scored evaluation and returns its ID.
func (db *DB) InsertEvaluation(ctx context.Context, row *EvaluationRow) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO evaluations (
			sample_id, reference, hypothesis, provider, model, language,
			wer, wer_text, distance, substitutions, insertions, deletions,
			ref_words, hyp_words, ops, markup, audio_key, duration_ms, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id
	`,
		row.SampleID, row.Reference, row.Hypothesis, row.Provider, row.Model, row.Language,
		row.WER, row.WERText, row.Distance, row.Substitutions, row.Insertions, row.Deletions,
		row.RefWords, row.HypWords, opsOrEmpty(row.Ops), row.Markup, row.AudioKey, row.DurationMs, row.Error,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert evaluation: %w", err)
	}
	return id, nil
}

// GetEvaluation returns a single evaluation by ID.
func (db *DB) GetEvaluation(ctx context.Context, id int64) (*EvaluationAPI, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+evaluationColumns+` FROM evaluations WHERE id = $1`, id)
	e, err := scanEvaluation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get evaluation %d: %w", id, err)
	}
	return &e, nil
}

// ListEvaluations returns evaluations matching the filter with a total count.
func (db *DB) ListEvaluations(ctx context.Context, filter EvaluationFilter) ([]EvaluationAPI, int, error) {
	qb := newQueryBuilder()
	if len(filter.Providers) > 0 {
		qb.Add("provider = ANY(%s)", filter.Providers)
	}
	if len(filter.Models) > 0 {
		qb.Add("model = ANY(%s)", filter.Models)
	}
	if filter.SampleID != "" {
		qb.Add("sample_id = %s", filter.SampleID)
	}
	if filter.StartTime != nil {
		qb.Add("created_at >= %s", *filter.StartTime)
	}
	if filter.EndTime != nil {
		qb.Add("created_at < %s", *filter.EndTime)
	}
	if filter.MinWER != nil {
		qb.Add("wer >= %s", *filter.MinWER)
	}
	if filter.Failed != nil {
		if *filter.Failed {
			qb.AddRaw("error <> ''")
		} else {
			qb.AddRaw("error = ''")
		}
	}
	where := qb.WhereClause()

	var total int
	if err := db.Pool.QueryRow(ctx, "SELECT count(*) FROM evaluations"+where, qb.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count evaluations: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	orderBy := filter.Sort
	if orderBy == "" {
		orderBy = "created_at DESC"
	}

	query := fmt.Sprintf("SELECT %s FROM evaluations%s ORDER BY %s, id DESC LIMIT %s OFFSET %s",
		evaluationColumns, where, orderBy, qb.Next(limit), qb.Next(filter.Offset))

	rows, err := db.Pool.Query(ctx, query, qb.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	result := []EvaluationAPI{}
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, e)
	}
	return result, total, rows.Err()
}

// SummarizeProviders aggregates evaluations per provider and model.
func (db *DB) SummarizeProviders(ctx context.Context, since *time.Time) ([]ProviderSummary, error) {
	qb := newQueryBuilder()
	if since != nil {
		qb.Add("created_at >= %s", *since)
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT provider, model,
			count(*),
			count(*) FILTER (WHERE error <> ''),
			avg(wer), min(wer), max(wer),
			coalesce(sum(ref_words) FILTER (WHERE wer IS NOT NULL), 0),
			coalesce(sum(distance) FILTER (WHERE wer IS NOT NULL), 0),
			max(created_at)
		FROM evaluations`+qb.WhereClause()+`
		GROUP BY provider, model
		ORDER BY avg(wer) ASC NULLS LAST, provider, model
	`, qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("summarize providers: %w", err)
	}
	defer rows.Close()

	result := []ProviderSummary{}
	for rows.Next() {
		var s ProviderSummary
		if err := rows.Scan(
			&s.Provider, &s.Model,
			&s.Evaluations, &s.Failed,
			&s.AvgWER, &s.MinWER, &s.MaxWER,
			&s.TotalWords, &s.TotalErrors,
			&s.LastAt,
		); err != nil {
			return nil, err
		}
		if s.TotalWords > 0 {
			pooled := float64(s.TotalErrors) / float64(s.TotalWords)
			s.PooledWER = &pooled
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// ListRescoreCandidates returns every evaluation that has a hypothesis.
func (db *DB) ListRescoreCandidates(ctx context.Context) ([]RescoreCandidate, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, reference, hypothesis, wer_text
		FROM evaluations
		WHERE error = '' OR hypothesis <> ''
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list rescore candidates: %w", err)
	}
	defer rows.Close()

	var result []RescoreCandidate
	for rows.Next() {
		var c RescoreCandidate
		if err := rows.Scan(&c.ID, &c.Reference, &c.Hypothesis, &c.WERText); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// UpdateScores overwrites the score columns of an evaluation.
func (db *DB) UpdateScores(ctx context.Context, id int64, row *EvaluationRow) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE evaluations SET
			wer = $2, wer_text = $3, distance = $4,
			substitutions = $5, insertions = $6, deletions = $7,
			ref_words = $8, hyp_words = $9, ops = $10, markup = $11, error = $12
		WHERE id = $1
	`, id,
		row.WER, row.WERText, row.Distance,
		row.Substitutions, row.Insertions, row.Deletions,
		row.RefWords, row.HypWords, opsOrEmpty(row.Ops), row.Markup, row.Error,
	)
	if err != nil {
		return fmt.Errorf("update scores: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("evaluation %d: %w", id, ErrNotFound)
	}
	return nil
}
