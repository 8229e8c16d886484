package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/sttbench/internal/database"
	"github.com/snarg/sttbench/internal/evaluate"
	"github.com/snarg/sttbench/internal/wer"
)

// EvaluationStore is the persistence the evaluation endpoints need.
type EvaluationStore interface {
	InsertEvaluation(ctx context.Context, row *database.EvaluationRow) (int64, error)
	GetEvaluation(ctx context.Context, id int64) (*database.EvaluationAPI, error)
	ListEvaluations(ctx context.Context, filter database.EvaluationFilter) ([]database.EvaluationAPI, int, error)
	SummarizeProviders(ctx context.Context, since *time.Time) ([]database.ProviderSummary, error)
}

type EvaluationsHandler struct {
	store  EvaluationStore
	markup string
}

func NewEvaluationsHandler(store EvaluationStore, defaultMarkup string) *EvaluationsHandler {
	return &EvaluationsHandler{store: store, markup: defaultMarkup}
}

func (h *EvaluationsHandler) Routes(r chi.Router) {
	r.Post("/evaluations", h.CreateEvaluation)
	r.Get("/evaluations", h.ListEvaluations)
	r.Get("/evaluations/summary", h.Summary)
	r.Get("/evaluations/{id}", h.GetEvaluation)
}

var evaluationSortFields = map[string]string{
	"created_at": "created_at",
	"wer":        "wer",
	"provider":   "provider",
	"sample_id":  "sample_id",
	"id":         "id",
}

// createdEvaluation is the response to POST /evaluations.
type createdEvaluation struct {
	ID int64 `json:"id"`
	*evaluate.Evaluation
	Error string `json:"error,omitempty"`
}

// CreateEvaluation scores and stores a transcript pair. A pair with an empty
// reference is stored with its error set, as queued jobs are.
func (h *EvaluationsHandler) CreateEvaluation(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCompare(w, r)
	if !ok {
		return
	}

	e, scoreErr := evaluate.Score(*req.Reference, *req.Hypothesis, markupFor(req.Markup, h.markup))
	if scoreErr != nil && !errors.Is(scoreErr, wer.ErrEmptyReference) {
		writeScoreError(w, scoreErr)
		return
	}

	provider := req.Provider
	if provider == "" {
		provider = "manual"
	}
	row := &database.EvaluationRow{
		SampleID:   req.SampleID,
		Reference:  *req.Reference,
		Hypothesis: *req.Hypothesis,
		Provider:   provider,
		Model:      req.Model,
		Language:   req.Language,
	}
	if err := e.Apply(row); err != nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, err.Error())
		return
	}
	resp := createdEvaluation{Evaluation: e}
	if scoreErr != nil {
		row.Error = scoreErr.Error()
		resp.Error = row.Error
	}

	id, err := h.store.InsertEvaluation(r.Context(), row)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to store evaluation")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to store evaluation")
		return
	}
	resp.ID = id
	WriteJSON(w, http.StatusCreated, resp)
}

// ListEvaluations handles GET /evaluations.
//
// Filters: provider, model (comma lists), sample_id, start_time, end_time
// (RFC 3339), min_wer, failed. Sort: created_at, wer, provider, sample_id, id.
func (h *EvaluationsHandler) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePagination(r)
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, err.Error())
		return
	}

	filter := database.EvaluationFilter{
		Providers: QueryStringList(r, "provider"),
		Models:    QueryStringList(r, "model"),
		SampleID:  r.URL.Query().Get("sample_id"),
		Sort:      ParseSort(r, "-created_at", evaluationSortFields).SQLOrderBy(evaluationSortFields),
		Limit:     p.Limit,
		Offset:    p.Offset,
	}
	if t, ok := QueryTime(r, "start_time"); ok {
		filter.StartTime = &t
	}
	if t, ok := QueryTime(r, "end_time"); ok {
		filter.EndTime = &t
	}
	if v, ok := QueryFloat(r, "min_wer"); ok {
		filter.MinWER = &v
	}
	if v, ok := QueryBool(r, "failed"); ok {
		filter.Failed = &v
	}

	evals, total, err := h.store.ListEvaluations(r.Context(), filter)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to list evaluations")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to list evaluations")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"evaluations": evals,
		"total":       total,
		"limit":       p.Limit,
		"offset":      p.Offset,
	})
}

// GetEvaluation handles GET /evaluations/{id}.
func (h *EvaluationsHandler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "invalid evaluation ID")
		return
	}

	e, err := h.store.GetEvaluation(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "evaluation not found")
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("id", id).Msg("failed to get evaluation")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to get evaluation")
		return
	}
	WriteJSON(w, http.StatusOK, e)
}

// Summary handles GET /evaluations/summary, ranking provider/model pairs by
// mean word error rate. ?since= limits it to recent evaluations.
func (h *EvaluationsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	if t, ok := QueryTime(r, "since"); ok {
		since = &t
	}
	summaries, err := h.store.SummarizeProviders(r.Context(), since)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to summarize providers")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to summarize providers")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"providers": summaries})
}
