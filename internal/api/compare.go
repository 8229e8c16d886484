package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/snarg/sttbench/internal/evaluate"
	"github.com/snarg/sttbench/internal/metrics"
	"github.com/snarg/sttbench/internal/tokenize"
	"github.com/snarg/sttbench/internal/wer"
	"github.com/snarg/sttbench/internal/worddiff"
)

// compareRequest is the body of POST /compare and POST /evaluations.
type compareRequest struct {
	Reference  *string `json:"reference"`
	Hypothesis *string `json:"hypothesis"`
	Markup     string  `json:"markup"` // "html" or "brackets"; server default when empty

	// POST /evaluations only
	SampleID string `json:"sample_id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Language string `json:"language"`
}

// CompareHandler scores a transcript pair without storing it.
type CompareHandler struct {
	markup string
}

func NewCompareHandler(defaultMarkup string) *CompareHandler {
	return &CompareHandler{markup: defaultMarkup}
}

func (h *CompareHandler) Routes(r chi.Router) {
	r.Post("/compare", h.Compare)
}

// Compare handles POST /api/v1/compare.
func (h *CompareHandler) Compare(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCompare(w, r)
	if !ok {
		return
	}

	e, err := evaluate.Score(*req.Reference, *req.Hypothesis, markupFor(req.Markup, h.markup))
	if err != nil {
		metrics.ComparisonsTotal.WithLabelValues("rejected").Inc()
		writeScoreError(w, err)
		return
	}
	metrics.ComparisonsTotal.WithLabelValues("scored").Inc()
	WriteJSON(w, http.StatusOK, e)
}

// decodeCompare reads a compareRequest, writing a 400 when the body is
// unusable. Both transcripts must be present; either may be empty.
func decodeCompare(w http.ResponseWriter, r *http.Request) (*compareRequest, bool) {
	var req compareRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid request body")
		return nil, false
	}
	if req.Reference == nil || req.Hypothesis == nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "reference and hypothesis are required")
		return nil, false
	}
	return &req, true
}

func markupFor(requested, fallback string) worddiff.Markup {
	if requested == "" {
		requested = fallback
	}
	return worddiff.ParseMarkup(requested)
}

func writeScoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, wer.ErrEmptyReference):
		WriteErrorWithCode(w, http.StatusUnprocessableEntity, ErrEmptyReference, err.Error())
	case errors.Is(err, tokenize.ErrInvalidInput):
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidInput, err.Error())
	default:
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, err.Error())
	}
}
