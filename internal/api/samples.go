package api

import (
	"context"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/sttbench/internal/evaluate"
	"github.com/snarg/sttbench/internal/storage"
)

// JobQueue accepts evaluation jobs and reports queue state.
type JobQueue interface {
	Enqueue(j evaluate.Job) bool
	Stats() evaluate.QueueStats
	CanTranscribe() bool
}

// SamplesHandler accepts audio samples for transcription and scoring.
type SamplesHandler struct {
	audio storage.AudioStore
	queue JobQueue
	now   func() time.Time
}

func NewSamplesHandler(audio storage.AudioStore, queue JobQueue) *SamplesHandler {
	return &SamplesHandler{audio: audio, queue: queue, now: time.Now}
}

func (h *SamplesHandler) Routes(r chi.Router) {
	r.Post("/samples", h.Upload)
	r.Get("/queue", h.QueueStats)
}

// sampleAccepted is the response to POST /samples.
type sampleAccepted struct {
	SampleID string `json:"sample_id"`
	AudioKey string `json:"audio_key"`
	AudioURL string `json:"audio_url,omitempty"`
}

// Upload handles POST /api/v1/samples.
//
// Multipart fields: "audio" (file, required), "reference" (text, or a file
// with the same name), optional "sample_id" and "language". The audio is
// stored and a transcription job is queued; the response is 202.
func (h *SamplesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if !h.queue.CanTranscribe() {
		WriteErrorWithCode(w, http.StatusServiceUnavailable, ErrUnavailable, "no STT provider is configured")
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	reference, ok := formText(r, "reference")
	if !ok {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "reference is required")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "audio file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}

	now := h.now()
	sampleID := strings.TrimSpace(r.FormValue("sample_id"))
	if sampleID == "" {
		sampleID = strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename)) +
			"-" + now.UTC().Format("20060102T150405")
	}
	key := storage.SampleKey(sampleID, header.Filename, now)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
			contentType = ct
		}
	}

	log := hlog.FromRequest(r)
	if err := h.audio.Save(r.Context(), key, data, contentType); err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to store sample audio")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to store audio")
		return
	}

	job := evaluate.Job{
		SampleID:  sampleID,
		Reference: reference,
		AudioKey:  key,
		Language:  r.FormValue("language"),
		Source:    "api",
	}
	if !h.queue.Enqueue(job) {
		// Nothing will reference the stored audio.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 10*time.Second)
		defer cancel()
		if err := h.audio.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to remove unqueued sample audio")
		}
		WriteErrorWithCode(w, http.StatusServiceUnavailable, ErrQueueFull, "evaluation queue is full")
		return
	}

	resp := sampleAccepted{SampleID: sampleID, AudioKey: key}
	if u, err := h.audio.URL(r.Context(), key); err == nil {
		resp.AudioURL = u
	}
	log.Info().Str("sample_id", sampleID).Str("key", key).Int("bytes", len(data)).Msg("sample queued")
	WriteJSON(w, http.StatusAccepted, resp)
}

// QueueStats handles GET /api/v1/queue.
func (h *SamplesHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.queue.Stats())
}

// formText returns a text form field, or the contents of an uploaded file
// under the same name.
func formText(r *http.Request, name string) (string, bool) {
	if vs, ok := r.MultipartForm.Value[name]; ok && len(vs) > 0 {
		return vs[0], true
	}
	f, _, err := r.FormFile(name)
	if err != nil {
		return "", false
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", false
	}
	return string(b), true
}
