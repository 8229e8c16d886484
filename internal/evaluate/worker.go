package evaluate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/sttbench/internal/database"
	"github.com/snarg/sttbench/internal/metrics"
	"github.com/snarg/sttbench/internal/storage"
	"github.com/snarg/sttbench/internal/transcribe"
	"github.com/snarg/sttbench/internal/worddiff"
)

// Job is one sample to evaluate. Either Hypothesis is supplied directly, or
// AudioKey names stored audio that the configured provider transcribes.
type Job struct {
	SampleID   string `json:"sample_id"`
	Reference  string `json:"reference"`
	Hypothesis string `json:"hypothesis,omitempty"`
	AudioKey   string `json:"audio_key,omitempty"`
	Provider   string `json:"provider,omitempty"` // label for supplied hypotheses
	Model      string `json:"model,omitempty"`
	Language   string `json:"language,omitempty"`
	Source     string `json:"-"` // "api", "mqtt", "watcher"
}

// Result is published after each job is stored.
type Result struct {
	ID       int64    `json:"id"`
	SampleID string   `json:"sample_id"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	WER      *float64 `json:"wer"`
	WERText  string   `json:"wer_text,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// QueueStats reports the current state of the evaluation queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Capacity  int   `json:"capacity"`
	Workers   int   `json:"workers"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Store persists evaluations.
type Store interface {
	InsertEvaluation(ctx context.Context, row *database.EvaluationRow) (int64, error)
}

// PublishFunc is called with every stored result.
type PublishFunc func(Result)

// WorkerPoolOptions configures the evaluation worker pool.
type WorkerPoolOptions struct {
	Store           Store
	Audio           storage.AudioStore
	Provider        transcribe.Provider // nil disables audio jobs
	Markup          worddiff.Markup
	Language        string
	Temperature     float64
	Prompt          string
	Hotwords        string
	PreprocessAudio bool
	Timeout         time.Duration // per transcription request
	Retries         int           // extra attempts for retryable provider errors
	RetryDelay      time.Duration
	Workers         int
	QueueSize       int
	Publish         PublishFunc
	Log             zerolog.Logger
}

// WorkerPool manages evaluation workers.
type WorkerPool struct {
	jobs   chan Job
	opts   WorkerPoolOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	completed atomic.Int64
	failed    atomic.Int64
}

// NewWorkerPool creates a new evaluation worker pool.
func NewWorkerPool(opts WorkerPoolOptions) *WorkerPool {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobs:   make(chan Job, opts.QueueSize),
		opts:   opts,
		log:    opts.Log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	if wp.opts.PreprocessAudio && wp.opts.Provider != nil {
		if transcribe.CheckSox() {
			wp.log.Info().Msg("audio preprocessing enabled (sox found)")
		} else {
			wp.log.Warn().Msg("PREPROCESS_AUDIO=true but sox not found in PATH; preprocessing disabled")
			wp.opts.PreprocessAudio = false
		}
	}

	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Info().Int("workers", wp.opts.Workers).Int("queue_size", wp.opts.QueueSize).Msg("evaluation worker pool started")
}

// Stop signals workers to drain and waits for completion.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobs)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.cancel()
	wp.log.Info().
		Int64("completed", wp.completed.Load()).
		Int64("failed", wp.failed.Load()).
		Msg("evaluation worker pool stopped")
}

// Enqueue adds a job to the queue. Returns false if the queue is full or
// the pool is stopped.
func (wp *WorkerPool) Enqueue(j Job) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return false
	}
	select {
	case wp.jobs <- j:
		return true
	default:
		metrics.QueueRejectedTotal.Inc()
		return false
	}
}

// Stats returns current queue statistics.
func (wp *WorkerPool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(wp.jobs),
		Capacity:  cap(wp.jobs),
		Workers:   wp.opts.Workers,
		Completed: wp.completed.Load(),
		Failed:    wp.failed.Load(),
	}
}

// QueueDepth returns the number of jobs waiting for a worker.
func (wp *WorkerPool) QueueDepth() int { return len(wp.jobs) }

// QueueCapacity returns the queue size.
func (wp *WorkerPool) QueueCapacity() int { return cap(wp.jobs) }

// Workers returns the number of worker goroutines.
func (wp *WorkerPool) Workers() int { return wp.opts.Workers }

// CanTranscribe reports whether audio jobs can be processed.
func (wp *WorkerPool) CanTranscribe() bool { return wp.opts.Provider != nil && wp.opts.Audio != nil }

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()

	for job := range wp.jobs {
		if err := wp.processJob(log, job); err != nil {
			wp.failed.Add(1)
			log.Warn().Err(err).
				Str("sample_id", job.SampleID).
				Str("source", job.Source).
				Msg("evaluation failed")
		} else {
			wp.completed.Add(1)
		}
	}
}

// processJob evaluates one job and stores the outcome. Scoring and
// transcription failures are stored on the row and also returned.
func (wp *WorkerPool) processJob(log zerolog.Logger, job Job) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(wp.ctx, wp.jobTimeout())
	defer cancel()

	row := &database.EvaluationRow{
		SampleID:   job.SampleID,
		Reference:  job.Reference,
		Hypothesis: job.Hypothesis,
		Provider:   job.Provider,
		Model:      job.Model,
		Language:   job.Language,
		AudioKey:   job.AudioKey,
	}

	jobErr := wp.fillHypothesis(ctx, log, job, row)
	if jobErr == nil {
		jobErr = wp.score(row)
	}
	if jobErr != nil {
		row.Error = jobErr.Error()
	}
	row.DurationMs = int(time.Since(start).Milliseconds())

	// The job deadline may already be spent on transcription.
	storeCtx, storeCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer storeCancel()
	id, err := wp.opts.Store.InsertEvaluation(storeCtx, row)
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues(row.Provider, "failed").Inc()
		return fmt.Errorf("db insert: %w", err)
	}

	outcome := "scored"
	if jobErr != nil {
		outcome = "failed"
	} else if row.WER != nil {
		metrics.WordErrorRate.WithLabelValues(row.Provider).Observe(*row.WER)
	}
	metrics.EvaluationsTotal.WithLabelValues(row.Provider, outcome).Inc()

	if wp.opts.Publish != nil {
		wp.opts.Publish(Result{
			ID:       id,
			SampleID: row.SampleID,
			Provider: row.Provider,
			Model:    row.Model,
			WER:      row.WER,
			WERText:  row.WERText,
			Error:    row.Error,
		})
	}

	log.Debug().
		Int64("evaluation_id", id).
		Str("sample_id", row.SampleID).
		Str("provider", row.Provider).
		Str("wer", row.WERText).
		Int("duration_ms", row.DurationMs).
		Msg("evaluation stored")

	return jobErr
}

// fillHypothesis sets the row's hypothesis, transcribing the job's audio
// when none was supplied.
func (wp *WorkerPool) fillHypothesis(ctx context.Context, log zerolog.Logger, job Job, row *database.EvaluationRow) error {
	if job.Hypothesis != "" || job.AudioKey == "" {
		if row.Provider == "" {
			row.Provider = "manual"
		}
		return nil
	}
	if !wp.CanTranscribe() {
		return errors.New("audio job received but no STT provider is configured")
	}
	row.Provider = wp.opts.Provider.Name()
	row.Model = wp.opts.Provider.Model()

	path, cleanup, err := storage.Materialize(ctx, wp.opts.Audio, job.AudioKey)
	if err != nil {
		return fmt.Errorf("fetch audio: %w", err)
	}
	defer cleanup()

	if wp.opts.PreprocessAudio {
		processed, done, err := transcribe.Preprocess(ctx, path)
		if err != nil {
			log.Warn().Err(err).Msg("preprocessing failed, using original audio")
		} else {
			path = processed
			defer done()
		}
	}

	lang := job.Language
	if lang == "" {
		lang = wp.opts.Language
	}
	resp, err := wp.transcribe(ctx, path, transcribe.TranscribeOpts{
		Language:    lang,
		Temperature: wp.opts.Temperature,
		Prompt:      wp.opts.Prompt,
		Hotwords:    wp.opts.Hotwords,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", row.Provider, err)
	}
	row.Hypothesis = strings.TrimSpace(resp.Text)
	if resp.Language != "" {
		row.Language = resp.Language
	}
	return nil
}

// transcribe calls the provider, retrying transient failures.
func (wp *WorkerPool) transcribe(ctx context.Context, path string, opts transcribe.TranscribeOpts) (*transcribe.Response, error) {
	p := wp.opts.Provider
	for attempt := 0; ; attempt++ {
		start := time.Now()
		resp, err := p.Transcribe(ctx, path, opts)
		metrics.TranscribeDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
		if err == nil {
			return resp, nil
		}

		var pe *transcribe.ProviderError
		if attempt >= wp.opts.Retries || !errors.As(err, &pe) || !pe.Retryable() {
			return nil, err
		}
		wp.log.Debug().Err(err).Int("attempt", attempt+1).Msg("retrying transcription")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wp.opts.RetryDelay * time.Duration(attempt+1)):
		}
	}
}

// score fills the score columns. An empty reference still stores its diff.
func (wp *WorkerPool) score(row *database.EvaluationRow) error {
	e, err := Score(row.Reference, row.Hypothesis, wp.opts.Markup)
	if e != nil {
		if applyErr := e.Apply(row); applyErr != nil {
			return applyErr
		}
	}
	return err
}

// jobTimeout bounds a whole job: every transcription attempt plus backoff,
// with headroom for fetching audio.
func (wp *WorkerPool) jobTimeout() time.Duration {
	attempts := time.Duration(wp.opts.Retries + 1)
	backoff := wp.opts.RetryDelay * attempts * attempts / 2
	return wp.opts.Timeout*attempts + backoff + 10*time.Second
}
