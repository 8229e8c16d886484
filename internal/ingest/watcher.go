package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/snarg/sttbench/internal/api"
	"github.com/snarg/sttbench/internal/evaluate"
	"github.com/snarg/sttbench/internal/metrics"
	"github.com/snarg/sttbench/internal/storage"
)

const (
	refSuffix = ".txt"
	hypSuffix = ".hyp.txt"
)

// maxRetryDelay caps the backoff for samples rejected by a full queue.
const maxRetryDelay = 30 * time.Second

// audioExts are the recognised audio file extensions in a drop directory.
var audioExts = []string{".wav", ".mp3", ".m4a", ".flac", ".ogg", ".webm"}

// WatcherOptions configures a FileWatcher.
type WatcherOptions struct {
	Dir      string
	Queue    Enqueuer
	Audio    storage.AudioStore // nil skips audio samples
	Debounce time.Duration      // default 500ms
	Log      zerolog.Logger
}

// FileWatcher monitors a drop directory for evaluation samples. A sample is
// a reference transcript "<name>.txt" paired with either a hypothesis
// "<name>.hyp.txt" or an audio file "<name>.<ext>". Each sample is enqueued
// once, as soon as both halves are present. A sample rejected by a full
// queue is retried with exponential backoff.
type FileWatcher struct {
	dir      string
	queue    Enqueuer
	audio    storage.AudioStore
	debounce time.Duration
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	// Debounce: coalesce rapid Create+Write events on the same sample.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	seenMu  sync.Mutex      // serializes processSample
	seen    map[string]bool // sample stems already enqueued
	retries map[string]int  // queue-full attempts per pending stem

	// Stats
	filesProcessed atomic.Int64
	filesSkipped   atomic.Int64
	status         atomic.Value // string: "starting", "backfilling", "watching", "stopped"
}

// NewFileWatcher creates a watcher for opts.Dir. Call Start to begin.
func NewFileWatcher(opts WatcherOptions) *FileWatcher {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	fw := &FileWatcher{
		dir:            opts.Dir,
		queue:          opts.Queue,
		audio:          opts.Audio,
		debounce:       opts.Debounce,
		log:            opts.Log.With().Str("component", "watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
		seen:           make(map[string]bool),
		retries:        make(map[string]int),
	}
	fw.status.Store("starting")
	return fw
}

// Start initializes the fsnotify watcher on every directory under the drop
// directory, enqueues samples already present, and begins watching.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(fw.dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	fw.watcher = w
	fw.ctx, fw.cancel = context.WithCancel(ctx)
	fw.done = make(chan struct{})

	dirCount := 0
	err = filepath.WalkDir(fw.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			fw.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil // continue walking
		}
		if d.IsDir() {
			if addErr := w.Add(path); addErr != nil {
				fw.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		w.Close()
		return err
	}

	fw.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", fw.dir).
		Msg("file watcher initialized")

	go fw.watchLoop()

	fw.backfill()
	return nil
}

// Stop closes the fsnotify watcher and cancels pending debounced work.
func (fw *FileWatcher) Stop() {
	fw.status.Store("stopped")
	if fw.cancel != nil {
		fw.cancel()
	}
	if fw.watcher != nil {
		fw.watcher.Close()
		<-fw.done
	}

	fw.debounceMu.Lock()
	for path, t := range fw.debounceTimers {
		t.Stop()
		delete(fw.debounceTimers, path)
	}
	fw.debounceMu.Unlock()

	fw.log.Info().
		Int64("files_processed", fw.filesProcessed.Load()).
		Int64("files_skipped", fw.filesSkipped.Load()).
		Msg("file watcher stopped")
}

// Status returns the current watcher status for the health endpoint.
func (fw *FileWatcher) Status() *api.WatcherStatusData {
	s, _ := fw.status.Load().(string)
	return &api.WatcherStatusData{
		Status:         s,
		WatchDir:       fw.dir,
		FilesProcessed: fw.filesProcessed.Load(),
		FilesSkipped:   fw.filesSkipped.Load(),
	}
}

// watchLoop is the main event loop that processes fsnotify events.
func (fw *FileWatcher) watchLoop() {
	defer close(fw.done)
	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New subdirectory: watch it too.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := fw.watcher.Add(event.Name); err != nil {
					fw.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				}
				continue
			}

			if stem, ok := sampleStem(event.Name); ok {
				fw.scheduleProcess(stem)
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess debounces sample processing. This coalesces rapid
// Create+Write events and gives both halves of a pair time to land.
func (fw *FileWatcher) scheduleProcess(stem string) {
	fw.scheduleProcessAfter(stem, fw.debounce)
}

func (fw *FileWatcher) scheduleProcessAfter(stem string, delay time.Duration) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if t, ok := fw.debounceTimers[stem]; ok {
		t.Reset(delay)
		return
	}

	fw.debounceTimers[stem] = time.AfterFunc(delay, func() {
		fw.debounceMu.Lock()
		delete(fw.debounceTimers, stem)
		fw.debounceMu.Unlock()

		if fw.ctx.Err() == nil {
			fw.processSample(stem)
		}
	})
}

// backfill enqueues every complete sample already in the drop directory.
func (fw *FileWatcher) backfill() {
	fw.status.Store("backfilling")
	stems := map[string]bool{}
	_ = filepath.WalkDir(fw.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if stem, ok := sampleStem(path); ok {
			stems[stem] = true
		}
		return nil
	})
	for stem := range stems {
		fw.processSample(stem)
	}
	fw.status.Store("watching")
	if len(stems) > 0 {
		fw.log.Info().Int("samples", len(stems)).Msg("backfill complete")
	}
}

// processSample enqueues the sample at stem (a path without extension) if
// its reference and one of hypothesis or audio exist.
func (fw *FileWatcher) processSample(stem string) {
	fw.seenMu.Lock()
	defer fw.seenMu.Unlock()
	if fw.seen[stem] {
		return
	}

	ref, err := os.ReadFile(stem + refSuffix)
	if err != nil {
		return // reference not there yet
	}

	job := evaluate.Job{
		SampleID:  filepath.Base(stem),
		Reference: string(ref),
		Source:    "watcher",
	}
	kind := "hypothesis"

	if hyp, err := os.ReadFile(stem + hypSuffix); err == nil {
		job.Hypothesis = string(hyp)
		job.Provider = "file"
	} else if audioPath := findAudio(stem); audioPath != "" {
		if fw.audio == nil {
			fw.filesSkipped.Add(1)
			fw.log.Warn().Str("path", audioPath).Msg("audio sample found but no audio storage is configured")
			fw.seen[stem] = true
			return
		}
		key, err := fw.storeAudio(audioPath, job.SampleID)
		if err != nil {
			fw.log.Warn().Err(err).Str("path", audioPath).Msg("failed to store sample audio")
			return
		}
		job.AudioKey = key
		kind = "audio"
	} else {
		return // other half not there yet
	}

	if !fw.queue.Enqueue(job) {
		if job.AudioKey != "" {
			fw.discardAudio(job.AudioKey)
		}
		fw.retries[stem]++
		delay := retryDelay(fw.debounce, fw.retries[stem])
		fw.log.Warn().
			Str("sample_id", job.SampleID).
			Int("attempt", fw.retries[stem]).
			Dur("retry_in", delay).
			Msg("evaluation queue full, sample deferred")
		fw.scheduleProcessAfter(stem, delay)
		return
	}
	delete(fw.retries, stem)
	fw.seen[stem] = true
	fw.filesProcessed.Add(1)
	metrics.WatcherFilesTotal.WithLabelValues(kind).Inc()
	fw.log.Debug().Str("sample_id", job.SampleID).Str("kind", kind).Msg("sample enqueued")
}

// retryDelay doubles base for every attempt, up to maxRetryDelay.
func retryDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

// discardAudio removes audio stored for a sample the queue turned away. The
// next attempt stores it again under a fresh key.
func (fw *FileWatcher) discardAudio(key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(fw.ctx), 10*time.Second)
	defer cancel()
	if err := fw.audio.Delete(ctx, key); err != nil {
		fw.log.Warn().Err(err).Str("key", key).Msg("failed to remove audio for deferred sample")
	}
}

func (fw *FileWatcher) storeAudio(path, sampleID string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(fw.ctx, 30*time.Second)
	defer cancel()
	key := storage.SampleKey(sampleID, path, time.Now())
	if err := fw.audio.Save(ctx, key, data, contentType(filepath.Ext(path))); err != nil {
		return "", err
	}
	return key, nil
}

// sampleStem strips the sample suffix from a drop-directory file name.
// ok is false for files that are not part of a sample.
func sampleStem(path string) (stem string, ok bool) {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, hypSuffix) {
		return path[:len(path)-len(hypSuffix)], true
	}
	ext := filepath.Ext(lower)
	if ext == refSuffix || isAudioExt(ext) {
		return path[:len(path)-len(ext)], true
	}
	return "", false
}

func isAudioExt(ext string) bool {
	for _, e := range audioExts {
		if ext == e {
			return true
		}
	}
	return false
}

// findAudio returns the first audio file for stem, or "".
func findAudio(stem string) string {
	for _, ext := range audioExts {
		for _, p := range []string{stem + ext, stem + strings.ToUpper(ext)} {
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p
			}
		}
	}
	return ""
}
