package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/sttbench/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSampleStem(t *testing.T) {
	tests := []struct {
		path   string
		stem   string
		wantOK bool
	}{
		{"/d/a.txt", "/d/a", true},
		{"/d/a.hyp.txt", "/d/a", true},
		{"/d/a.HYP.TXT", "/d/a", true},
		{"/d/a.wav", "/d/a", true},
		{"/d/a.b.flac", "/d/a.b", true},
		{"/d/a.json", "", false},
		{"/d/noext", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			stem, ok := sampleStem(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.stem, stem)
		})
	}
}

func newTestWatcher(t *testing.T, dir string, q *fakeQueue, audio storage.AudioStore) *FileWatcher {
	t.Helper()
	fw := NewFileWatcher(WatcherOptions{
		Dir:      dir,
		Queue:    q,
		Audio:    audio,
		Debounce: 20 * time.Millisecond,
		Log:      zerolog.Nop(),
	})
	require.NoError(t, fw.Start(context.Background()))
	t.Cleanup(fw.Stop)
	return fw
}

func TestFileWatcher_Backfill(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.txt"), "hello world")
	writeFile(t, filepath.Join(dir, "one.hyp.txt"), "hello there world")
	writeFile(t, filepath.Join(dir, "two.txt"), "no partner yet")
	writeFile(t, filepath.Join(dir, "three.wav"), "RIFF")
	writeFile(t, filepath.Join(dir, "three.txt"), "spoken words")

	q := &fakeQueue{}
	audio := storage.NewLocalStore(t.TempDir())
	fw := newTestWatcher(t, dir, q, audio)

	jobs := q.snapshot()
	require.Len(t, jobs, 2)
	byID := map[string]int{}
	for i, j := range jobs {
		byID[j.SampleID] = i
	}

	one := jobs[byID["one"]]
	assert.Equal(t, "hello world", one.Reference)
	assert.Equal(t, "hello there world", one.Hypothesis)
	assert.Equal(t, "file", one.Provider)
	assert.Equal(t, "watcher", one.Source)

	three := jobs[byID["three"]]
	assert.Empty(t, three.Hypothesis)
	require.NotEmpty(t, three.AudioKey)
	assert.True(t, audio.Exists(context.Background(), three.AudioKey))

	st := fw.Status()
	assert.Equal(t, "watching", st.Status)
	assert.EqualValues(t, 2, st.FilesProcessed)
}

func TestFileWatcher_PairsNewFiles(t *testing.T) {
	dir := t.TempDir()
	q := &fakeQueue{}
	newTestWatcher(t, dir, q, nil)

	writeFile(t, filepath.Join(dir, "late.txt"), "a b c")
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, q.snapshot(), "reference alone must not enqueue")

	writeFile(t, filepath.Join(dir, "late.hyp.txt"), "a b")
	require.Eventually(t, func() bool { return len(q.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)

	// Rewriting a half of an enqueued sample does not enqueue it again.
	writeFile(t, filepath.Join(dir, "late.hyp.txt"), "a b c")
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, q.snapshot(), 1)
}

func TestFileWatcher_AudioWithoutStore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "s.txt"), "ref")
	writeFile(t, filepath.Join(dir, "s.mp3"), "ID3")

	q := &fakeQueue{}
	fw := newTestWatcher(t, dir, q, nil)

	assert.Empty(t, q.snapshot())
	assert.EqualValues(t, 1, fw.Status().FilesSkipped)
}

func TestRetryDelay(t *testing.T) {
	base := 500 * time.Millisecond
	assert.Equal(t, time.Second, retryDelay(base, 1))
	assert.Equal(t, 2*time.Second, retryDelay(base, 2))
	assert.Equal(t, 16*time.Second, retryDelay(base, 5))
	assert.Equal(t, maxRetryDelay, retryDelay(base, 6))
	assert.Equal(t, maxRetryDelay, retryDelay(base, 100))
}

func TestFileWatcher_RetriesWhenQueueFull(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "busy.txt"), "a b")
	writeFile(t, filepath.Join(dir, "busy.hyp.txt"), "a c")

	q := &fakeQueue{rejects: 2}
	fw := newTestWatcher(t, dir, q, nil)

	require.Eventually(t, func() bool { return len(q.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "busy", q.snapshot()[0].SampleID)
	assert.EqualValues(t, 1, fw.Status().FilesProcessed)
	assert.Zero(t, fw.Status().FilesSkipped)

	// Enqueued samples are not retried again.
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, q.snapshot(), 1)
}

func TestFileWatcher_QueueFullRemovesStoredAudio(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "spoken.txt"), "hello")
	writeFile(t, filepath.Join(dir, "spoken.wav"), "RIFF")

	audioDir := t.TempDir()
	audio := storage.NewLocalStore(audioDir)
	q := &fakeQueue{full: true}
	newTestWatcher(t, dir, q, audio)

	// Backfill was rejected; its stored copy is gone.
	assert.Empty(t, q.snapshot())
	assert.Empty(t, storedFiles(t, audioDir))

	q.setFull(false)
	require.Eventually(t, func() bool { return len(q.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)

	job := q.snapshot()[0]
	assert.True(t, audio.Exists(context.Background(), job.AudioKey))
	assert.Len(t, storedFiles(t, audioDir), 1, "only the accepted attempt keeps audio")
}
