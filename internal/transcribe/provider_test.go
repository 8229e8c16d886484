package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/snarg/sttbench/internal/config"
)

// writeAudio creates a small fake audio file for upload tests.
func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.wav")
	if err := os.WriteFile(path, []byte("RIFF....WAVEfmt "), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// captured records what a fake provider server received.
type captured struct {
	fileField string
	fields    map[string]string
	headers   http.Header
}

func fakeServer(t *testing.T, status int, body any, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		got.headers = r.Header.Clone()
		got.fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			got.fields[k] = v[0]
		}
		for k := range r.MultipartForm.File {
			got.fileField = k
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWhisperClient_Transcribe(t *testing.T) {
	var got captured
	srv := fakeServer(t, http.StatusOK, map[string]any{
		"text": " hello world ", "language": "en", "duration": 1.5,
	}, &got)

	wc := NewWhisperClient(srv.URL, "large-v3", 5*time.Second)
	resp, err := wc.Transcribe(context.Background(), writeAudio(t), TranscribeOpts{Prompt: "names"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if resp.Text != " hello world " {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Duration != 1.5 {
		t.Errorf("Duration = %v, want 1.5", resp.Duration)
	}
	if got.fileField != "file" {
		t.Errorf("file field = %q, want file", got.fileField)
	}
	if got.fields["model"] != "large-v3" || got.fields["language"] != "en" || got.fields["prompt"] != "names" {
		t.Errorf("fields = %v", got.fields)
	}
	if _, ok := got.fields["hotwords"]; ok {
		t.Error("empty hotwords should be omitted")
	}
	if wc.Name() != "whisper" || wc.Model() != "large-v3" {
		t.Errorf("Name/Model = %s/%s", wc.Name(), wc.Model())
	}
}

func TestDeepInfraClient_SegmentFallback(t *testing.T) {
	var got captured
	srv := fakeServer(t, http.StatusOK, map[string]any{
		"text":     "",
		"segments": []map[string]any{{"text": " first part "}, {"text": ""}, {"text": "second"}},
	}, &got)

	di := NewDeepInfraClient("key-123", "openai/whisper-large-v3-turbo", 5*time.Second)
	di.baseURL = srv.URL + "/"
	resp, err := di.Transcribe(context.Background(), writeAudio(t), TranscribeOpts{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if resp.Text != "first part second" {
		t.Errorf("Text = %q, want joined segments", resp.Text)
	}
	if got.fileField != "audio" {
		t.Errorf("file field = %q, want audio", got.fileField)
	}
	if got.headers.Get("Authorization") != "Bearer key-123" {
		t.Errorf("Authorization = %q", got.headers.Get("Authorization"))
	}
}

func TestElevenLabsClient_Transcribe(t *testing.T) {
	var got captured
	srv := fakeServer(t, http.StatusOK, map[string]any{
		"text": "scribe output", "language_code": "eng",
	}, &got)

	el := NewElevenLabsClient("xi-key", "scribe_v1", "alpha, beta", 5*time.Second)
	el.endpoint = srv.URL
	resp, err := el.Transcribe(context.Background(), writeAudio(t), TranscribeOpts{Hotwords: "gamma"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if resp.Text != "scribe output" || resp.Language != "eng" {
		t.Errorf("resp = %+v", resp)
	}
	if got.headers.Get("xi-api-key") != "xi-key" {
		t.Errorf("xi-api-key = %q", got.headers.Get("xi-api-key"))
	}
	want := `[{"text":"alpha"},{"text":"beta"},{"text":"gamma"}]`
	if got.fields["keyterms"] != want {
		t.Errorf("keyterms = %q, want %q", got.fields["keyterms"], want)
	}
}

func TestProviderError(t *testing.T) {
	var got captured
	srv := fakeServer(t, http.StatusTooManyRequests, map[string]string{"error": "slow down"}, &got)

	wc := NewWhisperClient(srv.URL, "", 5*time.Second)
	_, err := wc.Transcribe(context.Background(), writeAudio(t), TranscribeOpts{})

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ProviderError", err)
	}
	if pe.Status != http.StatusTooManyRequests || !pe.Retryable() {
		t.Errorf("status = %d retryable = %v", pe.Status, pe.Retryable())
	}
	if (&ProviderError{Status: 400}).Retryable() {
		t.Error("400 should not be retryable")
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	wc := NewWhisperClient("http://127.0.0.1:0", "", time.Second)
	if _, err := wc.Transcribe(context.Background(), "/nonexistent/audio.wav", TranscribeOpts{}); err == nil {
		t.Error("expected error for missing audio file")
	}
}

func TestBuildKeyterms(t *testing.T) {
	if got := buildKeyterms("", " , "); got != "" {
		t.Errorf("buildKeyterms(empty) = %q, want empty", got)
	}
	if got := buildKeyterms("one"); got != `[{"text":"one"}]` {
		t.Errorf("buildKeyterms(one) = %q", got)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.STTConfig
		wantName string
		wantErr  bool
	}{
		{"default_whisper", config.STTConfig{WhisperURL: "http://x"}, "whisper", false},
		{"whisper_missing_url", config.STTConfig{Provider: "whisper"}, "", true},
		{"deepinfra", config.STTConfig{Provider: "DeepInfra", DeepInfraAPIKey: "k"}, "deepinfra", false},
		{"deepinfra_missing_key", config.STTConfig{Provider: "deepinfra"}, "", true},
		{"elevenlabs", config.STTConfig{Provider: "elevenlabs", ElevenLabsKey: "k"}, "elevenlabs", false},
		{"unknown", config.STTConfig{Provider: "carrier-pigeon"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("Name = %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}
