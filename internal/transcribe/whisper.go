package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// WhisperClient calls an OpenAI-compatible /v1/audio/transcriptions endpoint.
type WhisperClient struct {
	url    string
	model  string
	client *http.Client
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// NewWhisperClient creates a new Whisper HTTP client.
func NewWhisperClient(url, model string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (wc *WhisperClient) Name() string { return "whisper" }

func (wc *WhisperClient) Model() string { return wc.model }

// Transcribe sends an audio file to the Whisper API. Works with speaches,
// faster-whisper-server, or any OpenAI-compatible endpoint.
func (wc *WhisperClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	lang := opts.Language
	if lang == "" {
		lang = "en"
	}

	var result whisperResponse
	err := audioUpload{
		provider:  wc.Name(),
		url:       wc.url,
		fileField: "file",
		fields: map[string]string{
			"model":           wc.model,
			"language":        lang,
			"temperature":     fmt.Sprintf("%.2f", opts.Temperature),
			"response_format": "verbose_json",
			"prompt":          opts.Prompt,
			"hotwords":        opts.Hotwords,
		},
	}.post(ctx, wc.client, audioPath, &result)
	if err != nil {
		return nil, err
	}

	return &Response{
		Text:     result.Text,
		Language: result.Language,
		Duration: result.Duration,
	}, nil
}
