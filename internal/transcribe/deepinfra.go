package transcribe

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const deepInfraBaseURL = "https://api.deepinfra.com/v1/inference/"

// DeepInfraClient calls DeepInfra's native inference API for Whisper models.
type DeepInfraClient struct {
	apiKey  string
	model   string // e.g. "openai/whisper-large-v3-turbo"
	baseURL string
	client  *http.Client
}

// deepInfraResponse is the JSON response from the DeepInfra inference API.
// Some models return only segments; their text is joined when Text is empty.
type deepInfraResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Text string `json:"text"`
	} `json:"segments"`
}

// NewDeepInfraClient creates a new DeepInfra inference client.
func NewDeepInfraClient(apiKey, model string, timeout time.Duration) *DeepInfraClient {
	return &DeepInfraClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: deepInfraBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (di *DeepInfraClient) Name() string { return "deepinfra" }

func (di *DeepInfraClient) Model() string { return di.model }

// Transcribe posts the audio to https://api.deepinfra.com/v1/inference/{model}.
// DeepInfra expects the file under "audio", not "file".
func (di *DeepInfraClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	var result deepInfraResponse
	err := audioUpload{
		provider:  di.Name(),
		url:       di.baseURL + di.model,
		fileField: "audio",
		fields: map[string]string{
			"language":       opts.Language,
			"initial_prompt": opts.Prompt,
		},
		headers: map[string]string{"Authorization": "Bearer " + di.apiKey},
	}.post(ctx, di.client, audioPath, &result)
	if err != nil {
		return nil, err
	}

	text := result.Text
	if strings.TrimSpace(text) == "" && len(result.Segments) > 0 {
		parts := make([]string, 0, len(result.Segments))
		for _, seg := range result.Segments {
			if t := strings.TrimSpace(seg.Text); t != "" {
				parts = append(parts, t)
			}
		}
		text = strings.Join(parts, " ")
	}

	return &Response{
		Text:     text,
		Language: result.Language,
		Duration: result.Duration,
	}, nil
}
