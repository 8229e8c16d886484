package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const elevenLabsSTTEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"

// ElevenLabsClient calls the ElevenLabs Speech-to-Text API.
type ElevenLabsClient struct {
	apiKey   string
	model    string // "scribe_v1" or "scribe_v2"
	keyterms string // comma-separated boost terms
	endpoint string
	client   *http.Client
}

type elevenlabsResponse struct {
	LanguageCode string `json:"language_code"`
	Text         string `json:"text"`
}

// NewElevenLabsClient creates a new ElevenLabs STT client.
func NewElevenLabsClient(apiKey, model, keyterms string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey:   apiKey,
		model:    model,
		keyterms: keyterms,
		endpoint: elevenLabsSTTEndpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (el *ElevenLabsClient) Name() string { return "elevenlabs" }

func (el *ElevenLabsClient) Model() string { return el.model }

// Transcribe sends an audio file to the ElevenLabs STT API.
func (el *ElevenLabsClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	lang := opts.Language
	if lang == "" {
		lang = "en"
	}

	var result elevenlabsResponse
	err := audioUpload{
		provider:  el.Name(),
		url:       el.endpoint,
		fileField: "file",
		fields: map[string]string{
			"model_id":      el.model,
			"language_code": lang,
			"keyterms":      buildKeyterms(el.keyterms, opts.Hotwords),
		},
		headers: map[string]string{"xi-api-key": el.apiKey},
	}.post(ctx, el.client, audioPath, &result)
	if err != nil {
		return nil, err
	}

	return &Response{
		Text:     result.Text,
		Language: result.LanguageCode,
	}, nil
}

// buildKeyterms merges comma-separated term lists into the JSON array of
// {"text": term} objects ElevenLabs expects. Returns "" when there are none.
func buildKeyterms(lists ...string) string {
	type keyterm struct {
		Text string `json:"text"`
	}
	var terms []keyterm
	for _, list := range lists {
		for _, t := range strings.Split(list, ",") {
			if t = strings.TrimSpace(t); t != "" {
				terms = append(terms, keyterm{Text: t})
			}
		}
	}
	if len(terms) == 0 {
		return ""
	}
	b, _ := json.Marshal(terms)
	return string(b)
}
