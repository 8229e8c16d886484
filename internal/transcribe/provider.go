package transcribe

import (
	"context"
	"fmt"
	"strings"

	"github.com/snarg/sttbench/internal/config"
)

// Provider is the interface for speech-to-text backends that produce
// hypothesis transcripts.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error)
	Name() string  // "whisper", "deepinfra", "elevenlabs"
	Model() string // model identifier for DB/logs
}

// TranscribeOpts are per-request options. Zero values are omitted from the
// request so servers fall back to their own defaults.
type TranscribeOpts struct {
	Language    string
	Temperature float64
	Prompt      string // initial prompt / domain vocabulary
	Hotwords    string // comma-separated boost terms
}

// Response is the common transcription result from any provider.
type Response struct {
	Text     string
	Language string
	Duration float64 // audio duration in seconds, 0 if unknown
}

// ProviderError is returned when a provider answers with a non-200 status.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.Status, e.Body)
}

// Retryable reports whether the failure is likely transient.
func (e *ProviderError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

// New builds the provider named in cfg.Provider.
func New(cfg config.STTConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "whisper":
		if cfg.WhisperURL == "" {
			return nil, fmt.Errorf("whisper provider requires WHISPER_URL")
		}
		return NewWhisperClient(cfg.WhisperURL, cfg.WhisperModel, cfg.Timeout), nil
	case "deepinfra":
		if cfg.DeepInfraAPIKey == "" {
			return nil, fmt.Errorf("deepinfra provider requires DEEPINFRA_API_KEY")
		}
		return NewDeepInfraClient(cfg.DeepInfraAPIKey, cfg.DeepInfraModel, cfg.Timeout), nil
	case "elevenlabs":
		if cfg.ElevenLabsKey == "" {
			return nil, fmt.Errorf("elevenlabs provider requires ELEVENLABS_API_KEY")
		}
		return NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsModel, cfg.Keyterms, cfg.Timeout), nil
	}
	return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
}
