package ingest

// JobMsg is the payload of an MQTT job message.
//
// Score jobs carry a ready hypothesis. Transcribe jobs carry either the key
// of audio already in storage or the audio itself, base64 encoded.
type JobMsg struct {
	SampleID    string `json:"sample_id"`
	Reference   string `json:"reference"`
	Hypothesis  string `json:"hypothesis"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	Language    string `json:"language"`
	AudioKey    string `json:"audio_key"`
	AudioBase64 string `json:"audio_base64"`
	AudioType   string `json:"audio_type"` // file extension without the dot, e.g. "wav"
}
