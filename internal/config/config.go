package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL      string `env:"DATABASE_URL,required"`
	DatabaseMaxConns int32  `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	DatabaseMinConns int32  `env:"DATABASE_MIN_CONNS" envDefault:"2"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTTopics      string `env:"MQTT_TOPICS" envDefault:"sttbench/jobs/#"`
	MQTTResultTopic string `env:"MQTT_RESULT_TOPIC" envDefault:"sttbench/results"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"sttbench"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`

	AudioDir string `env:"AUDIO_DIR" envDefault:"./audio"`
	WatchDir string `env:"WATCH_DIR"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" envSeparator:","`

	// Markup used when a request doesn't name one: "html" or "brackets".
	DiffMarkup string `env:"DIFF_MARKUP" envDefault:"html"`

	STT     STTConfig
	Workers WorkerConfig
	S3      S3Config

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// STTConfig selects and configures the speech-to-text provider that turns
// sample audio into hypothesis transcripts.
type STTConfig struct {
	Provider        string        `env:"STT_PROVIDER" envDefault:"whisper"`
	WhisperURL      string        `env:"WHISPER_URL" envDefault:"http://localhost:8000/v1/audio/transcriptions"`
	WhisperModel    string        `env:"WHISPER_MODEL"`
	DeepInfraAPIKey string        `env:"DEEPINFRA_API_KEY"`
	DeepInfraModel  string        `env:"DEEPINFRA_MODEL" envDefault:"openai/whisper-large-v3-turbo"`
	ElevenLabsKey   string        `env:"ELEVENLABS_API_KEY"`
	ElevenLabsModel string        `env:"ELEVENLABS_MODEL" envDefault:"scribe_v1"`
	Keyterms        string        `env:"STT_KEYTERMS"`
	Language        string        `env:"STT_LANGUAGE" envDefault:"en"`
	Temperature     float64       `env:"STT_TEMPERATURE" envDefault:"0"`
	Timeout         time.Duration `env:"STT_TIMEOUT" envDefault:"60s"`
	PreprocessAudio bool          `env:"PREPROCESS_AUDIO" envDefault:"false"`
}

// WorkerConfig sizes the evaluation worker pool.
type WorkerConfig struct {
	Count     int `env:"EVAL_WORKERS" envDefault:"2"`
	QueueSize int `env:"EVAL_QUEUE_SIZE" envDefault:"500"`
}

// S3Config enables object storage for sample audio. Local storage is used
// when Bucket is empty.
type S3Config struct {
	Bucket        string        `env:"S3_BUCKET"`
	Endpoint      string        `env:"S3_ENDPOINT"`
	Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey     string        `env:"S3_ACCESS_KEY"`
	SecretKey     string        `env:"S3_SECRET_KEY"`
	Prefix        string        `env:"S3_PREFIX"`
	PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"1h"`
}

// Enabled reports whether S3 storage is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	DatabaseURL   string
	MQTTBrokerURL string
	AudioDir      string
	WatchDir      string
	STTProvider   string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// Overrides may supply a required value, so parse with those applied to
	// the environment first.
	if overrides.DatabaseURL != "" {
		os.Setenv("DATABASE_URL", overrides.DatabaseURL)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.MQTTBrokerURL != "" {
		cfg.MQTTBrokerURL = overrides.MQTTBrokerURL
	}
	if overrides.AudioDir != "" {
		cfg.AudioDir = overrides.AudioDir
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}
	if overrides.STTProvider != "" {
		cfg.STT.Provider = overrides.STTProvider
	}

	return cfg, nil
}
