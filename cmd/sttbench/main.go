package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	sttbench "github.com/snarg/sttbench"
	"github.com/snarg/sttbench/internal/api"
	"github.com/snarg/sttbench/internal/config"
	"github.com/snarg/sttbench/internal/database"
	"github.com/snarg/sttbench/internal/evaluate"
	"github.com/snarg/sttbench/internal/ingest"
	"github.com/snarg/sttbench/internal/metrics"
	"github.com/snarg/sttbench/internal/mqttclient"
	"github.com/snarg/sttbench/internal/storage"
	"github.com/snarg/sttbench/internal/transcribe"
	"github.com/snarg/sttbench/internal/worddiff"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.StringVar(&overrides.EnvFile, "env", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	flag.StringVar(&overrides.MQTTBrokerURL, "mqtt-url", "", "MQTT broker URL (overrides MQTT_BROKER_URL)")
	flag.StringVar(&overrides.AudioDir, "audio-dir", "", "local sample audio directory (overrides AUDIO_DIR)")
	flag.StringVar(&overrides.WatchDir, "watch-dir", "", "drop directory to watch for samples (overrides WATCH_DIR)")
	flag.StringVar(&overrides.STTProvider, "stt-provider", "", "whisper, deepinfra or elevenlabs (overrides STT_PROVIDER)")
	flag.Parse()

	if *showVersion {
		fmt.Println("sttbench", version)
		return
	}

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("sttbench starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolOptions{
		MaxConns: cfg.DatabaseMaxConns,
		MinConns: cfg.DatabaseMinConns,
	}, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx, sttbench.SchemaSQL); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate schema")
	}

	// Sample audio storage
	storeLog := log.With().Str("component", "storage").Logger()
	audio, err := storage.New(cfg.S3, cfg.AudioDir, storeLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize audio storage")
	}

	// STT provider. Without one the service still scores supplied hypotheses.
	var provider transcribe.Provider
	providerName := ""
	if p, err := transcribe.New(cfg.STT); err != nil {
		log.Warn().Err(err).Msg("no STT provider, audio samples will be rejected")
	} else {
		provider = p
		providerName = p.Name()
		log.Info().Str("provider", p.Name()).Str("model", p.Model()).Msg("STT provider configured")
	}

	// MQTT is optional. Connect before the pool so results can be published.
	var mqtt *mqttclient.Client
	if cfg.MQTTBrokerURL != "" {
		mqttLog := log.With().Str("component", "mqtt").Logger()
		mqtt, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topics:    cfg.MQTTTopics,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       mqttLog,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mqtt.Close()
	}

	// Evaluation workers
	poolOpts := evaluate.WorkerPoolOptions{
		Store:           db,
		Audio:           audio,
		Provider:        provider,
		Markup:          worddiff.ParseMarkup(cfg.DiffMarkup),
		Language:        cfg.STT.Language,
		Temperature:     cfg.STT.Temperature,
		Hotwords:        cfg.STT.Keyterms,
		PreprocessAudio: cfg.STT.PreprocessAudio,
		Timeout:         cfg.STT.Timeout,
		Retries:         2,
		Workers:         cfg.Workers.Count,
		QueueSize:       cfg.Workers.QueueSize,
		Log:             log.With().Str("component", "evaluate").Logger(),
	}
	if mqtt != nil && cfg.MQTTResultTopic != "" {
		poolOpts.Publish = func(res evaluate.Result) {
			payload, err := json.Marshal(res)
			if err != nil {
				return
			}
			if err := mqtt.Publish(cfg.MQTTResultTopic, payload); err != nil {
				log.Warn().Err(err).Int64("id", res.ID).Msg("failed to publish result")
			}
		}
	}
	pool := evaluate.NewWorkerPool(poolOpts)
	pool.Start()
	defer pool.Stop()

	prometheus.MustRegister(metrics.NewCollector(db.Pool, pool))

	// MQTT job ingestion
	if mqtt != nil {
		router := ingest.NewRouter(ingest.RouterOptions{
			Queue: pool,
			Audio: audio,
			Log:   log,
		})
		mqtt.SetMessageHandler(router.HandleMessage)
	}

	// Drop-directory watcher
	var watcher *ingest.FileWatcher
	if cfg.WatchDir != "" {
		watcher = ingest.NewFileWatcher(ingest.WatcherOptions{
			Dir:   cfg.WatchDir,
			Queue: pool,
			Audio: audio,
			Log:   log,
		})
		if err := watcher.Start(ctx); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.WatchDir).Msg("failed to start file watcher")
		}
		defer watcher.Stop()
	}

	// HTTP Server
	srvOpts := api.ServerOptions{
		Config:       cfg,
		DB:           db,
		Store:        db,
		Audio:        audio,
		Queue:        pool,
		ProviderName: providerName,
		Version:      version,
		StartTime:    startTime,
		Log:          log.With().Str("component", "http").Logger(),
	}
	// Interfaces stay nil when the component is off.
	if mqtt != nil {
		srvOpts.MQTT = mqtt
	}
	if watcher != nil {
		srvOpts.Watcher = watcher
	}
	srv := api.NewServer(srvOpts)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("sttbench stopped")
}
