package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/sttbench/internal/evaluate"
	"github.com/snarg/sttbench/internal/metrics"
	"github.com/snarg/sttbench/internal/storage"
)

// ErrQueueFull is returned when the evaluation queue rejects a job.
var ErrQueueFull = errors.New("evaluation queue full")

// Enqueuer accepts evaluation jobs without blocking.
type Enqueuer interface {
	Enqueue(j evaluate.Job) bool
}

// Route describes a parsed MQTT topic.
type Route struct {
	Handler string // "score" or "transcribe"
}

// ParseTopic maps an MQTT topic string to a Route.
//
// Routing is based on the last topic segment only, so any prefix works as
// long as MQTT_TOPICS subscribes to it:
//
//	.../score      → score (hypothesis supplied in the payload)
//	.../transcribe → transcribe (audio key or inline audio)
func ParseTopic(topic string) *Route {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return nil
	}
	switch last := parts[len(parts)-1]; last {
	case "score", "transcribe":
		return &Route{Handler: last}
	}
	return nil
}

// RouterOptions configures a Router.
type RouterOptions struct {
	Queue Enqueuer
	Audio storage.AudioStore // required for inline audio
	Log   zerolog.Logger
}

// Router turns MQTT job messages into queued evaluation jobs.
type Router struct {
	queue Enqueuer
	audio storage.AudioStore
	log   zerolog.Logger
	now   func() time.Time

	msgCount     atomic.Int64
	handlerCount sync.Map // handler name → *atomic.Int64
}

// NewRouter creates a Router.
func NewRouter(opts RouterOptions) *Router {
	return &Router{
		queue: opts.Queue,
		audio: opts.Audio,
		log:   opts.Log.With().Str("component", "router").Logger(),
		now:   time.Now,
	}
}

// HandleMessage is the entry point called by the MQTT client for each message.
func (r *Router) HandleMessage(topic string, payload []byte) {
	r.msgCount.Add(1)

	route := ParseTopic(topic)
	if route == nil {
		metrics.MQTTMessagesTotal.WithLabelValues("ignored").Inc()
		r.log.Warn().Str("topic", topic).Msg("unknown topic, skipping")
		return
	}
	r.incHandler(route.Handler)

	if err := r.dispatch(route, payload); err != nil {
		result := "invalid"
		if errors.Is(err, ErrQueueFull) {
			result = "rejected"
		}
		metrics.MQTTMessagesTotal.WithLabelValues(result).Inc()
		r.log.Error().Err(err).
			Str("handler", route.Handler).
			Str("topic", topic).
			Msg("handler error")
		return
	}
	metrics.MQTTMessagesTotal.WithLabelValues("enqueued").Inc()
}

// MsgCount returns the number of messages received.
func (r *Router) MsgCount() int64 { return r.msgCount.Load() }

// HandlerCounts returns messages received per handler.
func (r *Router) HandlerCounts() map[string]int64 {
	out := map[string]int64{}
	r.handlerCount.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}

func (r *Router) incHandler(name string) {
	v, _ := r.handlerCount.LoadOrStore(name, &atomic.Int64{})
	v.(*atomic.Int64).Add(1)
}

func (r *Router) dispatch(route *Route, payload []byte) error {
	var msg JobMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode job: %w", err)
	}
	if msg.SampleID == "" {
		msg.SampleID = fmt.Sprintf("mqtt-%d", r.now().UnixNano())
	}

	job := evaluate.Job{
		SampleID:  msg.SampleID,
		Reference: msg.Reference,
		Provider:  msg.Provider,
		Model:     msg.Model,
		Language:  msg.Language,
		Source:    "mqtt",
	}

	stored := false
	switch route.Handler {
	case "score":
		job.Hypothesis = msg.Hypothesis
	case "transcribe":
		key, err := r.resolveAudio(&msg)
		if err != nil {
			return err
		}
		job.AudioKey = key
		job.Provider, job.Model = "", ""
		stored = msg.AudioBase64 != ""
	}

	if !r.queue.Enqueue(job) {
		if stored {
			r.discardAudio(job.AudioKey)
		}
		return fmt.Errorf("%w: sample %s", ErrQueueFull, job.SampleID)
	}
	r.log.Debug().
		Str("sample_id", job.SampleID).
		Str("handler", route.Handler).
		Msg("job enqueued")
	return nil
}

// resolveAudio stores inline audio, or checks that a referenced key exists.
func (r *Router) resolveAudio(msg *JobMsg) (string, error) {
	if r.audio == nil {
		return "", errors.New("transcribe job received but no audio storage is configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if msg.AudioBase64 == "" {
		if msg.AudioKey == "" {
			return "", errors.New("transcribe job needs audio_key or audio_base64")
		}
		if !r.audio.Exists(ctx, msg.AudioKey) {
			return "", fmt.Errorf("audio %q not found", msg.AudioKey)
		}
		return msg.AudioKey, nil
	}

	data, err := base64.StdEncoding.DecodeString(msg.AudioBase64)
	if err != nil {
		return "", fmt.Errorf("decode audio: %w", err)
	}
	audioType := strings.TrimPrefix(strings.ToLower(msg.AudioType), ".")
	if audioType == "" {
		audioType = "wav"
	}
	ext := "." + audioType
	key := storage.SampleKey(msg.SampleID, ext, r.now())
	if err := r.audio.Save(ctx, key, data, contentType(ext)); err != nil {
		return "", fmt.Errorf("save audio: %w", err)
	}
	return key, nil
}

// discardAudio removes audio stored for a job that never made it onto the queue.
func (r *Router) discardAudio(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.audio.Delete(ctx, key); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("failed to remove audio for rejected job")
	}
}

func contentType(ext string) string {
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
