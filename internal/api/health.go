package api

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionStatus reports a live connection state.
type ConnectionStatus interface {
	IsConnected() bool
}

// WatcherStatusData describes the drop-directory watcher.
type WatcherStatusData struct {
	Status         string `json:"status"`
	WatchDir       string `json:"watch_dir"`
	FilesProcessed int64  `json:"files_processed"`
	FilesSkipped   int64  `json:"files_skipped"`
}

// WatcherStatusSource provides watcher status for the health endpoint.
type WatcherStatusSource interface {
	Status() *WatcherStatusData
}

type HealthResponse struct {
	Status        string             `json:"status"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Checks        map[string]string  `json:"checks"`
	Storage       string             `json:"storage,omitempty"`
	Provider      string             `json:"provider,omitempty"`
	Watcher       *WatcherStatusData `json:"watcher,omitempty"`
}

type HealthHandler struct {
	db        HealthChecker
	mqtt      ConnectionStatus
	watcher   WatcherStatusSource
	storage   string
	provider  string
	version   string
	startTime time.Time
}

func NewHealthHandler(opts ServerOptions) *HealthHandler {
	h := &HealthHandler{
		db:        opts.DB,
		mqtt:      opts.MQTT,
		watcher:   opts.Watcher,
		provider:  opts.ProviderName,
		version:   opts.Version,
		startTime: opts.StartTime,
	}
	if opts.Audio != nil {
		h.storage = opts.Audio.Type()
	}
	return h
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Database check
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if h.db == nil {
		checks["database"] = "not_configured"
	} else if err := h.db.HealthCheck(ctx); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	// MQTT check
	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
		Storage:       h.storage,
		Provider:      h.provider,
	}

	// File watcher check
	if h.watcher != nil {
		if ws := h.watcher.Status(); ws != nil {
			checks["file_watcher"] = ws.Status
			resp.Watcher = ws
		}
	}

	WriteJSON(w, httpStatus, resp)
}
