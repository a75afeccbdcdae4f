// Package net exposes the HTTP surface of the server.
package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"basewar/server"
	"basewar/server/internal/net/ws"
	"basewar/server/internal/telemetry"
	"basewar/server/logging"
)

type HTTPHandlerConfig struct {
	Logger       telemetry.Logger
	Metrics      *logging.Metrics
	Publisher    logging.Publisher
	TickInterval time.Duration
	Socket       ws.HandlerConfig
}

type diagnosticsResponse struct {
	Status             string            `json:"status"`
	ServerTime         int64             `json:"serverTime"`
	TickIntervalMillis int64             `json:"tickIntervalMillis"`
	Hub                server.Snapshot   `json:"hub"`
	Telemetry          map[string]uint64 `json:"telemetry"`
}

// NewHTTPHandler routes /ws, /health and /diagnostics.
func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	socketCfg := cfg.Socket
	if socketCfg.Logger == nil {
		socketCfg.Logger = logger
	}
	if socketCfg.Metrics == nil && cfg.Metrics != nil {
		socketCfg.Metrics = telemetry.WrapMetrics(cfg.Metrics)
	}
	if socketCfg.Publisher == nil {
		socketCfg.Publisher = cfg.Publisher
	}
	socket := ws.NewHandler(hub, socketCfg)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", socket.Handle)

	r.Get("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(nethttp.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := diagnosticsResponse{
			Status:             "ok",
			ServerTime:         time.Now().UnixMilli(),
			TickIntervalMillis: cfg.TickInterval.Milliseconds(),
			Hub:                hub.Snapshot(),
			Telemetry:          cfg.Metrics.Snapshot(),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			logger.Printf("failed to encode diagnostics: %v", err)
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	return r
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
