// Package ws serves the websocket endpoint clients stream their location on.
package ws

import (
	"context"
	"log"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"basewar/server"
	"basewar/server/internal/net/intake"
	"basewar/server/internal/telemetry"
	"basewar/server/logging"
	loggingNetwork "basewar/server/logging/network"
)

const (
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 4096
	writeWait             = 10 * time.Second
)

type HandlerConfig struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	// MessageRate is the sustained number of frames per second accepted from
	// one connection. Zero disables limiting.
	MessageRate   float64
	MessageBurst  int
	DebugCommands bool
	// PongWait bounds how long a silent connection is kept; pings are sent at
	// nine tenths of it.
	PongWait       time.Duration
	MaxMessageSize int64
}

type Handler struct {
	hub      *server.Hub
	router   *intake.Router
	logger   telemetry.Logger
	metrics  telemetry.Metrics
	pub      logging.Publisher
	upgrader websocket.Upgrader
	rate     rate.Limit
	burst    int
	pongWait time.Duration
	maxSize  int64
}

func NewHandler(hub *server.Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	h := &Handler{
		hub:      hub,
		logger:   logger,
		metrics:  metrics,
		pub:      pub,
		upgrader: upgrader,
		pongWait: cfg.PongWait,
		maxSize:  cfg.MaxMessageSize,
	}
	if h.pongWait <= 0 {
		h.pongWait = defaultPongWait
	}
	if h.maxSize <= 0 {
		h.maxSize = defaultMaxMessageSize
	}
	if cfg.MessageRate > 0 {
		h.rate = rate.Limit(cfg.MessageRate)
		h.burst = cfg.MessageBurst
		if h.burst <= 0 {
			h.burst = 1
		}
	}
	h.router = intake.NewRouter(hub, intake.Config{
		Logger:        logger,
		Metrics:       metrics,
		Publisher:     pub,
		DebugCommands: cfg.DebugCommands,
	})
	return h
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	conn.SetReadLimit(h.maxSize)
	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	handle := h.hub.Connect(conn)
	actor := logging.ConnectionRef(handle.String())

	done := make(chan struct{})
	go h.keepalive(conn, done)

	var limiter *rate.Limiter
	if h.rate > 0 {
		limiter = rate.NewLimiter(h.rate, h.burst)
	}

	// Store calls made on behalf of this connection outlive the request.
	ctx := context.WithoutCancel(r.Context())

	reason := "closed"
	defer func() {
		close(done)
		h.hub.Disconnect(handle, reason)
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.logger.Printf("read from %s failed: %v", handle, err)
				reason = "read failed"
			}
			return
		}

		if limiter != nil && !limiter.Allow() {
			h.metrics.Add(telemetry.MetricMessagesDropped, 1)
			loggingNetwork.RateLimited(ctx, h.pub, actor, loggingNetwork.MessagePayload{Size: len(payload), Reason: "rate limit exceeded"}, nil)
			continue
		}

		h.router.Handle(ctx, handle, payload)
	}
}

// keepalive pings conn until done is closed. WriteControl is safe alongside
// the hub's writes.
func (h *Handler) keepalive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.pongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
