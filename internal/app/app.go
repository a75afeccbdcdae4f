package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	server "basewar/server"
	"basewar/server/internal/config"
	servernet "basewar/server/internal/net"
	"basewar/server/internal/net/ws"
	"basewar/server/internal/sim"
	"basewar/server/internal/store"
	"basewar/server/internal/telemetry"
	"basewar/server/logging"
	loggingSimulation "basewar/server/logging/simulation"
	loggingSinks "basewar/server/logging/sinks"
)

const shutdownTimeout = 10 * time.Second

type Config struct {
	Logger telemetry.Logger
	Server config.Config
	// OnListen, when set, receives the bound address once the listener is open.
	OnListen func(addr string)
}

// Run serves until ctx is cancelled, then stops the tick loop and flushes every
// connected user's balance.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	srvCfg := cfg.Server
	if err := srvCfg.Settings.Validate(); err != nil {
		return fmt.Errorf("invalid game settings: %w", err)
	}

	router, err := newLoggingRouter(srvCfg, fallbackLogger)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()
	metrics := telemetry.WrapMetrics(router.Metrics())

	st, closeStore, err := openStore(ctx, srvCfg, telemetryLogger)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := server.NewHub(st, server.HubConfig{
		BaseRange: srvCfg.Settings.BaseRange,
		Income:    srvCfg.Settings.Income(),
		Logger:    telemetryLogger,
		Metrics:   metrics,
		Publisher: router,
	})

	loop := sim.NewLoop(hub, sim.LoopConfig{Interval: srvCfg.Settings.TickInterval()}, sim.LoopHooks{
		AfterTick: func(result sim.TickResult) {
			metrics.Add(telemetry.MetricTicks, 1)
			loggingSimulation.TickCompleted(ctx, router, result.Tick, loggingSimulation.TickCompletedPayload{
				DurationMillis: result.Duration.Milliseconds(),
				Bases:          result.Bases,
				ActiveBases:    result.ActiveBases,
				TrackedUsers:   result.TrackedUsers,
				FailedBases:    result.FailedBases,
			}, nil)
		},
	})

	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		Logger:       telemetryLogger,
		Metrics:      router.Metrics(),
		Publisher:    router,
		TickInterval: loop.Interval(),
		Socket: ws.HandlerConfig{
			MessageRate:   srvCfg.MessageRate,
			MessageBurst:  srvCfg.MessageBurst,
			DebugCommands: srvCfg.DebugCommands,
		},
	})

	listener, err := net.Listen("tcp", srvCfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srvCfg.Addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	telemetryLogger.Printf("server listening on %s", listener.Addr())
	if cfg.OnListen != nil {
		cfg.OnListen(listener.Addr().String())
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(loopCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	stopLoop()
	<-loopDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetryLogger.Printf("http shutdown: %v", err)
	}
	// Hijacked websocket connections are not tracked by Shutdown; the hub
	// closes them and persists what they earned.
	if err := hub.Close(shutdownCtx); err != nil {
		telemetryLogger.Printf("failed to flush balances on shutdown: %v", err)
	}
	telemetryLogger.Printf("server stopped")
	return runErr
}

func newLoggingRouter(cfg config.Config, fallback *log.Logger) (*logging.Router, error) {
	logConfig := logging.DefaultConfig()
	logConfig.MinimumSeverity = cfg.LogLevel
	logConfig.Fields = map[string]any{"service": "basewar"}

	sinks := []logging.NamedSink{{Name: "console", Sink: loggingSinks.NewConsole(os.Stdout)}}
	if cfg.LogJSONPath != "" {
		f, err := os.OpenFile(cfg.LogJSONPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open json log: %w", err)
		}
		logConfig.EnabledSinks = append(logConfig.EnabledSinks, "json")
		logConfig.JSON.FilePath = cfg.LogJSONPath
		sinks = append(sinks, logging.NamedSink{Name: "json", Sink: loggingSinks.NewJSON(f, logConfig.JSON.FlushInterval)})
	}
	return logging.NewRouter(logConfig, logging.SystemClock{}, fallback, sinks)
}

// openStore picks Postgres when a DSN is configured and the in-memory store
// otherwise.
func openStore(ctx context.Context, cfg config.Config, logger telemetry.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		logger.Printf("using postgres store")
		return pg, pg.Close, nil
	}

	mem := store.NewMemory()
	if cfg.FixturesPath != "" {
		if err := mem.LoadFixturesFile(cfg.FixturesPath); err != nil {
			return nil, nil, fmt.Errorf("load fixtures: %w", err)
		}
		logger.Printf("seeded memory store from %s", cfg.FixturesPath)
	} else {
		logger.Printf("using empty memory store")
	}
	return mem, func() {}, nil
}
