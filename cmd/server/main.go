package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"basewar/server/internal/app"
	"basewar/server/internal/config"
	"basewar/server/internal/telemetry"
)

func main() {
	logger := telemetry.WrapLogger(log.Default())

	cfg, err := config.Load(logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, app.Config{Logger: logger, Server: cfg}); err != nil {
		log.Fatalf("%v", err)
	}
}
