package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Panorama-Block/archive/internal/app"
	"github.com/Panorama-Block/archive/internal/config"
	"github.com/Panorama-Block/archive/internal/logging"
)

func main() {
	bootstrap := logging.DefaultLogger(os.Getenv("LOG_DEV") == "true")
	cfg, err := config.Load(bootstrap)
	if err != nil {
		bootstrap.Fatal("failed to load configuration", zap.Error(err))
	}

	logger := logging.DefaultLogger(cfg.LogDev)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	archive, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize archive", zap.Error(err))
	}

	if err := archive.Start(); err != nil {
		archive.Stop()
		logger.Fatal("failed to start archive", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	archive.Stop()
}
