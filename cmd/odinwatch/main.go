package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"odinwatch/config"
	"odinwatch/internal/odin/watcher"
	"odinwatch/logger"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// zap logger
	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run watcher
	if err := watcher.Run(ctx, cfg, zlog); err != nil {
		zlog.Fatal("watcher failed", zap.Error(err))
	}
	zlog.Info("shutdown complete")
}
