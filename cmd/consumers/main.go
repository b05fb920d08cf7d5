package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eventcart/internal/config"
	"eventcart/internal/consumers"
	"eventcart/internal/logger"
)

func main() {
	cfg := config.MustLoad()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	log.Info("Starting consumers service...")

	// отдельный client ID, чтобы отличать процесс в мониторинге NATS
	cfg.NATS.ClientID = cfg.NATS.ClientID + "-consumers"

	consumerService, err := consumers.NewConsumerService(cfg)
	if err != nil {
		logger.Fatal("Failed to create consumer service", "error", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := consumerService.Start(ctx); err != nil {
		logger.Fatal("Failed to start consumers", "error", err)
	}

	log.Info("Consumers service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down consumers service...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumerService.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
	}

	log.Info("Consumers service stopped")
}
