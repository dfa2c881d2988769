package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rentpay-engine/internal/config"
	"rentpay-engine/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := initLogger(cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer logger.Sync()

	orgID := os.Getenv("ORG_ID")
	if orgID == "" {
		logger.Fatal("ORG_ID environment variable is required")
	}

	engine, err := service.New(cfg, orgID, logger)
	if err != nil {
		logger.Fatal("Failed to create payment engine",
			zap.Error(err),
		)
	}
	defer engine.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, shutting down",
		zap.String("signal", sig.String()),
	)
	cancel()
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Log.Format == "json" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
