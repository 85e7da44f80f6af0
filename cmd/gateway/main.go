// Команда gateway запускает HTTP шлюз выдачи и возврата книг.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/internal/app"
	"github.com/akriventsev/library-gateway/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := app.NewLogger(cfg.Log, config.ServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := app.NewGateway(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if err := gw.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown finished with errors", zap.Error(err))
		return err
	}
	return nil
}
