// Команда correction-worker применяет корректирующие сообщения, которые
// шлюз не смог доставить синхронно.
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
		fmt.Fprintf(os.Stderr, "correction-worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := app.NewLogger(cfg.Log, "correction-worker")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := app.NewWorker(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build worker: %w", err)
	}
	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down", zap.String("group", cfg.WorkerGroup))

	if err := worker.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown finished with errors", zap.Error(err))
		return err
	}
	return nil
}
