package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"swapledger/observability/logging"
	"swapledger/services/indexer/config"
	"swapledger/services/indexer/consumer"
	"swapledger/services/indexer/server"
	"swapledger/services/indexer/storage"
)

const serviceName = "swap-indexer"

func main() {
	cfgPath := flag.String("config", "services/indexer/config.yaml", "path to indexer configuration file")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "swap-indexer: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.SetupWithOptions(logging.Options{
		Service: serviceName,
		Env:     strings.TrimSpace(os.Getenv("SWAP_ENV")),
		Level:   cfg.LogLevel,
	})

	dsn, err := storage.FileDSN(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("resolve storage DSN: %w", err)
	}
	store, err := storage.Open(dsn)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	stream, err := consumer.New(cfg.NodeURL, store,
		consumer.WithLogger(logger),
		consumer.WithReconnect(cfg.Reconnect.Duration),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := stream.Run(ctx); err != nil {
			logger.Error("event consumer exited", slog.Any("error", err))
			stop()
		}
	}()

	srv := server.New(store, cfg.HistoryLimit, logger)
	if err := srv.Run(ctx, cfg.ListenAddress); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("swap-indexer stopped")
	return nil
}
