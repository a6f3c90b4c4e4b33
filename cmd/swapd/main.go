package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"swapledger/config"
	"swapledger/core"
	"swapledger/observability/logging"
	"swapledger/observability/metrics"
	swapotel "swapledger/observability/otel"
	"swapledger/rpc"
	"swapledger/storage"
)

const serviceName = "swapd"

func main() {
	configFile := flag.String("config", "./swapd.toml", "Path to the configuration file")
	listenFlag := flag.String("listen", "", "Override the configured RPC listen address")
	flag.Parse()

	if err := run(*configFile, *listenFlag); err != nil {
		fmt.Fprintf(os.Stderr, "swapd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, listenOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := cfg.Env
	if v := strings.TrimSpace(os.Getenv("SWAP_ENV")); v != "" {
		env = v
	}
	logger := logging.SetupWithOptions(logging.Options{
		Service: serviceName,
		Env:     env,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := swapotel.Init(ctx, swapotel.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     swapotel.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	contract, err := cfg.Contract()
	if err != nil {
		return err
	}
	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	node, err := core.NewNode(db, cfg.NetworkName, contract,
		core.WithLogger(logger),
		core.WithMetrics(metrics.Swap()),
	)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	logger.Info("swap contract ready",
		slog.String("contract", contract.String()),
		slog.String("network", cfg.NetworkName),
		slog.String("data_dir", cfg.DataDir))

	server := rpc.NewServer(node, rpc.ServerConfig{
		Pairs: cfg.Pairs,
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
			Burst:             cfg.RateLimit.Burst,
			TrustProxy:        cfg.RateLimit.TrustProxy,
		},
		Logger:  logger,
		Metrics: metrics.RPC(),
	})
	addr := cfg.ListenAddress
	if strings.TrimSpace(listenOverride) != "" {
		addr = listenOverride
	}
	if err := server.Start(ctx, addr); err != nil {
		return fmt.Errorf("rpc server: %w", err)
	}
	logger.Info("swapd stopped")
	return nil
}
