package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cyberswap/config"
	"cyberswap/core"
	"cyberswap/crypto"
	"cyberswap/observability"
	"cyberswap/observability/logging"
	telemetry "cyberswap/observability/otel"
	"cyberswap/rpc"
	"cyberswap/storage"
)

const rpcTokenEnv = "CYBERSWAP_RPC_TOKEN"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.Setup("cyberswapd", cfg.Environment,
		logging.WithLevel(cfg.Log.Level),
		logging.WithFile(logging.FileConfig{
			Path:       config.ResolvePath(*configFile, cfg.Log.File),
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   true,
		}))

	if err := run(*configFile, *genesisFlag, cfg, logger); err != nil {
		logger.Error("cyberswapd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configFile, genesisFlag string, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(telemetry.Config{
		ServiceName: "cyberswapd",
		Environment: cfg.Environment,
		Endpoint:    cfg.OTEL.Endpoint,
		Insecure:    cfg.OTEL.Insecure,
		Metrics:     cfg.OTEL.Metrics,
		Traces:      cfg.OTEL.Traces,
	}))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	genesisPath := genesisFlag
	if genesisPath == "" {
		genesisPath = config.ResolvePath(configFile, cfg.GenesisFile)
	}
	var genesis *config.Genesis
	start := core.BlockInfo{Height: 1, Time: time.Now().Unix()}
	if genesisPath != "" {
		genesis, err = config.LoadGenesis(genesisPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logger.Warn("genesis file not found", slog.String("path", genesisPath))
			genesis = nil
		case err != nil:
			return err
		default:
			if genesis.StartHeight > 0 {
				start.Height = genesis.StartHeight
			}
			if genesis.StartTime > 0 {
				start.Time = genesis.StartTime
			}
		}
	}

	block, err := core.ResumeBlock(db, start)
	if err != nil {
		return err
	}
	clock := core.NewBlockClock(block)

	host, err := core.NewHost(db, crypto.NewCodec(cfg.AddressPrefix), clock,
		core.WithLogger(logger),
		core.WithMetrics(observability.Market()))
	if err != nil {
		return err
	}
	if _, err := bootstrap(ctx, host, genesis, logger); err != nil {
		return err
	}

	server := rpc.NewServer(host, logger, rpc.ServerConfig{
		AuthToken:         strings.TrimSpace(os.Getenv(rpcTokenEnv)),
		RequestsPerMinute: cfg.RPC.RequestsPerMinute,
		Burst:             cfg.RPC.Burst,
		TrustForwardedFor: cfg.RPC.TrustForwardedFor,
		ReadTimeout:       time.Duration(cfg.RPC.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.RPC.WriteTimeoutSeconds) * time.Second,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(cfg.RPCAddress)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	select {
	case err := <-serveErr:
		return err
	case <-shutdownCtx.Done():
		return nil
	}
}
