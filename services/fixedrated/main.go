package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fixedswap/config"
	"fixedswap/core/events"
	"fixedswap/gateway/middleware"
	"fixedswap/observability/logging"
	"fixedswap/observability/metrics"
	telemetry "fixedswap/observability/otel"
	"fixedswap/services/fixedrated/journal"
	"fixedswap/services/fixedrated/server"
	"fixedswap/storage"
)

func main() {
	var (
		cfgPath     string
		envPath     string
		logRequests bool
	)
	flag.StringVar(&cfgPath, "config", "services/fixedrated/config.toml", "path to fixedrated configuration file (.toml or .yaml)")
	flag.StringVar(&envPath, "env-file", ".env", "optional dotenv file loaded before the configuration")
	flag.BoolVar(&logRequests, "log-requests", false, "log every HTTP request")
	flag.Parse()

	if err := config.LoadEnv(envPath); err != nil {
		log.Fatalf("fixedrated: %v", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("fixedrated: load config: %v", err)
	}

	logger := logging.SetupWithOptions("fixedrated", cfg.Telemetry.Environment, logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	headers := telemetry.ParseHeaders(cfg.Telemetry.Headers)
	for key, value := range headers {
		logger.Debug("otlp header", logging.MaskField(key, value))
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "fixedrated",
		Environment: cfg.Telemetry.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatalf("fixedrated: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	engineAddr, err := cfg.Engine()
	if err != nil {
		log.Fatalf("fixedrated: %v", err)
	}
	fees, err := cfg.ProtocolFees()
	if err != nil {
		log.Fatalf("fixedrated: %v", err)
	}
	creators, err := cfg.Creators()
	if err != nil {
		log.Fatalf("fixedrated: %v", err)
	}
	tokens, err := cfg.GenesisTokens()
	if err != nil {
		log.Fatalf("fixedrated: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		log.Fatalf("fixedrated: create data dir: %v", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		log.Fatalf("fixedrated: open state: %v", err)
	}
	defer db.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o750); err != nil {
		log.Fatalf("fixedrated: create journal dir: %v", err)
	}
	store, err := journal.Open(cfg.JournalPath, logger)
	if err != nil {
		log.Fatalf("fixedrated: open journal: %v", err)
	}
	defer store.Close()

	fixedRateMetrics := metrics.FixedRate()
	runtime, err := server.NewRuntime(server.RuntimeConfig{
		Database:      db,
		EngineAddress: engineAddr,
		Fees:          fees,
		Creators:      creators,
		Sink:          events.Fanout{store, fixedRateMetrics},
	})
	if err != nil {
		log.Fatalf("fixedrated: %v", err)
	}
	seeded, err := runtime.SeedTokens(tokens)
	if err != nil {
		log.Fatalf("fixedrated: seed tokens: %v", err)
	}
	var exchangeCount int
	if err := runtime.View(func() error {
		ids, err := runtime.Engine().ListExchanges()
		exchangeCount = len(ids)
		return err
	}); err != nil {
		log.Fatalf("fixedrated: list exchanges: %v", err)
	}
	fixedRateMetrics.SetExchanges(exchangeCount)

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		RateLimit: middleware.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			EntryTTL:          cfg.RateLimit.EntryTTL.Duration,
		},
		ClockSkew:   cfg.Auth.MaxClockSkew.Duration,
		LogRequests: logRequests,
	}, runtime, store, logger)
	if err != nil {
		log.Fatalf("fixedrated: server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fixedrated listening",
			slog.String("addr", cfg.ListenAddress),
			slog.String("engine", engineAddr.Hex()),
			slog.Int("exchanges", exchangeCount),
			slog.Int("tokens_seeded", seeded))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok && err != nil {
			logger.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
	logger.Info("fixedrated stopped")
}
