// Package main is the entry point for the correlation core service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	alertstore "redblue-core/internal/alert"
	"redblue-core/internal/api"
	"redblue-core/internal/auth"
	"redblue-core/internal/cache"
	"redblue-core/internal/config"
	"redblue-core/internal/correlate"
	"redblue-core/internal/detect"
	"redblue-core/internal/ingest"
	"redblue-core/internal/kafka"
	"redblue-core/internal/pipeline"
	"redblue-core/internal/queue"
	"redblue-core/internal/rules"
	"redblue-core/internal/schema"
	"redblue-core/internal/startup"
	"redblue-core/internal/stats"
	"redblue-core/internal/storage"
	"redblue-core/internal/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)
	startup.PrintBanner(version)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"queue_size", cfg.Queue.Size,
		"dedup_window", cfg.Correlate.DedupWindow,
		"auth_enabled", cfg.Auth.Enabled,
		"storage_enabled", cfg.Storage.Enabled,
		"kafka_enabled", cfg.Kafka.Enabled,
	)

	telemetry.InitMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core components
	validator := schema.NewValidatorWithConfig(schema.ValidatorConfig{
		MaxAge:    cfg.Validation.MaxSignalAge,
		MaxFuture: cfg.Validation.MaxFuture,
	})
	signalQueue := queue.NewRingBuffer(cfg.Queue.Size)
	ruleStore := rules.NewStore()
	alerts := alertstore.NewStore()

	if loaded, err := rules.LoadDir(ruleStore, cfg.Rules.Dir); err != nil {
		slog.Error("failed to load detection rules", "dir", cfg.Rules.Dir, "error", err)
		os.Exit(1)
	} else {
		slog.Info("detection rules loaded", "dir", cfg.Rules.Dir, "count", loaded)
	}

	// Alert archive
	var chClient *storage.Client
	var batchWriter *storage.BatchWriter
	if cfg.Storage.Enabled {
		slog.Info("initializing alert archive",
			"hosts", cfg.Storage.ClickHouse.Hosts,
			"database", cfg.Storage.ClickHouse.Database,
		)

		chClient, err = storage.NewClient(cfg.Storage.ClickHouse)
		if err != nil {
			slog.Error("failed to connect to ClickHouse", "error", err)
			os.Exit(1)
		}
		if err := chClient.EnsureDatabase(ctx); err != nil {
			slog.Error("failed to ensure database", "error", err)
			os.Exit(1)
		}
		if err := storage.NewMigrator(chClient).Run(ctx); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		batchWriter = storage.NewBatchWriter(chClient, cfg.Storage.BatchWriter)
		alerts.SetSink(batchWriter)
	}

	// Preflight diagnostics
	diagnostics := startup.NewDiagnostics(cfg, chClient)
	diagnostics.RunAll()
	if diagnostics.HasErrors() {
		slog.Error("startup diagnostics failed")
		os.Exit(1)
	}

	// Correlation pipeline
	matcher := detect.NewMatcher(ruleStore)
	aggregator := correlate.NewAggregator(correlate.Config{
		DedupWindow: cfg.Correlate.DedupWindow,
	}, alerts, ruleStore)

	pipe := pipeline.New(signalQueue, matcher, aggregator, pipeline.Config{
		Workers:      cfg.Pipeline.Workers,
		PollInterval: cfg.Pipeline.PollInterval,
		ShutdownWait: cfg.Pipeline.ShutdownWait,
	})

	// Kafka and Redis integrations
	var alertSink *kafka.AlertSink
	var signalSource *kafka.SignalSource
	var throttle *cache.Throttle
	if cfg.Kafka.Enabled {
		alertSink = kafka.NewAlertSink(cfg.Kafka)

		if cfg.Redis.Enabled {
			throttle, err = cache.NewThrottle(cfg.Redis)
			if err != nil {
				slog.Error("failed to connect to redis", "error", err)
				os.Exit(1)
			}
			pipe.SetPublisher(alertSink, throttle)
		} else {
			pipe.SetPublisher(alertSink, nil)
		}

		signalSource = kafka.NewSignalSource(cfg.Kafka, validator, signalQueue)
		signalSource.Start(ctx)
	}

	pipe.Start(ctx)

	// HTTP surface
	handler := ingest.NewHandler(validator, signalQueue, pipe).
		WithMaxPayload(cfg.Ingest.MaxPayloadSize).
		WithMaxBatch(cfg.Ingest.MaxBatchSize).
		WithExtraMetrics(func() map[string]any {
			extra := map[string]any{
				"pipeline": pipe.Metrics(),
			}
			if batchWriter != nil {
				extra["archive"] = batchWriter.Metrics()
			}
			if alertSink != nil {
				extra["kafka_sink"] = alertSink.Metrics()
			}
			if signalSource != nil {
				extra["kafka_source"] = signalSource.Metrics()
			}
			return extra
		})

	engine := stats.NewEngine(alerts)
	coreAPI := api.New(alerts, ruleStore, engine)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/signals", handler.HandleSignals)
	mux.HandleFunc("POST /v1/signals/sync", handler.HandleSignalSync)
	mux.HandleFunc("GET /health", handler.HealthCheck)
	mux.HandleFunc("GET /metrics", handler.Metrics)
	mux.Handle("GET /metrics/prometheus", promhttp.Handler())
	coreAPI.Routes(mux)

	var extraMiddleware []func(http.Handler) http.Handler
	if cfg.Auth.Enabled {
		extraMiddleware = append(extraMiddleware, auth.Middleware(cfg.Auth))
	}
	wrappedHandler := ingest.WithMiddleware(mux, cfg, extraMiddleware...)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      wrappedHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting correlation core", "address", server.Addr, "version", version)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	if signalSource != nil {
		if err := signalSource.Close(); err != nil {
			slog.Error("kafka source close error", "error", err)
		}
	}

	cancel()
	pipe.Stop()
	signalQueue.Close()

	if alertSink != nil {
		if err := alertSink.Close(); err != nil {
			slog.Error("kafka sink close error", "error", err)
		}
	}
	if throttle != nil {
		if err := throttle.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}
	if batchWriter != nil {
		if err := batchWriter.Close(); err != nil {
			slog.Error("batch writer close error", "error", err)
		}
	}
	if chClient != nil {
		if err := chClient.Close(); err != nil {
			slog.Error("clickhouse close error", "error", err)
		}
	}

	queueMetrics := signalQueue.Metrics()
	pipeMetrics := pipe.Metrics()
	slog.Info("shutdown complete",
		"signals_pushed", queueMetrics.Pushed,
		"signals_popped", queueMetrics.Popped,
		"signals_dropped", queueMetrics.Dropped,
		"signals_processed", pipeMetrics.Processed,
		"alerts_open", len(alerts.Snapshot()),
	)
}

func setupLogging(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
