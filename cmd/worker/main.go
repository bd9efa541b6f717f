package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Nishant142k2/pdf-rag/internal/bootstrap"
	"github.com/Nishant142k2/pdf-rag/internal/config"
	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
	"github.com/Nishant142k2/pdf-rag/internal/observability/logging"
	"github.com/Nishant142k2/pdf-rag/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, "worker", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}
	if !cfg.AsyncIngest() {
		logger.Error("worker_requires_async_ingest", "ingest_mode", cfg.IngestMode)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_failed", "error", err)
		}
	}()

	logger.Info("worker_subscribing", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeStagedFiles(ctx, func(handlerCtx context.Context, file domain.StagedFile) error {
		if !file.StagedAt.IsZero() {
			workerMetrics.ObserveQueueLag(time.Since(file.StagedAt))
		}
		workerMetrics.StartFile()
		start := time.Now()

		processCtx, cancel := context.WithTimeout(handlerCtx, cfg.WorkerProcessTimeout)
		defer cancel()
		report := app.IngestUC.ProcessStaged(processCtx, []domain.StagedFile{file})

		var processErr error
		if len(report.Files) > 0 && report.Files[0].Error != "" {
			processErr = errors.New(report.Files[0].Error)
		}
		workerMetrics.FinishFile(time.Since(start), report.TotalUpserted, processErr)
		return processErr
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	logger.Info("worker_stopped")
}
