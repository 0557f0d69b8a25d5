/**
 * docproc worker - main entry point.
 *
 * Consumes document jobs from Redis (plain list or asynq), runs each image
 * through the processing pipeline and persists the resulting report.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/docuflow/docproc-worker/internal/config"
	"github.com/docuflow/docproc-worker/internal/logging"
	"github.com/docuflow/docproc-worker/internal/ocr"
	"github.com/docuflow/docproc-worker/internal/processor"
	"github.com/docuflow/docproc-worker/internal/queue"
	"github.com/docuflow/docproc-worker/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// No .env is fine, the system environment carries the config.
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.NewLogger("worker").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLoggerWithOptions("worker", logging.Options{
		Level:   cfg.LogLevel,
		Console: cfg.LogConsole,
	})
	logger.Info("docproc worker starting",
		"redis", cfg.RedisURL, "queue", cfg.QueueName, "driver", cfg.QueueDriver,
		"concurrency", cfg.WorkerConcurrency)

	// Result store: postgres when configured, otherwise a no-op.
	var store storage.Store = storage.NopStore{}
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
		logger.Info("result store connected")
	} else {
		logger.Warn("DATABASE_URL not set, results will not be persisted")
	}

	// OCR engines.
	engines := ocr.NewRegistry()
	engines.Register(ocr.NewTesseractEngine(ocr.TesseractConfig{Languages: cfg.Languages}))
	if cfg.RemoteOCRURL != "" {
		engines.Register(ocr.NewRemoteEngine(cfg.RemoteOCRURL, logging.NewLogger("remote-ocr")))
	}
	logger.Info("ocr engines registered", "engines", engines.Names())

	proc := processor.NewDocumentProcessor(engines, cfg.PipelineConfig(), store, logging.NewLogger("processor"))

	// Queue consumer.
	var stop func() error
	switch cfg.QueueDriver {
	case "asynq":
		consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: cfg.DocumentTimeout,
			Logger:            logging.NewLogger("queue"),
		})
		if err != nil {
			logger.Error("failed to initialize asynq consumer", "error", err)
			os.Exit(1)
		}
		if err := consumer.Start(context.Background()); err != nil {
			logger.Error("failed to start asynq consumer", "error", err)
			os.Exit(1)
		}
		stop = func() error { return consumer.Stop(context.Background()) }
	default:
		consumer, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: cfg.DocumentTimeout,
			Logger:            logging.NewLogger("queue"),
		})
		if err != nil {
			logger.Error("failed to initialize redis consumer", "error", err)
			os.Exit(1)
		}
		if err := consumer.Start(); err != nil {
			logger.Error("failed to start redis consumer", "error", err)
			os.Exit(1)
		}
		stop = consumer.Stop
	}

	logger.Info("worker ready, waiting for jobs")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("shutting down", "signal", sig.String())

	if err := stop(); err != nil {
		logger.Error("error stopping queue consumer", "error", err)
	}

	logger.Info("shutdown complete")
}
