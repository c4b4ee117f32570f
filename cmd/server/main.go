package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/leowmjw/go-health-timeline/internal/config"
	"github.com/leowmjw/go-health-timeline/pkg/export"
	"github.com/leowmjw/go-health-timeline/pkg/http"
	"github.com/leowmjw/go-health-timeline/pkg/temporal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	var (
		httpAddr     = flag.String("http-addr", cfg.HTTPAddr, "HTTP server address")
		temporalAddr = flag.String("temporal-addr", cfg.TemporalAddr, "Temporal server address")
		namespace    = flag.String("namespace", cfg.Namespace, "Temporal namespace")
		taskQueue    = flag.String("task-queue", cfg.TaskQueue, "Temporal task queue")
		exportDir    = flag.String("export-dir", cfg.ExportDir, "Directory of export.xml files; empty keeps uploaded records in memory")
		outputDir    = flag.String("out", cfg.OutputDir, "Directory the json, csv and statistics files are written to")
		logLevel     = flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	// Setup logger
	logger := config.NewLogger(*logLevel)
	slog.SetDefault(logger)

	logger.Info("Starting health pipeline service",
		"http_addr", *httpAddr,
		"temporal_addr", *temporalAddr,
		"namespace", *namespace,
		"task_queue", *taskQueue,
		"export_dir", *exportDir,
		"out", *outputDir,
	)

	// Create Temporal client
	temporalClient, err := client.Dial(client.Options{
		HostPort:  *temporalAddr,
		Namespace: *namespace,
	})
	if err != nil {
		logger.Error("Failed to create Temporal client", "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()

	// Exports come either from disk or from uploads held in memory
	var (
		store   temporal.RecordStore
		records temporal.RecordWriter
	)
	if *exportDir != "" {
		store = export.NewFileRecordStore(*exportDir, logger)
	} else {
		memory := temporal.NewMemoryRecordStore()
		store, records = memory, memory
	}

	// Create and start Temporal worker
	activities := temporal.NewActivitiesImpl(logger, store, export.NewFileSink(*outputDir, logger))

	w := worker.New(temporalClient, *taskQueue, worker.Options{})
	// Register workflows and activities
	activities.Register(w)

	// Start worker in background
	go func() {
		logger.Info("Starting Temporal worker", "task_queue", *taskQueue)
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Error("Temporal worker failed", "error", err)
			os.Exit(1)
		}
	}()

	// Create and start HTTP server
	server := http.NewServer(logger, temporalClient, *httpAddr, records)
	server.SetTaskQueue(*taskQueue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start server in background
	go func() {
		if err := server.Start(ctx); err != nil {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Received shutdown signal, stopping services...")

	// Cancel context to stop HTTP server
	cancel()

	logger.Info("Health pipeline service stopped")
}
