package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"linkrelay/internal/api"
	"linkrelay/internal/config"
	"linkrelay/internal/ingest"
	"linkrelay/internal/queue"
	"linkrelay/internal/storage"
)

func main() {
	// --- Configuration Loading ---
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	log.WithFields(logrus.Fields{
		"badgerdb_path":  cfg.BadgerDBPath,
		"listen_addr":    cfg.ListenAddr,
		"flush_interval": cfg.FlushInterval.String(),
	}).Info("Configuration loaded successfully")

	// --- Initialize Components ---
	log.Info("Initializing components...")

	// Durable key-value store backing the queue
	kv, err := storage.NewBadgerStore(cfg.BadgerDBPath, log)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer func() {
		log.Info("Closing storage...")
		if err := kv.Close(); err != nil {
			log.WithError(err).Error("Error closing storage")
		}
	}()

	// Share-retry queue and its flusher
	shareQueue := queue.NewStore(kv, log)
	flusher := queue.NewFlusher(shareQueue, log)

	// Ingestion client supplying the retry callback
	ingestClient := ingest.NewClient(cfg.IngestURL, cfg.IngestAuthToken, log)

	// Local HTTP API for the sharing clients
	server := api.NewServer(cfg.ListenAddr, shareQueue, flusher, ingestClient, log)

	// --- Application Startup ---
	log.Info("Starting linkrelay...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.Start(ctx); err != nil {
			log.WithError(err).Error("API server stopped with error")
			stop()
		}
	}()

	// The queue owns no scheduler; this interval tick is the daemon's
	// external flush trigger, alongside POST /flush.
	go runFlushLoop(ctx, flusher, ingestClient, cfg.FlushInterval, log)

	log.Info("linkrelay is running. Press Ctrl+C to exit.")

	// --- Wait for Shutdown Signal ---
	<-ctx.Done()

	// --- Graceful Shutdown ---
	log.Info("Shutting down linkrelay...")
	stop()

	log.Info("linkrelay shut down gracefully.")
}

// runFlushLoop flushes once at startup and then on every tick until the
// context is cancelled.
func runFlushLoop(ctx context.Context, flusher *queue.Flusher, ingestor ingest.Ingestor, interval time.Duration, log logrus.FieldLogger) {
	flushOnce(ctx, flusher, ingestor, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			flushOnce(ctx, flusher, ingestor, log)
		case <-ctx.Done():
			log.Info("Stopping flush loop")
			return
		}
	}
}

func flushOnce(ctx context.Context, flusher *queue.Flusher, ingestor ingest.Ingestor, log logrus.FieldLogger) {
	result, err := flusher.Flush(ctx, ingestor.Deliver)
	if err != nil {
		log.WithError(err).Error("Flush cycle failed")
		return
	}
	if result.Succeeded > 0 || result.Failed > 0 {
		log.WithFields(logrus.Fields{
			"succeeded": result.Succeeded,
			"failed":    result.Failed,
		}).Info("Flush cycle finished")
	}
}
