package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mongolog/ingest-server/internal/batch"
	"github.com/mongolog/ingest-server/internal/config"
	"github.com/mongolog/ingest-server/internal/httpapi"
	"github.com/mongolog/ingest-server/internal/ingest"
	"github.com/mongolog/ingest-server/internal/storage"
	"github.com/mongolog/ingest-server/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	log.Printf("Starting %s", version.String())

	// Connect storage (explicitly constructed, injected below)
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := storage.Connect(connectCtx, cfg.MongoURI, cfg.Database, cfg.Collection)
	connectCancel()
	if err != nil {
		log.Fatalf("Storage error: %v", err)
	}

	// Create batch store and orchestrator
	batches := batch.NewStore(cfg.QueueSize)
	orchestrator := ingest.NewOrchestrator(batches, store, cfg.WorkerCount, cfg.ChunkSizeBytes, cfg.BulkTimeout)

	// Start worker goroutine
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker(ctx, batches, orchestrator)

	// Setup HTTP server
	handler := httpapi.NewHandler(batches, cfg.TempDir, store)
	router := httpapi.SetupRouter(handler, cfg.APIKey)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel() // Cancel worker context

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		log.Printf("Storage close error: %v", err)
	}

	log.Println("Server stopped")
}

// worker processes batches from the queue (synchronously, one at a time)
func worker(ctx context.Context, store *batch.Store, orchestrator *ingest.Orchestrator) {
	for {
		// Get next batch (blocking)
		b, err := store.NextBatch(ctx)
		if err != nil {
			if err == context.Canceled {
				return
			}
			log.Printf("Error getting next batch: %v", err)
			time.Sleep(time.Second)
			continue
		}

		processBatch(ctx, b, store, orchestrator)
	}
}

// processBatch runs a single batch and records its terminal state
func processBatch(ctx context.Context, b *batch.Batch, store *batch.Store, orchestrator *ingest.Orchestrator) {
	// The batch may have been canceled while still queued; the queue entry
	// survives a cancel, so re-check the status on dequeue and release the
	// spooled payloads without running anything.
	current, err := store.Get(b.ID)
	if err != nil {
		log.Printf("Batch %s: %v", b.ID, err)
		return
	}
	if current.Status != batch.StatusQueued {
		log.Printf("Batch %s: not runnable, status is %s", b.ID, current.Status)
		releasePayloads(b)
		return
	}

	// Create cancel context for this batch from parent context
	batchCtx, batchCancel := context.WithCancel(ctx)
	defer batchCancel()

	if err := store.SetCancel(b.ID, batchCancel); err != nil {
		log.Printf("Batch %s: Failed to register cancel: %v", b.ID, err)
	}
	defer store.ClearCancel(b.ID)

	if err := store.UpdateStatus(b.ID, batch.StatusRunning); err != nil {
		// Lost the race against a cancel; the payloads still have to go.
		log.Printf("Batch %s: %v", b.ID, err)
		releasePayloads(b)
		return
	}

	result, err := orchestrator.Run(batchCtx, b)
	if result != nil {
		store.SetResult(b.ID, result)
	}

	var status batch.Status
	switch {
	case batchCtx.Err() == context.Canceled:
		status = batch.StatusCanceled
	case err != nil:
		log.Printf("Batch %s: Processing error: %v", b.ID, err)
		store.UpdateError(b.ID, err)
		status = batch.StatusFailed
	case result.SuccessfulFiles == 0:
		// Every file failed; the per-file detail is in the result.
		store.UpdateError(b.ID, ingest.ErrAllFilesFailed)
		status = batch.StatusFailed
	default:
		log.Printf("Batch %s: Completed, %d files ok, %d failed, %d documents",
			b.ID, result.SuccessfulFiles, result.FailedFiles, result.EntriesCreated)
		status = batch.StatusSucceeded
	}

	store.UpdateStatus(b.ID, status)
	ingest.ObserveBatch(string(status))
}

// releasePayloads removes the spooled temp files of a batch that will not
// (or can no longer) be processed.
func releasePayloads(b *batch.Batch) {
	for _, f := range b.Files {
		if f.TempPath == "" {
			continue
		}
		if err := os.Remove(f.TempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("Batch %s: failed to delete temp file %s: %v", b.ID, f.TempPath, err)
		}
	}
}
