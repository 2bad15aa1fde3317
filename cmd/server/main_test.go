package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mongolog/ingest-server/internal/batch"
	"github.com/mongolog/ingest-server/internal/ingest"
)

type fakeInserter struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeInserter) BulkInsert(ctx context.Context, records []ingest.Record) (*ingest.InsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	ids := make([]interface{}, len(records))
	for i := range ids {
		ids[i] = i
	}
	return &ingest.InsertResult{InsertedCount: len(records), InsertedIDs: ids}, nil
}

func queueTestBatch(t *testing.T, store *batch.Store, payloadPath string) string {
	t.Helper()
	b := &batch.Batch{
		UploadBatch: batch.UploadBatch{
			Owner:      batch.Owner{Name: "T", Email: "t@example.com", UserID: "u-1"},
			VersionTag: "7.0",
			Files: []batch.FileJob{
				batch.NewFileJob("a.log", "primary", "", "7.0", payloadPath),
			},
		},
	}
	id, err := store.Create(b)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return id
}

func TestProcessBatchSkipsCanceledQueuedBatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload")
	if err := os.WriteFile(path, []byte(`{"msg": "a"}`+"\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	store := batch.NewStore(4)
	fake := &fakeInserter{}
	orchestrator := ingest.NewOrchestrator(store, fake, 2, 8, time.Second)

	id := queueTestBatch(t, store, path)

	// Cancel while the batch is still sitting in the queue
	if err := store.Cancel(id); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	// The queue entry survives the cancel; the worker still dequeues it
	queued, err := store.NextBatch(context.Background())
	if err != nil {
		t.Fatalf("NextBatch() error = %v", err)
	}
	processBatch(context.Background(), queued, store, orchestrator)

	got, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != batch.StatusCanceled {
		t.Errorf("Status = %s, want canceled", got.Status)
	}
	if fake.calls != 0 {
		t.Errorf("Inserter called %d times for a canceled batch", fake.calls)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Temp payload %s was not removed", path)
	}
}

func TestProcessBatchRunsQueuedBatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload")
	if err := os.WriteFile(path, []byte(`{"msg": "a"}`+"\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	store := batch.NewStore(4)
	fake := &fakeInserter{}
	orchestrator := ingest.NewOrchestrator(store, fake, 2, 8, time.Second)

	id := queueTestBatch(t, store, path)

	queued, err := store.NextBatch(context.Background())
	if err != nil {
		t.Fatalf("NextBatch() error = %v", err)
	}
	processBatch(context.Background(), queued, store, orchestrator)

	got, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != batch.StatusSucceeded {
		t.Errorf("Status = %s, want succeeded", got.Status)
	}
	if fake.calls != 1 {
		t.Errorf("Inserter called %d times, want 1", fake.calls)
	}
	if got.Result == nil || got.Result.EntriesCreated != 1 {
		t.Errorf("Result = %+v, want 1 entry", got.Result)
	}
}
