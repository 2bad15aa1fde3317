package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mongolog/ingest-server/internal/batch"
)

// ErrorCodeFileProcessing marks a per-file failure (decompression or I/O
// error) in a FileResult.
const ErrorCodeFileProcessing = "FILE_PROCESSING_ERROR"

// ErrAllFilesFailed is set as a batch's error when no file of the batch
// processed successfully.
var ErrAllFilesFailed = errors.New("no file in the batch processed successfully")

// InsertResult reports the outcome of a bulk write.
type InsertResult struct {
	InsertedCount int
	InsertedIDs   []interface{}
}

// BulkInserter performs an unordered, partial-failure-tolerant bulk write of
// a batch's records. One document's rejection must not block the rest; only
// a hard failure (connectivity, timeout) is returned as an error.
type BulkInserter interface {
	BulkInsert(ctx context.Context, records []Record) (*InsertResult, error)
}

// Orchestrator drives the per-file pipeline for a whole batch: files are
// processed concurrently by a bounded worker pool, the stages within a file
// stay strictly sequential, and one bad file never aborts its siblings.
type Orchestrator struct {
	store       *batch.Store
	inserter    BulkInserter
	workers     int
	chunkSize   int
	bulkTimeout time.Duration
}

// NewOrchestrator creates an orchestrator. The storage client is injected;
// the orchestrator holds no connection state of its own.
func NewOrchestrator(store *batch.Store, inserter BulkInserter, workers, chunkSize int, bulkTimeout time.Duration) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		store:       store,
		inserter:    inserter,
		workers:     workers,
		chunkSize:   chunkSize,
		bulkTimeout: bulkTimeout,
	}
}

// Run processes every file of a batch and bulk-loads the accumulated records.
// File-level failures are recorded in the returned BatchResult, not returned
// as errors. A store-level failure returns both the result (with the per-file
// parse statistics intact) and the error. Cancellation returns ctx's error.
func (o *Orchestrator) Run(ctx context.Context, b *batch.Batch) (*batch.BatchResult, error) {
	if err := batch.Validate(&b.UploadBatch); err != nil {
		return nil, err
	}

	// Temp payloads of files that never got a worker (cancellation) still
	// have to go.
	defer func() {
		for _, f := range b.Files {
			removeTemp(f.TempPath)
		}
	}()

	results := make([]batch.FileResult, len(b.Files))
	// One record lane per file; merged only after its worker completes, so
	// workers never contend on a shared slice.
	lanes := make([][]Record, len(b.Files))

	var mu sync.Mutex
	var filesProcessed int
	var entriesCreated, linesProcessed int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i := range b.Files {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			records, res := o.processFile(gctx, &b.UploadBatch, b.Files[i])
			results[i] = res
			if res.Success {
				lanes[i] = records
			}

			// Reported while holding mu so a slow worker cannot overwrite
			// a newer snapshot with a stale one.
			mu.Lock()
			filesProcessed++
			entriesCreated += int64(res.EntriesCreated)
			linesProcessed += int64(res.LinesProcessed)
			o.store.UpdateProgress(b.ID, filesProcessed, entriesCreated, linesProcessed)
			mu.Unlock()

			// Only cancellation propagates; file failures are already in
			// the result and must not stop sibling files.
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &batch.BatchResult{
		BatchID:     b.ID,
		TotalFiles:  len(b.Files),
		FileResults: results,
	}

	var all []Record
	for i, res := range results {
		if res.Success {
			result.SuccessfulFiles++
			result.EntriesCreated += res.EntriesCreated
			all = append(all, lanes[i]...)
		} else {
			result.FailedFiles++
		}
	}
	for _, r := range all {
		if r.IsParseFailure() {
			result.ParseErrors++
		}
	}

	if len(all) == 0 {
		result.Persisted = true
		return result, nil
	}

	insertCtx, cancel := context.WithTimeout(ctx, o.bulkTimeout)
	defer cancel()

	start := time.Now()
	inserted, err := o.inserter.BulkInsert(insertCtx, all)
	bulkInsertDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		// The batch write failed as a whole; keep the per-file parse
		// statistics so the caller sees "parsed but not persisted".
		result.LoadError = err.Error()
		return result, fmt.Errorf("bulk insert failed: %w", err)
	}

	result.Persisted = true
	result.InsertedCount = inserted.InsertedCount
	result.InsertedIDs = inserted.InsertedIDs
	return result, nil
}

// processFile runs Byte Source -> Decompressor -> Line Splitter -> Record
// Normalizer for one file. It never returns an error: any failure lands in
// the FileResult and the file's records are discarded (the file contributes
// fully or not at all). The temp payload is removed on every exit path.
func (o *Orchestrator) processFile(ctx context.Context, ub *batch.UploadBatch, job batch.FileJob) ([]Record, batch.FileResult) {
	res := batch.FileResult{
		FileName:       job.OriginalName,
		CleanedName:    job.CleanedName,
		Classification: job.Classification,
	}

	start := time.Now()
	defer func() {
		observeFile(res.Success, time.Since(start))
	}()
	defer removeTemp(job.TempPath)

	src, err := OpenSource(job.TempPath, job.Gzipped)
	if err != nil {
		res.ErrorCode = ErrorCodeFileProcessing
		res.ErrorMessage = err.Error()
		return nil, res
	}
	defer src.Close()

	// uploadDate is taken once per file so every record of the file carries
	// the same value.
	uploadDate := time.Now().UTC()
	splitter := NewSplitter(src, o.chunkSize)

	var records []Record
	for {
		line, err := splitter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			res.ErrorCode = ErrorCodeFileProcessing
			res.ErrorMessage = err.Error()
			res.LinesProcessed = splitter.LinesForwarded()
			return nil, res
		}
		linesForwardedTotal.Inc()

		rec, ok := Normalize(line.Text, Metadata{
			SourceFile:     job.CleanedName,
			UploadDate:     uploadDate,
			BatchID:        ub.ID,
			LineNumber:     line.Number,
			Classification: job.Classification,
			VersionTag:     job.VersionTag,
			Owner:          ub.Owner,
		})
		if !ok {
			continue
		}
		observeRecord(rec.IsParseFailure())
		records = append(records, rec)
	}

	res.Success = true
	res.EntriesCreated = len(records)
	res.LinesProcessed = splitter.LinesForwarded()
	return records, res
}

func removeTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to delete temp file %s: %v", path, err)
	}
}
