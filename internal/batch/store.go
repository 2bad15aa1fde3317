package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrQueueFull is returned when the batch queue is full
var ErrQueueFull = errors.New("queue is full")

// Store manages batches in memory
type Store struct {
	mu      sync.RWMutex
	batches map[string]*Batch
	queue   chan *Batch
	cancels map[string]context.CancelFunc
}

// NewStore creates a new batch store with a bounded queue
func NewStore(queueSize int) *Store {
	return &Store{
		batches: make(map[string]*Batch),
		queue:   make(chan *Batch, queueSize),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Create validates, registers and enqueues a new batch.
// Returns ErrQueueFull if the queue is full (batch is not created).
func (s *Store) Create(b *Batch) (string, error) {
	if err := Validate(&b.UploadBatch); err != nil {
		return "", err
	}
	if b.ID == "" {
		b.ID = NewID(time.Now())
	}
	b.Status = StatusQueued

	// Try to send to queue (non-blocking)
	select {
	case s.queue <- b:
		s.mu.Lock()
		s.batches[b.ID] = b
		s.mu.Unlock()
		return b.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Get retrieves a batch by ID
func (s *Store) Get(id string) (*Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch not found: %s", id)
	}
	return b, nil
}

// UpdateStatus updates batch status and related timestamps
func (s *Store) UpdateStatus(id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return fmt.Errorf("batch not found: %s", id)
	}

	// Terminal statuses are final; only an idempotent repeat is allowed.
	switch b.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		if status != b.Status {
			return fmt.Errorf("batch already %s: %s", b.Status, id)
		}
	}

	b.Status = status
	now := time.Now()

	switch status {
	case StatusRunning:
		if b.StartedAt == nil {
			b.StartedAt = &now
		}
	case StatusSucceeded, StatusFailed, StatusCanceled:
		if b.FinishedAt == nil {
			b.FinishedAt = &now
		}
	}

	return nil
}

// UpdateProgress updates per-file progress counters as file workers finish
func (s *Store) UpdateProgress(id string, filesProcessed int, entriesCreated, linesProcessed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return
	}

	b.FilesProcessed = filesProcessed
	b.EntriesCreated = entriesCreated
	b.LinesProcessed = linesProcessed
}

// UpdateError updates batch error message
func (s *Store) UpdateError(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return
	}

	if err != nil {
		b.LastError = err.Error()
	} else {
		b.LastError = ""
	}
}

// SetResult attaches the final BatchResult to a batch
func (s *Store) SetResult(id string, result *BatchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return
	}

	b.Result = result
}

// SetCancel registers a cancel function for a running batch
func (s *Store) SetCancel(id string, cf context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.batches[id]
	if !ok {
		return fmt.Errorf("batch not found: %s", id)
	}

	s.cancels[id] = cf
	return nil
}

// ClearCancel removes the cancel function for a batch
func (s *Store) ClearCancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cancels, id)
}

// Cancel cancels a queued or running batch
func (s *Store) Cancel(id string) error {
	var cf context.CancelFunc

	s.mu.Lock()
	b, ok := s.batches[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("batch not found: %s", id)
	}

	if b.Status == StatusSucceeded || b.Status == StatusFailed || b.Status == StatusCanceled {
		s.mu.Unlock()
		return fmt.Errorf("batch already finished: %s", b.Status)
	}

	if cancelFunc, exists := s.cancels[id]; exists {
		cf = cancelFunc
	}

	b.Status = StatusCanceled
	now := time.Now()
	b.FinishedAt = &now
	s.mu.Unlock()

	// Call cancel function outside of lock
	if cf != nil {
		cf()
	}

	return nil
}

// NextBatch returns the next batch from the queue (blocking)
func (s *Store) NextBatch(ctx context.Context) (*Batch, error) {
	select {
	case b := <-s.queue:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
