package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

// DefaultPopTimeout is how long the worker waits for an item per loop.
const DefaultPopTimeout = 500 * time.Millisecond

// IngestFunc processes one item. The worker marks the item failed when it
// returns an error and moves on.
type IngestFunc func(ctx context.Context, item Item) error

// Worker drains a Queue in a background goroutine.
type Worker struct {
	queue      *Queue
	ingest     IngestFunc
	popTimeout time.Duration

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	running bool
}

// NewWorker creates a worker for q.
func NewWorker(q *Queue, ingest IngestFunc, popTimeout time.Duration) *Worker {
	if popTimeout <= 0 {
		popTimeout = DefaultPopTimeout
	}
	return &Worker{
		queue:      q,
		ingest:     ingest,
		popTimeout: popTimeout,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// IsRunning reports whether the loop is active.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Start runs the loop in a goroutine until Stop or ctx cancellation.
// A worker can be started once.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	slog.Debug("upload_worker_started")
	for {
		select {
		case <-w.stopCh:
			slog.Debug("upload_worker_stopped")
			return
		case <-ctx.Done():
			slog.Debug("upload_worker_cancelled")
			return
		default:
		}

		it := w.queue.pop(w.popTimeout, w.stopCh)
		if it == nil {
			continue
		}
		w.process(ctx, it)
	}
}

// process runs the ingest func on a context that Stop does not cancel, so
// an in-flight item always reaches a terminal status.
func (w *Worker) process(ctx context.Context, it *Item) {
	start := time.Now()
	err := w.safeIngest(context.WithoutCancel(ctx), *it)
	w.queue.finish(it, err)

	if err != nil {
		attrs := append([]any{
			slog.String("id", it.ID),
			slog.String("path", it.FilePath),
		}, amerrors.LogAttrs(err)...)
		slog.Warn("upload_failed", attrs...)
		return
	}
	slog.Info("upload_completed",
		slog.String("id", it.ID),
		slog.String("path", it.FilePath),
		slog.Duration("duration", time.Since(start)))
}

func (w *Worker) safeIngest(ctx context.Context, it Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = amerrors.IngestionFailure(it.FilePath, fmt.Errorf("panic: %v", r))
		}
	}()
	return w.ingest(ctx, it)
}

// Stop signals the loop to exit and waits up to timeout. An in-flight item
// finishes first.
func (w *Worker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.stopCh) })
	if !running {
		return nil
	}

	select {
	case <-w.doneCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("upload worker did not stop within %s", timeout)
	}
}
