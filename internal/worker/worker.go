package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/readlater/internal/core/domain"
)

// ErrQueueFull is returned by Enqueue when no more refreshes can be queued.
var ErrQueueFull = errors.New("refresh queue full")

// Refresher fetches a post and broadcasts its canonical state.
type Refresher interface {
	Refresh(ctx context.Context, postID string) (*domain.PostSnapshot, error)
}

// Cleaner purges expired setup handshakes.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Worker runs background post refreshes and periodic handshake cleanup.
// Refreshes requested while one for the same post is still queued are coalesced.
type Worker struct {
	refresher Refresher
	cleaner   Cleaner
	logger    *slog.Logger

	// Configuration
	concurrency     int
	cleanupInterval time.Duration

	queue chan string

	// Internal state
	mu      sync.RWMutex
	pending map[string]struct{}
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	Refresher       Refresher
	Cleaner         Cleaner // optional
	Logger          *slog.Logger
	Concurrency     int           // Number of concurrent refreshes
	QueueSize       int           // Refreshes that may wait before Enqueue fails
	CleanupInterval time.Duration // How often expired handshakes are purged
}

// NewWorker creates a new refresh worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}

	return &Worker{
		refresher:       cfg.Refresher,
		cleaner:         cfg.Cleaner,
		logger:          logger,
		concurrency:     concurrency,
		cleanupInterval: cleanupInterval,
		queue:           make(chan string, queueSize),
		pending:         make(map[string]struct{}),
	}
}

// Enqueue schedules a background refresh of postID.
func (w *Worker) Enqueue(postID string) error {
	if postID == "" {
		return fmt.Errorf("%w: post id is required", domain.ErrInvalidInput)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[postID]; ok {
		return nil
	}

	select {
	case w.queue <- postID:
		w.pending[postID] = struct{}{}
		return nil
	default:
		return ErrQueueFull
	}
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"cleanup_interval", w.cleanupInterval,
	)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	if w.cleaner != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.cleanupLoop(ctx)
		}()
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// processLoop is the main processing loop for a worker goroutine.
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Debug("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case postID := <-w.queue:
			w.done(postID)
			w.refresh(ctx, postID, logger)
		}
	}
}

// done releases postID so a later Enqueue queues it again.
func (w *Worker) done(postID string) {
	w.mu.Lock()
	delete(w.pending, postID)
	w.mu.Unlock()
}

func (w *Worker) refresh(ctx context.Context, postID string, logger *slog.Logger) {
	start := time.Now()
	if _, err := w.refresher.Refresh(ctx, postID); err != nil {
		logger.Warn("refresh failed",
			"post_id", postID,
			"duration", time.Since(start),
			"error", err,
		)
		return
	}
	logger.Debug("refresh completed", "post_id", postID, "duration", time.Since(start))
}

func (w *Worker) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.cleaner.Cleanup(ctx); err != nil {
				w.logger.Error("handshake cleanup failed", "error", err)
			}
		}
	}
}

// Health returns health status of the worker.
type Health struct {
	Running    bool `json:"running"`
	QueueDepth int  `json:"queue_depth"`
}

// Health returns the health status of the worker.
func (w *Worker) Health() Health {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Health{
		Running:    w.running,
		QueueDepth: len(w.queue),
	}
}
