package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/common"
	"github.com/ternarybob/spectare/internal/interfaces"
	"github.com/ternarybob/spectare/internal/models"
)

// ItemHandler processes one work item. slot identifies the worker, and with
// it the browser session the handler should use.
type ItemHandler func(ctx context.Context, slot int, item *models.WorkItem) error

// FailureHandler is called once for an item that used up its attempts
type FailureHandler func(ctx context.Context, item *models.WorkItem)

type extender interface {
	Extend(ctx context.Context, id string, duration time.Duration) error
}

// abandonReporter is implemented by queues that fail items whose last
// attempt expired in flight, e.g. after an interrupted run
type abandonReporter interface {
	OnAbandoned(fn func(ctx context.Context, item *models.WorkItem))
}

// WorkerPool runs Concurrency workers against one WorkQueue. Each worker
// handles items sequentially and exits once the queue has nothing pending
// and nothing in flight.
type WorkerPool struct {
	queue     interfaces.WorkQueue
	config    Config
	handlers  map[models.Category]ItemHandler
	backoff   func(attempt int) time.Duration
	onFailure FailureHandler
	logger    arbor.ILogger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(ctx context.Context, queue interfaces.WorkQueue, config Config, logger arbor.ILogger) *WorkerPool {
	// Child context isolates the pool lifecycle from the caller
	ctx, cancel := context.WithCancel(ctx)

	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}

	return &WorkerPool{
		queue:    queue,
		config:   config,
		handlers: make(map[models.Category]ItemHandler),
		backoff:  func(int) time.Duration { return 0 },
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterHandler registers the handler for a category
func (wp *WorkerPool) RegisterHandler(category models.Category, handler ItemHandler) {
	wp.handlers[category] = handler
	wp.logger.Debug().
		Str("category", string(category)).
		Msg("Item handler registered")
}

// SetBackoff sets the requeue delay used after a failed attempt
func (wp *WorkerPool) SetBackoff(fn func(attempt int) time.Duration) {
	wp.backoff = fn
}

// OnPermanentFailure sets the callback for items that used up their attempts
func (wp *WorkerPool) OnPermanentFailure(fn FailureHandler) {
	wp.onFailure = fn
	if reporter, ok := wp.queue.(abandonReporter); ok {
		reporter.OnAbandoned(fn)
	}
}

// Start starts the worker goroutines
func (wp *WorkerPool) Start() error {
	wp.logger.Info().
		Int("concurrency", wp.config.Concurrency).
		Msg("Starting worker pool")

	for i := 0; i < wp.config.Concurrency; i++ {
		slot := i
		wp.wg.Add(1)
		common.SafeGo(wp.logger, fmt.Sprintf("worker-%d", slot), func() {
			defer wp.wg.Done()
			wp.worker(slot)
		})
	}

	return nil
}

// Wait blocks until every worker has exited
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Stop cancels the workers and waits for them
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	wp.wg.Wait()
	return nil
}

// worker is the main worker loop
func (wp *WorkerPool) worker(slot int) {
	// Stagger starts across the poll interval
	staggerDelay := (wp.config.PollInterval / time.Duration(wp.config.Concurrency)) * time.Duration(slot)
	if err := common.Sleep(wp.ctx, staggerDelay); err != nil {
		return
	}

	wp.logger.Debug().
		Int("worker_id", slot).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	for {
		// Drain without waiting for a tick while items are available
		err := wp.processItem(slot)
		switch {
		case err == nil:
			continue
		case errors.Is(err, ErrNoMessage):
			if wp.finished() {
				wp.logger.Debug().
					Int("worker_id", slot).
					Msg("Queue settled, worker exiting")
				return
			}
		case wp.ctx.Err() != nil:
		default:
			wp.logger.Warn().
				Err(err).
				Int("worker_id", slot).
				Msg("Error processing item")
		}

		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", slot).
				Msg("Worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// finished reports whether no work is pending or in flight
func (wp *WorkerPool) finished() bool {
	stats, err := wp.queue.Stats(wp.ctx)
	if err != nil {
		wp.logger.Warn().Err(err).Msg("Failed to read queue stats")
		return false
	}
	return stats.Outstanding() == 0
}

// processItem dequeues and handles a single item
func (wp *WorkerPool) processItem(slot int) error {
	if wp.ctx.Err() != nil {
		return wp.ctx.Err()
	}

	item, err := wp.queue.DequeueNext(wp.ctx)
	if err != nil {
		if errors.Is(err, ErrNoMessage) {
			return ErrNoMessage
		}
		return fmt.Errorf("failed to dequeue item: %w", err)
	}

	logger := wp.logger.WithCorrelationId(item.ID)
	logger.Debug().
		Str("url", item.URL).
		Str("category", string(item.Category)).
		Int("attempt", item.Attempts).
		Int("worker_id", slot).
		Msg("Processing item")

	handler, exists := wp.handlers[item.Category]
	if !exists {
		logger.Error().
			Str("category", string(item.Category)).
			Msg("No handler registered for category")
		wp.fail(item, fmt.Errorf("no handler for category: %s", item.Category), logger)
		return nil
	}

	stopExtending := wp.keepAlive(item)
	startTime := time.Now()
	handlerErr := wp.run(handler, slot, item)
	duration := time.Since(startTime)
	stopExtending()

	// A cancelled run leaves the item in flight for redelivery on resume
	if wp.ctx.Err() != nil {
		return wp.ctx.Err()
	}

	if handlerErr != nil {
		logger.Error().
			Err(handlerErr).
			Str("url", item.URL).
			Dur("duration", duration).
			Int("worker_id", slot).
			Msg("Item handler failed")
		wp.fail(item, handlerErr, logger)
		return nil
	}

	logger.Info().
		Str("url", item.URL).
		Str("category", string(item.Category)).
		Dur("duration", duration).
		Int("worker_id", slot).
		Msg("Item completed")

	if err := wp.queue.MarkDone(wp.ctx, item); err != nil {
		return fmt.Errorf("failed to mark item done: %w", err)
	}
	return nil
}

// run calls handler and turns a panic into an error
func (wp *WorkerPool) run(handler ItemHandler, slot int, item *models.WorkItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return handler(wp.ctx, slot, item)
}

func (wp *WorkerPool) fail(item *models.WorkItem, cause error, logger arbor.ILogger) {
	permanent, err := wp.queue.MarkFailed(wp.ctx, item, cause, wp.backoff(item.Attempts))
	if err != nil {
		logger.Error().Err(err).Str("url", item.URL).Msg("Failed to mark item failed")
		return
	}
	if !permanent {
		return
	}

	logger.Warn().
		Str("url", item.URL).
		Int("attempts", item.Attempts).
		Msg("Item failed permanently")
	if wp.onFailure != nil {
		wp.onFailure(wp.ctx, item)
	}
}

// keepAlive extends the item's visibility while a long listing visit runs
func (wp *WorkerPool) keepAlive(item *models.WorkItem) func() {
	ext, ok := wp.queue.(extender)
	if !ok || wp.config.VisibilityTimeout <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(wp.ctx)
	interval := wp.config.VisibilityTimeout / 2

	common.SafeGo(wp.logger, "visibility-"+item.ID, func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ext.Extend(ctx, item.ID, wp.config.VisibilityTimeout); err != nil {
					wp.logger.Warn().Err(err).Str("url", item.URL).Msg("Failed to extend item visibility")
				}
			}
		}
	})

	return cancel
}
