package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/spectare/internal/models"
)

// WorkQueue is the persistent, deduplicating queue of page visits
type WorkQueue interface {
	// Enqueue canonicalizes url and inserts it unless it was seen before
	Enqueue(ctx context.Context, url string, category models.Category, searchTerm string) (bool, error)
	// DequeueNext returns the oldest visible item, or models.ErrNoMessage
	DequeueNext(ctx context.Context) (*models.WorkItem, error)
	MarkDone(ctx context.Context, item *models.WorkItem) error
	// MarkFailed records cause and makes the item visible again after delay.
	// It returns true once the item has used up its attempts.
	MarkFailed(ctx context.Context, item *models.WorkItem, cause error, delay time.Duration) (bool, error)
	Stats(ctx context.Context) (models.QueueStats, error)
}

// DedupStore claims URL keys across processes
type DedupStore interface {
	// Claim returns true when the key was not claimed before
	Claim(ctx context.Context, key string) (bool, error)
	// Release drops a claim whose item could not be stored
	Release(ctx context.Context, key string) error
	Close() error
}
