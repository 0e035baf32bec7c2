package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/classifier"
	"github.com/ternarybob/spectare/internal/interfaces"
	"github.com/ternarybob/spectare/internal/models"
)

// ErrNoMessage is returned when no item is visible
var ErrNoMessage = models.ErrNoMessage

// ErrInvalidURL is returned by Enqueue for URLs that are not platform pages
var ErrInvalidURL = errors.New("not a platform url")

const maxConflictRetries = 10

// WorkQueue is a persistent FIFO of page visits on BadgerDB, deduplicated by
// canonical URL. Items are never deleted; they end as done or failed so a
// restarted run resumes where it stopped.
//
// Keys:
//
//	queue:{name}:msg:{id}                 -> WorkItem JSON
//	queue:{name}:index:{visibleAt}:{id}   -> empty, only for pending/in-flight items
//	queue:{name}:url:{canonical}          -> id
type WorkQueue struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
	dedup             interfaces.DedupStore
	onAbandoned       func(ctx context.Context, item *models.WorkItem)
	logger            arbor.ILogger
}

var _ interfaces.WorkQueue = (*WorkQueue)(nil)

// NewWorkQueue creates a Badger-backed work queue. dedup is optional.
func NewWorkQueue(db *badger.DB, config Config, dedup interfaces.DedupStore, logger arbor.ILogger) (*WorkQueue, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if config.QueueName == "" {
		return nil, errors.New("queue name is required")
	}
	if config.VisibilityTimeout <= 0 {
		config.VisibilityTimeout = 10 * time.Minute
	}
	if config.MaxReceive <= 0 {
		config.MaxReceive = 3
	}

	return &WorkQueue{
		db:                db,
		queueName:         config.QueueName,
		visibilityTimeout: config.VisibilityTimeout,
		maxReceive:        config.MaxReceive,
		dedup:             dedup,
		logger:            logger,
	}, nil
}

// Enqueue canonicalizes rawURL and stores it unless the URL was scheduled
// before. category overrides the classified one when set.
func (q *WorkQueue) Enqueue(ctx context.Context, rawURL string, category models.Category, searchTerm string) (bool, error) {
	canonical, detected, ok := classifier.Canonicalize(rawURL)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	if category == "" {
		category = detected
	}

	if q.dedup != nil {
		claimed, err := q.dedup.Claim(ctx, canonical)
		if err != nil {
			return false, fmt.Errorf("failed to claim url in dedup store: %w", err)
		}
		if !claimed {
			return false, nil
		}
	}

	now := time.Now()
	item := models.WorkItem{
		ID:         uuid.New().String(),
		URL:        canonical,
		Category:   category,
		SearchTerm: searchTerm,
		EnqueuedAt: now,
		VisibleAt:  now,
		Status:     models.ItemStatusPending,
	}

	data, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("failed to marshal work item: %w", err)
	}

	var wasNew bool
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = q.db.Update(func(txn *badger.Txn) error {
			wasNew = false

			_, err := txn.Get(q.urlKey(canonical))
			if err == nil {
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			if err := txn.Set(q.urlKey(canonical), []byte(item.ID)); err != nil {
				return err
			}
			if err := txn.Set(q.msgKey(item.ID), data); err != nil {
				return err
			}
			if err := txn.Set(q.indexKey(item.VisibleAt, item.ID), []byte{}); err != nil {
				return err
			}

			wasNew = true
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		if q.dedup != nil {
			// Hand the URL back so a later discovery can schedule it
			if releaseErr := q.dedup.Release(ctx, canonical); releaseErr != nil && q.logger != nil {
				q.logger.Warn().Err(releaseErr).Str("url", canonical).Msg("Failed to release dedup claim")
			}
		}
		return false, fmt.Errorf("failed to enqueue %s: %w", canonical, err)
	}

	if wasNew && q.logger != nil {
		q.logger.Trace().
			Str("url", canonical).
			Str("category", string(category)).
			Msg("Enqueued")
	}

	return wasNew, nil
}

// DequeueNext claims the oldest visible item and hides it for the visibility
// timeout. Items that were received maxReceive times without settling are
// marked failed on the way.
func (q *WorkQueue) DequeueNext(ctx context.Context) (*models.WorkItem, error) {
	var (
		claimed   *models.WorkItem
		abandoned []*models.WorkItem
	)

	err := q.db.Update(func(txn *badger.Txn) error {
		claimed = nil
		abandoned = nil

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := q.indexPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		var indexKey []byte
		var item models.WorkItem

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			ts, id, err := q.parseIndexKey(key)
			if err != nil {
				continue
			}

			// Index keys are sorted by visibility time
			if ts.After(now) {
				break
			}

			current, err := q.getItem(txn, id)
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if current.Attempts >= q.maxReceive {
				current.Status = models.ItemStatusFailed
				current.Errors = append(current.Errors, "visibility timeout exceeded on final attempt")
				if err := q.putItem(txn, current); err != nil {
					return err
				}
				if err := txn.Delete(key); err != nil {
					return err
				}
				abandoned = append(abandoned, current)
				continue
			}

			indexKey = key
			item = *current
			break
		}

		// Returning nil keeps the failed-item writes above
		if indexKey == nil {
			return nil
		}

		item.Attempts++
		item.Status = models.ItemStatusInFlight
		item.VisibleAt = now.Add(q.visibilityTimeout)

		if err := q.putItem(txn, &item); err != nil {
			return err
		}
		if err := txn.Delete(indexKey); err != nil {
			return err
		}
		if err := txn.Set(q.indexKey(item.VisibleAt, item.ID), []byte{}); err != nil {
			return err
		}

		claimed = &item
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	for _, item := range abandoned {
		if q.logger != nil {
			q.logger.Warn().
				Str("url", item.URL).
				Int("attempts", item.Attempts).
				Msg("Item abandoned by its worker too many times, marking failed")
		}
		if q.onAbandoned != nil {
			q.onAbandoned(ctx, item)
		}
	}

	if claimed == nil {
		return nil, ErrNoMessage
	}
	return claimed, nil
}

// OnAbandoned sets the callback for items DequeueNext marks failed because
// their last attempt timed out in flight. Set it before workers start.
func (q *WorkQueue) OnAbandoned(fn func(ctx context.Context, item *models.WorkItem)) {
	q.onAbandoned = fn
}

// MarkDone settles an item as processed
func (q *WorkQueue) MarkDone(ctx context.Context, item *models.WorkItem) error {
	return q.update(item.ID, func(current *models.WorkItem) (bool, error) {
		current.Status = models.ItemStatusDone
		*item = *current
		return false, nil
	})
}

// MarkFailed records cause against the item. While attempts remain the item
// becomes visible again after delay; otherwise it is marked failed and
// MarkFailed returns true.
func (q *WorkQueue) MarkFailed(ctx context.Context, item *models.WorkItem, cause error, delay time.Duration) (bool, error) {
	var permanent bool

	err := q.update(item.ID, func(current *models.WorkItem) (bool, error) {
		if cause != nil {
			current.Errors = append(current.Errors, cause.Error())
		}

		if current.Attempts >= q.maxReceive {
			current.Status = models.ItemStatusFailed
			permanent = true
		} else {
			current.Status = models.ItemStatusPending
			current.VisibleAt = time.Now().Add(delay)
		}

		*item = *current
		return !permanent, nil
	})

	return permanent, err
}

// Extend pushes back the visibility timeout of an in-flight item
func (q *WorkQueue) Extend(ctx context.Context, id string, duration time.Duration) error {
	return q.update(id, func(current *models.WorkItem) (bool, error) {
		if current.Status != models.ItemStatusInFlight {
			return false, fmt.Errorf("item %s is %s, not in flight", id, current.Status)
		}
		current.VisibleAt = time.Now().Add(duration)
		return true, nil
	})
}

// Stats counts items by status
func (q *WorkQueue) Stats(ctx context.Context) (models.QueueStats, error) {
	var stats models.QueueStats

	err := q.db.View(func(txn *badger.Txn) error {
		prefix := q.msgPrefix()
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var item models.WorkItem
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return err
			}

			switch item.Status {
			case models.ItemStatusPending:
				stats.Pending++
			case models.ItemStatusInFlight:
				stats.InFlight++
			case models.ItemStatusDone:
				stats.Done++
			case models.ItemStatusFailed:
				stats.Failed++
			}
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return stats, nil
}

// Get loads an item by id
func (q *WorkQueue) Get(ctx context.Context, id string) (*models.WorkItem, error) {
	var item *models.WorkItem
	err := q.db.View(func(txn *badger.Txn) error {
		var err error
		item, err = q.getItem(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Close is a no-op; the Badger connection is owned by the storage layer
func (q *WorkQueue) Close() error {
	return nil
}

// update applies fn to the stored item inside one transaction. When fn
// returns true the item stays in the visibility index under its new
// VisibleAt; otherwise it leaves the index.
func (q *WorkQueue) update(id string, fn func(current *models.WorkItem) (bool, error)) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = q.db.Update(func(txn *badger.Txn) error {
			current, err := q.getItem(txn, id)
			if err != nil {
				return err
			}
			oldIndexKey := q.indexKey(current.VisibleAt, id)

			indexed, err := fn(current)
			if err != nil {
				return err
			}

			if err := q.putItem(txn, current); err != nil {
				return err
			}
			if err := txn.Delete(oldIndexKey); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if indexed {
				return txn.Set(q.indexKey(current.VisibleAt, id), []byte{})
			}
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to update item %s: %w", id, err)
	}
	return nil
}

func (q *WorkQueue) getItem(txn *badger.Txn, id string) (*models.WorkItem, error) {
	entry, err := txn.Get(q.msgKey(id))
	if err != nil {
		return nil, err
	}
	var item models.WorkItem
	if err := entry.Value(func(val []byte) error {
		return json.Unmarshal(val, &item)
	}); err != nil {
		return nil, err
	}
	return &item, nil
}

func (q *WorkQueue) putItem(txn *badger.Txn, item *models.WorkItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return txn.Set(q.msgKey(item.ID), data)
}

// Helpers

func (q *WorkQueue) msgPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:", q.queueName))
}

func (q *WorkQueue) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", q.queueName, id))
}

func (q *WorkQueue) urlKey(canonical string) []byte {
	return []byte(fmt.Sprintf("queue:%s:url:%s", q.queueName, canonical))
}

func (q *WorkQueue) indexPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:index:", q.queueName))
}

func (q *WorkQueue) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad so lexical order matches numeric order
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", q.queueName, visibleAt.UnixNano(), id))
}

func (q *WorkQueue) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := q.indexPrefix()
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	// Suffix is "{20-digit-ts}:{id}"
	suffix := string(key[len(prefix):])
	if len(suffix) < 21 {
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, ts), suffix[21:], nil
}
