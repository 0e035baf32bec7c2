package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/models"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestQueue(t *testing.T, config Config, dedup *fakeDedup) *WorkQueue {
	t.Helper()
	if config.QueueName == "" {
		config.QueueName = "test"
	}
	var q *WorkQueue
	var err error
	if dedup != nil {
		q, err = NewWorkQueue(openTestDB(t), config, dedup, arbor.NewLogger())
	} else {
		q, err = NewWorkQueue(openTestDB(t), config, nil, arbor.NewLogger())
	}
	require.NoError(t, err)
	return q
}

type fakeDedup struct {
	mu      sync.Mutex
	claimed map[string]bool
	err     error
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{claimed: make(map[string]bool)}
}

func (f *fakeDedup) Claim(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

func (f *fakeDedup) Release(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claimed, key)
	return nil
}

func (f *fakeDedup) Close() error { return nil }

func TestNewWorkQueue_Validation(t *testing.T) {
	_, err := NewWorkQueue(nil, NewDefaultConfig(), nil, nil)
	assert.Error(t, err)

	_, err = NewWorkQueue(openTestDB(t), Config{}, nil, nil)
	assert.Error(t, err)
}

func TestWorkQueue_EnqueueDeduplicates(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, NewDefaultConfig(), nil)

	const n = 5
	newCount := 0
	for i := 0; i < n; i++ {
		wasNew, err := q.Enqueue(ctx, "https://www.youtube.com/watch?v=jL_nMu9HhfA", models.CategoryDetail, "")
		require.NoError(t, err)
		if wasNew {
			newCount++
		}
	}
	assert.Equal(t, 1, newCount)

	// Same video in other shapes
	for _, variant := range []string{
		"https://youtu.be/jL_nMu9HhfA",
		"/watch?v=jL_nMu9HhfA&t=42s",
	} {
		wasNew, err := q.Enqueue(ctx, variant, models.CategoryDetail, "")
		require.NoError(t, err)
		assert.False(t, wasNew, variant)
	}

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
}

func TestWorkQueue_EnqueueConcurrent(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, NewDefaultConfig(), nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	newCount := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wasNew, err := q.Enqueue(ctx, "https://www.youtube.com/channel/XYZ", "", "")
			assert.NoError(t, err)
			if wasNew {
				mu.Lock()
				newCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, newCount)
}

func TestWorkQueue_EnqueueCanonicalizes(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, NewDefaultConfig(), nil)

	wasNew, err := q.Enqueue(ctx, "https://www.youtube.com/channel/XYZ", "", "")
	require.NoError(t, err)
	require.True(t, wasNew)

	item, err := q.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/channel/XYZ/videos", item.URL)
	assert.Equal(t, models.CategoryChannel, item.Category)
	assert.Empty(t, item.SearchTerm)
}

func TestWorkQueue_EnqueueKeepsExplicitCategory(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, NewDefaultConfig(), nil)

	_, err := q.Enqueue(ctx, "https://www.youtube.com/results?search_query=golang", models.CategoryMaster, "golang")
	require.NoError(t, err)

	item, err := q.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryMaster, item.Category)
	assert.Equal(t, "golang", item.SearchTerm)
	assert.True(t, item.IsKeywordSeed())
}

func TestWorkQueue_EnqueueInvalid(t *testing.T) {
	q := newTestQueue(t, NewDefaultConfig(), nil)

	wasNew, err := q.Enqueue(context.Background(), "https://example.com/watch?v=jL_nMu9HhfA", "", "")
	assert.False(t, wasNew)
	assert.True(t, errors.Is(err, ErrInvalidURL))
}

func TestWorkQueue_DedupStore(t *testing.T) {
	ctx := context.Background()
	dedup := newFakeDedup()
	dedup.claimed["https://www.youtube.com/watch?v=AAAAAAAAAAA"] = true // claimed by another process
	q := newTestQueue(t, NewDefaultConfig(), dedup)

	wasNew, err := q.Enqueue(ctx, "https://www.youtube.com/watch?v=AAAAAAAAAAA", "", "")
	require.NoError(t, err)
	assert.False(t, wasNew)

	wasNew, err = q.Enqueue(ctx, "https://www.youtube.com/watch?v=BBBBBBBBBBB", "", "")
	require.NoError(t, err)
	assert.True(t, wasNew)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)

	dedup.err = errors.New("connection refused")
	_, err = q.Enqueue(ctx, "https://www.youtube.com/watch?v=CCCCCCCCCCC", "", "")
	assert.Error(t, err)
}

func TestWorkQueue_DedupClaimReleasedWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	const watch = "https://www.youtube.com/watch?v=AAAAAAAAAAA"
	dedup := newFakeDedup()

	broken, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	config := NewDefaultConfig()
	config.QueueName = "test"
	q, err := NewWorkQueue(broken, config, dedup, arbor.NewLogger())
	require.NoError(t, err)
	require.NoError(t, broken.Close())

	_, err = q.Enqueue(ctx, watch, "", "")
	require.Error(t, err)
	assert.Empty(t, dedup.claimed, "claim must be released when the item was not stored")

	healthy := newTestQueue(t, NewDefaultConfig(), dedup)
	wasNew, err := healthy.Enqueue(ctx, watch, "", "")
	require.NoError(t, err)
	assert.True(t, wasNew)

	stats, err := healthy.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
}

func TestWorkQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, NewDefaultConfig(), nil)

	ids := []string{"AAAAAAAAAAA", "BBBBBBBBBBB", "CCCCCCCCCCC"}
	for _, id := range ids {
		_, err := q.Enqueue(ctx, "https://www.youtube.com/watch?v="+id, "", "")
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	for _, id := range ids {
		item, err := q.DequeueNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, "https://www.youtube.com/watch?v="+id, item.URL)
		assert.Equal(t, models.ItemStatusInFlight, item.Status)
		assert.Equal(t, 1, item.Attempts)
	}

	_, err := q.DequeueNext(ctx)
	assert.True(t, errors.Is(err, ErrNoMessage))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStats{InFlight: 3}, stats)
}

func TestWorkQueue_MarkDone(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, NewDefaultConfig(), nil)

	_, err := q.Enqueue(ctx, "https://www.youtube.com/watch?v=AAAAAAAAAAA", "", "")
	require.NoError(t, err)

	item, err := q.DequeueNext(ctx)
	require.NoError(t, err)
	require.NoError(t, q.MarkDone(ctx, item))
	assert.Equal(t, models.ItemStatusDone, item.Status)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStats{Done: 1}, stats)
	assert.Equal(t, 0, stats.Outstanding())

	// Done items are never scheduled again
	wasNew, err := q.Enqueue(ctx, "https://www.youtube.com/watch?v=AAAAAAAAAAA", "", "")
	require.NoError(t, err)
	assert.False(t, wasNew)

	_, err = q.DequeueNext(ctx)
	assert.True(t, errors.Is(err, ErrNoMessage))
}

func TestWorkQueue_MarkFailedRetriesThenGivesUp(t *testing.T) {
	ctx := context.Background()
	config := NewDefaultConfig()
	config.MaxReceive = 2
	q := newTestQueue(t, config, nil)

	_, err := q.Enqueue(ctx, "https://www.youtube.com/watch?v=AAAAAAAAAAA", "", "")
	require.NoError(t, err)

	item, err := q.DequeueNext(ctx)
	require.NoError(t, err)

	permanent, err := q.MarkFailed(ctx, item, errors.New("first failure"), time.Hour)
	require.NoError(t, err)
	assert.False(t, permanent)
	assert.Equal(t, models.ItemStatusPending, item.Status)

	// Hidden until the backoff elapses
	_, err = q.DequeueNext(ctx)
	assert.True(t, errors.Is(err, ErrNoMessage))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)

	// Only in-flight items can be extended
	assert.Error(t, q.Extend(ctx, item.ID, time.Minute))

	stored, err := q.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"first failure"}, stored.Errors)
}

func TestWorkQueue_MarkFailedPermanent(t *testing.T) {
	ctx := context.Background()
	config := NewDefaultConfig()
	config.MaxReceive = 2
	q := newTestQueue(t, config, nil)

	_, err := q.Enqueue(ctx, "https://www.youtube.com/watch?v=AAAAAAAAAAA", "", "")
	require.NoError(t, err)

	for attempt := 1; attempt <= 2; attempt++ {
		item, err := q.DequeueNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, attempt, item.Attempts)

		permanent, err := q.MarkFailed(ctx, item, fmt.Errorf("failure %d", attempt), 0)
		require.NoError(t, err)
		assert.Equal(t, attempt == 2, permanent)

		if permanent {
			assert.Equal(t, models.ItemStatusFailed, item.Status)
			assert.Equal(t, []string{"failure 1", "failure 2"}, item.Errors)
			assert.Equal(t, "failure 2", item.LastError())
		}
	}

	_, err = q.DequeueNext(ctx)
	assert.True(t, errors.Is(err, ErrNoMessage))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStats{Failed: 1}, stats)
}

func TestWorkQueue_VisibilityTimeoutRedelivers(t *testing.T) {
	ctx := context.Background()
	config := NewDefaultConfig()
	config.VisibilityTimeout = 20 * time.Millisecond
	config.MaxReceive = 2
	q := newTestQueue(t, config, nil)

	_, err := q.Enqueue(ctx, "https://www.youtube.com/watch?v=AAAAAAAAAAA", "", "")
	require.NoError(t, err)

	first, err := q.DequeueNext(ctx)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	second, err := q.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Attempts)

	// Abandoned again on its last attempt
	time.Sleep(40 * time.Millisecond)

	for i := 0; i < 3; i++ {
		_, err = q.DequeueNext(ctx)
		assert.True(t, errors.Is(err, ErrNoMessage))
	}

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStats{Failed: 1}, stats)
	assert.Zero(t, stats.Outstanding())
}

func TestWorkQueue_AbandonedItemReported(t *testing.T) {
	ctx := context.Background()
	config := NewDefaultConfig()
	config.VisibilityTimeout = 20 * time.Millisecond
	config.MaxReceive = 1
	q := newTestQueue(t, config, nil)

	var abandoned []*models.WorkItem
	q.OnAbandoned(func(ctx context.Context, item *models.WorkItem) {
		abandoned = append(abandoned, item)
	})

	_, err := q.Enqueue(ctx, "https://www.youtube.com/watch?v=AAAAAAAAAAA", "", "")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "https://www.youtube.com/watch?v=BBBBBBBBBBB", "", "")
	require.NoError(t, err)

	first, err := q.DequeueNext(ctx)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	// The expired item is failed and reported; the next one is still handed out
	next, err := q.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/watch?v=BBBBBBBBBBB", next.URL)

	require.Len(t, abandoned, 1)
	assert.Equal(t, first.ID, abandoned[0].ID)
	assert.Equal(t, models.ItemStatusFailed, abandoned[0].Status)
	assert.NotEmpty(t, abandoned[0].Errors)

	stored, err := q.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusFailed, stored.Status)
}

func TestWorkQueue_Extend(t *testing.T) {
	ctx := context.Background()
	config := NewDefaultConfig()
	config.VisibilityTimeout = 20 * time.Millisecond
	q := newTestQueue(t, config, nil)

	_, err := q.Enqueue(ctx, "https://www.youtube.com/watch?v=AAAAAAAAAAA", "", "")
	require.NoError(t, err)

	item, err := q.DequeueNext(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Extend(ctx, item.ID, time.Hour))

	time.Sleep(40 * time.Millisecond)

	_, err = q.DequeueNext(ctx)
	assert.True(t, errors.Is(err, ErrNoMessage))
}
