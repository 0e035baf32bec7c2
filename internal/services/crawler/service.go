// -----------------------------------------------------------------------
// Crawler Service - Seeds the work queue and routes items to handlers
// -----------------------------------------------------------------------

package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/browser"
	"github.com/ternarybob/spectare/internal/classifier"
	"github.com/ternarybob/spectare/internal/interfaces"
	"github.com/ternarybob/spectare/internal/models"
	"github.com/ternarybob/spectare/internal/queue"
	"github.com/ternarybob/spectare/internal/services/pagination"
)

// ListingVisitor processes a listing page already loaded in a driver
type ListingVisitor interface {
	Visit(ctx context.Context, driver interfaces.Driver, item *models.WorkItem) (pagination.Result, error)
}

// DetailExtractor reads a video page already loaded in a driver
type DetailExtractor interface {
	Extract(ctx context.Context, driver interfaces.Driver, item *models.WorkItem) (*models.VideoRecord, error)
}

// RunStats summarises one run
type RunStats struct {
	Seeded     int
	Listings   int64
	Discovered int64
	Videos     int64
	Blocked    int64
	Failed     int64
	Duration   time.Duration
	Queue      models.QueueStats
}

// Service owns the crawl: it seeds the queue, runs one worker per browser
// session and hands each item to the listing controller or the extractor.
type Service struct {
	config    Config
	queue     interfaces.WorkQueue
	sessions  interfaces.SessionPool
	listing   ListingVisitor
	extractor DetailExtractor
	dataset   interfaces.DatasetStorage
	logger    arbor.ILogger

	limiter       *RateLimiter
	navigation    *RetryPolicy
	requeuePolicy *RetryPolicy

	listings   atomic.Int64
	discovered atomic.Int64
	videos     atomic.Int64
	blocked    atomic.Int64
	failed     atomic.Int64
}

// NewService creates a crawler service
func NewService(config Config, workQueue interfaces.WorkQueue, sessions interfaces.SessionPool, listing ListingVisitor, extractor DetailExtractor, dataset interfaces.DatasetStorage, logger arbor.ILogger) *Service {
	requeuePolicy := NewRetryPolicy()
	requeuePolicy.InitialBackoff = config.RetryBackoff

	return &Service{
		config:        config,
		queue:         workQueue,
		sessions:      sessions,
		listing:       listing,
		extractor:     extractor,
		dataset:       dataset,
		logger:        logger,
		limiter:       NewRateLimiter(config.NavigationRate),
		navigation:    NewRetryPolicy(),
		requeuePolicy: requeuePolicy,
	}
}

// SearchURL is the results page a keyword seed is keyed by
func SearchURL(keyword string) string {
	return "https://" + classifier.PlatformHost + "/results?search_query=" + url.QueryEscape(keyword)
}

// Seed enqueues the configured keywords or start URLs. URLs seen in an
// earlier run are skipped by the queue, so a resumed run seeds nothing new.
func (s *Service) Seed(ctx context.Context) (int, error) {
	seeded := 0

	for _, keyword := range s.config.Keywords {
		added, err := s.queue.Enqueue(ctx, SearchURL(keyword), models.CategoryMaster, keyword)
		if err != nil {
			return seeded, fmt.Errorf("failed to seed keyword %q: %w", keyword, err)
		}
		if added {
			seeded++
		}
		s.logger.Debug().Str("search", keyword).Bool("added", added).Msg("Keyword seeded")
	}

	for _, raw := range s.config.StartURLs {
		category, ok := classifier.Classify(raw)
		if !ok {
			s.logger.Warn().Str("url", raw).Msg("Start URL is not a platform page, skipping")
			continue
		}
		added, err := s.queue.Enqueue(ctx, raw, category, "")
		if err != nil {
			if errors.Is(err, queue.ErrInvalidURL) {
				s.logger.Warn().Err(err).Str("url", raw).Msg("Start URL rejected, skipping")
				continue
			}
			return seeded, fmt.Errorf("failed to seed %s: %w", raw, err)
		}
		if added {
			seeded++
		}
		s.logger.Debug().Str("url", raw).Str("category", string(category)).Bool("added", added).Msg("Start URL seeded")
	}

	return seeded, nil
}

// Run seeds the queue and processes it until nothing is pending or in
// flight, or until ctx is cancelled
func (s *Service) Run(ctx context.Context) (RunStats, error) {
	startTime := time.Now()

	seeded, err := s.Seed(ctx)
	if err != nil {
		return RunStats{}, err
	}

	s.logger.Info().
		Int("seeded", seeded).
		Int("concurrency", s.config.Queue.Concurrency).
		Str("navigation_rate", navigationRate(s.config.NavigationRate)).
		Msg("Crawl starting")

	pool := queue.NewWorkerPool(ctx, s.queue, s.config.Queue, s.logger)
	for _, category := range []models.Category{models.CategoryMaster, models.CategorySearch, models.CategoryChannel} {
		pool.RegisterHandler(category, s.handleListing)
	}
	pool.RegisterHandler(models.CategoryDetail, s.handleDetail)
	pool.SetBackoff(func(attempt int) time.Duration {
		return s.requeuePolicy.CalculateBackoff(attempt - 1)
	})
	pool.OnPermanentFailure(s.recordFailure)

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	queue.NewMonitor(s.queue, s.config.ProgressInterval, s.logger).StartMonitoring(monitorCtx)

	if err := pool.Start(); err != nil {
		return RunStats{}, fmt.Errorf("failed to start worker pool: %w", err)
	}
	pool.Wait()
	stopMonitor()

	stats := RunStats{
		Seeded:     seeded,
		Listings:   s.listings.Load(),
		Discovered: s.discovered.Load(),
		Videos:     s.videos.Load(),
		Blocked:    s.blocked.Load(),
		Failed:     s.failed.Load(),
		Duration:   time.Since(startTime),
	}
	// Stats are read with a fresh context so an interrupted run still reports
	if queueStats, err := s.queue.Stats(context.Background()); err == nil {
		stats.Queue = queueStats
	}

	s.logger.Info().
		Int64("listings", stats.Listings).
		Int64("discovered", stats.Discovered).
		Int64("videos", stats.Videos).
		Int64("blocked", stats.Blocked).
		Int64("failed", stats.Failed).
		Int("pending", stats.Queue.Pending).
		Int("done", stats.Queue.Done).
		Dur("duration", stats.Duration).
		Msg("Crawl finished")

	return stats, ctx.Err()
}

// handleListing opens a listing and runs the controller on it. Keyword seeds
// open the home page and search from there.
func (s *Service) handleListing(ctx context.Context, slot int, item *models.WorkItem) error {
	target := item.URL
	if item.IsKeywordSeed() {
		target = s.config.HomeURL
	}

	driver, err := s.open(ctx, slot, item, target)
	if err != nil {
		return err
	}

	result, err := s.listing.Visit(ctx, driver, item)
	if err != nil {
		return fmt.Errorf("listing visit failed: %w", err)
	}

	s.listings.Add(1)
	s.discovered.Add(int64(result.Unique))

	s.logger.WithCorrelationId(item.ID).Info().
		Str("url", item.URL).
		Str("search", item.SearchTerm).
		Int("unique", result.Unique).
		Int("total", result.Total).
		Str("reason", string(result.Reason)).
		Int("passes", result.Passes).
		Msg("Listing visit complete")

	return nil
}

// handleDetail opens a video page, extracts it and stores the record
func (s *Service) handleDetail(ctx context.Context, slot int, item *models.WorkItem) error {
	driver, err := s.open(ctx, slot, item, item.URL)
	if err != nil {
		return err
	}

	record, err := s.extractor.Extract(ctx, driver, item)
	if err != nil {
		return fmt.Errorf("video extraction failed: %w", err)
	}

	if err := s.dataset.SaveRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	s.videos.Add(1)

	return nil
}

// open navigates slot's session to target and checks the platform served the
// page. A refused page retires the session so the retry starts fresh.
func (s *Service) open(ctx context.Context, slot int, item *models.WorkItem, target string) (interfaces.Driver, error) {
	logger := s.logger.WithCorrelationId(item.ID)

	driver, err := s.sessions.Acquire(ctx, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire browser session: %w", err)
	}

	status, err := s.navigation.ExecuteWithRetry(ctx, logger, func() (int, error) {
		if err := s.limiter.Wait(ctx, slot); err != nil {
			return 0, err
		}
		return driver.Navigate(ctx, target)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", target, err)
	}

	if _, err := browser.CheckPage(ctx, driver, target, status); err != nil {
		if errors.Is(err, browser.ErrBlocked) {
			s.blocked.Add(1)
			logger.Warn().
				Err(err).
				Int("worker_id", slot).
				Msg("Page refused, retiring browser session")
			if _, retireErr := s.sessions.Retire(ctx, slot); retireErr != nil {
				logger.Error().Err(retireErr).Int("worker_id", slot).Msg("Failed to replace browser session")
			}
		}
		return nil, err
	}

	return driver, nil
}

// recordFailure stores a debug record for an item that used up its attempts
func (s *Service) recordFailure(ctx context.Context, item *models.WorkItem) {
	s.failed.Add(1)

	record := &models.DebugRecord{
		ID:         item.ID,
		URL:        item.URL,
		Category:   item.Category,
		SearchTerm: item.SearchTerm,
		Attempts:   item.Attempts,
		Errors:     append([]string(nil), item.Errors...),
		FailedAt:   time.Now(),
	}

	if err := s.dataset.SaveDebugRecord(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("url", item.URL).Msg("Failed to save debug record")
	}
}

func navigationRate(perSecond float64) string {
	if perSecond <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%.2f/s", perSecond)
}
