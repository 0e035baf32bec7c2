// -----------------------------------------------------------------------
// Pagination Engine - Scans an infinite-scroll listing and schedules videos
// -----------------------------------------------------------------------

package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/classifier"
	"github.com/ternarybob/spectare/internal/common"
	"github.com/ternarybob/spectare/internal/interfaces"
	"github.com/ternarybob/spectare/internal/models"
)

// ErrNoItems means the first scan of a listing found nothing to process
var ErrNoItems = errors.New("listing rendered no items")

// Engine drives Sessions. It is stateless between runs and safe to share
// between workers.
type Engine struct {
	config  Config
	queue   interfaces.WorkQueue
	records interfaces.DatasetStorage
	logger  arbor.ILogger
	now     func() time.Time
	beat    func(s *Session)
}

// NewEngine creates an engine that enqueues into queue. records receives
// listing records in simplified mode and may be nil otherwise.
func NewEngine(config Config, queue interfaces.WorkQueue, records interfaces.DatasetStorage, logger arbor.ILogger) *Engine {
	e := &Engine{
		config:  config,
		queue:   queue,
		records: records,
		logger:  logger,
		now:     time.Now,
	}
	e.beat = e.logHeartbeat
	return e
}

// Run scans the listing open in driver until the session's target is met,
// the page stops growing, or an error aborts it.
func (e *Engine) Run(ctx context.Context, driver interfaces.Driver, s *Session) (Result, error) {
	stopHeartbeat := e.startHeartbeat(ctx, s)
	defer stopHeartbeat()

	result, err := e.run(ctx, driver, s)

	unique, total := s.Counts()
	_, reason := s.State()
	e.logger.Info().
		Str("url", s.URL).
		Str("search_term", s.SearchTerm).
		Str("reason", string(reason)).
		Int("unique", unique).
		Int("total", total).
		Int("passes", s.Passes()).
		Msg(fmt.Sprintf("Listing finished - pushed %d unique videos (%d total)", unique, total))

	return result, err
}

func (e *Engine) run(ctx context.Context, driver interfaces.Driver, s *Session) (Result, error) {
	for {
		pass := s.beginPass()

		processed, done, err := e.scan(ctx, driver, s)
		if err != nil {
			s.terminate(ReasonError)
			return s.result(), err
		}
		if done {
			s.terminate(ReasonTargetReached)
			return s.result(), nil
		}

		if processed == 0 {
			if pass == 1 {
				s.terminate(ReasonError)
				return s.result(), fmt.Errorf("%w: %s", ErrNoItems, s.URL)
			}
			s.terminate(ReasonExhausted)
			return s.result(), nil
		}

		s.awaitGrowth()
		if err := driver.ScrollBy(ctx, e.config.ScrollStep); err != nil {
			s.terminate(ReasonError)
			return s.result(), fmt.Errorf("failed to scroll listing: %w", err)
		}
		if err := common.Sleep(ctx, e.config.SettleInterval); err != nil {
			s.terminate(ReasonError)
			return s.result(), err
		}
	}
}

// scan handles every unhandled item currently rendered. done is true once
// the target was reached.
func (e *Engine) scan(ctx context.Context, driver interfaces.Driver, s *Session) (processed int, done bool, err error) {
	sections, err := driver.QueryAll(ctx, e.config.Selectors.Section)
	if err != nil {
		return 0, false, fmt.Errorf("failed to enumerate sections: %w", err)
	}

	for _, section := range sections {
		items, err := driver.QueryWithin(ctx, section, e.config.Selectors.Item)
		if err != nil {
			return processed, false, fmt.Errorf("failed to enumerate items: %w", err)
		}

		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return processed, false, err
			}
			if !s.claimNode(item) {
				continue
			}
			processed++

			done, err := e.handleItem(ctx, driver, s, item)
			if err != nil || done {
				return processed, done, err
			}
		}
	}
	return processed, false, nil
}

func (e *Engine) handleItem(ctx context.Context, driver interfaces.Driver, s *Session, item *cdp.Node) (bool, error) {
	// Hovering loads lazy thumbnails and looks human; failures do not matter
	_ = driver.Hover(ctx, item)

	var err error
	if e.config.Simplified {
		err = e.storeListingRecord(ctx, driver, s, item)
	} else {
		err = e.enqueueItem(ctx, driver, s, item)
	}
	if err != nil {
		return false, err
	}

	if s.TargetReached() {
		return true, nil
	}

	if err := common.Sleep(ctx, common.RandomDuration(e.config.ItemDelayMin, e.config.ItemDelayMax)); err != nil {
		return false, err
	}

	// Search results are not removed: the platform re-renders them on removal
	if !s.IsSearchContext {
		if err := driver.Remove(ctx, item); err != nil {
			e.logger.Debug().Err(err).Msg("Failed to remove listing item")
		}
	}
	return false, nil
}

// itemURL returns the canonical watch URL of item, or false when the item
// has no usable link
func (e *Engine) itemURL(ctx context.Context, driver interfaces.Driver, s *Session, item *cdp.Node) (string, bool) {
	href, err := driver.AttributeWithin(ctx, item, e.config.Selectors.Link, "href")
	if err != nil || href == "" {
		e.logger.Debug().Err(err).Str("listing", s.URL).Msg("Skipping item without link")
		return "", false
	}

	absolute, ok := classifier.Resolve(s.URL, href)
	if !ok {
		e.logger.Debug().Str("href", href).Msg("Skipping item with unresolvable link")
		return "", false
	}
	canonical, category, ok := classifier.Canonicalize(absolute)
	if !ok || category != models.CategoryDetail {
		e.logger.Debug().Str("href", href).Msg("Skipping item that is not a video")
		return "", false
	}
	return canonical, true
}

func (e *Engine) enqueueItem(ctx context.Context, driver interfaces.Driver, s *Session, item *cdp.Node) error {
	url, ok := e.itemURL(ctx, driver, s, item)
	if !ok {
		return nil
	}

	wasNew, err := e.queue.Enqueue(ctx, url, models.CategoryDetail, s.SearchTerm)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", url, err)
	}
	s.recordAttempt(wasNew)

	e.logger.Trace().
		Str("url", url).
		Bool("new", wasNew).
		Msg("Video enqueued")
	return nil
}

func (e *Engine) storeListingRecord(ctx context.Context, driver interfaces.Driver, s *Session, item *cdp.Node) error {
	url, ok := e.itemURL(ctx, driver, s, item)
	if !ok {
		return nil
	}

	sel := e.config.Selectors
	text := func(selector string) string {
		if selector == "" {
			return ""
		}
		value, err := driver.TextWithin(ctx, item, selector)
		if err != nil {
			return ""
		}
		return value
	}
	attr := func(selector, name string) string {
		if selector == "" {
			return ""
		}
		value, err := driver.AttributeWithin(ctx, item, selector, name)
		if err != nil {
			return ""
		}
		return value
	}

	record := &models.VideoRecord{
		ID:          classifier.VideoID(url),
		URL:         url,
		Title:       attr(sel.Title, "title"),
		Duration:    text(sel.Duration),
		ChannelName: text(sel.ChannelName),
		ViewCount:   common.UnformatNumbers(text(sel.ViewCount)),
		Date:        text(sel.Date),
		SearchTerm:  s.SearchTerm,
		Simplified:  true,
		ScrapedAt:   e.now(),
	}
	if record.Title == "" {
		record.Title = text(sel.Title)
	}
	if href := attr(sel.ChannelURL, "href"); href != "" {
		if channelURL, ok := classifier.Resolve(s.URL, href); ok {
			record.ChannelURL = channelURL
		}
	}

	if err := e.records.SaveRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to save listing record %s: %w", record.ID, err)
	}
	s.recordAttempt(s.claimVideo(record.ID))
	return nil
}

func (e *Engine) startHeartbeat(ctx context.Context, s *Session) (stop func()) {
	if e.config.HeartbeatInterval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	// done must close even when ctx is already cancelled
	common.SafeGo(e.logger, "paginationHeartbeat", func() {
		defer close(done)
		ticker := time.NewTicker(e.config.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.beat(s)
			}
		}
	})

	// No beat runs once stop has returned
	return func() {
		cancel()
		<-done
	}
}

func (e *Engine) logHeartbeat(s *Session) {
	unique, total := s.Counts()
	state, _ := s.State()
	e.logger.Info().
		Str("url", s.URL).
		Str("state", string(state)).
		Int("unique", unique).
		Int("total", total).
		Msg(fmt.Sprintf("Scrolling state - pushed %d unique videos total", unique))
}
