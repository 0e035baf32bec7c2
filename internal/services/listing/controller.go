// -----------------------------------------------------------------------
// Listing Controller - Search setup and pagination hand-off
// -----------------------------------------------------------------------

package listing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/browser"
	"github.com/ternarybob/spectare/internal/common"
	"github.com/ternarybob/spectare/internal/datefilter"
	"github.com/ternarybob/spectare/internal/interfaces"
	"github.com/ternarybob/spectare/internal/models"
	"github.com/ternarybob/spectare/internal/services/pagination"
)

// Controller runs a listing visit: SETUP for keyword seeds, then DELEGATE
// to the pagination engine
type Controller struct {
	config Config
	engine *pagination.Engine
	logger arbor.ILogger
	now    func() time.Time
}

// NewController creates a controller handing pages to engine
func NewController(config Config, engine *pagination.Engine, logger arbor.ILogger) *Controller {
	return &Controller{
		config: config,
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
}

// IsSearchContext reports whether item lists search results, which must not
// have nodes removed while scanning
func IsSearchContext(item *models.WorkItem) bool {
	return item.Category == models.CategorySearch || item.IsKeywordSeed()
}

// Visit processes the listing already loaded in driver
func (c *Controller) Visit(ctx context.Context, driver interfaces.Driver, item *models.WorkItem) (pagination.Result, error) {
	logger := c.logger.WithCorrelationId(item.ID)

	if item.IsKeywordSeed() {
		if err := c.setup(ctx, driver, item.SearchTerm, logger); err != nil {
			return pagination.Result{}, err
		}
	}

	logger.Debug().Str("url", item.URL).Msg("Waiting for first videos to load")
	if err := common.Sleep(ctx, c.config.InitialLoadDelay); err != nil {
		return pagination.Result{}, err
	}

	sessionURL := item.URL
	if current, err := driver.CurrentURL(ctx); err == nil && current != "" {
		sessionURL = current
	}

	session := pagination.NewSession(sessionURL, item.SearchTerm, c.config.MaxResults, IsSearchContext(item))
	return c.engine.Run(ctx, driver, session)
}

// setup types the search term and applies the upload date filters
func (c *Controller) setup(ctx context.Context, driver interfaces.Driver, term string, logger arbor.ILogger) error {
	logger.Debug().Str("search", term).Msg("Waiting for search box")
	if err := driver.WaitForSelector(ctx, c.config.SearchBox, c.config.SearchBoxTimeout); err != nil {
		return fmt.Errorf("search box not found: %w", err)
	}
	if err := driver.Click(ctx, c.config.SearchBox); err != nil {
		return fmt.Errorf("failed to focus search box: %w", err)
	}

	logger.Info().Str("search", term).Msg("Entering search text")
	for _, r := range term {
		if err := driver.Type(ctx, c.config.SearchBox, string(r)); err != nil {
			return fmt.Errorf("failed to type search text: %w", err)
		}
		if err := common.Sleep(ctx, common.RandomDuration(c.config.KeyDelayMin, c.config.KeyDelayMax)); err != nil {
			return err
		}
	}

	logger.Info().Str("search", term).Msg("Submitting search")
	submit := func(ctx context.Context) error {
		if c.config.SearchButton != "" {
			if err := driver.Click(ctx, c.config.SearchButton); err == nil {
				return nil
			}
		}
		return driver.Press(ctx, "Enter")
	}
	if _, err := driver.WaitForNavigationOrResponse(ctx, submit, c.config.ListingEndpoint, c.config.SearchTimeout); err != nil {
		if !errors.Is(err, browser.ErrTimeout) {
			return fmt.Errorf("failed to submit search: %w", err)
		}
		logger.Warn().Str("search", term).Msg("Search results did not signal a reload - continuing")
	}

	if err := c.humanPause(ctx); err != nil {
		return err
	}

	return c.applyDateFilters(ctx, driver, term, logger)
}

func (c *Controller) applyDateFilters(ctx context.Context, driver interfaces.Driver, term string, logger arbor.ILogger) error {
	if c.config.PostsFromDate == "" {
		return nil
	}

	labels := datefilter.FiltersFor(c.config.PostsFromDate, c.now())
	if len(labels) == 0 {
		logger.Warn().
			Str("posts_from_date", c.config.PostsFromDate).
			Msg("Upload date filter not applicable - listing is not filtered")
		return nil
	}

	for _, label := range labels {
		if err := driver.WaitForSelector(ctx, c.config.FilterToggle, c.config.FilterTimeout); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn().Err(err).Msg("Filter menu not found - skipping remaining filters")
			return nil
		}
		if err := driver.Click(ctx, c.config.FilterToggle); err != nil {
			logger.Warn().Err(err).Msg("Failed to open filter menu - skipping remaining filters")
			return nil
		}
		if err := c.humanPause(ctx); err != nil {
			return err
		}

		choose := func(ctx context.Context) error {
			return driver.ClickText(ctx, c.config.FilterOption, label)
		}
		_, err := driver.WaitForNavigationOrResponse(ctx, choose, c.config.ListingEndpoint, c.config.FilterTimeout)
		switch {
		case err == nil:
			logger.Info().Str("search", term).Str("filter", label).Msg("Filter applied")
		case errors.Is(err, browser.ErrNotFound):
			logger.Warn().Str("filter", label).Msg("Filter option not found - skipping")
		case errors.Is(err, browser.ErrTimeout):
			logger.Warn().Str("filter", label).Msg("Listing did not refresh after filter - continuing")
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			logger.Warn().Err(err).Str("filter", label).Msg("Failed to apply filter - skipping")
		}

		if err := c.humanPause(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) humanPause(ctx context.Context) error {
	return common.Sleep(ctx, common.RandomDuration(c.config.HumanPauseMin, c.config.HumanPauseMax))
}
