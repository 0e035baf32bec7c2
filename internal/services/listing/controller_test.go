package listing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/browser/browsertest"
	"github.com/ternarybob/spectare/internal/datefilter"
	"github.com/ternarybob/spectare/internal/models"
	"github.com/ternarybob/spectare/internal/services/pagination"
)

type recordingQueue struct {
	mu    sync.Mutex
	items []*models.WorkItem
}

func (q *recordingQueue) Enqueue(ctx context.Context, url string, category models.Category, searchTerm string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, &models.WorkItem{URL: url, Category: category, SearchTerm: searchTerm})
	return true, nil
}

func (q *recordingQueue) DequeueNext(ctx context.Context) (*models.WorkItem, error) {
	return nil, models.ErrNoMessage
}

func (q *recordingQueue) MarkDone(ctx context.Context, item *models.WorkItem) error { return nil }

func (q *recordingQueue) MarkFailed(ctx context.Context, item *models.WorkItem, cause error, delay time.Duration) (bool, error) {
	return false, nil
}

func (q *recordingQueue) Stats(ctx context.Context) (models.QueueStats, error) {
	return models.QueueStats{}, nil
}

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	controller *Controller
	driver     *browsertest.Driver
	queue      *recordingQueue
	config     Config
}

func newFixture(t *testing.T, postsFromDate string) *fixture {
	t.Helper()

	config := NewDefaultConfig()
	config.KeyDelayMin, config.KeyDelayMax = 0, 0
	config.HumanPauseMin, config.HumanPauseMax = 0, 0
	config.InitialLoadDelay = 0
	config.PostsFromDate = postsFromDate
	config.MaxResults = 10

	engineConfig := pagination.NewDefaultConfig()
	engineConfig.ItemDelayMin, engineConfig.ItemDelayMax = 0, 0
	engineConfig.SettleInterval = 0
	engineConfig.HeartbeatInterval = 0

	driver := browsertest.NewDriver(engineConfig.Selectors.Section, engineConfig.Selectors.Item)
	driver.Present[config.SearchBox] = true
	driver.Present[config.SearchButton] = true
	driver.Present[config.FilterToggle] = true
	driver.Options[config.FilterOption] = []string{
		datefilter.LabelSortByUploadDate,
		datefilter.LabelLastHour,
		datefilter.LabelToday,
		datefilter.LabelThisWeek,
		datefilter.LabelThisMonth,
		datefilter.LabelThisYear,
	}

	items := make([]*browsertest.Item, 3)
	for i := range items {
		items[i] = browsertest.NewItem(engineConfig.Selectors.Link, fmt.Sprintf("/watch?v=listing%04d", i))
	}
	driver.AddSection(items...)

	queue := &recordingQueue{}
	engine := pagination.NewEngine(engineConfig, queue, nil, arbor.NewLogger())
	controller := NewController(config, engine, arbor.NewLogger())
	controller.now = func() time.Time { return fixedNow }

	return &fixture{controller: controller, driver: driver, queue: queue, config: config}
}

func keywordSeed(term string) *models.WorkItem {
	return &models.WorkItem{
		ID:         "seed-1",
		URL:        "https://www.youtube.com/results?search_query=" + term,
		Category:   models.CategoryMaster,
		SearchTerm: term,
	}
}

func clickedTexts(log []string) []string {
	var calls []string
	for _, call := range log {
		if strings.HasPrefix(call, "ClickText ") {
			calls = append(calls, call)
		}
	}
	return calls
}

func TestVisit_KeywordSeedSearchesAndFilters(t *testing.T) {
	f := newFixture(t, "1 week ago")

	result, err := f.controller.Visit(context.Background(), f.driver, keywordSeed("golang"))
	require.NoError(t, err)

	assert.Equal(t, "golang", f.driver.Typed.String())
	assert.Equal(t, len("golang"), f.driver.Called("Type"), "typed one keystroke at a time")
	assert.Equal(t, 2, f.driver.Called("Click "+f.config.FilterToggle))
	assert.Equal(t, 1, f.driver.Called("Click "+f.config.SearchButton))
	assert.Zero(t, f.driver.Called("Press"))

	calls := clickedTexts(f.driver.CallLog())
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0], datefilter.LabelSortByUploadDate)
	assert.Contains(t, calls[1], datefilter.LabelThisWeek)

	assert.Equal(t, pagination.ReasonExhausted, result.Reason)
	assert.Equal(t, 3, result.Unique)
	assert.Zero(t, f.driver.Called("Remove"), "search results stay in place")
	for _, item := range f.queue.items {
		assert.Equal(t, models.CategoryDetail, item.Category)
		assert.Equal(t, "golang", item.SearchTerm)
	}
}

func TestVisit_SearchBoxMissing(t *testing.T) {
	f := newFixture(t, "")
	f.driver.Present[f.config.SearchBox] = false

	_, err := f.controller.Visit(context.Background(), f.driver, keywordSeed("golang"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search box not found")
	assert.Zero(t, f.driver.Called("QueryAll"), "no scan without a search")
}

func TestVisit_EnterFallback(t *testing.T) {
	f := newFixture(t, "")
	f.driver.Present[f.config.SearchButton] = false

	_, err := f.controller.Visit(context.Background(), f.driver, keywordSeed("go"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.driver.Called("Press Enter"))
}

func TestVisit_SearchTimeoutIsNotFatal(t *testing.T) {
	f := newFixture(t, "")
	f.driver.Signal = ""

	result, err := f.controller.Visit(context.Background(), f.driver, keywordSeed("go"))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Unique)
}

func TestVisit_FilterMenuMissing(t *testing.T) {
	f := newFixture(t, "2 days ago")
	f.driver.Present[f.config.FilterToggle] = false

	result, err := f.controller.Visit(context.Background(), f.driver, keywordSeed("go"))
	require.NoError(t, err)
	assert.Empty(t, clickedTexts(f.driver.CallLog()))
	assert.Equal(t, 1, f.driver.Called("WaitForSelector "+f.config.FilterToggle), "remaining filters skipped")
	assert.Equal(t, 3, result.Unique)
}

func TestVisit_FilterOptionMissing(t *testing.T) {
	f := newFixture(t, "3 hours ago")
	f.driver.Options[f.config.FilterOption] = []string{datefilter.LabelToday}

	result, err := f.controller.Visit(context.Background(), f.driver, keywordSeed("go"))
	require.NoError(t, err)

	calls := clickedTexts(f.driver.CallLog())
	require.Len(t, calls, 2, "a missing option does not stop the next one")
	assert.Contains(t, calls[1], datefilter.LabelToday)
	assert.Equal(t, 3, result.Unique)
}

func TestVisit_ExpiredDateSkipsFilters(t *testing.T) {
	f := newFixture(t, "5 years ago")

	_, err := f.controller.Visit(context.Background(), f.driver, keywordSeed("go"))
	require.NoError(t, err)
	assert.Zero(t, f.driver.Called("WaitForSelector "+f.config.FilterToggle))
}

func TestVisit_ChannelSkipsSetup(t *testing.T) {
	f := newFixture(t, "1 week ago")
	item := &models.WorkItem{
		ID:       "channel-1",
		URL:      "https://www.youtube.com/channel/UCabc/videos",
		Category: models.CategoryChannel,
	}

	result, err := f.controller.Visit(context.Background(), f.driver, item)
	require.NoError(t, err)

	assert.Zero(t, f.driver.Called("Type"))
	assert.Zero(t, f.driver.Called("WaitForNavigationOrResponse"))
	assert.Equal(t, 3, f.driver.Called("Remove"), "channel listings drop handled items")
	assert.Equal(t, 3, result.Unique)
}

func TestVisit_EmptyListing(t *testing.T) {
	f := newFixture(t, "")
	f.driver.Sections = nil

	_, err := f.controller.Visit(context.Background(), f.driver, &models.WorkItem{
		URL:      "https://www.youtube.com/",
		Category: models.CategoryMaster,
	})
	assert.ErrorIs(t, err, pagination.ErrNoItems)
}

func TestIsSearchContext(t *testing.T) {
	tests := []struct {
		item     models.WorkItem
		expected bool
	}{
		{models.WorkItem{Category: models.CategorySearch}, true},
		{models.WorkItem{Category: models.CategoryMaster, SearchTerm: "go"}, true},
		{models.WorkItem{Category: models.CategoryMaster}, false},
		{models.WorkItem{Category: models.CategoryChannel}, false},
		{models.WorkItem{Category: models.CategoryChannel, SearchTerm: "go"}, false},
	}

	for _, tt := range tests {
		item := tt.item
		assert.Equal(t, tt.expected, IsSearchContext(&item), "%s/%q", item.Category, item.SearchTerm)
	}
}
