package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/browser/browsertest"
	"github.com/ternarybob/spectare/internal/models"
)

const watchURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

const watchPage = `<html><head>
<meta itemprop="name" content="Meta title">
</head><body>
<ytd-watch-metadata>
  <h1><yt-formatted-string>Never Gonna Give You Up</yt-formatted-string></h1>
</ytd-watch-metadata>
<ytd-video-view-count-renderer><span class="view-count">1,234,567 views</span></ytd-video-view-count-renderer>
<div id="info-strings"><yt-formatted-string>Premiered Oct 25, 2009</yt-formatted-string></div>
<ytd-menu-renderer><ytd-toggle-button-renderer><span id="text">16M</span></ytd-toggle-button-renderer></ytd-menu-renderer>
<ytd-video-owner-renderer>
  <ytd-channel-name><a href="/@RickAstleyYT">Rick Astley</a></ytd-channel-name>
  <div id="owner-sub-count">3.9M subscribers</div>
</ytd-video-owner-renderer>
<div id="movie_player"><span class="ytp-time-duration">3:33</span></div>
<ytd-comments-header-renderer><h2><span id="count"><span class="count-text">2,345 Comments</span></span></h2></ytd-comments-header-renderer>
<ytd-text-inline-expander><span id="attributed-snippet-text"><b>Official</b> video for <a href="https://example.com/">Never Gonna</a></span></ytd-text-inline-expander>
</body></html>`

const metadataOnlyPage = `<html><head>
<meta itemprop="name" content="Structured Title">
<meta itemprop="interactionCount" content="98765">
<meta itemprop="datePublished" content="2021-03-04">
<meta itemprop="duration" content="PT1H2M3S">
<meta name="description" content="Plain description">
</head><body>
<span itemprop="author"><link itemprop="url" href="http://www.youtube.com/@someone"><link itemprop="name" content="Someone"></span>
<div id="comments"><div id="contents">Comments are turned off. Learn more</div></div>
</body></html>`

func newTestExtractor(config Config) *Extractor {
	x := NewExtractor(config, arbor.NewLogger())
	x.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return x
}

func TestParse_WatchPage(t *testing.T) {
	record, err := newTestExtractor(NewDefaultConfig()).Parse(watchPage, watchURL)
	require.NoError(t, err)

	assert.Equal(t, "dQw4w9WgXcQ", record.ID)
	assert.Equal(t, watchURL, record.URL)
	assert.Equal(t, "Never Gonna Give You Up", record.Title)
	assert.Equal(t, int64(1234567), record.ViewCount)
	assert.Equal(t, "2009-10-25T00:00:00Z", record.Date)
	assert.Equal(t, int64(16000000), record.Likes)
	assert.Equal(t, "Rick Astley", record.ChannelName)
	assert.Equal(t, "https://www.youtube.com/@RickAstleyYT", record.ChannelURL)
	assert.Equal(t, int64(3900000), record.NumberOfSubscribers)
	assert.Equal(t, "3:33", record.Duration)
	assert.Equal(t, int64(2345), record.CommentsCount)
	assert.False(t, record.CommentsTurnedOff)
	assert.Contains(t, record.Description, "**Official**")
	assert.Contains(t, record.Description, "[Never Gonna](https://example.com/)")
	assert.False(t, record.Simplified)
	assert.False(t, record.ScrapedAt.IsZero())
}

func TestParse_StructuredMetadataFallback(t *testing.T) {
	record, err := newTestExtractor(NewDefaultConfig()).Parse(metadataOnlyPage, watchURL)
	require.NoError(t, err)

	assert.Equal(t, "Structured Title", record.Title)
	assert.Equal(t, int64(98765), record.ViewCount)
	assert.Equal(t, "2021-03-04T00:00:00Z", record.Date)
	assert.Equal(t, "1:02:03", record.Duration)
	assert.Equal(t, "Someone", record.ChannelName)
	assert.Equal(t, "http://www.youtube.com/@someone", record.ChannelURL)
	assert.Equal(t, "Plain description", record.Description)
	assert.True(t, record.CommentsTurnedOff)
	assert.Zero(t, record.CommentsCount)
	assert.Zero(t, record.Likes)
}

func TestParse_NoTitle(t *testing.T) {
	_, err := newTestExtractor(NewDefaultConfig()).Parse(`<html><body><div id="spinner"></div></body></html>`, watchURL)
	assert.ErrorIs(t, err, ErrIncompleteRecord)
}

func TestParse_LikesFromLabel(t *testing.T) {
	page := `<html><body>
<ytd-watch-metadata><h1><yt-formatted-string>Video</yt-formatted-string></h1></ytd-watch-metadata>
<like-button-view-model><button aria-label="like this video along with 1,234 other people"></button></like-button-view-model>
</body></html>`

	record, err := newTestExtractor(NewDefaultConfig()).Parse(page, watchURL)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), record.Likes)
}

func TestExtract_ScrollsAndReads(t *testing.T) {
	driver := browsertest.NewDriver("section", "item")
	driver.Page = watchPage

	config := NewDefaultConfig()
	config.SettleInterval = 0
	item := &models.WorkItem{ID: "item-1", URL: watchURL, Category: models.CategoryDetail, SearchTerm: "rick"}

	record, err := newTestExtractor(config).Extract(context.Background(), driver, item)
	require.NoError(t, err)

	assert.Equal(t, 2, driver.Called("ScrollBy"))
	assert.Equal(t, "rick", record.SearchTerm)
	assert.Empty(t, record.Subtitles)
	assert.Zero(t, driver.Called("Evaluate"), "subtitles are opt-in")
}

func TestExtract_WithSubtitles(t *testing.T) {
	driver := browsertest.NewDriver("section", "item")
	driver.Page = watchPage + `<script>var ytInitialPlayerResponse = {"captions":{"baseUrl":"https://www.youtube.com/api/timedtext?v=dQw4w9WgXcQ&caps=asr"}};</script>`
	driver.Evaluations["&fmt=json3&kind=asr"] = `{"events":[{"tStartMs":0,"dDurationMs":1500,"segs":[{"utf8":"never gonna"}]}]}`
	driver.Evaluations["&fmt=json3"] = ""

	config := NewDefaultConfig()
	config.SettleInterval = 0
	config.DownloadSubtitles = true

	record, err := newTestExtractor(config).Extract(context.Background(), driver,
		&models.WorkItem{URL: watchURL, Category: models.CategoryDetail})
	require.NoError(t, err)

	assert.Equal(t, SubtitlesAutoGenerated, record.SubtitlesType)
	assert.Equal(t, "1\n00:00:00,000 --> 00:00:01,500\nnever gonna\n\n", record.Subtitles)
}

func TestExtract_MissingSubtitlesIsNotFatal(t *testing.T) {
	driver := browsertest.NewDriver("section", "item")
	driver.Page = watchPage

	config := NewDefaultConfig()
	config.SettleInterval = 0
	config.DownloadSubtitles = true

	record, err := newTestExtractor(config).Extract(context.Background(), driver,
		&models.WorkItem{URL: watchURL, Category: models.CategoryDetail})
	require.NoError(t, err)
	assert.Empty(t, record.Subtitles)
	assert.Empty(t, record.SubtitlesType)
}

func TestExtract_DriverFailure(t *testing.T) {
	driver := browsertest.NewDriver("section", "item")
	driver.Errors["HTML"] = errors.New("target closed")

	config := NewDefaultConfig()
	config.SettleInterval = 0

	_, err := newTestExtractor(config).Extract(context.Background(), driver,
		&models.WorkItem{URL: watchURL, Category: models.CategoryDetail})
	assert.Error(t, err)
}

func TestNormalizeUploadDate(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Oct 25, 2009", "2009-10-25T00:00:00Z"},
		{"Premiered Oct 25, 2009", "2009-10-25T00:00:00Z"},
		{"Streamed live on Mar 3, 2021", "2021-03-03T00:00:00Z"},
		{"2021-03-04", "2021-03-04T00:00:00Z"},
		{"2021-03-04T10:00:00-07:00", "2021-03-04T10:00:00-07:00"},
		{"3 hours ago", "3 hours ago"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizeUploadDate(tt.input), tt.input)
	}
}

func TestClockDuration(t *testing.T) {
	assert.Equal(t, "3:33", clockDuration("PT3M33S"))
	assert.Equal(t, "1:02:03", clockDuration("PT1H2M3S"))
	assert.Equal(t, "0:45", clockDuration("PT45S"))
	assert.Equal(t, "", clockDuration("PT"))
	assert.Equal(t, "", clockDuration("3:33"))
}
