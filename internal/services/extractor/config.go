package extractor

import (
	"time"

	"github.com/ternarybob/spectare/internal/common"
)

// Selectors lists CSS selectors per field, tried in order until one matches.
// The page's structured metadata is used when none does.
type Selectors struct {
	Title            []string
	ViewCount        []string
	Date             []string
	Likes            []string
	Channel          []string
	Subscribers      []string
	Duration         []string
	CommentsCount    []string
	CommentsDisabled []string
	Description      []string
}

// Config holds the detail page settings
type Config struct {
	Selectors         Selectors
	SettleInterval    time.Duration
	DownloadSubtitles bool
	SubtitlesLanguage string
}

// DefaultSelectors covers the current watch page layout and the older one
func DefaultSelectors() Selectors {
	return Selectors{
		Title: []string{
			"ytd-watch-metadata h1 yt-formatted-string",
			"h1.ytd-video-primary-info-renderer yt-formatted-string",
			"#title h1",
		},
		ViewCount: []string{
			"ytd-video-view-count-renderer span.view-count",
			"#count ytd-video-view-count-renderer span:first-child",
			"ytd-watch-info-text #info span:first-child",
		},
		Date: []string{
			"#info-strings yt-formatted-string",
			"ytd-video-primary-info-renderer #date yt-formatted-string",
		},
		Likes: []string{
			"ytd-menu-renderer ytd-toggle-button-renderer:first-child #text",
			"like-button-view-model .yt-spec-button-shape-next__button-text-content",
			"#segmented-like-button .yt-core-attributed-string",
		},
		Channel: []string{
			"ytd-video-owner-renderer ytd-channel-name a",
			"ytd-channel-name yt-formatted-string a",
			"#owner-name a",
		},
		Subscribers: []string{
			"#owner-sub-count",
		},
		Duration: []string{
			"#movie_player span.ytp-time-duration",
			".ytp-time-duration",
		},
		CommentsCount: []string{
			"ytd-comments-header-renderer #count .count-text",
			"ytd-comments-header-renderer h2 #count",
			".count-text",
		},
		CommentsDisabled: []string{
			"#comments #contents",
			"ytd-comments ytd-message-renderer #message",
		},
		Description: []string{
			"ytd-text-inline-expander #attributed-snippet-text",
			"#description-inline-expander yt-attributed-string",
			"ytd-expander #description yt-formatted-string",
			"#description",
		},
	}
}

// NewDefaultConfig returns the extractor defaults
func NewDefaultConfig() Config {
	return Config{
		Selectors:         DefaultSelectors(),
		SettleInterval:    3 * time.Second,
		SubtitlesLanguage: "en",
	}
}

// ConfigFrom converts the application configuration
func ConfigFrom(config *common.Config) Config {
	defaults := NewDefaultConfig()
	result := Config{
		Selectors:         defaults.Selectors,
		SettleInterval:    common.ParseDuration(config.Crawler.SettleInterval, defaults.SettleInterval),
		DownloadSubtitles: config.Input.DownloadSubtitles,
		SubtitlesLanguage: config.Input.SubtitlesLanguage,
	}
	if result.SubtitlesLanguage == "" {
		result.SubtitlesLanguage = defaults.SubtitlesLanguage
	}
	return result
}
