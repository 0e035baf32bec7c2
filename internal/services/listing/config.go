package listing

import (
	"time"

	"github.com/ternarybob/spectare/internal/common"
)

// Config holds the search and filter flow settings
type Config struct {
	SearchBox    string
	SearchButton string
	FilterToggle string
	FilterOption string

	KeyDelayMin   time.Duration
	KeyDelayMax   time.Duration
	HumanPauseMin time.Duration
	HumanPauseMax time.Duration

	// SearchBoxTimeout bounds the wait for the search box to render
	SearchBoxTimeout time.Duration
	SearchTimeout    time.Duration
	FilterTimeout    time.Duration
	// InitialLoadDelay is waited before the first scan of every listing
	InitialLoadDelay time.Duration
	ListingEndpoint  string

	PostsFromDate string
	MaxResults    int
}

// NewDefaultConfig returns the controller defaults
func NewDefaultConfig() Config {
	s := common.NewDefaultConfig().Selectors
	return Config{
		SearchBox:        s.SearchBox,
		SearchButton:     s.SearchButton,
		FilterToggle:     s.FilterMenuToggle,
		FilterOption:     s.FilterOption,
		KeyDelayMin:      45 * time.Millisecond,
		KeyDelayMax:      375 * time.Millisecond,
		HumanPauseMin:    300 * time.Millisecond,
		HumanPauseMax:    800 * time.Millisecond,
		SearchBoxTimeout: 30 * time.Second,
		SearchTimeout:    15 * time.Second,
		FilterTimeout:    10 * time.Second,
		InitialLoadDelay: 3 * time.Second,
		ListingEndpoint:  "/youtubei/v1/search",
	}
}

// ConfigFrom converts the application configuration
func ConfigFrom(config *common.Config) Config {
	defaults := NewDefaultConfig()
	s := config.Selectors
	c := config.Crawler

	result := Config{
		SearchBox:        s.SearchBox,
		SearchButton:     s.SearchButton,
		FilterToggle:     s.FilterMenuToggle,
		FilterOption:     s.FilterOption,
		KeyDelayMin:      common.ParseDuration(c.KeyDelayMin, defaults.KeyDelayMin),
		KeyDelayMax:      common.ParseDuration(c.KeyDelayMax, defaults.KeyDelayMax),
		HumanPauseMin:    common.ParseDuration(c.HumanPauseMin, defaults.HumanPauseMin),
		HumanPauseMax:    common.ParseDuration(c.HumanPauseMax, defaults.HumanPauseMax),
		SearchBoxTimeout: common.ParseDuration(config.Browser.ActionTimeout, defaults.SearchBoxTimeout),
		SearchTimeout:    common.ParseDuration(c.SearchTimeout, defaults.SearchTimeout),
		FilterTimeout:    common.ParseDuration(c.FilterTimeout, defaults.FilterTimeout),
		InitialLoadDelay: common.ParseDuration(c.SettleInterval, defaults.InitialLoadDelay),
		ListingEndpoint:  c.ListingEndpoint,
		PostsFromDate:    config.Input.PostsFromDate,
		MaxResults:       config.Input.MaxResults,
	}
	if result.ListingEndpoint == "" {
		result.ListingEndpoint = defaults.ListingEndpoint
	}
	return result
}
