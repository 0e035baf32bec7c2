package pagination

import (
	"time"

	"github.com/ternarybob/spectare/internal/common"
)

// Selectors locate listing items and the fields a simplified record reads
type Selectors struct {
	Section     string
	Item        string
	Link        string
	Title       string
	Duration    string
	ChannelName string
	ChannelURL  string
	ViewCount   string
	Date        string
}

// Config holds the pagination engine settings
type Config struct {
	Selectors         Selectors
	ItemDelayMin      time.Duration
	ItemDelayMax      time.Duration
	SettleInterval    time.Duration
	HeartbeatInterval time.Duration
	// ScrollStep is the growth scroll in pixels; 0 scrolls one viewport
	ScrollStep int
	// Simplified stores listing records instead of enqueueing detail pages
	Simplified bool
}

// NewDefaultConfig returns the engine defaults
func NewDefaultConfig() Config {
	s := common.NewDefaultConfig().Selectors
	return Config{
		Selectors: Selectors{
			Section:     s.Section,
			Item:        s.Item,
			Link:        s.ItemLink,
			Title:       s.ItemTitle,
			Duration:    s.ItemDuration,
			ChannelName: s.ItemChannelName,
			ChannelURL:  s.ItemChannelURL,
			ViewCount:   s.ItemViewCount,
			Date:        s.ItemDate,
		},
		ItemDelayMin:      300 * time.Millisecond,
		ItemDelayMax:      800 * time.Millisecond,
		SettleInterval:    3 * time.Second,
		HeartbeatInterval: 60 * time.Second,
	}
}

// ConfigFrom converts the application configuration
func ConfigFrom(config *common.Config) Config {
	defaults := NewDefaultConfig()
	s := config.Selectors
	c := config.Crawler

	return Config{
		Selectors: Selectors{
			Section:     s.Section,
			Item:        s.Item,
			Link:        s.ItemLink,
			Title:       s.ItemTitle,
			Duration:    s.ItemDuration,
			ChannelName: s.ItemChannelName,
			ChannelURL:  s.ItemChannelURL,
			ViewCount:   s.ItemViewCount,
			Date:        s.ItemDate,
		},
		ItemDelayMin:      common.ParseDuration(c.ItemDelayMin, defaults.ItemDelayMin),
		ItemDelayMax:      common.ParseDuration(c.ItemDelayMax, defaults.ItemDelayMax),
		SettleInterval:    common.ParseDuration(c.SettleInterval, defaults.SettleInterval),
		HeartbeatInterval: common.ParseDuration(c.HeartbeatInterval, defaults.HeartbeatInterval),
		Simplified:        config.Input.SimplifiedInformation,
	}
}
