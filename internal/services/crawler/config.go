package crawler

import (
	"time"

	"github.com/ternarybob/spectare/internal/classifier"
	"github.com/ternarybob/spectare/internal/common"
	"github.com/ternarybob/spectare/internal/queue"
)

// Config holds the crawl run settings
type Config struct {
	// Keywords seed one search each; StartURLs are enqueued as classified
	Keywords  []string
	StartURLs []string

	// HomeURL is where keyword seeds open before typing the search
	HomeURL string

	// NavigationRate is navigations per second per session (0 = unlimited)
	NavigationRate float64

	// RetryBackoff is the requeue delay after the first failed attempt
	RetryBackoff time.Duration

	// ProgressInterval is how often queue progress is logged (0 = never)
	ProgressInterval time.Duration

	Queue queue.Config
}

// NewDefaultConfig creates a crawler configuration with sensible defaults
func NewDefaultConfig() Config {
	return Config{
		HomeURL:          "https://" + classifier.PlatformHost + "/",
		NavigationRate:   0.5,
		RetryBackoff:     5 * time.Second,
		ProgressInterval: time.Minute,
		Queue:            queue.NewDefaultConfig(),
	}
}

// ConfigFrom converts the application configuration
func ConfigFrom(config *common.Config) Config {
	defaults := NewDefaultConfig()
	return Config{
		Keywords:         config.Keywords(),
		StartURLs:        config.Input.StartURLs,
		HomeURL:          defaults.HomeURL,
		NavigationRate:   config.Crawler.NavigationRate,
		RetryBackoff:     common.ParseDuration(config.Crawler.RetryBackoff, defaults.RetryBackoff),
		ProgressInterval: common.ParseDuration(config.Crawler.HeartbeatInterval, defaults.ProgressInterval),
		Queue:            queue.ConfigFrom(config),
	}
}
