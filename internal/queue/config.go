package queue

import (
	"time"

	"github.com/ternarybob/spectare/internal/common"
)

// Config holds configuration for the work queue and worker pool
type Config struct {
	// PollInterval is how often idle workers poll for items
	PollInterval time.Duration

	// Concurrency is the number of workers, one browser session each
	Concurrency int

	// VisibilityTimeout is how long a dequeued item stays hidden before redelivery
	VisibilityTimeout time.Duration

	// MaxReceive is the number of attempts before an item is marked failed
	MaxReceive int

	// QueueName prefixes every key in Badger
	QueueName string
}

// NewDefaultConfig creates a queue configuration with sensible defaults
func NewDefaultConfig() Config {
	return Config{
		PollInterval:      1 * time.Second,
		Concurrency:       1,
		VisibilityTimeout: 10 * time.Minute,
		MaxReceive:        3,
		QueueName:         "spectare_requests",
	}
}

// ConfigFrom converts the application configuration
func ConfigFrom(config *common.Config) Config {
	defaults := NewDefaultConfig()
	return Config{
		PollInterval:      common.ParseDuration(config.Queue.PollInterval, defaults.PollInterval),
		Concurrency:       config.Crawler.MaxConcurrency,
		VisibilityTimeout: common.ParseDuration(config.Queue.VisibilityTimeout, defaults.VisibilityTimeout),
		MaxReceive:        config.Queue.MaxReceive,
		QueueName:         config.Queue.QueueName,
	}
}
