package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/common"
	"github.com/ternarybob/spectare/internal/interfaces"
	"github.com/ternarybob/spectare/internal/models"
)

// Monitor periodically logs queue progress while a run is active
type Monitor struct {
	queue    interfaces.WorkQueue
	interval time.Duration
	logger   arbor.ILogger
}

// NewMonitor creates a monitor reporting every interval
func NewMonitor(queue interfaces.WorkQueue, interval time.Duration, logger arbor.ILogger) *Monitor {
	return &Monitor{
		queue:    queue,
		interval: interval,
		logger:   logger,
	}
}

// StartMonitoring reports until ctx is cancelled. A zero interval disables it.
func (m *Monitor) StartMonitoring(ctx context.Context) {
	if m.interval <= 0 {
		return
	}

	common.SafeGoWithContext(ctx, m.logger, "queue-monitor", func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		startTime := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.report(ctx, time.Since(startTime))
			}
		}
	})
}

func (m *Monitor) report(ctx context.Context, elapsed time.Duration) {
	stats, err := m.queue.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn().Err(err).Msg("Failed to read queue stats")
		}
		return
	}

	m.logger.Info().
		Int("pending", stats.Pending).
		Int("in_flight", stats.InFlight).
		Int("done", stats.Done).
		Int("failed", stats.Failed).
		Dur("elapsed", elapsed.Round(time.Second)).
		Msg(FormatProgress(stats))
}

// FormatProgress renders stats as "66 pending, 1 running, 41 done, 0 failed"
func FormatProgress(stats models.QueueStats) string {
	return fmt.Sprintf("%d pending, %d running, %d done, %d failed",
		stats.Pending,
		stats.InFlight,
		stats.Done,
		stats.Failed)
}
