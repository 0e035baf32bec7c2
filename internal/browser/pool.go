package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/interfaces"
)

// session is one browser process with a single tab
type session struct {
	driver        *ChromeDriver
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	createdAt     time.Time
}

func (s *session) close() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// SessionPool keeps one browser session per worker slot. A retired session
// is closed and replaced so the next item starts with fresh cookies and
// fingerprint state.
type SessionPool struct {
	config      Config
	logger      arbor.ILogger
	mu          sync.Mutex
	sessions    []*session
	retired     int
	initialized bool
}

var _ interfaces.SessionPool = (*SessionPool)(nil)

// NewSessionPool creates an empty pool
func NewSessionPool(config Config, logger arbor.ILogger) *SessionPool {
	return &SessionPool{
		config: config,
		logger: logger,
	}
}

// Init opens size sessions up front. Slots that fail to start are retried
// lazily on Acquire; Init fails only when no session starts at all.
func (p *SessionPool) Init(ctx context.Context, size int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return fmt.Errorf("session pool already initialized")
	}
	if size <= 0 {
		return fmt.Errorf("pool size must be greater than 0, got: %d", size)
	}
	if size > 20 {
		p.logger.Warn().
			Int("size", size).
			Msg("Large session pool size detected - this may consume significant memory")
	}

	p.logger.Info().
		Int("pool_size", size).
		Bool("headless", p.config.Headless).
		Bool("block_images", p.config.BlockImages).
		Msg("Initializing browser session pool")

	p.sessions = make([]*session, size)
	successCount := 0
	var lastErr error
	for i := 0; i < size; i++ {
		s, err := p.newSession(ctx, i)
		if err != nil {
			lastErr = err
			p.logger.Warn().
				Err(err).
				Int("slot", i).
				Msg("Failed to create browser session")
			continue
		}
		p.sessions[i] = s
		successCount++
	}

	if successCount == 0 {
		p.sessions = nil
		return fmt.Errorf("failed to create any browser session, last error: %w", lastErr)
	}

	p.initialized = true
	p.logger.Info().
		Int("sessions_created", successCount).
		Int("requested", size).
		Msg("Browser session pool initialized")

	return nil
}

// newSession starts a browser and runs the startup test
func (p *SessionPool) newSession(ctx context.Context, slot int) (*session, error) {
	startTime := time.Now()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(p.config)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	s := &session{browserCancel: browserCancel, allocCancel: allocCancel, createdAt: startTime}

	testTimeout := p.config.NavigationTimeout
	if testTimeout <= 0 {
		testTimeout = 30 * time.Second
	}
	testCtx, testCancel := context.WithTimeout(browserCtx, testTimeout)
	defer testCancel()
	stop := context.AfterFunc(ctx, testCancel)
	defer stop()

	var title string
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank"), chromedp.Title(&title)); err != nil {
		s.close()
		return nil, fmt.Errorf("browser session failed startup test: %w", err)
	}

	driver, err := NewChromeDriver(browserCtx, p.config, p.logger)
	if err != nil {
		s.close()
		return nil, err
	}
	s.driver = driver

	p.logger.Debug().
		Int("slot", slot).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser session created and tested")

	return s, nil
}

// Acquire returns the driver for slot, starting the session if needed
func (p *SessionPool) Acquire(ctx context.Context, slot int) (interfaces.Driver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil, fmt.Errorf("session pool not initialized")
	}
	if slot < 0 || slot >= len(p.sessions) {
		return nil, fmt.Errorf("slot %d out of range (pool size %d)", slot, len(p.sessions))
	}

	if p.sessions[slot] == nil {
		s, err := p.newSession(ctx, slot)
		if err != nil {
			return nil, err
		}
		p.sessions[slot] = s
	}
	return p.sessions[slot].driver, nil
}

// Retire closes the session in slot and opens a replacement
func (p *SessionPool) Retire(ctx context.Context, slot int) (interfaces.Driver, error) {
	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return nil, fmt.Errorf("session pool not initialized")
	}
	if slot < 0 || slot >= len(p.sessions) {
		p.mu.Unlock()
		return nil, fmt.Errorf("slot %d out of range (pool size %d)", slot, len(p.sessions))
	}
	old := p.sessions[slot]
	p.sessions[slot] = nil
	p.retired++
	p.mu.Unlock()

	if old != nil {
		old.close()
		p.logger.Info().
			Int("slot", slot).
			Dur("age", time.Since(old.createdAt)).
			Msg("Browser session retired")
	}

	return p.Acquire(ctx, slot)
}

// Shutdown closes every session
func (p *SessionPool) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		p.logger.Debug().Msg("Session pool already shut down or never initialized")
		return nil
	}

	startTime := time.Now()
	count := len(p.sessions)

	p.logger.Info().
		Int("session_count", count).
		Msg("Shutting down browser session pool")

	done := make(chan struct{})
	go func() {
		p.cleanupSessions()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		p.logger.Warn().
			Int("session_count", count).
			Msg("Session pool shutdown timed out")
	}

	p.initialized = false
	p.logger.Info().
		Int("sessions_shutdown", count).
		Dur("shutdown_time", time.Since(startTime)).
		Msg("Browser session pool shut down")

	return nil
}

// cleanupSessions closes all sessions (must be called with mutex held)
func (p *SessionPool) cleanupSessions() {
	for i, s := range p.sessions {
		if s == nil {
			continue
		}
		s.close()
		p.logger.Debug().
			Int("slot", i).
			Msg("Browser session closed")
	}
	p.sessions = nil
}

// Stats returns statistics about the pool
func (p *SessionPool) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := 0
	for _, s := range p.sessions {
		if s != nil {
			active++
		}
	}

	return map[string]interface{}{
		"size":            len(p.sessions),
		"active_sessions": active,
		"retired":         p.retired,
		"initialized":     p.initialized,
	}
}

// IsInitialized returns whether the pool has been initialized
func (p *SessionPool) IsInitialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}
