package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/browser"
	"github.com/ternarybob/spectare/internal/common"
	"github.com/ternarybob/spectare/internal/interfaces"
	"github.com/ternarybob/spectare/internal/kafka"
	"github.com/ternarybob/spectare/internal/queue"
	"github.com/ternarybob/spectare/internal/services/crawler"
	"github.com/ternarybob/spectare/internal/services/extractor"
	"github.com/ternarybob/spectare/internal/services/listing"
	"github.com/ternarybob/spectare/internal/services/pagination"
	badgerstore "github.com/ternarybob/spectare/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	StorageManager *badgerstore.Manager
	Dataset        interfaces.DatasetStorage

	// Work queue and its optional cross-process dedup
	WorkQueue *queue.WorkQueue
	Dedup     *queue.RedisDedup

	// Optional record stream
	Sink *kafka.Producer

	// Browser sessions, started on Run
	SessionPool *browser.SessionPool

	// Crawl pipeline
	Engine         *pagination.Engine
	Controller     *listing.Controller
	Extractor      *extractor.Extractor
	CrawlerService *crawler.Service
}

// New initializes the application with all dependencies. Browsers are not
// started until Run, so read-only commands stay cheap.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initQueue(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize work queue: %w", err)
	}

	app.initSink()
	app.initServices()

	logger.Info().
		Str("database", cfg.Storage.Badger.Path).
		Bool("redis_dedup", app.Dedup != nil).
		Bool("kafka_sink", app.Sink != nil).
		Bool("simplified", cfg.Input.SimplifiedInformation).
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) initDatabase() error {
	manager, err := badgerstore.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.StorageManager = manager
	return nil
}

func (a *App) initQueue() error {
	var dedup interfaces.DedupStore
	if a.Config.Redis.Enabled {
		redisDedup := queue.NewRedisDedup(
			a.Config.Redis.Address,
			a.Config.Redis.Password,
			a.Config.Redis.DB,
			a.Config.Redis.KeyPrefix,
			common.ParseDuration(a.Config.Redis.TTL, 0),
		)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisDedup.Ping(ctx); err != nil {
			redisDedup.Close()
			return fmt.Errorf("redis dedup unavailable at %s: %w", a.Config.Redis.Address, err)
		}

		// A reset database starts a new crawl, so the old claims go with it
		if a.Config.Storage.Badger.ResetOnStartup {
			removed, err := redisDedup.Reset(ctx)
			if err != nil {
				redisDedup.Close()
				return fmt.Errorf("failed to reset redis dedup: %w", err)
			}
			a.Logger.Info().Int("removed", removed).Msg("Redis dedup claims cleared (reset_on_startup=true)")
		}

		a.Dedup = redisDedup
		dedup = redisDedup
		a.Logger.Info().Str("address", a.Config.Redis.Address).Msg("Redis dedup store connected")
	}

	workQueue, err := queue.NewWorkQueue(a.StorageManager.DB().Badger(), queue.ConfigFrom(a.Config), dedup, a.Logger)
	if err != nil {
		return err
	}
	a.WorkQueue = workQueue
	return nil
}

func (a *App) initSink() {
	a.Dataset = a.StorageManager.DatasetStorage()
	if !a.Config.Kafka.Enabled {
		return
	}

	a.Sink = kafka.NewProducer(a.Config.Kafka.Brokers, a.Config.Kafka.Topic, a.Config.Kafka.DebugTopic)
	a.Dataset = crawler.NewPublishingDataset(a.Dataset, a.Sink, a.Logger)

	a.Logger.Info().
		Strs("brokers", a.Config.Kafka.Brokers).
		Str("topic", a.Config.Kafka.Topic).
		Msg("Kafka sink enabled")
}

func (a *App) initServices() {
	a.SessionPool = browser.NewSessionPool(browser.ConfigFrom(a.Config), a.Logger)

	a.Engine = pagination.NewEngine(pagination.ConfigFrom(a.Config), a.WorkQueue, a.Dataset, a.Logger)
	a.Controller = listing.NewController(listing.ConfigFrom(a.Config), a.Engine, a.Logger)
	a.Extractor = extractor.NewExtractor(extractor.ConfigFrom(a.Config), a.Logger)

	a.CrawlerService = crawler.NewService(
		crawler.ConfigFrom(a.Config),
		a.WorkQueue,
		a.SessionPool,
		a.Controller,
		a.Extractor,
		a.Dataset,
		a.Logger,
	)
}

// Run starts the browser sessions and crawls until the queue settles or ctx
// is cancelled
func (a *App) Run(ctx context.Context) (crawler.RunStats, error) {
	if err := a.SessionPool.Init(ctx, a.Config.Crawler.MaxConcurrency); err != nil {
		return crawler.RunStats{}, fmt.Errorf("failed to start browser sessions: %w", err)
	}
	return a.CrawlerService.Run(ctx)
}

// Export writes every stored record as one JSON object per line
func (a *App) Export(ctx context.Context, w io.Writer) (int, error) {
	records, err := a.Dataset.ListRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list records: %w", err)
	}

	encoder := json.NewEncoder(w)
	for i, record := range records {
		if err := encoder.Encode(record); err != nil {
			return i, fmt.Errorf("failed to write record %s: %w", record.ID, err)
		}
	}
	return len(records), nil
}

// Close releases every component that was started
func (a *App) Close() error {
	if a.SessionPool != nil {
		if err := a.SessionPool.Shutdown(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to shut down browser sessions")
		}
	}

	if a.Sink != nil {
		if err := a.Sink.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close Kafka sink")
		}
	}

	if a.Dedup != nil {
		if err := a.Dedup.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
			return err
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
