package badger

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/spectare/internal/common"
)

// BadgerDB is the single Badger database of a crawl. The work queue writes raw
// keys into it and the dataset stores badgerhold types next to them.
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.BadgerConfig
}

// NewBadgerDB opens the crawl database. An existing directory is resumed
// unless reset_on_startup is set.
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	resumed := false
	if _, err := os.Stat(config.Path); err == nil {
		if config.ResetOnStartup {
			discardRun(logger, config.Path)
		} else {
			resumed = true
		}
	}

	if err := os.MkdirAll(config.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := badgerhold.Open(storeOptions(config.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", config.Path, err)
	}

	logger.Debug().
		Str("path", config.Path).
		Bool("resumed", resumed).
		Msg("Badger database initialized")

	return &BadgerDB{
		store:  store,
		logger: logger,
		config: config,
	}, nil
}

// storeOptions keeps one version per key; queue items are rewritten on every
// state change and old versions are never read
func storeOptions(path string) badgerhold.Options {
	options := badgerhold.DefaultOptions
	options.Options = badger.DefaultOptions(path).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	return options
}

// discardRun removes the previous crawl, queue and dataset alike
func discardRun(logger arbor.ILogger, path string) {
	logger.Debug().Str("path", path).Msg("Deleting existing database (reset_on_startup=true)")
	if err := os.RemoveAll(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to delete database directory")
	}
}

// NewBadgerDBFromStore wraps an already open store
func NewBadgerDBFromStore(store *badgerhold.Store, logger arbor.ILogger) *BadgerDB {
	return &BadgerDB{store: store, logger: logger}
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Badger returns the raw database for key-level access
func (b *BadgerDB) Badger() *badger.DB {
	return b.store.Badger()
}

func (b *BadgerDB) Close() error {
	if b.store == nil {
		return nil
	}
	return b.store.Close()
}
