package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/common"
	"github.com/ternarybob/spectare/internal/interfaces"
)

// Manager owns the database connection and the storages built on it
type Manager struct {
	db      *BadgerDB
	dataset interfaces.DatasetStorage
	logger  arbor.ILogger
}

// NewManager opens the database and builds the dataset storage
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:      db,
		dataset: NewDatasetStorage(db, logger),
		logger:  logger,
	}

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

// DB returns the shared connection
func (m *Manager) DB() *BadgerDB {
	return m.db
}

// DatasetStorage returns the dataset storage interface
func (m *Manager) DatasetStorage() interfaces.DatasetStorage {
	return m.dataset
}

// Close closes the database
func (m *Manager) Close() error {
	if m.db != nil {
		m.logger.Debug().Msg("Closing Badger storage")
		return m.db.Close()
	}
	return nil
}
