package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/spectare/internal/interfaces"
	"github.com/ternarybob/spectare/internal/models"
)

// DatasetStorage implements the DatasetStorage interface for Badger
type DatasetStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDatasetStorage creates a new DatasetStorage instance
func NewDatasetStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DatasetStorage {
	return &DatasetStorage{
		db:     db,
		logger: logger,
	}
}

// SaveRecord upserts a video record. A full detail record replaces a
// simplified one for the same video, never the other way round.
func (s *DatasetStorage) SaveRecord(ctx context.Context, record *models.VideoRecord) error {
	if record.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	if record.ScrapedAt.IsZero() {
		record.ScrapedAt = time.Now()
	}

	if record.Simplified {
		var existing models.VideoRecord
		err := s.db.Store().Get(record.ID, &existing)
		if err == nil && !existing.Simplified {
			s.logger.Debug().Str("id", record.ID).Msg("Keeping detail record over listing record")
			return nil
		}
		if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("failed to read record: %w", err)
		}
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// SaveDebugRecord stores the failure summary of a request
func (s *DatasetStorage) SaveDebugRecord(ctx context.Context, record *models.DebugRecord) error {
	if record.ID == "" {
		return fmt.Errorf("debug record ID is required")
	}
	if record.FailedAt.IsZero() {
		record.FailedAt = time.Now()
	}
	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save debug record: %w", err)
	}
	return nil
}

// ListRecords returns every video record, oldest first
func (s *DatasetStorage) ListRecords(ctx context.Context) ([]*models.VideoRecord, error) {
	var records []models.VideoRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("ID").Ne("").SortBy("ScrapedAt")); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	result := make([]*models.VideoRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

// ListDebugRecords returns every debug record, oldest first
func (s *DatasetStorage) ListDebugRecords(ctx context.Context) ([]*models.DebugRecord, error) {
	var records []models.DebugRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("ID").Ne("").SortBy("FailedAt")); err != nil {
		return nil, fmt.Errorf("failed to list debug records: %w", err)
	}

	result := make([]*models.DebugRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

// CountRecords returns the number of stored video records
func (s *DatasetStorage) CountRecords(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.VideoRecord{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(count), nil
}
