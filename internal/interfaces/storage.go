package interfaces

import (
	"context"

	"github.com/ternarybob/spectare/internal/models"
)

// DatasetStorage persists scraped records
type DatasetStorage interface {
	SaveRecord(ctx context.Context, record *models.VideoRecord) error
	SaveDebugRecord(ctx context.Context, record *models.DebugRecord) error
	ListRecords(ctx context.Context) ([]*models.VideoRecord, error)
	ListDebugRecords(ctx context.Context) ([]*models.DebugRecord, error)
	CountRecords(ctx context.Context) (int, error)
}

// RecordSink streams records to an external consumer
type RecordSink interface {
	Publish(ctx context.Context, record *models.VideoRecord) error
	PublishDebug(ctx context.Context, record *models.DebugRecord) error
	Close() error
}
