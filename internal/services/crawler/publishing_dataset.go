package crawler

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/interfaces"
	"github.com/ternarybob/spectare/internal/models"
)

// PublishingDataset stores records locally and streams every stored record
// to a sink. The local dataset is authoritative; a sink failure is logged
// and the save still succeeds.
type PublishingDataset struct {
	interfaces.DatasetStorage
	sink   interfaces.RecordSink
	logger arbor.ILogger
}

var _ interfaces.DatasetStorage = (*PublishingDataset)(nil)

// NewPublishingDataset wraps dataset. A nil sink returns dataset unchanged.
func NewPublishingDataset(dataset interfaces.DatasetStorage, sink interfaces.RecordSink, logger arbor.ILogger) interfaces.DatasetStorage {
	if sink == nil {
		return dataset
	}
	return &PublishingDataset{
		DatasetStorage: dataset,
		sink:           sink,
		logger:         logger,
	}
}

func (d *PublishingDataset) SaveRecord(ctx context.Context, record *models.VideoRecord) error {
	if err := d.DatasetStorage.SaveRecord(ctx, record); err != nil {
		return err
	}
	if err := d.sink.Publish(ctx, record); err != nil {
		d.logger.Warn().Err(err).Str("id", record.ID).Msg("Failed to publish record")
	}
	return nil
}

func (d *PublishingDataset) SaveDebugRecord(ctx context.Context, record *models.DebugRecord) error {
	if err := d.DatasetStorage.SaveDebugRecord(ctx, record); err != nil {
		return err
	}
	if err := d.sink.PublishDebug(ctx, record); err != nil {
		d.logger.Warn().Err(err).Str("url", record.URL).Msg("Failed to publish debug record")
	}
	return nil
}
