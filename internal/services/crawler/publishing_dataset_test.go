package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/models"
)

type recordingSink struct {
	records []*models.VideoRecord
	debug   []*models.DebugRecord
	err     error
}

func (s *recordingSink) Publish(ctx context.Context, record *models.VideoRecord) error {
	s.records = append(s.records, record)
	return s.err
}

func (s *recordingSink) PublishDebug(ctx context.Context, record *models.DebugRecord) error {
	s.debug = append(s.debug, record)
	return s.err
}

func (s *recordingSink) Close() error { return nil }

func TestPublishingDataset_PublishesSavedRecords(t *testing.T) {
	ctx := context.Background()
	local := &memoryDataset{}
	sink := &recordingSink{}
	dataset := NewPublishingDataset(local, sink, arbor.NewLogger())

	require.NoError(t, dataset.SaveRecord(ctx, &models.VideoRecord{ID: "aaaaaaaaaaa"}))
	require.NoError(t, dataset.SaveDebugRecord(ctx, &models.DebugRecord{URL: "https://www.youtube.com/"}))

	assert.Len(t, local.records, 1)
	assert.Len(t, local.debug, 1)
	assert.Len(t, sink.records, 1)
	assert.Len(t, sink.debug, 1)

	count, err := dataset.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPublishingDataset_SinkFailureIsNotFatal(t *testing.T) {
	local := &memoryDataset{}
	sink := &recordingSink{err: errors.New("broker down")}
	dataset := NewPublishingDataset(local, sink, arbor.NewLogger())

	assert.NoError(t, dataset.SaveRecord(context.Background(), &models.VideoRecord{ID: "aaaaaaaaaaa"}))
	assert.Len(t, local.records, 1)
}

func TestPublishingDataset_NoSink(t *testing.T) {
	local := &memoryDataset{}
	assert.Same(t, local, NewPublishingDataset(local, nil, arbor.NewLogger()))
}
