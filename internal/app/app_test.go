package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/spectare/internal/common"
	"github.com/ternarybob/spectare/internal/models"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	config := common.NewDefaultConfig()
	config.Storage.Badger.Path = t.TempDir()
	config.Input.SearchKeywords = "lofi"

	application, err := New(config, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })
	return application
}

func TestNew_WiresPipeline(t *testing.T) {
	application := newTestApp(t)

	assert.NotNil(t, application.WorkQueue)
	assert.NotNil(t, application.Dataset)
	assert.NotNil(t, application.CrawlerService)
	assert.Nil(t, application.Dedup, "redis is opt-in")
	assert.Nil(t, application.Sink, "kafka is opt-in")
	assert.False(t, application.SessionPool.IsInitialized(), "browsers start on Run")
}

func TestNew_RedisUnavailable(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Storage.Badger.Path = t.TempDir()
	config.Redis.Enabled = true
	config.Redis.Address = "127.0.0.1:1"

	_, err := New(config, arbor.NewLogger())
	assert.ErrorContains(t, err, "redis dedup unavailable")
}

func TestExport_WritesJSONLines(t *testing.T) {
	application := newTestApp(t)
	ctx := context.Background()

	scrapedAt := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, application.Dataset.SaveRecord(ctx, &models.VideoRecord{ID: "aaaaaaaaaaa", Title: "first", ScrapedAt: scrapedAt}))
	require.NoError(t, application.Dataset.SaveRecord(ctx, &models.VideoRecord{ID: "bbbbbbbbbbb", Title: "second", ScrapedAt: scrapedAt.Add(time.Minute)}))

	var out bytes.Buffer
	count, err := application.Export(ctx, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var titles []string
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var record models.VideoRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		titles = append(titles, record.Title)
	}
	assert.Equal(t, []string{"first", "second"}, titles)
}

func TestExport_Empty(t *testing.T) {
	application := newTestApp(t)

	var out bytes.Buffer
	count, err := application.Export(context.Background(), &out)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, out.String())
}
