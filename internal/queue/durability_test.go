package queue

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkrelay/internal/domain"
	"linkrelay/internal/storage"
)

// TestStore_SurvivesReopen runs the queue over a real BadgerDB directory and
// verifies the queue contents survive a close/reopen cycle.
func TestStore_SurvivesReopen(t *testing.T) {
	tempDir := t.TempDir()
	ctx := context.Background()

	testLogger := logrus.New()
	testLogger.SetLevel(logrus.ErrorLevel)

	kv, err := storage.NewBadgerStore(tempDir, testLogger)
	require.NoError(t, err)

	q := NewStore(kv, testLogger)
	share := q.Enqueue(ctx, domain.ShareRequest{
		URL:    "https://v.example/persisted",
		Source: "share-extension",
		TripID: "trip-1",
	})
	require.NoError(t, q.MarkRetryAttempt(ctx, share.ID, "timed out"))

	require.NoError(t, kv.Close())

	kv, err = storage.NewBadgerStore(tempDir, testLogger)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, kv.Close())
	}()

	q = NewStore(kv, testLogger)
	got, err := q.ShareByID(ctx, share.ID)
	require.NoError(t, err)
	require.NotNil(t, got, "Queued share must survive a restart")
	assert.Equal(t, "https://v.example/persisted", got.URL)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "timed out", got.Error)
	require.NotNil(t, got.LastRetryAt)
}
