package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharePatch_Apply(t *testing.T) {
	share := QueuedShare{
		ID:         "s1",
		URL:        "https://v.example/1",
		Source:     "clipboard",
		CreatedAt:  1000,
		RetryCount: 2,
		TripID:     "trip-1",
		Notes:      "old",
	}

	source := "deep-link"
	notes := "new"
	SharePatch{Source: &source, Notes: &notes}.Apply(&share)

	assert.Equal(t, "deep-link", share.Source)
	assert.Equal(t, "new", share.Notes)
	// Nil patch fields and queue bookkeeping are untouched.
	assert.Equal(t, "trip-1", share.TripID)
	assert.Equal(t, 2, share.RetryCount)
	assert.Equal(t, int64(1000), share.CreatedAt)
}

// TestQueuedShare_PersistedFieldNames pins the JSON layout of the stored
// blob, which external consumers (migration, debugging) read directly.
func TestQueuedShare_PersistedFieldNames(t *testing.T) {
	last := int64(2000)
	raw, err := json.Marshal(QueuedShare{
		ID:          "s1",
		URL:         "https://v.example/1",
		Source:      "clipboard",
		CreatedAt:   1000,
		RetryCount:  1,
		LastRetryAt: &last,
		Error:       "timed out",
		TripID:      "trip-1",
	})
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"id", "url", "source", "createdAt", "retryCount", "lastRetryAt", "error", "tripId"} {
		assert.Contains(t, fields, key)
	}
}
