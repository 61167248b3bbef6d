package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	value, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, value, "Absent key should yield a nil value")

	require.NoError(t, store.Set(ctx, "queue", []byte("abc")))
	value, err = store.Get(ctx, "queue")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), value)
	assert.Equal(t, 1, store.Len())

	// Mutating the returned slice must not affect the stored value.
	value[0] = 'z'
	again, err := store.Get(ctx, "queue")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again, "Stored value should be isolated from callers")

	require.NoError(t, store.Remove(ctx, "queue"))
	value, err = store.Get(ctx, "queue")
	require.NoError(t, err)
	assert.Nil(t, value)
	assert.Equal(t, 0, store.Len())

	require.NoError(t, store.Close())
}
