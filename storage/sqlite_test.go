package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-cache/types"
)

func newSQLite(t *testing.T, maxBytes int64) types.StorageMedium {
	t.Helper()

	medium, err := NewSQLiteMedium(context.Background(), nopLogger{}, &types.StorageConfig{
		Type: "sqlite",
		Config: &SQLiteConfig{
			Path:     filepath.Join(t.TempDir(), "kv.db"),
			MaxBytes: maxBytes,
		},
	})
	require.NoError(t, err)
	require.NoError(t, medium.Start())

	t.Cleanup(func() {
		_ = medium.Stop()
	})

	return medium
}

func TestSQLiteMediumSetGet(t *testing.T) {
	medium := newSQLite(t, 0)

	require.NoError(t, medium.Set("key", "value"))

	value, err := medium.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)
}

func TestSQLiteMediumGetMissing(t *testing.T) {
	medium := newSQLite(t, 0)

	_, err := medium.Get("missing")
	assert.True(t, types.IsError(err, types.ErrStorageKeyNotFound))
}

func TestSQLiteMediumUpsert(t *testing.T) {
	medium := newSQLite(t, 0)

	require.NoError(t, medium.Set("key", "first"))
	require.NoError(t, medium.Set("key", "second"))

	value, err := medium.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "second", value)
}

func TestSQLiteMediumCapacity(t *testing.T) {
	medium := newSQLite(t, 20)

	require.NoError(t, medium.Set("abc", "0123456789"))

	err := medium.Set("def", "0123456789")
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrCapacityExceeded))

	// An overwrite of the existing key is not charged twice.
	require.NoError(t, medium.Set("abc", "9876543210"))
}

func TestSQLiteMediumRemoveAndKeys(t *testing.T) {
	medium := newSQLite(t, 0)

	require.NoError(t, medium.Set("pre-a", "1"))
	require.NoError(t, medium.Set("pre-b", "2"))
	require.NoError(t, medium.Set("other", "3"))

	keys, err := medium.Keys("pre-")
	require.NoError(t, err)
	assert.Equal(t, []string{"pre-a", "pre-b"}, keys)

	require.NoError(t, medium.Remove("pre-a"))

	keys, err = medium.Keys("pre-")
	require.NoError(t, err)
	assert.Equal(t, []string{"pre-b"}, keys)
}
