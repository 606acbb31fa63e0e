package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/saiset-co/sai-cache/types"
)

type nopLogger struct{}

func (nopLogger) Error(string, ...zap.Field)                   {}
func (nopLogger) ErrorWithErrStack(string, error, ...zap.Field) {}
func (nopLogger) Warn(string, ...zap.Field)                    {}
func (nopLogger) Info(string, ...zap.Field)                    {}
func (nopLogger) Debug(string, ...zap.Field)                   {}
func (nopLogger) Log(zapcore.Level, string, ...zap.Field)      {}

func newMemory(t *testing.T, maxBytes int64) types.StorageMedium {
	t.Helper()

	medium, err := NewMemoryMedium(context.Background(), nopLogger{}, &types.StorageConfig{
		Type:   "memory",
		Config: &MemoryConfig{MaxBytes: maxBytes},
	})
	require.NoError(t, err)
	require.NoError(t, medium.Start())

	return medium
}

func TestMemoryMediumSetGet(t *testing.T) {
	medium := newMemory(t, -1)

	require.NoError(t, medium.Set("key", "value"))

	value, err := medium.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)
}

func TestMemoryMediumGetMissing(t *testing.T) {
	medium := newMemory(t, -1)

	_, err := medium.Get("missing")
	assert.True(t, types.IsError(err, types.ErrStorageKeyNotFound))
}

func TestMemoryMediumCapacity(t *testing.T) {
	medium := newMemory(t, 20)

	require.NoError(t, medium.Set("abc", "0123456789"))

	err := medium.Set("def", "0123456789")
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrCapacityExceeded))

	// Freeing space makes the write possible again.
	require.NoError(t, medium.Remove("abc"))
	require.NoError(t, medium.Set("def", "0123456789"))
}

func TestMemoryMediumOverwriteAccounting(t *testing.T) {
	medium := newMemory(t, 20)

	require.NoError(t, medium.Set("k", "0123456789"))

	// Replacing a value only charges the difference; a same-size
	// overwrite always fits.
	require.NoError(t, medium.Set("k", "9876543210"))
	require.NoError(t, medium.Set("k", "short"))
}

func TestMemoryMediumKeysByPrefix(t *testing.T) {
	medium := newMemory(t, -1)

	require.NoError(t, medium.Set("app-a", "1"))
	require.NoError(t, medium.Set("app-b", "2"))
	require.NoError(t, medium.Set("other", "3"))

	keys, err := medium.Keys("app-")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"app-a", "app-b"}, keys)
}

func TestMemoryMediumRemoveMissing(t *testing.T) {
	medium := newMemory(t, -1)

	assert.NoError(t, medium.Remove("missing"))
}

func TestMemoryMediumEmptyKey(t *testing.T) {
	medium := newMemory(t, -1)

	assert.True(t, types.IsError(medium.Set("", "v"), types.ErrStorageKeyEmpty))

	_, err := medium.Get("")
	assert.True(t, types.IsError(err, types.ErrStorageKeyEmpty))
}

func TestMemoryMediumStopClears(t *testing.T) {
	medium := newMemory(t, -1)

	require.NoError(t, medium.Set("key", "value"))
	require.NoError(t, medium.Stop())
	require.NoError(t, medium.Start())

	_, err := medium.Get("key")
	assert.True(t, types.IsError(err, types.ErrStorageKeyNotFound))
}
