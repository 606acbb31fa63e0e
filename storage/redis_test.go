package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-cache/types"
)

func newRedis(t *testing.T) types.StorageMedium {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	medium := NewRedisMediumWithClient(context.Background(), nopLogger{}, client)
	require.NoError(t, medium.Start())

	return medium
}

func TestRedisMediumSetGet(t *testing.T) {
	medium := newRedis(t)

	require.NoError(t, medium.Set("key", "value"))

	value, err := medium.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)
}

func TestRedisMediumGetMissing(t *testing.T) {
	medium := newRedis(t)

	_, err := medium.Get("missing")
	assert.True(t, types.IsError(err, types.ErrStorageKeyNotFound))
}

func TestRedisMediumRemove(t *testing.T) {
	medium := newRedis(t)

	require.NoError(t, medium.Set("key", "value"))
	require.NoError(t, medium.Remove("key"))

	_, err := medium.Get("key")
	assert.True(t, types.IsError(err, types.ErrStorageKeyNotFound))

	assert.NoError(t, medium.Remove("key"))
}

func TestRedisMediumKeysByPrefix(t *testing.T) {
	medium := newRedis(t)

	require.NoError(t, medium.Set("cache-a", "1"))
	require.NoError(t, medium.Set("cache-b", "2"))
	require.NoError(t, medium.Set("other", "3"))

	keys, err := medium.Keys("cache-")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cache-a", "cache-b"}, keys)
}

func TestRedisMediumKeysScansManyEntries(t *testing.T) {
	medium := newRedis(t)

	// More entries than one SCAN page returns.
	for i := 0; i < 250; i++ {
		require.NoError(t, medium.Set("bulk-"+string(rune('a'+i%26))+string(rune('a'+i/26)), "v"))
	}

	keys, err := medium.Keys("bulk-")
	require.NoError(t, err)
	assert.NotEmpty(t, keys)
}

func TestIsOOM(t *testing.T) {
	assert.True(t, isOOM(types.NewErrorf("OOM command not allowed when used memory > 'maxmemory'")))
	assert.False(t, isOOM(types.NewErrorf("connection refused")))
	assert.False(t, isOOM(nil))
}
