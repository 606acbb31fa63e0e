package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/saiset-co/sai-cache/storage"
	"github.com/saiset-co/sai-cache/types"
)

type nopLogger struct{}

func (nopLogger) Error(string, ...zap.Field)                   {}
func (nopLogger) ErrorWithErrStack(string, error, ...zap.Field) {}
func (nopLogger) Warn(string, ...zap.Field)                    {}
func (nopLogger) Info(string, ...zap.Field)                    {}
func (nopLogger) Debug(string, ...zap.Field)                   {}
func (nopLogger) Log(zapcore.Level, string, ...zap.Field)      {}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestMedium(t *testing.T, maxBytes int64) types.StorageMedium {
	t.Helper()

	medium, err := storage.NewMemoryMedium(context.Background(), nopLogger{}, &types.StorageConfig{
		Type:   "memory",
		Config: &storage.MemoryConfig{MaxBytes: maxBytes},
	})
	require.NoError(t, err)
	require.NoError(t, medium.Start())

	return medium
}

func newTestCache(t *testing.T, medium types.StorageMedium, bucket string, clock *fakeClock) *Cache {
	t.Helper()

	c := NewCache(nopLogger{}, medium, JSONCodec{}, &types.CacheConfig{
		Enabled:    true,
		Prefix:     "t-",
		Bucket:     bucket,
		Resolution: types.Duration(time.Minute),
	})
	c.probe = &Probe{}
	c.now = clock.Now

	require.NoError(t, c.Start())
	return c
}

func TestCacheSetGet(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)
	c := newTestCache(t, medium, "b", clock)

	c.Set("user", "alice", 10*time.Minute)

	value, ok := c.Get("user")
	require.True(t, ok)
	assert.Equal(t, "alice", value)
}

func TestCacheGetAbsent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)
	c := newTestCache(t, medium, "b", clock)

	_, ok := c.Get("nothing")
	assert.False(t, ok)

	// Asking again must not change the answer.
	_, ok = c.Get("nothing")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)
	c := newTestCache(t, medium, "b", clock)

	c.Set("session", "token", 5*time.Minute)

	clock.Advance(6 * time.Minute)

	_, ok := c.Get("session")
	assert.False(t, ok)

	// The expired entry and its record are gone from the medium.
	keys, err := medium.Keys("t-b")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCacheSlidingRefresh(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)
	c := newTestCache(t, medium, "b", clock)

	c.Set("doc", "payload", 10*time.Minute)

	// Reads keep pushing the deadline out by a full TTL.
	clock.Advance(8 * time.Minute)
	_, ok := c.Get("doc")
	require.True(t, ok)

	clock.Advance(8 * time.Minute)
	_, ok = c.Get("doc")
	require.True(t, ok)

	// Without a read in between, the entry finally lapses.
	clock.Advance(11 * time.Minute)
	_, ok = c.Get("doc")
	assert.False(t, ok)
}

func TestCacheNoTTLNeverExpires(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)
	c := newTestCache(t, medium, "b", clock)

	c.Set("pinned", "forever", 0)

	clock.Advance(1000 * time.Hour)

	value, ok := c.Get("pinned")
	require.True(t, ok)
	assert.Equal(t, "forever", value)

	// No expiration record was written.
	_, hasRecord := c.ledger.Read("pinned")
	assert.False(t, hasRecord)
}

func TestCacheDefaultTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)

	c := NewCache(nopLogger{}, medium, JSONCodec{}, &types.CacheConfig{
		Enabled:    true,
		Prefix:     "t-",
		Bucket:     "b",
		Resolution: types.Duration(time.Minute),
		DefaultTTL: types.Duration(5 * time.Minute),
	})
	c.probe = &Probe{}
	c.now = clock.Now
	require.NoError(t, c.Start())

	c.Set("implicit", "v", 0)

	clock.Advance(6 * time.Minute)

	_, ok := c.Get("implicit")
	assert.False(t, ok)
}

func TestCacheOverwriteDropsOldTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)
	c := newTestCache(t, medium, "b", clock)

	c.Set("key", "expiring", 5*time.Minute)
	c.Set("key", "immortal", 0)

	clock.Advance(time.Hour)

	value, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, "immortal", value)
}

func TestCacheRemove(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)
	c := newTestCache(t, medium, "b", clock)

	c.Set("gone", "value", time.Minute)
	c.Remove("gone")

	_, ok := c.Get("gone")
	assert.False(t, ok)

	keys, err := medium.Keys("t-b")
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Removing what is not there is a no-op.
	c.Remove("gone")
	c.Remove("never-existed")
}

func TestCacheFlushScopedToNamespace(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)

	first := newTestCache(t, medium, "first", clock)
	second := newTestCache(t, medium, "second", clock)

	first.Set("a", "1", time.Minute)
	second.Set("a", "2", time.Minute)

	first.Flush()

	_, ok := first.Get("a")
	assert.False(t, ok)

	value, ok := second.Get("a")
	require.True(t, ok)
	assert.Equal(t, "2", value)
}

func TestCacheEvictionOrder(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, 400)
	c := newTestCache(t, medium, "b1", clock)

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = 'x'
	}

	c.Set("A", string(payload), 20*time.Minute)
	c.Set("B", string(payload), 5*time.Minute)
	c.Set("C", string(payload), 0)

	_, ok := c.Get("B")
	require.True(t, ok, "cache must hold all three entries before overflow")

	// The fourth entry does not fit; the entry closest to expiring (B)
	// goes first, even though C holds no expiration at all.
	c.Set("D", string(payload), 10*time.Minute)

	_, ok = c.Get("B")
	assert.False(t, ok, "B expires soonest and should be evicted")

	_, ok = c.Get("A")
	assert.True(t, ok)
	_, ok = c.Get("C")
	assert.True(t, ok, "entries without TTL are evicted last")
	_, ok = c.Get("D")
	assert.True(t, ok)
}

func TestCacheEvictionSkippedWhenWriteStillFails(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, 100)
	c := newTestCache(t, medium, "b", clock)

	c.Set("small", "fits", time.Minute)

	// A value larger than the whole medium cannot be stored even after
	// evicting everything; the failure stays invisible.
	big := make([]byte, 500)
	c.Set("big", string(big), time.Minute)

	_, ok := c.Get("big")
	assert.False(t, ok)
}

func TestCacheLedgerOverflowDoesNotEvictOwnEntry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	// The value fills the medium exactly; its expiration record does not
	// fit on top. Reclamation must not pick the entry being written, so
	// with nothing else to evict the whole set is rolled back instead of
	// leaving an orphan record where the value used to be.
	medium := newTestMedium(t, 107)
	c := newTestCache(t, medium, "b", clock)

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = 'x'
	}

	c.Set("solo", string(payload), 5*time.Minute)

	_, ok := c.Get("solo")
	assert.False(t, ok)

	keys, err := medium.Keys("t-b")
	require.NoError(t, err)
	assert.Empty(t, keys, "a failed set must leave nothing behind")
}

func TestCacheLedgerOverflowEvictsOlderEntry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, 130)
	c := newTestCache(t, medium, "b", clock)

	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = 'x'
	}

	c.Set("old", string(payload), time.Hour)

	// The new value fits, its record overflows; reclamation triggered by
	// the record write evicts the older entry, never the new one.
	c.Set("new", string(payload), 10*time.Minute)

	value, ok := c.Get("new")
	require.True(t, ok)
	assert.Equal(t, string(payload), value)

	_, hasRecord := c.ledger.Read("new")
	assert.True(t, hasRecord, "the new entry keeps its expiration record")

	_, ok = c.Get("old")
	assert.False(t, ok)
}

type flakyMedium struct {
	types.StorageMedium
	refuseWrites bool
}

func (m *flakyMedium) Set(key string, value string) error {
	if m.refuseWrites {
		return types.ErrStorageClosed
	}
	return m.StorageMedium.Set(key, value)
}

func TestCacheFailedRefreshDropsValue(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := &flakyMedium{StorageMedium: newTestMedium(t, -1)}
	c := newTestCache(t, medium, "b", clock)

	c.Set("doc", "payload", 10*time.Minute)

	// The refresh rewrite fails after the old record is already gone; the
	// read still serves the value but must not strand it without an
	// expiration.
	medium.refuseWrites = true

	value, ok := c.Get("doc")
	require.True(t, ok)
	assert.Equal(t, "payload", value)

	medium.refuseWrites = false

	_, ok = c.Get("doc")
	assert.False(t, ok)

	keys, err := medium.Keys("t-b")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCacheSweep(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)
	c := newTestCache(t, medium, "b", clock)

	c.Set("stale1", "v", 5*time.Minute)
	c.Set("stale2", "v", 7*time.Minute)
	c.Set("fresh", "v", time.Hour)
	c.Set("pinned", "v", 0)

	clock.Advance(10 * time.Minute)

	removed := c.Sweep()
	assert.Equal(t, 2, removed)

	_, ok := c.Get("fresh")
	assert.True(t, ok)
	_, ok = c.Get("pinned")
	assert.True(t, ok)

	// Nothing left to sweep.
	assert.Equal(t, 0, c.Sweep())
}

func TestCacheStats(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)
	c := newTestCache(t, medium, "b", clock)

	c.Set("a", "12345", time.Minute)
	c.Set("b", "12345", 0)

	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 1, stats.LedgerRecords)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.GreaterOrEqual(t, stats.UsedBytes, int64(10))
}

func TestCacheSetAsGetAs(t *testing.T) {
	type payload struct {
		ID    int      `json:"id"`
		Tags  []string `json:"tags"`
		Title string   `json:"title"`
	}

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)
	c := newTestCache(t, medium, "b", clock)

	original := payload{ID: 7, Tags: []string{"a", "b"}, Title: "seven"}
	c.SetAs("doc:7", original, time.Hour)

	var decoded payload
	require.True(t, c.GetAs("doc:7", &decoded))
	assert.Equal(t, original, decoded)

	var missing payload
	assert.False(t, c.GetAs("doc:8", &missing))
}

func TestCacheEncodingFailureAbandonsWrite(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)
	c := newTestCache(t, medium, "b", clock)

	// Channels are not serializable; the write never reaches the medium.
	c.SetAs("bad", make(chan int), time.Minute)

	_, ok := c.Get("bad")
	assert.False(t, ok)
}

func TestCacheOrphanRecordCleared(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)
	c := newTestCache(t, medium, "b", clock)

	c.Set("entry", "value", time.Hour)

	// Simulate an external actor removing the value but not the record.
	require.NoError(t, medium.Remove("t-bentry"))

	_, ok := c.Get("entry")
	assert.False(t, ok)

	_, hasRecord := c.ledger.Read("entry")
	assert.False(t, hasRecord, "orphan record should be dropped on read")
}

func TestCacheEmptyKeyIgnored(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)
	c := newTestCache(t, medium, "b", clock)

	c.Set("", "value", time.Minute)

	keys, err := medium.Keys("t-b")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, ok := c.Get("")
	assert.False(t, ok)
}

func TestCacheTTLRounding(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)
	c := newTestCache(t, medium, "b", clock)

	assert.Equal(t, int64(1), c.ttlUnits(10*time.Second), "sub-resolution TTL rounds up to one unit")
	assert.Equal(t, int64(1), c.ttlUnits(time.Minute))
	assert.Equal(t, int64(2), c.ttlUnits(90*time.Second))
	assert.Equal(t, int64(60), c.ttlUnits(time.Hour))
}

type brokenMedium struct {
	types.StorageMedium
}

func (brokenMedium) Set(string, string) error {
	return types.ErrStorageClosed
}

func TestCacheUnavailableMediumIsNoop(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := brokenMedium{StorageMedium: newTestMedium(t, -1)}

	c := NewCache(nopLogger{}, medium, JSONCodec{}, &types.CacheConfig{
		Enabled:    true,
		Prefix:     "t-",
		Bucket:     "b",
		Resolution: types.Duration(time.Minute),
	})
	c.probe = &Probe{}
	c.now = clock.Now

	c.Set("key", "value", time.Minute)
	_, ok := c.Get("key")
	assert.False(t, ok)

	c.Remove("key")
	c.Flush()
	assert.Equal(t, 0, c.Sweep())
	assert.Equal(t, types.CacheStats{}, c.Stats())
}

func TestProbeVerdictIsFixed(t *testing.T) {
	healthy := newTestMedium(t, -1)
	broken := brokenMedium{StorageMedium: healthy}

	probe := &Probe{}
	assert.False(t, probe.Available(broken))

	// The probe does not flap: even a usable medium cannot change a
	// verdict that was already reached.
	assert.False(t, probe.Available(healthy))

	fresh := &Probe{}
	assert.True(t, fresh.Available(healthy))
}
