package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/storage"
	"github.com/saiset-co/sai-cache/types"
)

const (
	DefaultResolution = time.Minute
	DefaultPrefix     = "saicache-"
)

// Cache is the expiration-aware façade over a storage medium. All
// operations are best-effort: storage failures are absorbed, a failed
// write leaves the cache as if the call never happened and a failed
// read reports absence.
//
// One mutex serializes every operation, so an expiry check and the
// removal it triggers are a single atomic step. Expirations are kept in
// whole resolution units in side records next to each value; eviction
// on capacity exhaustion removes entries closest to expiring first.
type Cache struct {
	logger     types.Logger
	medium     types.StorageMedium
	adapter    *storeAdapter
	ledger     *expirationLedger
	evictor    *evictionEngine
	codec      types.Codec
	probe      *Probe
	resolution time.Duration
	defaultTTL time.Duration
	now        func() time.Time

	mu        sync.Mutex
	hits      uint64
	misses    uint64
	evictions uint64
	reclaimed uint64

	state atomic.Value
}

func NewCache(logger types.Logger, medium types.StorageMedium, codec types.Codec, config *types.CacheConfig) *Cache {
	prefix := config.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	resolution := config.Resolution.Std()
	if resolution < time.Second {
		resolution = DefaultResolution
	}

	adapter := newStoreAdapter(medium, prefix, config.Bucket)
	ledger := newExpirationLedger(adapter)

	cache := &Cache{
		logger:     logger,
		medium:     medium,
		adapter:    adapter,
		ledger:     ledger,
		evictor:    newEvictionEngine(adapter, ledger, logger),
		codec:      codec,
		probe:      &defaultProbe,
		resolution: resolution,
		defaultTTL: config.DefaultTTL.Std(),
		now:        time.Now,
	}

	cache.state.Store(storage.StateStopped)
	return cache
}

func (c *Cache) Start() error {
	if !c.transitionState(storage.StateStopped, storage.StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if c.getState() == storage.StateStarting {
			c.setState(storage.StateRunning)
		}
	}()

	c.logger.Info("Cache started",
		zap.String("namespace", c.adapter.namespace),
		zap.Duration("resolution", c.resolution),
		zap.Duration("default_ttl", c.defaultTTL),
		zap.Bool("medium_available", c.probe.Available(c.medium)))
	return nil
}

func (c *Cache) Stop() error {
	if !c.transitionState(storage.StateRunning, storage.StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		c.setState(storage.StateStopped)
	}()

	c.logger.Info("Cache stopped gracefully")
	return nil
}

func (c *Cache) IsRunning() bool {
	return c.getState() == storage.StateRunning
}

// Set stores value under key. A zero ttl falls back to the configured
// default; a default of zero means the entry never expires. The call is
// a silent no-op when the medium is unusable or the write cannot be
// completed even after evicting.
func (c *Cache) Set(key string, value string, ttl time.Duration) {
	if key == "" || !c.probe.Available(c.medium) {
		return
	}

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.writeWithReclaim(key, func() error { return c.adapter.Set(key, value) }, len(value)) {
		return
	}

	if ttl <= 0 {
		// Overwriting an expiring entry with an immortal one must not
		// leave the old record behind.
		c.ledger.Clear(key)
		return
	}

	units := c.ttlUnits(ttl)
	record := ledgerRecord{Expiration: c.nowUnits() + units, TTL: units}

	ledgerWrite := func() error { return c.ledger.Write(key, record) }
	if !c.writeWithReclaim(key, ledgerWrite, c.ledger.RecordSize(record)) {
		// A value without its record would never expire. Roll back.
		_ = c.adapter.Remove(key)
	}
}

// Get returns the value stored under key. An expired entry is removed
// on the spot and reported absent; a live entry with a TTL has its
// expiration pushed out by one full TTL from now.
func (c *Cache) Get(key string) (string, bool) {
	if key == "" || !c.probe.Available(c.medium) {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	record, hasRecord := c.ledger.Read(key)
	now := c.nowUnits()

	if hasRecord && now >= record.Expiration {
		_ = c.adapter.Remove(key)
		c.ledger.Clear(key)
		c.misses++
		return "", false
	}

	value, err := c.adapter.Get(key)
	if err != nil {
		if hasRecord {
			// Record without a value is an orphan; drop it.
			c.ledger.Clear(key)
		}
		c.misses++
		return "", false
	}

	if hasRecord {
		record.Expiration = now + record.TTL
		refresh := func() error { return c.ledger.Write(key, record) }
		if !c.writeWithReclaim(key, refresh, c.ledger.RecordSize(record)) {
			// The rewrite already dropped the old record; left alone the
			// value would linger without an expiration. Drop it too.
			_ = c.adapter.Remove(key)
		}
	}

	c.hits++
	return value, true
}

// Remove deletes key and its expiration record. Removing an absent key
// is a no-op.
func (c *Cache) Remove(key string) {
	if key == "" || !c.probe.Available(c.medium) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.adapter.Remove(key)
	c.ledger.Clear(key)
}

// Flush removes every entry in this cache's namespace. Keys outside the
// namespace are untouched.
func (c *Cache) Flush() {
	if !c.probe.Available(c.medium) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.adapter.Keys()
	if err != nil {
		c.logger.Debug("Flush enumeration failed", zap.Error(err))
		return
	}

	for _, key := range keys {
		_ = c.adapter.Remove(key)
	}
}

// Sweep removes entries whose expiration has passed and returns how
// many were removed. Reads never need a sweep to observe expiry; this
// only frees space occupied by entries nobody asks for anymore.
func (c *Cache) Sweep() int {
	if !c.probe.Available(c.medium) {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.adapter.Keys()
	if err != nil {
		c.logger.Debug("Sweep enumeration failed", zap.Error(err))
		return 0
	}

	now := c.nowUnits()
	removed := 0

	for _, key := range keys {
		if !isLedgerKey(key) {
			continue
		}

		entryKey := key[:len(key)-len(ledgerSuffix)]
		record, ok := c.ledger.Read(entryKey)
		if !ok || now < record.Expiration {
			continue
		}

		_ = c.adapter.Remove(entryKey)
		c.ledger.Clear(entryKey)
		removed++
	}

	if removed > 0 {
		c.logger.Debug("Swept expired entries", zap.Int("removed", removed))
	}
	return removed
}

// SetAs encodes value with the configured codec and stores the result.
// An encoding failure abandons the write.
func (c *Cache) SetAs(key string, value interface{}, ttl time.Duration) {
	payload, err := c.codec.Encode(value)
	if err != nil {
		c.logger.Debug("Value encoding failed, write abandoned",
			zap.String("key", key), zap.Error(err))
		return
	}
	c.Set(key, payload, ttl)
}

// GetAs reads the payload stored under key and decodes it into target.
// A payload that no longer decodes is treated as absent.
func (c *Cache) GetAs(key string, target interface{}) bool {
	payload, ok := c.Get(key)
	if !ok {
		return false
	}

	if err := c.codec.Decode(payload, target); err != nil {
		c.logger.Debug("Value decoding failed",
			zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Stats walks the namespace to measure occupancy and reports the
// operation counters accumulated since start.
func (c *Cache) Stats() types.CacheStats {
	stats := types.CacheStats{}

	if !c.probe.Available(c.medium) {
		return stats
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stats.Hits = c.hits
	stats.Misses = c.misses
	stats.Evictions = c.evictions
	stats.ReclaimedBytes = c.reclaimed

	keys, err := c.adapter.Keys()
	if err != nil {
		return stats
	}

	for _, key := range keys {
		if isLedgerKey(key) {
			stats.LedgerRecords++
		} else {
			stats.Entries++
		}

		if value, err := c.adapter.Get(key); err == nil {
			stats.UsedBytes += int64(len(value))
		}
	}
	return stats
}

// writeWithReclaim performs write, and on capacity exhaustion frees at
// least need bytes and retries exactly once. The entry key the write
// belongs to is spared from eviction. Any other failure, or a second
// capacity failure, abandons the write.
func (c *Cache) writeWithReclaim(key string, write func() error, need int) bool {
	err := write()
	if err == nil {
		return true
	}

	if !types.IsError(err, types.ErrCapacityExceeded) {
		c.logger.Debug("Cache write failed", zap.Error(err))
		return false
	}

	freed, removed := c.evictor.Reclaim(need, key)
	c.evictions += uint64(removed)
	c.reclaimed += uint64(freed)

	if err := write(); err != nil {
		c.logger.Debug("Cache write abandoned after reclaim",
			zap.Int("need_bytes", need),
			zap.Int("freed_bytes", freed),
			zap.Error(err))
		return false
	}
	return true
}

// nowUnits is the current time in whole resolution units.
func (c *Cache) nowUnits() int64 {
	return c.now().Unix() / int64(c.resolution/time.Second)
}

// ttlUnits rounds a positive ttl up to whole resolution units, never
// below one: a ten-second TTL at minute resolution still expires, one
// unit out, rather than immediately.
func (c *Cache) ttlUnits(ttl time.Duration) int64 {
	units := int64((ttl + c.resolution - 1) / c.resolution)
	if units < 1 {
		units = 1
	}
	return units
}

func (c *Cache) getState() storage.State {
	return c.state.Load().(storage.State)
}

func (c *Cache) setState(newState storage.State) bool {
	currentState := c.getState()
	return c.state.CompareAndSwap(currentState, newState)
}

func (c *Cache) transitionState(from, to storage.State) bool {
	return c.state.CompareAndSwap(from, to)
}
