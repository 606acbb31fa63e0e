package cache

import (
	"context"
	"time"

	"github.com/saiset-co/sai-cache/types"
)

func NewCacheManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, medium types.StorageMedium) (types.CacheManager, error) {
	cacheConfig := config.GetConfig().Cache
	if cacheConfig == nil {
		return nil, types.ErrConfigIsNil
	}

	if !cacheConfig.Enabled {
		return nil, types.ErrCacheIsDisabled
	}

	codec, err := NewCodec(cacheConfig.Codec)
	if err != nil {
		return nil, err
	}

	impl := NewCache(logger, medium, codec, cacheConfig)

	return newInstrumentedCacheManager(logger, metrics, impl), nil
}

type instrumentedCacheManager struct {
	impl    types.CacheManager
	logger  types.Logger
	metrics types.MetricsManager
}

func newInstrumentedCacheManager(logger types.Logger, metrics types.MetricsManager, impl types.CacheManager) types.CacheManager {
	instrumented := &instrumentedCacheManager{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}

	return instrumented
}

func (icm *instrumentedCacheManager) Set(key string, value string, ttl time.Duration) {
	start := time.Now()
	icm.impl.Set(key, value, ttl)
	icm.recordMetric("set", "success", time.Since(start))
}

func (icm *instrumentedCacheManager) Get(key string) (string, bool) {
	start := time.Now()
	value, exists := icm.impl.Get(key)
	duration := time.Since(start)

	result := "miss"
	if exists {
		result = "hit"
	}

	icm.recordMetric("get", result, duration)
	return value, exists
}

func (icm *instrumentedCacheManager) Remove(key string) {
	start := time.Now()
	icm.impl.Remove(key)
	icm.recordMetric("remove", "success", time.Since(start))
}

func (icm *instrumentedCacheManager) Flush() {
	start := time.Now()
	icm.impl.Flush()
	icm.recordMetric("flush", "success", time.Since(start))
}

func (icm *instrumentedCacheManager) Sweep() int {
	start := time.Now()
	removed := icm.impl.Sweep()
	icm.recordMetric("sweep", "success", time.Since(start))

	sweptCounter := icm.metrics.Counter("cache_swept_entries_total", nil)
	sweptCounter.Add(float64(removed))

	return removed
}

func (icm *instrumentedCacheManager) SetAs(key string, value interface{}, ttl time.Duration) {
	start := time.Now()
	icm.impl.SetAs(key, value, ttl)
	icm.recordMetric("set_as", "success", time.Since(start))
}

func (icm *instrumentedCacheManager) GetAs(key string, target interface{}) bool {
	start := time.Now()
	exists := icm.impl.GetAs(key, target)
	duration := time.Since(start)

	result := "miss"
	if exists {
		result = "hit"
	}

	icm.recordMetric("get_as", result, duration)
	return exists
}

func (icm *instrumentedCacheManager) Stats() types.CacheStats {
	stats := icm.impl.Stats()

	entriesGauge := icm.metrics.Gauge("cache_entries", nil)
	entriesGauge.Set(float64(stats.Entries))

	usedGauge := icm.metrics.Gauge("cache_used_bytes", nil)
	usedGauge.Set(float64(stats.UsedBytes))

	return stats
}

func (icm *instrumentedCacheManager) Start() error {
	start := time.Now()
	err := icm.impl.Start()
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	icm.recordMetric("start", result, duration)

	return err
}

func (icm *instrumentedCacheManager) Stop() error {
	return icm.impl.Stop()
}

func (icm *instrumentedCacheManager) IsRunning() bool {
	return icm.impl.IsRunning()
}

func (icm *instrumentedCacheManager) recordMetric(operation, result string, duration time.Duration) {
	opCounter := icm.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	})
	opCounter.Inc()

	opDuration := icm.metrics.Histogram("cache_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}
