package health

import (
	"context"

	"github.com/saiset-co/sai-cache/types"
)

// StorageChecker reports whether the storage medium is running and
// usable. The availability verdict is the caller's probe result, fixed
// for the process lifetime.
func StorageChecker(medium types.StorageMedium, available func() bool) types.HealthChecker {
	return func(_ context.Context) types.HealthCheck {
		if !medium.IsRunning() {
			return types.HealthCheck{
				Status:  types.StatusUnhealthy,
				Message: "storage medium is not running",
			}
		}

		if !available() {
			return types.HealthCheck{
				Status:  types.StatusUnhealthy,
				Message: "storage medium failed the availability probe",
			}
		}

		return types.HealthCheck{Status: types.StatusHealthy}
	}
}

// CacheChecker reports cache occupancy alongside its running state.
func CacheChecker(cache types.CacheManager) types.HealthChecker {
	return func(_ context.Context) types.HealthCheck {
		if !cache.IsRunning() {
			return types.HealthCheck{
				Status:  types.StatusUnhealthy,
				Message: "cache is not running",
			}
		}

		stats := cache.Stats()

		return types.HealthCheck{
			Status: types.StatusHealthy,
			Details: map[string]interface{}{
				"entries":        stats.Entries,
				"ledger_records": stats.LedgerRecords,
				"used_bytes":     stats.UsedBytes,
				"hits":           stats.Hits,
				"misses":         stats.Misses,
				"evictions":      stats.Evictions,
			},
		}
	}
}
