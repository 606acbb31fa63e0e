package types

import (
	"time"
)

// CacheManager is the public cache façade. Operations are best-effort and
// never surface storage failures: a failed write is a no-op, a failed read
// reports absence. Lifecycle errors still propagate like any other manager.
type CacheManager interface {
	LifecycleManager
	Set(key string, value string, ttl time.Duration)
	Get(key string) (string, bool)
	Remove(key string)
	Flush()
	Sweep() int
	SetAs(key string, value interface{}, ttl time.Duration)
	GetAs(key string, target interface{}) bool
	Stats() CacheStats
}

type CacheManagerCreator func(config interface{}) (CacheManager, error)

// Codec converts structured values to and from the opaque string payloads
// the storage medium accepts. The cache core never inspects payloads.
type Codec interface {
	Encode(value interface{}) (string, error)
	Decode(payload string, target interface{}) error
}

type CacheStats struct {
	Entries       int   `json:"entries"`
	LedgerRecords int   `json:"ledger_records"`
	UsedBytes     int64 `json:"used_bytes"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Evictions     uint64 `json:"evictions"`
	ReclaimedBytes uint64 `json:"reclaimed_bytes"`
}
