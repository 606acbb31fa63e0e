package cache

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
)

// infiniteExpiration ranks entries without a ledger record: they are
// treated as never expiring and evicted last.
const infiniteExpiration = int64(math.MaxInt64)

type victim struct {
	key        string
	expiration int64
}

// evictionEngine frees space by removing entries in order of expiration
// proximity: the entry closest to expiring goes first. It only consults
// the ledger for ordering and never checks whether entries are already
// expired; a reclaim pass may well evict live entries.
type evictionEngine struct {
	adapter *storeAdapter
	ledger  *expirationLedger
	logger  types.Logger
}

func newEvictionEngine(adapter *storeAdapter, ledger *expirationLedger, logger types.Logger) *evictionEngine {
	return &evictionEngine{
		adapter: adapter,
		ledger:  ledger,
		logger:  logger,
	}
}

// Reclaim removes entries until at least targetBytes of value bytes are
// freed or the namespace is empty. The spare key is never selected: it
// is the entry the caller is writing for, which would otherwise rank as
// immortal mid-write and get evicted out from under its own record.
// Reclaim returns the number of bytes freed and the number of entries
// removed; it never fails, enumeration or removal errors end the pass
// early with whatever was freed so far.
func (e *evictionEngine) Reclaim(targetBytes int, spare string) (freed int, removed int) {
	keys, err := e.adapter.Keys()
	if err != nil {
		e.logger.Debug("Eviction enumeration failed", zap.Error(err))
		return 0, 0
	}

	victims := make([]victim, 0, len(keys))
	for _, key := range keys {
		if isLedgerKey(key) || key == spare {
			continue
		}

		expiration := infiniteExpiration
		if record, ok := e.ledger.Read(key); ok {
			expiration = record.Expiration
		}
		victims = append(victims, victim{key: key, expiration: expiration})
	}

	// Stable sort keeps enumeration order among entries sharing an
	// expiration, so ties resolve deterministically.
	sort.SliceStable(victims, func(i, j int) bool {
		return victims[i].expiration < victims[j].expiration
	})

	for _, v := range victims {
		if freed >= targetBytes {
			break
		}

		value, err := e.adapter.Get(v.key)
		if err == nil {
			freed += len(value)
		}

		if err := e.adapter.Remove(v.key); err != nil {
			e.logger.Debug("Eviction removal failed",
				zap.String("key", v.key), zap.Error(err))
			break
		}
		e.ledger.Clear(v.key)
		removed++
	}

	if removed > 0 {
		e.logger.Debug("Reclaimed space from cache",
			zap.Int("target_bytes", targetBytes),
			zap.Int("freed_bytes", freed),
			zap.Int("removed_entries", removed))
	}
	return freed, removed
}
