package cache

import (
	"strings"

	"github.com/saiset-co/sai-cache/types"
)

// ledgerSuffix marks the side record carrying an entry's expiration.
const ledgerSuffix = "-cacheexp"

// storeAdapter scopes the storage medium to this cache's namespace
// (prefix + bucket). It is pure delegation: capacity failures propagate
// unchanged, no retry logic lives here.
type storeAdapter struct {
	medium    types.StorageMedium
	namespace string
}

func newStoreAdapter(medium types.StorageMedium, prefix, bucket string) *storeAdapter {
	return &storeAdapter{
		medium:    medium,
		namespace: prefix + bucket,
	}
}

func (a *storeAdapter) rawKey(key string) string {
	return a.namespace + key
}

func (a *storeAdapter) Get(key string) (string, error) {
	return a.medium.Get(a.rawKey(key))
}

// Set removes the previous value first: some backends falsely report
// capacity exhaustion when a large value is overwritten with a smaller one.
func (a *storeAdapter) Set(key string, value string) error {
	raw := a.rawKey(key)

	if err := a.medium.Remove(raw); err != nil {
		return err
	}
	return a.medium.Set(raw, value)
}

func (a *storeAdapter) Remove(key string) error {
	return a.medium.Remove(a.rawKey(key))
}

// Keys enumerates the logical keys of this namespace, ledger records
// included (their ledgerSuffix left in place).
func (a *storeAdapter) Keys() ([]string, error) {
	rawKeys, err := a.medium.Keys(a.namespace)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(rawKeys))
	for _, raw := range rawKeys {
		keys = append(keys, strings.TrimPrefix(raw, a.namespace))
	}
	return keys, nil
}

func isLedgerKey(key string) bool {
	return strings.HasSuffix(key, ledgerSuffix)
}
