package types

// StorageMedium is the boundary to the external storage backing the cache.
// Get returns ErrStorageKeyNotFound for an absent key. Set returns
// ErrCapacityExceeded when the write would overflow the medium's fixed
// capacity; the caller decides whether and how to reclaim space. Keys
// enumerates every key starting with the given prefix.
type StorageMedium interface {
	LifecycleManager
	Get(key string) (string, error)
	Set(key string, value string) error
	Remove(key string) error
	Keys(prefix string) ([]string, error)
}

type StorageMediumCreator func(config interface{}) (StorageMedium, error)
