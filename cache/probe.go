package cache

import (
	"sync"

	"github.com/saiset-co/sai-cache/types"
)

const probeKey = "__saicache_probe__"

// Probe answers whether a storage medium can round-trip a value. The
// answer is computed once, on first use, and held for the lifetime of
// the probe: media do not flap between usable and unusable, they either
// work or they do not.
type Probe struct {
	once      sync.Once
	available bool
}

// Available reports whether the medium passed the write-read-remove
// round trip. The first call performs the probe; later calls return the
// cached verdict regardless of the medium passed.
func (p *Probe) Available(medium types.StorageMedium) bool {
	p.once.Do(func() {
		if err := medium.Set(probeKey, "1"); err != nil {
			return
		}

		value, err := medium.Get(probeKey)
		if err != nil || value != "1" {
			return
		}

		_ = medium.Remove(probeKey)
		p.available = true
	})
	return p.available
}

var defaultProbe Probe

// MediumAvailable probes through the process-wide probe instance.
func MediumAvailable(medium types.StorageMedium) bool {
	return defaultProbe.Available(medium)
}
