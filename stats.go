package showroom

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// Stats is a point-in-time summary of the manager.
type Stats struct {
	// TotalItems is the number of registered items.
	TotalItems int

	// VisibleItems is the number of items inside the frustum at the last tick.
	VisibleItems int

	// LoadedTextures is the number of items with an artwork texture attached.
	LoadedTextures int

	// ActiveTextureCount is the number of resident cache entries, the value
	// bounded by MaxActiveTextures.
	ActiveTextureCount int

	// AverageDistance is the mean camera distance over measured items with
	// a finite distance, 0 if there are none.
	AverageDistance float64

	// InFlight is the number of decodes not yet reconciled.
	InFlight int

	// QueuedDecodes is the number of decodes waiting for a worker of the
	// manager's own pool, 0 with an injected executor.
	QueuedDecodes int

	// ResidentBytes estimates the memory held by resident textures.
	ResidentBytes int64

	// Hits and Misses count cache lookups made by ApplyTexture.
	Hits   uint64
	Misses uint64

	// HitRate is Hits / (Hits + Misses), 0 before the first lookup.
	HitRate float64

	// Evictions counts textures unloaded by the eviction sweeps.
	Evictions uint64

	// Fallbacks counts requests that ended in the fallback appearance.
	Fallbacks uint64
}

// GetStats returns current statistics. It has no side effects.
func (m *Manager) GetStats() Stats {
	cs := m.cache.Stats()
	s := Stats{
		TotalItems:         m.registry.len(),
		ActiveTextureCount: cs.Entries,
		InFlight:           m.inflight,
		ResidentBytes:      cs.Size,
		Hits:               cs.Hits,
		Misses:             cs.Misses,
		HitRate:            cs.HitRate,
		Evictions:          cs.Evictions,
		Fallbacks:          m.fallbacks,
	}
	if m.pool != nil {
		s.QueuedDecodes = m.pool.Queued()
	}

	var (
		sum      float64
		measured int
	)
	m.registry.each(func(it *item) {
		if it.rec.IsVisible {
			s.VisibleItems++
		}
		if it.rec.TextureLoaded {
			s.LoadedTextures++
		}
		if d := it.rec.DistanceFromCamera; it.measured && !math.IsInf(d, 0) && !math.IsNaN(d) {
			sum += d
			measured++
		}
	})
	if measured > 0 {
		s.AverageDistance = sum / float64(measured)
	}
	return s
}

// String formats the stats on one line.
func (s Stats) String() string {
	return fmt.Sprintf("items=%d visible=%d loaded=%d active=%d avgDist=%.2f inflight=%d queued=%d resident=%s hits=%d misses=%d hitRate=%.0f%% evictions=%d fallbacks=%d",
		s.TotalItems, s.VisibleItems, s.LoadedTextures, s.ActiveTextureCount,
		s.AverageDistance, s.InFlight, s.QueuedDecodes,
		humanize.Bytes(uint64(max(s.ResidentBytes, 0))),
		s.Hits, s.Misses, s.HitRate*100, s.Evictions, s.Fallbacks)
}
