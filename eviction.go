package showroom

import (
	"cmp"
	"slices"
)

// CleanupOffScreenTextures runs the staleness sweep and then the capacity
// sweep, and returns the number of textures unloaded. Call it on a slower
// cadence than UpdatePerformanceData, for example once a second.
func (m *Manager) CleanupOffScreenTextures() int {
	if m.closed {
		return 0
	}
	n := m.EvictStale()
	n += m.EvictCapacity()
	return n
}

// EvictStale unloads the texture of every item that is off screen and has
// not been seen for longer than StaleThreshold. Items with a load in
// flight are left alone.
func (m *Manager) EvictStale() int {
	if m.closed {
		return 0
	}

	now := m.clock.Now()
	var victims []*item
	m.registry.each(func(it *item) {
		if it.attached == TierNone || it.rec.IsVisible || it.latest != nil {
			return
		}
		if now.Sub(it.rec.LastSeen) > m.cfg.StaleThreshold {
			victims = append(victims, it)
		}
	})

	for _, it := range victims {
		m.unload(it, true)
	}
	if len(victims) > 0 {
		m.log().Debug("showroom: stale textures evicted", "count", len(victims))
	}
	return len(victims)
}

// EvictCapacity unloads textures until at most MaxActiveTextures remain.
//
// Off-screen items go first, least recently seen first. If only visible
// items remain, the overshoot is kept under OvershootTolerate; under
// OvershootEvictVisible visible items are unloaded farthest first.
func (m *Manager) EvictCapacity() int {
	if m.closed {
		return 0
	}

	excess := m.cache.Len() - m.cfg.MaxActiveTextures
	if excess <= 0 {
		return 0
	}

	var hidden, visible []*item
	m.registry.each(func(it *item) {
		if it.attached == TierNone {
			return
		}
		if it.rec.IsVisible {
			visible = append(visible, it)
		} else {
			hidden = append(hidden, it)
		}
	})

	slices.SortFunc(hidden, byLastSeen)
	evicted := m.evictFirst(hidden, excess)

	if excess -= evicted; excess > 0 {
		if m.cfg.Overshoot == OvershootEvictVisible {
			slices.SortFunc(visible, byDistanceDesc)
			evicted += m.evictFirst(visible, excess)
		} else {
			m.log().Debug("showroom: texture budget exceeded by visible items",
				"resident", m.cache.Len(),
				"max", m.cfg.MaxActiveTextures)
		}
	}
	return evicted
}

// evictFirst unloads up to n items from the front of items.
func (m *Manager) evictFirst(items []*item, n int) int {
	evicted := 0
	for _, it := range items {
		if evicted == n {
			break
		}
		if m.unload(it, true) {
			evicted++
		}
	}
	return evicted
}

// byLastSeen orders least recently seen first, then by id.
func byLastSeen(a, b *item) int {
	if c := a.rec.LastSeen.Compare(b.rec.LastSeen); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}

// byDistanceDesc orders farthest first, then least recently seen.
func byDistanceDesc(a, b *item) int {
	if c := cmp.Compare(b.rec.DistanceFromCamera, a.rec.DistanceFromCamera); c != 0 {
		return c
	}
	return byLastSeen(a, b)
}
