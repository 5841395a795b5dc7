package showroom

import (
	"fmt"
	"slices"
	"time"
)

// ItemID identifies a registered item. IDs are never reused within a Manager.
type ItemID uint64

// LoadState is an item's texture readiness.
type LoadState uint8

const (
	// StateNoTexture means no artwork texture is attached and none is loading.
	StateNoTexture LoadState = iota

	// StateLoading means a decode is in flight for the item.
	StateLoading

	// StateLoaded means an artwork texture is attached and nothing is loading.
	StateLoaded
)

// String returns the state name.
func (s LoadState) String() string {
	switch s {
	case StateNoTexture:
		return "NoTexture"
	case StateLoading:
		return "Loading"
	case StateLoaded:
		return "Loaded"
	default:
		return fmt.Sprintf("LoadState(%d)", uint8(s))
	}
}

// PerformanceRecord is the per-item data the manager bases its decisions on.
type PerformanceRecord struct {
	// IsVisible is true if the item's position was inside the frustum at
	// the last tick.
	IsVisible bool

	// DistanceFromCamera is the distance at the last tick.
	DistanceFromCamera float64

	// LastUpdated is the time of the last write to this record.
	LastUpdated time.Time

	// LastSeen is the last time the item was on screen or had a texture
	// applied. Staleness and eviction order are measured from it, since
	// LastUpdated advances every tick for every item.
	LastSeen time.Time

	// TextureLoaded is true while an artwork texture is attached.
	TextureLoaded bool

	// CurrentTier is the tier of the attached texture, TierNone if none.
	CurrentTier Tier

	// State is the texture readiness.
	State LoadState
}

// RecordSnapshot pairs an item with a copy of its record.
type RecordSnapshot struct {
	ID     ItemID
	Record PerformanceRecord
}

// item is the registry's view of a RenderableItem.
type item struct {
	id       ItemID
	pos      Positioner
	surface  Surface
	textured TextureSurface // nil for color-only surfaces

	rec PerformanceRecord

	// attached is the tier of the cache entry on the surface, TierNone if
	// no artwork texture is attached.
	attached Tier

	// latest is the newest in-flight request, nil when nothing is loading.
	// Completions of any other request are stale.
	latest *Request

	// pending holds every request with a decode in flight, by tier. It
	// includes superseded requests, which a later call for the same tier
	// adopts again instead of starting a second decode.
	pending map[Tier]*Request

	// neutral is set while the shared placeholder texture is on the surface.
	neutral bool

	// measured is set once the analyzer has computed a distance.
	measured bool
}

// syncState derives rec.State from the attachment and in-flight request.
func (it *item) syncState() {
	switch {
	case it.latest != nil:
		it.rec.State = StateLoading
	case it.attached != TierNone:
		it.rec.State = StateLoaded
	default:
		it.rec.State = StateNoTexture
	}
}

// registry holds one item per registered product, iterated in ID order.
//
// registry is NOT safe for concurrent use.
type registry struct {
	items map[ItemID]*item
	order []ItemID // ascending; IDs are allocated increasing
	next  ItemID
}

func newRegistry() *registry {
	return &registry{
		items: make(map[ItemID]*item),
	}
}

// add registers a new item and returns it.
func (r *registry) add(pos Positioner, surf Surface) *item {
	r.next++
	it := &item{
		id:      r.next,
		pos:     pos,
		surface: surf,
	}
	// Capability check happens once here, not on the hot path.
	if ts, ok := surf.(TextureSurface); ok {
		it.textured = ts
	}
	r.items[it.id] = it
	r.order = append(r.order, it.id)
	return it
}

// get returns the item for id.
func (r *registry) get(id ItemID) (*item, bool) {
	it, ok := r.items[id]
	return it, ok
}

// remove deletes id from the registry and returns the removed item.
func (r *registry) remove(id ItemID) (*item, bool) {
	it, ok := r.items[id]
	if !ok {
		return nil, false
	}
	delete(r.items, id)
	if i, found := slices.BinarySearch(r.order, id); found {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return it, true
}

// each calls fn for every item in ID order.
func (r *registry) each(fn func(*item)) {
	for _, id := range r.order {
		fn(r.items[id])
	}
}

// len returns the number of registered items.
func (r *registry) len() int {
	return len(r.items)
}

// snapshot copies every record, in ID order.
func (r *registry) snapshot() []RecordSnapshot {
	out := make([]RecordSnapshot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, RecordSnapshot{ID: id, Record: r.items[id].rec})
	}
	return out
}

// Register adds a product object to the registry and returns its ID.
// pos is read every tick; surf receives textures or fallback colors.
func (m *Manager) Register(pos Positioner, surf Surface) (ItemID, error) {
	if m.closed {
		return 0, ErrClosed
	}
	if pos == nil {
		return 0, ErrNilPosition
	}
	if surf == nil {
		return 0, ErrNilSurface
	}

	it := m.registry.add(pos, surf)
	it.rec.LastUpdated = m.clock.Now()
	return it.id, nil
}

// Unregister removes an item, first releasing its texture. A load in flight
// for the item is discarded when it completes. Unknown IDs are a no-op.
func (m *Manager) Unregister(id ItemID) {
	it, ok := m.registry.remove(id)
	if !ok {
		m.log().Debug("showroom: unregister of unknown item", "item", id)
		return
	}

	it.latest = nil
	m.unload(it, false)
	if it.neutral {
		it.textured.SetTexture(nil)
		it.neutral = false
	}
}

// Record returns a copy of the item's record.
func (m *Manager) Record(id ItemID) (PerformanceRecord, bool) {
	it, ok := m.registry.get(id)
	if !ok {
		return PerformanceRecord{}, false
	}
	return it.rec, true
}

// Records returns a snapshot of every record in ID order.
func (m *Manager) Records() []RecordSnapshot {
	return m.registry.snapshot()
}

// Len returns the number of registered items.
func (m *Manager) Len() int {
	return m.registry.len()
}
