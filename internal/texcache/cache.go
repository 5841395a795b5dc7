// Package texcache holds the resident texture table used by the showroom
// manager.
//
// Entries are keyed by an arbitrary comparable key and carry a byte size
// estimate so the owner can report resident memory. The table does not decide
// what to evict: callers pick victims (by visibility and recency) and remove
// them with Evict, which is counted separately from plain removal.
//
// Table is NOT safe for concurrent use. It is owned by a single scheduling
// goroutine, the same way the manager's registry is.
package texcache

// Table is a keyed store of resident values with size accounting.
type Table[K comparable, V any] struct {
	entries map[K]*entry[V]
	size    int64 // Resident bytes across all entries

	// Statistics
	hits      uint64
	misses    uint64
	evictions uint64
}

// entry holds a cached value with its size.
type entry[V any] struct {
	value V
	size  int64
}

// Stats contains table statistics for monitoring.
type Stats struct {
	// Entries is the number of resident entries.
	Entries int
	// Size is the resident byte estimate.
	Size int64
	// Hits is the number of successful lookups.
	Hits uint64
	// Misses is the number of failed lookups.
	Misses uint64
	// HitRate is Hits / (Hits + Misses), 0 when no lookups happened.
	HitRate float64
	// Evictions is the number of entries removed through Evict.
	Evictions uint64
}

// New creates an empty table.
func New[K comparable, V any]() *Table[K, V] {
	return &Table[K, V]{
		entries: make(map[K]*entry[V]),
	}
}

// Get looks up a value and records a hit or miss.
func (t *Table[K, V]) Get(key K) (V, bool) {
	e, ok := t.entries[key]
	if !ok {
		t.misses++
		var zero V
		return zero, false
	}
	t.hits++
	return e.value, true
}

// Put stores value under key with the given size estimate.
// If an entry already exists for key it is replaced and returned so the
// caller can release it; at most one entry exists per key.
func (t *Table[K, V]) Put(key K, value V, size int64) (V, bool) {
	if size < 0 {
		size = 0
	}

	var (
		old      V
		replaced bool
	)
	if existing, ok := t.entries[key]; ok {
		old = existing.value
		replaced = true
		t.size -= existing.size
	}

	t.entries[key] = &entry[V]{value: value, size: size}
	t.size += size
	return old, replaced
}

// Remove deletes key and returns its value.
func (t *Table[K, V]) Remove(key K) (V, bool) {
	e, ok := t.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	delete(t.entries, key)
	t.size -= e.size
	return e.value, true
}

// Evict is Remove counted as an eviction.
func (t *Table[K, V]) Evict(key K) (V, bool) {
	v, ok := t.Remove(key)
	if ok {
		t.evictions++
	}
	return v, ok
}

// Len returns the number of resident entries.
func (t *Table[K, V]) Len() int {
	return len(t.entries)
}

// Clear removes every entry, calling release for each value first.
// Statistics are kept.
func (t *Table[K, V]) Clear(release func(V)) {
	for _, e := range t.entries {
		if release != nil {
			release(e.value)
		}
	}
	t.entries = make(map[K]*entry[V])
	t.size = 0
}

// Stats returns current table statistics.
func (t *Table[K, V]) Stats() Stats {
	var hitRate float64
	total := t.hits + t.misses
	if total > 0 {
		hitRate = float64(t.hits) / float64(total)
	}

	return Stats{
		Entries:   len(t.entries),
		Size:      t.size,
		Hits:      t.hits,
		Misses:    t.misses,
		HitRate:   hitRate,
		Evictions: t.evictions,
	}
}
