package showroom

import "time"

// Clock supplies timestamps for recency and staleness decisions.
// Tests inject a manual clock so eviction order does not depend on timing.
type Clock interface {
	Now() time.Time
}

// systemClock reads the wall clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall-clock Clock used by default.
func SystemClock() Clock { return systemClock{} }
