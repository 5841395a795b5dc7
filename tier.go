package showroom

import (
	"fmt"

	"golang.org/x/text/cases"
)

// Tier is a texture quality level selected by viewing distance.
type Tier uint8

const (
	// TierNone means no artwork texture is attached.
	TierNone Tier = iota

	// TierLow is used beyond the far distance.
	TierLow

	// TierMedium is used between the near and far distances.
	TierMedium

	// TierHigh is used at or inside the near distance.
	TierHigh
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return fmt.Sprintf("Tier(%d)", uint8(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if t > TierHigh {
		return nil, fmt.Errorf("showroom: invalid tier %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Names are matched
// case-insensitively.
func (t *Tier) UnmarshalText(text []byte) error {
	switch cases.Fold().String(string(text)) {
	case "none":
		*t = TierNone
	case "low":
		*t = TierLow
	case "medium":
		*t = TierMedium
	case "high":
		*t = TierHigh
	default:
		return fmt.Errorf("showroom: unknown tier %q", text)
	}
	return nil
}

// SelectTier maps a viewing distance to a tier:
//
//	distance <= near        → TierHigh
//	near < distance <= far  → TierMedium
//	distance > far          → TierLow
//
// NaN distances compare false everywhere and fall through to TierLow.
func SelectTier(distance, near, far float64) Tier {
	switch {
	case distance <= near:
		return TierHigh
	case distance <= far:
		return TierMedium
	default:
		return TierLow
	}
}

// ShouldLoad is the lazy-loading admission gate. It rejects a load only when
// lazy loading is enabled and the item is off screen.
func ShouldLoad(rec PerformanceRecord, lazy bool) bool {
	return !lazy || rec.IsVisible
}

// TierSizes holds the long-edge pixel size of each tier's texture.
type TierSizes struct {
	High   int `toml:"high"`
	Medium int `toml:"medium"`
	Low    int `toml:"low"`
}

// Size returns the long-edge size for t, or 0 for TierNone.
func (s TierSizes) Size(t Tier) int {
	switch t {
	case TierHigh:
		return s.High
	case TierMedium:
		return s.Medium
	case TierLow:
		return s.Low
	default:
		return 0
	}
}
