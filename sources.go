package showroom

import (
	"fmt"

	"golang.org/x/text/cases"
)

// SourceKind names one of the artwork variants a product may ship with.
type SourceKind uint8

const (
	// SourceLibrary is the tall library cover, the highest-fidelity art.
	SourceLibrary SourceKind = iota

	// SourceHeader is the wide store header banner.
	SourceHeader

	// SourceLogo is the transparent title logo.
	SourceLogo

	// SourceIcon is the small square icon.
	SourceIcon

	sourceKindCount
)

var sourceKindNames = [sourceKindCount]string{
	SourceLibrary: "library",
	SourceHeader:  "header",
	SourceLogo:    "logo",
	SourceIcon:    "icon",
}

// String returns the source kind name.
func (k SourceKind) String() string {
	if k < sourceKindCount {
		return sourceKindNames[k]
	}
	return fmt.Sprintf("SourceKind(%d)", uint8(k))
}

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	return k < sourceKindCount
}

// MarshalText implements encoding.TextMarshaler.
func (k SourceKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("showroom: invalid source kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Names are matched
// case-insensitively.
func (k *SourceKind) UnmarshalText(text []byte) error {
	name := cases.Fold().String(string(text))
	for i, n := range sourceKindNames {
		if n == name {
			*k = SourceKind(i)
			return nil
		}
	}
	return fmt.Errorf("showroom: unknown source kind %q", text)
}

// DefaultSourcePriority is the order in which artwork variants are tried,
// highest fidelity first.
func DefaultSourcePriority() []SourceKind {
	return []SourceKind{SourceLibrary, SourceHeader, SourceLogo, SourceIcon}
}

// Sources holds the raw encoded artwork available for one product.
// Missing or empty variants are expected and skipped.
type Sources map[SourceKind][]byte

// Ranked returns the kinds that have data, in priority order.
// Kinds missing from priority are ignored.
func (s Sources) Ranked(priority []SourceKind) []SourceKind {
	var kinds []SourceKind
	for _, k := range priority {
		if len(s[k]) > 0 {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
