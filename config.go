package showroom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/cases"
)

// OvershootPolicy decides what the capacity sweep does once every
// off-screen texture is gone and the budget is still exceeded.
type OvershootPolicy uint8

const (
	// OvershootTolerate leaves visible items' textures resident and accepts
	// the overshoot until visibility changes. This is the default.
	OvershootTolerate OvershootPolicy = iota

	// OvershootEvictVisible keeps evicting, taking visible items
	// farthest-first (oldest first among equal distances), until the budget
	// is met. Visible products lose their artwork under this policy.
	OvershootEvictVisible
)

// String returns the policy name used in config files.
func (p OvershootPolicy) String() string {
	switch p {
	case OvershootTolerate:
		return "tolerate"
	case OvershootEvictVisible:
		return "evict-visible"
	default:
		return fmt.Sprintf("OvershootPolicy(%d)", uint8(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p OvershootPolicy) MarshalText() ([]byte, error) {
	if p > OvershootEvictVisible {
		return nil, fmt.Errorf("showroom: invalid overshoot policy %d", uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *OvershootPolicy) UnmarshalText(text []byte) error {
	switch cases.Fold().String(string(text)) {
	case "tolerate":
		*p = OvershootTolerate
	case "evict-visible":
		*p = OvershootEvictVisible
	default:
		return fmt.Errorf("showroom: unknown overshoot policy %q", text)
	}
	return nil
}

// Default configuration values.
const (
	DefaultMaxActiveTextures = 50
	DefaultNearDistance      = 5.0
	DefaultFarDistance       = 15.0
	DefaultHighSize          = 512
	DefaultMediumSize        = 256
	DefaultLowSize           = 128
	DefaultStaleThreshold    = 30 * time.Second
	DefaultPlaceholderSize   = 64
)

// Config holds the budgets and thresholds of a Manager.
// A Manager copies its Config at construction; to change settings, close
// the manager and create a new one.
type Config struct {
	// MaxActiveTextures is the ceiling on resident textures enforced by
	// the capacity sweep.
	MaxActiveTextures int

	// NearDistance and FarDistance are the tier thresholds (world units).
	NearDistance float64
	FarDistance  float64

	// TierSizes is the long-edge pixel size of each tier.
	TierSizes TierSizes

	// StaleThreshold is how long an off-screen item keeps its texture
	// before the staleness sweep unloads it.
	StaleThreshold time.Duration

	// LazyLoading skips loads for items outside the frustum.
	LazyLoading bool

	// Overshoot selects the capacity sweep's behavior when only visible
	// items remain.
	Overshoot OvershootPolicy

	// DecodeWorkers is the number of decode goroutines; 0 picks a default.
	DecodeWorkers int

	// SourcePriority is the order in which artwork variants are tried.
	SourcePriority []SourceKind

	// PlaceholderSize is the edge length of the neutral fallback pattern.
	PlaceholderSize int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxActiveTextures: DefaultMaxActiveTextures,
		NearDistance:      DefaultNearDistance,
		FarDistance:       DefaultFarDistance,
		TierSizes: TierSizes{
			High:   DefaultHighSize,
			Medium: DefaultMediumSize,
			Low:    DefaultLowSize,
		},
		StaleThreshold:  DefaultStaleThreshold,
		LazyLoading:     true,
		Overshoot:       OvershootTolerate,
		SourcePriority:  DefaultSourcePriority(),
		PlaceholderSize: DefaultPlaceholderSize,
	}
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.MaxActiveTextures < 1:
		return fmt.Errorf("%w: max active textures %d < 1", ErrInvalidConfig, c.MaxActiveTextures)
	case math.IsNaN(c.NearDistance) || math.IsNaN(c.FarDistance):
		return fmt.Errorf("%w: NaN tier distance (near %g, far %g)", ErrInvalidConfig, c.NearDistance, c.FarDistance)
	case c.NearDistance < 0:
		return fmt.Errorf("%w: near distance %g < 0", ErrInvalidConfig, c.NearDistance)
	case c.FarDistance < c.NearDistance:
		return fmt.Errorf("%w: far distance %g < near distance %g", ErrInvalidConfig, c.FarDistance, c.NearDistance)
	case c.TierSizes.Low < 1 || c.TierSizes.Medium < c.TierSizes.Low || c.TierSizes.High < c.TierSizes.Medium:
		return fmt.Errorf("%w: tier sizes must satisfy 1 <= low <= medium <= high, got %+v", ErrInvalidConfig, c.TierSizes)
	case c.StaleThreshold < 0:
		return fmt.Errorf("%w: stale threshold %v < 0", ErrInvalidConfig, c.StaleThreshold)
	case c.Overshoot > OvershootEvictVisible:
		return fmt.Errorf("%w: overshoot policy %d", ErrInvalidConfig, uint8(c.Overshoot))
	case c.DecodeWorkers < 0:
		return fmt.Errorf("%w: decode workers %d < 0", ErrInvalidConfig, c.DecodeWorkers)
	case len(c.SourcePriority) == 0:
		return fmt.Errorf("%w: empty source priority", ErrInvalidConfig)
	case c.PlaceholderSize < 1:
		return fmt.Errorf("%w: placeholder size %d < 1", ErrInvalidConfig, c.PlaceholderSize)
	}

	seen := make(map[SourceKind]bool, len(c.SourcePriority))
	for _, k := range c.SourcePriority {
		if !k.Valid() {
			return fmt.Errorf("%w: source kind %d", ErrInvalidConfig, uint8(k))
		}
		if seen[k] {
			return fmt.Errorf("%w: duplicate source kind %s", ErrInvalidConfig, k)
		}
		seen[k] = true
	}
	return nil
}

// fileConfig is the TOML shape of Config. Every field is optional; absent
// fields keep their DefaultConfig value.
type fileConfig struct {
	MaxActiveTextures *int             `toml:"max_active_textures"`
	NearDistance      *float64         `toml:"near_distance"`
	FarDistance       *float64         `toml:"far_distance"`
	TierSizes         *fileTierSizes   `toml:"tier_sizes"`
	StaleThresholdMS  *int64           `toml:"stale_threshold_ms"`
	LazyLoading       *bool            `toml:"lazy_loading"`
	Overshoot         *OvershootPolicy `toml:"overshoot"`
	DecodeWorkers     *int             `toml:"decode_workers"`
	SourcePriority    []SourceKind     `toml:"source_priority"`
	PlaceholderSize   *int             `toml:"placeholder_size"`
}

type fileTierSizes struct {
	High   *int `toml:"high"`
	Medium *int `toml:"medium"`
	Low    *int `toml:"low"`
}

// ParseConfig reads a TOML configuration, starting from DefaultConfig.
// Unknown keys are rejected so typos do not silently fall back to defaults.
//
// Example:
//
//	max_active_textures = 40
//	near_distance = 2.0
//	far_distance = 10.0
//	stale_threshold_ms = 15000
//	overshoot = "tolerate"
//	source_priority = ["header", "library", "icon"]
//
//	[tier_sizes]
//	high = 1024
func ParseConfig(r io.Reader) (Config, error) {
	var fc fileConfig
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, strict.String())
		}
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg := DefaultConfig()
	fc.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a TOML configuration file. See ParseConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("showroom: read config: %w", err)
	}
	return ParseConfig(bytes.NewReader(data))
}

func (fc *fileConfig) apply(cfg *Config) {
	if fc.MaxActiveTextures != nil {
		cfg.MaxActiveTextures = *fc.MaxActiveTextures
	}
	if fc.NearDistance != nil {
		cfg.NearDistance = *fc.NearDistance
	}
	if fc.FarDistance != nil {
		cfg.FarDistance = *fc.FarDistance
	}
	if ts := fc.TierSizes; ts != nil {
		if ts.High != nil {
			cfg.TierSizes.High = *ts.High
		}
		if ts.Medium != nil {
			cfg.TierSizes.Medium = *ts.Medium
		}
		if ts.Low != nil {
			cfg.TierSizes.Low = *ts.Low
		}
	}
	if fc.StaleThresholdMS != nil {
		cfg.StaleThreshold = time.Duration(*fc.StaleThresholdMS) * time.Millisecond
	}
	if fc.LazyLoading != nil {
		cfg.LazyLoading = *fc.LazyLoading
	}
	if fc.Overshoot != nil {
		cfg.Overshoot = *fc.Overshoot
	}
	if fc.DecodeWorkers != nil {
		cfg.DecodeWorkers = *fc.DecodeWorkers
	}
	if fc.SourcePriority != nil {
		cfg.SourcePriority = fc.SourcePriority
	}
	if fc.PlaceholderSize != nil {
		cfg.PlaceholderSize = *fc.PlaceholderSize
	}
}
