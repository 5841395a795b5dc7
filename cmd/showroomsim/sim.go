package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/gogpu/showroom"
)

// Aisle layout in world units.
const (
	aisleHalfWidth = 2.5
	slotSpacing    = 1.5
	shelfHeights   = 3
	eyeHeight      = 1.6
)

// product is one item on a shelf.
type product struct {
	pos     showroom.FixedPosition
	art     showroom.Sources
	surface *surface
	id      showroom.ItemID

	// last is the most recent request that did work, nil before the first.
	last *showroom.Request
}

// wants reports whether p needs an ApplyTexture call to show tier. Loads in
// flight, the attached tier, and a fallback already shown for the tier are
// left alone; a skipped request is retried.
func (p *product) wants(rec showroom.PerformanceRecord, tier showroom.Tier) bool {
	switch {
	case rec.State == showroom.StateLoading:
		return false
	case rec.State == showroom.StateLoaded && rec.CurrentTier == tier:
		return false
	case p.last != nil && p.last.Tier() == tier && p.last.Outcome() == showroom.OutcomeFallback:
		return false
	}
	return true
}

// surface is a headless showroom.TextureSurface.
type surface struct {
	tex   showroom.Texture
	color color.NRGBA
}

func (s *surface) SetTexture(tex showroom.Texture) { s.tex = tex }
func (s *surface) SetColor(c color.NRGBA)          { s.color = c }

// store is the set of products along both sides of the aisle.
type store struct {
	products []*product
	length   float64
}

// newStore lays out n products on both walls and generates their artwork.
func newStore(n int, seed int64, missing, corrupt float64) *store {
	rng := rand.New(rand.NewPCG(uint64(seed), 0x5eed))
	s := &store{}

	perColumn := 2 * shelfHeights
	for i := range n {
		column := i / perColumn
		slot := i % perColumn
		side := -1.0
		if slot%2 == 1 {
			side = 1
		}
		y := 0.8 + float64(slot/2)*0.7
		z := -float64(column) * slotSpacing

		p := &product{
			pos:     showroom.FixedPosition(showroom.V3(side*aisleHalfWidth, y, z)),
			surface: &surface{},
		}
		switch r := rng.Float64(); {
		case r < missing:
			p.art = showroom.Sources{}
		case r < missing+corrupt:
			p.art = showroom.Sources{showroom.SourceLibrary: []byte("\x89PNG\r\n\x1a\ntruncated")}
			if rng.IntN(2) == 0 {
				// The decoder falls through to the icon.
				p.art[showroom.SourceIcon] = solidPNG(64, 64, color.NRGBA{R: 0x80, A: 0xff})
			}
		default:
			p.art = artwork(rng)
		}
		s.products = append(s.products, p)
		s.length = max(s.length, -z)
	}
	return s
}

// artwork generates a random set of product images. Not every product has
// every variant.
func artwork(rng *rand.Rand) showroom.Sources {
	base := color.NRGBA{
		R: uint8(rng.IntN(256)),
		G: uint8(rng.IntN(256)),
		B: uint8(rng.IntN(256)),
		A: 0xff,
	}
	src := showroom.Sources{
		showroom.SourceIcon: solidPNG(64, 64, base),
	}
	if rng.IntN(4) != 0 {
		src[showroom.SourceLibrary] = solidPNG(600, 900, base)
	}
	if rng.IntN(2) == 0 {
		src[showroom.SourceHeader] = solidPNG(920, 430, base)
	}
	return src
}

func solidPNG(w, h int, c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			// A diagonal band so the resampler has something to do.
			shade := c
			if (x+y)/16%2 == 0 {
				shade.R /= 2
				shade.G /= 2
				shade.B /= 2
			}
			img.SetNRGBA(x, y, shade)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(fmt.Sprintf("encode artwork: %v", err))
	}
	return buf.Bytes()
}

// simClock advances only when the simulation steps.
type simClock struct {
	now time.Time
}

func newSimClock() *simClock {
	return &simClock{now: time.Unix(0, 0).UTC()}
}

func (c *simClock) Now() time.Time          { return c.now }
func (c *simClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// simulation drives one manager over the store.
type simulation struct {
	store  *store
	clock  *simClock
	fps    int
	speed  float64
	logger *slog.Logger

	m   *showroom.Manager
	cfg showroom.Config
}

// start creates a manager with cfg and registers every product.
func (s *simulation) start(cfg showroom.Config) error {
	m, err := showroom.New(cfg, showroom.WithClock(s.clock))
	if err != nil {
		return err
	}
	ids := make([]showroom.ItemID, len(s.store.products))
	for i, p := range s.store.products {
		if ids[i], err = m.Register(p.pos, p.surface); err != nil {
			m.Close()
			return err
		}
	}
	for i, p := range s.store.products {
		p.id = ids[i]
		p.last = nil
	}
	s.m = m
	s.cfg = m.Config()
	return nil
}

// restart replaces the manager with one built from cfg. The old manager
// releases every texture; the new one reloads what is on screen.
func (s *simulation) restart(cfg showroom.Config) error {
	old, oldCfg := s.m, s.cfg
	if err := s.start(cfg); err != nil {
		s.m, s.cfg = old, oldCfg
		return err
	}
	old.Close()
	s.logger.Info("config reloaded",
		"max_active_textures", cfg.MaxActiveTextures,
		"near", cfg.NearDistance,
		"far", cfg.FarDistance)
	return nil
}

// camera returns the view for frame i: walking down the aisle and back,
// glancing left and right.
func (s *simulation) camera(i int) showroom.Camera {
	t := float64(i) / float64(s.fps)

	// Ping-pong along the aisle.
	span := max(s.store.length, slotSpacing)
	d := math.Mod(t*s.speed, 2*span)
	dir := -1.0
	if d > span {
		d = 2*span - d
		dir = 1
	}

	eye := showroom.V3(0, eyeHeight, -d)
	yaw := 0.6 * math.Sin(t*0.7)
	look := showroom.V3(math.Sin(yaw), 0, dir*math.Cos(yaw))

	proj := showroom.Perspective(math.Pi/3, 16.0/9.0, 0.1, 60)
	view := showroom.LookAt(eye, eye.Add(look), showroom.V3(0, 1, 0))
	return showroom.NewCamera(eye, proj, view)
}

// step runs frame i.
func (s *simulation) step(i int) {
	s.clock.Advance(time.Second / time.Duration(s.fps))
	s.m.UpdatePerformanceData(s.camera(i))

	for _, p := range s.store.products {
		rec, ok := s.m.Record(p.id)
		if !ok || !rec.IsVisible {
			continue
		}
		tier := showroom.SelectTier(rec.DistanceFromCamera, s.cfg.NearDistance, s.cfg.FarDistance)
		if !p.wants(rec, tier) {
			continue
		}
		if req := s.m.ApplyTexture(p.id, p.art, showroom.ApplyOptions{}); req.Outcome() != showroom.OutcomeSkipped {
			p.last = req
		}
	}

	if (i+1)%s.fps == 0 {
		evicted := s.m.CleanupOffScreenTextures()
		s.logger.Info("tick",
			"t", s.clock.Now().Sub(time.Unix(0, 0)).String(),
			"evicted", evicted,
			"stats", s.m.GetStats().String())
	}
}
