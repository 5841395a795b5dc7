package showroom

import (
	"errors"
	"fmt"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/gogpu/showroom/internal/artwork"
)

// NeutralColor is the flat fallback shown when neither a caller color nor
// the placeholder texture is available.
var NeutralColor = color.NRGBA{R: 0x8c, G: 0x8c, B: 0x8c, A: 0xff}

// Outcome is the resolution of a texture request.
type Outcome uint32

const (
	// OutcomePending means the request has not resolved yet.
	OutcomePending Outcome = iota

	// OutcomeApplied means the tier texture is attached to the surface.
	OutcomeApplied

	// OutcomeFallback means the surface shows the fallback appearance.
	OutcomeFallback

	// OutcomeSkipped means no work was done (lazy gate, unknown item,
	// closed manager).
	OutcomeSkipped

	// OutcomeDiscarded means the load finished after it stopped mattering:
	// the item was unregistered, a newer request superseded it, or the
	// manager closed. Nothing was changed.
	OutcomeDiscarded
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeApplied:
		return "applied"
	case OutcomeFallback:
		return "fallback"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("Outcome(%d)", uint32(o))
	}
}

// ApplyOptions adjusts a single ApplyTexture call.
type ApplyOptions struct {
	// Distance overrides the record's distance for tier selection.
	Distance *float64

	// FallbackColor is shown instead of the placeholder pattern if the
	// request fails.
	FallbackColor *color.NRGBA
}

// Request tracks one ApplyTexture call. Requests for the same item and
// tier issued while a decode is in flight share one Request.
//
// Request is safe for concurrent use.
type Request struct {
	item     ItemID
	tier     Tier
	fallback *color.NRGBA

	source  atomic.Uint32 // SourceKind
	once    sync.Once
	outcome atomic.Uint32
	err     error // written before outcome is published
	done    chan struct{}
}

func newRequest(id ItemID, tier Tier, opts ApplyOptions) *Request {
	r := &Request{
		item: id,
		tier: tier,
		done: make(chan struct{}),
	}
	if opts.FallbackColor != nil {
		c := *opts.FallbackColor
		r.fallback = &c
	}
	return r
}

// resolved returns a request that is already settled.
func resolved(id ItemID, tier Tier, o Outcome, err error) *Request {
	r := newRequest(id, tier, ApplyOptions{})
	r.resolve(o, err)
	return r
}

// resolve settles the request. Only the first call has an effect.
func (r *Request) resolve(o Outcome, err error) {
	r.once.Do(func() {
		r.err = err
		r.outcome.Store(uint32(o))
		close(r.done)
	})
}

// Item returns the requested item.
func (r *Request) Item() ItemID { return r.item }

// Tier returns the tier chosen for the request.
func (r *Request) Tier() Tier { return r.tier }

// Source returns the artwork variant the request decoded. While the
// request is pending it is the variant tried first. It is meaningful only
// for requests that reached the decoder.
func (r *Request) Source() SourceKind { return SourceKind(r.source.Load()) }

// Outcome returns the current outcome.
func (r *Request) Outcome() Outcome { return Outcome(r.outcome.Load()) }

// Done returns a channel closed when the request resolves.
func (r *Request) Done() <-chan struct{} { return r.done }

// Err returns the cause of a Fallback, Skipped, or Discarded outcome, or
// nil. It is nil while the request is pending.
func (r *Request) Err() error {
	if r.Outcome() == OutcomePending {
		return nil
	}
	return r.err
}

// errEmptyImage is reported for a decode that produced no pixels.
var errEmptyImage = errors.New("empty image")

// candidate is an artwork variant that passed the magic-byte check.
type candidate struct {
	kind SourceKind
	data []byte
}

// ApplyTexture requests the artwork texture for an item at the tier its
// distance calls for.
//
// The decision is made immediately on the render goroutine: gated requests
// resolve Skipped, requests for the already attached tier resolve Applied,
// and requests without usable artwork resolve Fallback. Otherwise the
// artwork is decoded off the render goroutine and the result is applied by
// a later Reconcile. Variants are tried in SourcePriority order; one that
// is not an image, or fails to decode, gives way to the next.
//
// ApplyTexture never blocks. If the decode executor is full the request
// resolves Skipped with ErrRejected and the item is left as it was, so a
// later frame can ask again. sources must not be modified until the
// request resolves.
func (m *Manager) ApplyTexture(id ItemID, sources Sources, opts ApplyOptions) *Request {
	if m.closed {
		return resolved(id, TierNone, OutcomeSkipped, ErrClosed)
	}

	it, ok := m.registry.get(id)
	if !ok {
		m.log().Debug("showroom: apply for unknown item", "item", id)
		return resolved(id, TierNone, OutcomeSkipped, ErrUnknownItem)
	}

	if !ShouldLoad(it.rec, m.cfg.LazyLoading) {
		m.log().Debug("showroom: load skipped, item off screen", "item", id)
		return resolved(id, TierNone, OutcomeSkipped, nil)
	}

	dist := it.rec.DistanceFromCamera
	if opts.Distance != nil {
		dist = *opts.Distance
	}
	tier := SelectTier(dist, m.cfg.NearDistance, m.cfg.FarDistance)

	if it.latest != nil && it.latest.tier == tier {
		m.log().Debug("showroom: request coalesced", "item", id, "tier", tier)
		return it.latest
	}

	if _, hit := m.cache.Get(cacheKey{item: id, tier: tier}); hit {
		// Already attached. A pending load for another tier is now stale.
		it.latest = nil
		now := m.clock.Now()
		it.rec.LastSeen = now
		it.rec.LastUpdated = now
		it.syncState()
		return resolved(id, tier, OutcomeApplied, nil)
	}

	// A superseded decode for this tier is still running; it becomes the
	// item's latest request again.
	if p := it.pending[tier]; p != nil {
		m.log().Debug("showroom: in-flight request adopted", "item", id, "tier", tier)
		it.latest = p
		it.syncState()
		return p
	}

	req := newRequest(id, tier, opts)
	if it.textured == nil {
		m.fallback(it, req, ErrFlatSurface)
		return req
	}

	candidates, err := m.candidates(id, sources)
	if err != nil {
		m.fallback(it, req, err)
		return req
	}
	req.source.Store(uint32(candidates[0].kind))

	m.inflight++
	if !m.exec.Submit(m.decodeJob(req, candidates)) {
		m.inflight--
		m.log().Debug("showroom: decode queue full, request skipped", "item", id, "tier", tier)
		req.resolve(OutcomeSkipped, ErrRejected)
		return req
	}

	if prev := it.latest; prev != nil {
		m.log().Debug("showroom: request superseded",
			"item", id, "from", prev.tier, "to", tier)
	}
	it.latest = req
	if it.pending == nil {
		it.pending = make(map[Tier]*Request)
	}
	it.pending[tier] = req
	it.syncState()
	return req
}

// candidates returns the variants of sources that look like images, in
// priority order. Only magic bytes are checked; the full decode happens on
// a worker.
func (m *Manager) candidates(id ItemID, sources Sources) ([]candidate, error) {
	kinds := sources.Ranked(m.cfg.SourcePriority)
	if len(kinds) == 0 {
		return nil, ErrNoSource
	}

	var (
		out  []candidate
		errs []error
	)
	for _, kind := range kinds {
		data := sources[kind]
		if _, err := artwork.Sniff(data); err != nil {
			m.log().Debug("showroom: artwork variant skipped",
				"item", id, "source", kind, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		out = append(out, candidate{kind: kind, data: data})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedSource, errors.Join(errs...))
	}
	return out, nil
}

// decodeJob returns the worker function for req. It decodes the candidates
// in order and posts the first image that decodes, or every error.
func (m *Manager) decodeJob(req *Request, candidates []candidate) func() {
	ctx, dec, maxEdge := m.ctx, m.decoder, m.cfg.TierSizes.Size(req.tier)
	return func() {
		c := completion{req: req}
		var errs []error
		for _, cand := range candidates {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			img, err := dec.Decode(ctx, cand.data, maxEdge)
			if err == nil && (img == nil || img.Bounds().Empty()) {
				err = errEmptyImage
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", cand.kind, err))
				continue
			}
			c.img, c.source = img, cand.kind
			break
		}
		if c.img == nil {
			c.err = errors.Join(errs...)
		}
		m.post(c)
	}
}

// complete applies one finished decode. Completions for items that are
// gone, or that are no longer the item's latest request, change nothing.
func (m *Manager) complete(c completion) {
	req := c.req
	it, ok := m.registry.get(req.item)
	if ok && it.pending[req.tier] == req {
		delete(it.pending, req.tier)
	}
	if !ok || it.latest != req {
		m.log().Debug("showroom: stale completion discarded",
			"item", req.item, "tier", req.tier)
		req.resolve(OutcomeDiscarded, nil)
		return
	}
	it.latest = nil

	if c.img == nil {
		err := c.err
		if err == nil {
			err = errEmptyImage
		}
		m.fallback(it, req, fmt.Errorf("%w: %w", ErrDecode, err))
		return
	}
	req.source.Store(uint32(c.source))

	tex, err := m.uploader.Upload(c.img)
	if err != nil {
		m.fallback(it, req, fmt.Errorf("%w: %w", ErrUpload, err))
		return
	}

	m.attach(it, req.tier, tex)
	req.resolve(OutcomeApplied, nil)
}

// attach puts tex on the item's surface and makes it the item's cache
// entry, destroying the texture it replaces.
func (m *Manager) attach(it *item, tier Tier, tex Texture) {
	old := m.take(it, false)

	size := artwork.ByteSize(tex.Width(), tex.Height(), textureFormat(tex))
	if prev, replaced := m.cache.Put(cacheKey{item: it.id, tier: tier}, tex, size); replaced && prev != tex {
		prev.Destroy()
	}
	it.textured.SetTexture(tex)
	if old != nil {
		old.Destroy()
	}

	now := m.clock.Now()
	it.attached = tier
	it.neutral = false
	it.rec.TextureLoaded = true
	it.rec.CurrentTier = tier
	it.rec.LastUpdated = now
	it.rec.LastSeen = now
	it.syncState()
}

// take removes the item's cache entry and returns its texture, or nil.
// The surface is not touched.
func (m *Manager) take(it *item, evict bool) Texture {
	if it.attached == TierNone {
		return nil
	}

	key := cacheKey{item: it.id, tier: it.attached}
	var (
		tex Texture
		ok  bool
	)
	if evict {
		tex, ok = m.cache.Evict(key)
	} else {
		tex, ok = m.cache.Remove(key)
	}

	it.attached = TierNone
	it.rec.TextureLoaded = false
	it.rec.CurrentTier = TierNone
	it.syncState()
	if !ok {
		return nil
	}
	return tex
}

// unload detaches and destroys the item's texture. It reports whether
// there was one.
func (m *Manager) unload(it *item, evict bool) bool {
	tex := m.take(it, evict)
	if tex == nil {
		return false
	}
	it.textured.SetTexture(nil)
	tex.Destroy()
	it.rec.LastUpdated = m.clock.Now()
	return true
}

// fallback shows the fallback appearance on the item's surface and
// resolves req with err. req is the item's newest decision, so any load
// still in flight for the item becomes stale.
func (m *Manager) fallback(it *item, req *Request, err error) {
	it.latest = nil
	old := m.take(it, false)

	switch {
	case it.textured == nil:
		c := NeutralColor
		if req.fallback != nil {
			c = *req.fallback
		}
		it.surface.SetColor(c)

	case req.fallback != nil:
		it.textured.SetTexture(nil)
		it.textured.SetColor(*req.fallback)
		it.neutral = false

	default:
		if ph := m.neutralTexture(); ph != nil {
			it.textured.SetTexture(ph)
			it.neutral = true
		} else {
			it.textured.SetTexture(nil)
			it.textured.SetColor(NeutralColor)
			it.neutral = false
		}
	}
	if old != nil {
		old.Destroy()
	}

	it.rec.LastUpdated = m.clock.Now()
	it.syncState()
	m.fallbacks++

	m.log().Warn("showroom: showing fallback appearance",
		"item", it.id, "tier", req.tier, "error", err)
	req.resolve(OutcomeFallback, err)
}
