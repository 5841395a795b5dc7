package showroom

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/showroom/internal/artwork"
)

func ptr[T any](v T) *T { return &v }

func isDone(req *Request) bool {
	select {
	case <-req.Done():
		return true
	default:
		return false
	}
}

func TestApplyTexture_RoundTrip(t *testing.T) {
	r := newRig(t, testConfig(), nil)
	pos := at(3)
	id, surf := r.register(t, pos)
	r.tick()

	req := r.m.ApplyTexture(id, r.art, ApplyOptions{})
	if req.Tier() != TierHigh {
		t.Errorf("Tier() = %v, want %v", req.Tier(), TierHigh)
	}
	if got := r.m.Reconcile(); got != 1 {
		t.Errorf("Reconcile() = %d, want 1", got)
	}
	if got := req.Outcome(); got != OutcomeApplied {
		t.Fatalf("Outcome() = %v, want %v (err %v)", got, OutcomeApplied, req.Err())
	}
	if !isDone(req) {
		t.Error("Done() not closed after resolution")
	}

	rec, _ := r.m.Record(id)
	if !rec.TextureLoaded || rec.CurrentTier != TierHigh || rec.State != StateLoaded {
		t.Errorf("record after load = %+v, want loaded at high", rec)
	}
	tex, ok := surf.tex.(*fakeTexture)
	if !ok {
		t.Fatalf("surface texture = %T, want *fakeTexture", surf.tex)
	}

	pos.hide()
	r.tick()
	r.clock.Advance(31 * time.Second)
	if got := r.m.EvictStale(); got != 1 {
		t.Fatalf("EvictStale() = %d, want 1", got)
	}

	rec, _ = r.m.Record(id)
	if rec.TextureLoaded || rec.CurrentTier != TierNone || rec.State != StateNoTexture {
		t.Errorf("record after eviction = %+v, want no texture", rec)
	}
	if surf.tex != nil {
		t.Error("surface still shows a texture after eviction")
	}
	if tex.destroyed != 1 {
		t.Errorf("texture destroyed %d times, want 1", tex.destroyed)
	}
}

func TestApplyTexture_LazySkipsInvisible(t *testing.T) {
	r := newRig(t, testConfig(), nil)
	id, surf := r.register(t, &movable{p: V3(0, 0, 3)})
	r.tick()
	before, _ := r.m.Record(id)

	req := r.m.ApplyTexture(id, r.art, ApplyOptions{})

	if got := req.Outcome(); got != OutcomeSkipped {
		t.Errorf("Outcome() = %v, want %v", got, OutcomeSkipped)
	}
	if req.Err() != nil {
		t.Errorf("Err() = %v, want nil", req.Err())
	}
	if got := r.dec.calls.Load(); got != 0 {
		t.Errorf("decoder called %d times, want 0", got)
	}
	if after, _ := r.m.Record(id); after != before {
		t.Errorf("record changed: %+v -> %+v", before, after)
	}
	if surf.textureCalls != 0 || surf.colorSet {
		t.Error("surface touched by a skipped request")
	}
}

func TestApplyTexture_EagerLoadsInvisible(t *testing.T) {
	cfg := testConfig()
	cfg.LazyLoading = false
	r := newRig(t, cfg, nil)
	id, _ := r.register(t, &movable{p: V3(0, 0, 3)})
	r.tick()

	r.load(t, id)
}

func TestApplyTexture_Idempotent(t *testing.T) {
	exec := &manualExecutor{}
	r := newRig(t, testConfig(), exec)
	id, _ := r.register(t, at(3))
	r.tick()

	first := r.m.ApplyTexture(id, r.art, ApplyOptions{})
	second := r.m.ApplyTexture(id, r.art, ApplyOptions{})
	if first != second {
		t.Error("duplicate in-flight request was not coalesced")
	}
	if rec, _ := r.m.Record(id); rec.State != StateLoading {
		t.Errorf("State = %v, want %v", rec.State, StateLoading)
	}

	exec.run()
	r.m.Reconcile()

	if got := first.Outcome(); got != OutcomeApplied {
		t.Fatalf("Outcome() = %v, want %v", got, OutcomeApplied)
	}

	third := r.m.ApplyTexture(id, r.art, ApplyOptions{})
	if got := third.Outcome(); got != OutcomeApplied {
		t.Errorf("cached Outcome() = %v, want %v", got, OutcomeApplied)
	}
	if got := r.dec.calls.Load(); got != 1 {
		t.Errorf("decoder called %d times, want 1", got)
	}
	if got := len(exec.jobs); got != 0 {
		t.Errorf("cached request queued %d jobs, want 0", got)
	}
	stats := r.m.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Hits, Misses = %d, %d, want 1, 1", stats.Hits, stats.Misses)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", stats.HitRate)
	}
}

func TestApplyTexture_SupersededDiscarded(t *testing.T) {
	exec := &manualExecutor{}
	r := newRig(t, testConfig(), exec)
	id, _ := r.register(t, at(3))
	r.tick()

	high := r.m.ApplyTexture(id, r.art, ApplyOptions{Distance: ptr(1.0)})
	low := r.m.ApplyTexture(id, r.art, ApplyOptions{Distance: ptr(20.0)})
	if high == low {
		t.Fatal("requests for different tiers were coalesced")
	}

	exec.run()
	r.m.Reconcile()

	if got := high.Outcome(); got != OutcomeDiscarded {
		t.Errorf("superseded Outcome() = %v, want %v", got, OutcomeDiscarded)
	}
	if got := low.Outcome(); got != OutcomeApplied {
		t.Errorf("latest Outcome() = %v, want %v", got, OutcomeApplied)
	}
	rec, _ := r.m.Record(id)
	if rec.CurrentTier != TierLow {
		t.Errorf("CurrentTier = %v, want %v", rec.CurrentTier, TierLow)
	}
	if got := len(r.up.uploads); got != 1 {
		t.Errorf("uploads = %d, want 1", got)
	}
	if got := r.m.GetStats().ActiveTextureCount; got != 1 {
		t.Errorf("ActiveTextureCount = %d, want 1", got)
	}
}

func TestApplyTexture_OutOfOrderCompletion(t *testing.T) {
	exec := &manualExecutor{}
	r := newRig(t, testConfig(), exec)
	id, _ := r.register(t, at(3))
	r.tick()

	stale := r.m.ApplyTexture(id, r.art, ApplyOptions{Distance: ptr(1.0)})
	latest := r.m.ApplyTexture(id, r.art, ApplyOptions{Distance: ptr(20.0)})

	// Newest decode finishes first.
	jobs := exec.jobs
	exec.jobs = nil
	jobs[1]()
	r.m.Reconcile()
	jobs[0]()
	r.m.Reconcile()

	if got := latest.Outcome(); got != OutcomeApplied {
		t.Errorf("latest Outcome() = %v, want %v", got, OutcomeApplied)
	}
	if got := stale.Outcome(); got != OutcomeDiscarded {
		t.Errorf("stale Outcome() = %v, want %v", got, OutcomeDiscarded)
	}
	if rec, _ := r.m.Record(id); rec.CurrentTier != TierLow {
		t.Errorf("CurrentTier = %v, want %v", rec.CurrentTier, TierLow)
	}
}

func TestApplyTexture_UnregisterDiscards(t *testing.T) {
	exec := &manualExecutor{}
	r := newRig(t, testConfig(), exec)
	id, surf := r.register(t, at(3))
	r.tick()

	req := r.m.ApplyTexture(id, r.art, ApplyOptions{})
	r.m.Unregister(id)
	exec.run()
	r.m.Reconcile()

	if got := req.Outcome(); got != OutcomeDiscarded {
		t.Errorf("Outcome() = %v, want %v", got, OutcomeDiscarded)
	}
	if surf.textureCalls != 0 {
		t.Errorf("surface SetTexture called %d times, want 0", surf.textureCalls)
	}
	if got := len(r.up.uploads); got != 0 {
		t.Errorf("uploads = %d, want 0", got)
	}
	if got := r.m.InFlight(); got != 0 {
		t.Errorf("InFlight() = %d, want 0", got)
	}
}

func TestApplyTexture_CachedTierDiscardsPendingTier(t *testing.T) {
	exec := &manualExecutor{}
	r := newRig(t, testConfig(), exec)
	id, _ := r.register(t, at(3))
	r.tick()

	r.m.ApplyTexture(id, r.art, ApplyOptions{})
	exec.run()
	r.m.Reconcile()

	low := r.m.ApplyTexture(id, r.art, ApplyOptions{Distance: ptr(20.0)})
	back := r.m.ApplyTexture(id, r.art, ApplyOptions{})
	if got := back.Outcome(); got != OutcomeApplied {
		t.Errorf("cached Outcome() = %v, want %v", got, OutcomeApplied)
	}

	exec.run()
	r.m.Reconcile()

	if got := low.Outcome(); got != OutcomeDiscarded {
		t.Errorf("pending Outcome() = %v, want %v", got, OutcomeDiscarded)
	}
	if rec, _ := r.m.Record(id); rec.CurrentTier != TierHigh || rec.State != StateLoaded {
		t.Errorf("record = %+v, want loaded at high", rec)
	}
}

func TestApplyTexture_TierChangeReplacesTexture(t *testing.T) {
	r := newRig(t, testConfig(), nil)
	id, surf := r.register(t, at(3))
	r.tick()
	r.load(t, id)
	old := surf.tex.(*fakeTexture)

	req := r.m.ApplyTexture(id, r.art, ApplyOptions{Distance: ptr(20.0)})
	r.m.Reconcile()

	if got := req.Outcome(); got != OutcomeApplied {
		t.Fatalf("Outcome() = %v, want %v", got, OutcomeApplied)
	}
	if old.destroyed != 1 {
		t.Errorf("old texture destroyed %d times, want 1", old.destroyed)
	}
	if surf.tex == Texture(old) {
		t.Error("surface still shows the old texture")
	}
	rec, _ := r.m.Record(id)
	if rec.CurrentTier != TierLow {
		t.Errorf("CurrentTier = %v, want %v", rec.CurrentTier, TierLow)
	}
	if got := r.m.GetStats().ActiveTextureCount; got != 1 {
		t.Errorf("ActiveTextureCount = %d, want 1", got)
	}
}

func TestApplyTexture_TierSizePreservesAspect(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		wantW    int
		wantH    int
	}{
		{"high", 1, 32, 16},
		{"medium", 10, 16, 8},
		{"low", 50, 8, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, testConfig(), nil)
			id, surf := r.register(t, at(3))
			r.tick()

			req := r.m.ApplyTexture(id, r.art, ApplyOptions{Distance: ptr(tt.distance)})
			r.m.Reconcile()
			if req.Outcome() != OutcomeApplied {
				t.Fatalf("Outcome() = %v, want %v", req.Outcome(), OutcomeApplied)
			}
			if w, h := surf.tex.Width(), surf.tex.Height(); w != tt.wantW || h != tt.wantH {
				t.Errorf("texture size = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestApplyTexture_SmallSourceNotUpscaled(t *testing.T) {
	r := newRig(t, testConfig(), nil)
	r.art = Sources{SourceIcon: encodePNG(t, 10, 6)}
	id, surf := r.register(t, at(1))
	r.tick()
	r.load(t, id)

	if w, h := surf.tex.Width(), surf.tex.Height(); w != 10 || h != 6 {
		t.Errorf("texture size = %dx%d, want 10x6", w, h)
	}
}

func TestApplyTexture_Fallback(t *testing.T) {
	corruptPNG := append([]byte("\x89PNG\r\n\x1a\n"), []byte("definitely not chunks")...)

	tests := []struct {
		name    string
		sources Sources
		decErr  error
		wantErr error
	}{
		{"no source", Sources{}, nil, ErrNoSource},
		{"only empty sources", Sources{SourceLibrary: nil, SourceIcon: {}}, nil, ErrNoSource},
		{"unsupported bytes", Sources{SourceLibrary: []byte("plain text, not an image")}, nil, ErrUnsupportedSource},
		{"corrupt png", Sources{SourceLibrary: corruptPNG}, nil, ErrDecode},
		{"decoder error", nil, errors.New("boom"), ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, testConfig(), nil)
			r.dec.err = tt.decErr
			sources := tt.sources
			if sources == nil {
				sources = r.art
			}
			id, surf := r.register(t, at(3))
			r.tick()

			req := r.m.ApplyTexture(id, sources, ApplyOptions{})
			r.m.Reconcile()

			if got := req.Outcome(); got != OutcomeFallback {
				t.Fatalf("Outcome() = %v, want %v", got, OutcomeFallback)
			}
			if !errors.Is(req.Err(), tt.wantErr) {
				t.Errorf("Err() = %v, want %v", req.Err(), tt.wantErr)
			}

			ph, ok := surf.tex.(*fakeTexture)
			if !ok {
				t.Fatalf("surface texture = %T, want placeholder", surf.tex)
			}
			if ph.w != DefaultPlaceholderSize || ph.h != DefaultPlaceholderSize {
				t.Errorf("placeholder = %dx%d, want %dx%d", ph.w, ph.h, DefaultPlaceholderSize, DefaultPlaceholderSize)
			}

			rec, _ := r.m.Record(id)
			if rec.TextureLoaded || rec.CurrentTier != TierNone || rec.State != StateNoTexture {
				t.Errorf("record = %+v, want no texture", rec)
			}
			stats := r.m.GetStats()
			if stats.Fallbacks != 1 {
				t.Errorf("Fallbacks = %d, want 1", stats.Fallbacks)
			}
			if stats.ActiveTextureCount != 0 {
				t.Errorf("ActiveTextureCount = %d, want 0 (placeholder is not cached)", stats.ActiveTextureCount)
			}
		})
	}
}

func TestApplyTexture_PlaceholderShared(t *testing.T) {
	r := newRig(t, testConfig(), nil)
	a, surfA := r.register(t, at(2))
	b, surfB := r.register(t, at(4))
	r.tick()

	r.m.ApplyTexture(a, Sources{}, ApplyOptions{})
	r.m.ApplyTexture(b, Sources{}, ApplyOptions{})

	if surfA.tex == nil || surfA.tex != surfB.tex {
		t.Error("fallback surfaces do not share the placeholder texture")
	}
	if got := len(r.up.uploads); got != 1 {
		t.Errorf("uploads = %d, want 1", got)
	}

	r.m.Close()
	if got := r.up.uploads[0].destroyed; got != 1 {
		t.Errorf("placeholder destroyed %d times, want 1", got)
	}
	if surfA.tex != nil || surfB.tex != nil {
		t.Error("surfaces still show the placeholder after Close")
	}
}

func TestApplyTexture_FallbackColor(t *testing.T) {
	r := newRig(t, testConfig(), nil)
	id, surf := r.register(t, at(3))
	r.tick()

	red := color.NRGBA{R: 0xff, A: 0xff}
	req := r.m.ApplyTexture(id, Sources{}, ApplyOptions{FallbackColor: &red})

	if got := req.Outcome(); got != OutcomeFallback {
		t.Fatalf("Outcome() = %v, want %v", got, OutcomeFallback)
	}
	if surf.tex != nil {
		t.Error("surface shows a texture, want flat color")
	}
	if !surf.colorSet || surf.color != red {
		t.Errorf("surface color = %v, want %v", surf.color, red)
	}
	if got := len(r.up.uploads); got != 0 {
		t.Errorf("uploads = %d, want 0", got)
	}
}

func TestApplyTexture_FallbackDropsPreviousTexture(t *testing.T) {
	r := newRig(t, testConfig(), nil)
	id, _ := r.register(t, at(3))
	r.tick()
	r.load(t, id)
	old := r.up.uploads[0]

	req := r.m.ApplyTexture(id, Sources{}, ApplyOptions{Distance: ptr(20.0)})

	if got := req.Outcome(); got != OutcomeFallback {
		t.Fatalf("Outcome() = %v, want %v", got, OutcomeFallback)
	}
	if old.destroyed != 1 {
		t.Errorf("previous texture destroyed %d times, want 1", old.destroyed)
	}
	rec, _ := r.m.Record(id)
	if rec.TextureLoaded || rec.CurrentTier != TierNone {
		t.Errorf("record = %+v, want no texture", rec)
	}
	if got := r.m.GetStats().ActiveTextureCount; got != 0 {
		t.Errorf("ActiveTextureCount = %d, want 0", got)
	}
}

func TestApplyTexture_FlatSurface(t *testing.T) {
	r := newRig(t, testConfig(), nil)
	surf := &flatSurface{}
	id, err := r.m.Register(at(3), surf)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	r.tick()

	req := r.m.ApplyTexture(id, r.art, ApplyOptions{})

	if got := req.Outcome(); got != OutcomeFallback {
		t.Fatalf("Outcome() = %v, want %v", got, OutcomeFallback)
	}
	if !errors.Is(req.Err(), ErrFlatSurface) {
		t.Errorf("Err() = %v, want %v", req.Err(), ErrFlatSurface)
	}
	if !surf.colorSet || surf.color != NeutralColor {
		t.Errorf("surface color = %v, want %v", surf.color, NeutralColor)
	}
	if got := r.dec.calls.Load(); got != 0 {
		t.Errorf("decoder called %d times, want 0", got)
	}
}

func TestApplyTexture_UploadFailure(t *testing.T) {
	r := newRig(t, testConfig(), nil)
	r.up.fail = true
	id, surf := r.register(t, at(3))
	r.tick()

	req := r.m.ApplyTexture(id, r.art, ApplyOptions{})
	r.m.Reconcile()

	if got := req.Outcome(); got != OutcomeFallback {
		t.Fatalf("Outcome() = %v, want %v", got, OutcomeFallback)
	}
	if !errors.Is(req.Err(), ErrUpload) {
		t.Errorf("Err() = %v, want %v", req.Err(), ErrUpload)
	}
	// The placeholder cannot be uploaded either.
	if surf.tex != nil {
		t.Error("surface shows a texture, want flat neutral color")
	}
	if surf.color != NeutralColor {
		t.Errorf("surface color = %v, want %v", surf.color, NeutralColor)
	}
}

func TestApplyTexture_UnknownItem(t *testing.T) {
	r := newRig(t, testConfig(), nil)

	req := r.m.ApplyTexture(42, r.art, ApplyOptions{})

	if got := req.Outcome(); got != OutcomeSkipped {
		t.Errorf("Outcome() = %v, want %v", got, OutcomeSkipped)
	}
	if !errors.Is(req.Err(), ErrUnknownItem) {
		t.Errorf("Err() = %v, want %v", req.Err(), ErrUnknownItem)
	}
}

func TestApplyTexture_Rejected(t *testing.T) {
	r := newRig(t, testConfig(), rejectExecutor{})
	id, surf := r.register(t, at(3))
	r.tick()
	before, _ := r.m.Record(id)

	req := r.m.ApplyTexture(id, r.art, ApplyOptions{})

	if got := req.Outcome(); got != OutcomeSkipped {
		t.Errorf("Outcome() = %v, want %v", got, OutcomeSkipped)
	}
	if !errors.Is(req.Err(), ErrRejected) {
		t.Errorf("Err() = %v, want %v", req.Err(), ErrRejected)
	}
	if got := r.m.InFlight(); got != 0 {
		t.Errorf("InFlight() = %d, want 0", got)
	}
	if after, _ := r.m.Record(id); after != before {
		t.Errorf("record changed: %+v -> %+v", before, after)
	}
	if surf.textureCalls != 0 || surf.colorSet {
		t.Error("surface touched by a rejected request")
	}
	if got := r.m.GetStats().Fallbacks; got != 0 {
		t.Errorf("Fallbacks = %d, want 0", got)
	}
}

func TestApplyTexture_FullQueueNeverBlocks(t *testing.T) {
	cfg := testConfig()
	cfg.DecodeWorkers = 1
	cfg.MaxActiveTextures = 500

	release := make(chan struct{})
	slow := DecoderFunc(func(ctx context.Context, data []byte, maxEdge int) (*image.NRGBA, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return artwork.DecodeFit(ctx, data, maxEdge)
	})
	m, err := New(cfg, WithClock(newFakeClock()), WithDecoder(slow), WithUploader(&fakeUploader{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	const n = 200
	ids := make([]ItemID, n)
	for i := range ids {
		if ids[i], err = m.Register(at(3), &recordingSurface{}); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}
	m.UpdatePerformanceData(testCamera())

	art := Sources{SourceLibrary: encodePNG(t, 64, 32)}
	begin := time.Now()
	reqs := make([]*Request, n)
	for i, id := range ids {
		reqs[i] = m.ApplyTexture(id, art, ApplyOptions{})
	}
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Fatalf("ApplyTexture burst took %v while the worker was busy", elapsed)
	}

	var skipped []ItemID
	for i, req := range reqs {
		switch req.Outcome() {
		case OutcomePending:
		case OutcomeSkipped:
			if !errors.Is(req.Err(), ErrRejected) {
				t.Fatalf("skipped Err() = %v, want %v", req.Err(), ErrRejected)
			}
			if rec, _ := m.Record(ids[i]); rec.State != StateNoTexture {
				t.Errorf("skipped item State = %v, want %v", rec.State, StateNoTexture)
			}
			skipped = append(skipped, ids[i])
		default:
			t.Fatalf("Outcome() = %v, want pending or skipped", req.Outcome())
		}
	}
	if len(skipped) == 0 {
		t.Fatal("no request skipped although the decode queue is smaller than the burst")
	}

	stats := m.GetStats()
	if stats.InFlight != n-len(skipped) {
		t.Errorf("InFlight = %d, want %d", stats.InFlight, n-len(skipped))
	}
	if stats.QueuedDecodes == 0 {
		t.Error("QueuedDecodes = 0 with a blocked worker")
	}
	if stats.Fallbacks != 0 {
		t.Errorf("Fallbacks = %d, want 0", stats.Fallbacks)
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Later frames retry what was skipped.
	for round := 0; len(skipped) > 0; round++ {
		if round == 50 {
			t.Fatalf("%d items still skipped after %d rounds", len(skipped), round)
		}
		if err := m.Drain(ctx); err != nil {
			t.Fatalf("Drain() error = %v", err)
		}
		var again []ItemID
		for _, id := range skipped {
			if m.ApplyTexture(id, art, ApplyOptions{}).Outcome() == OutcomeSkipped {
				again = append(again, id)
			}
		}
		skipped = again
	}
	if err := m.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if got := m.GetStats().LoadedTextures; got != n {
		t.Errorf("LoadedTextures = %d, want %d", got, n)
	}
}

func TestApplyTexture_SourceFallthrough(t *testing.T) {
	corruptPNG := append([]byte("\x89PNG\r\n\x1a\n"), []byte("truncated")...)

	tests := []struct {
		name      string
		library   []byte
		wantCalls int32
	}{
		{"unsupported bytes skipped before decode", []byte("<html>404</html>"), 1},
		{"corrupt image skipped on the worker", corruptPNG, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, testConfig(), nil)
			id, surf := r.register(t, at(3))
			r.tick()

			sources := Sources{
				SourceLibrary: tt.library,
				SourceHeader:  encodePNG(t, 64, 32),
			}
			req := r.m.ApplyTexture(id, sources, ApplyOptions{})
			r.m.Reconcile()

			if got := req.Outcome(); got != OutcomeApplied {
				t.Fatalf("Outcome() = %v, want %v (err %v)", got, OutcomeApplied, req.Err())
			}
			if req.Source() != SourceHeader {
				t.Errorf("Source() = %v, want %v", req.Source(), SourceHeader)
			}
			if got := r.dec.calls.Load(); got != tt.wantCalls {
				t.Errorf("decoder called %d times, want %d", got, tt.wantCalls)
			}
			if surf.tex == nil || surf.tex.Width() != 32 || surf.tex.Height() != 16 {
				t.Errorf("surface texture = %v, want the 32x16 header texture", surf.tex)
			}
			if got := r.m.GetStats().Fallbacks; got != 0 {
				t.Errorf("Fallbacks = %d, want 0", got)
			}
		})
	}
}

func TestApplyTexture_EveryVariantFails(t *testing.T) {
	corruptPNG := append([]byte("\x89PNG\r\n\x1a\n"), []byte("truncated")...)

	tests := []struct {
		name    string
		sources Sources
		wantErr error
	}{
		{"unsupported", Sources{SourceLibrary: []byte("<html>404</html>"), SourceIcon: []byte("not an icon")}, ErrUnsupportedSource},
		{"corrupt", Sources{SourceLibrary: corruptPNG, SourceIcon: corruptPNG}, ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, testConfig(), nil)
			id, _ := r.register(t, at(3))
			r.tick()

			req := r.m.ApplyTexture(id, tt.sources, ApplyOptions{})
			r.m.Reconcile()

			if got := req.Outcome(); got != OutcomeFallback {
				t.Fatalf("Outcome() = %v, want %v", got, OutcomeFallback)
			}
			if !errors.Is(req.Err(), tt.wantErr) {
				t.Errorf("Err() = %v, want %v", req.Err(), tt.wantErr)
			}
			for _, kind := range []string{"library", "icon"} {
				if !strings.Contains(req.Err().Error(), kind) {
					t.Errorf("Err() = %q, missing variant %q", req.Err(), kind)
				}
			}
		})
	}
}

func TestApplyTexture_ReturningTierAdoptsPendingDecode(t *testing.T) {
	exec := &manualExecutor{}
	r := newRig(t, testConfig(), exec)
	id, _ := r.register(t, at(3))
	r.tick()

	high := r.m.ApplyTexture(id, r.art, ApplyOptions{Distance: ptr(1.0)})
	medium := r.m.ApplyTexture(id, r.art, ApplyOptions{Distance: ptr(10.0)})
	back := r.m.ApplyTexture(id, r.art, ApplyOptions{Distance: ptr(1.0)})

	if back != high {
		t.Error("request for a tier still decoding started a new load")
	}
	if got := len(exec.jobs); got != 2 {
		t.Errorf("queued decodes = %d, want 2", got)
	}
	if got := r.m.InFlight(); got != 2 {
		t.Errorf("InFlight() = %d, want 2", got)
	}

	exec.run()
	r.m.Reconcile()

	if got := r.dec.calls.Load(); got != 2 {
		t.Errorf("decoder called %d times, want 2", got)
	}
	if got := high.Outcome(); got != OutcomeApplied {
		t.Errorf("high Outcome() = %v, want %v", got, OutcomeApplied)
	}
	if got := medium.Outcome(); got != OutcomeDiscarded {
		t.Errorf("medium Outcome() = %v, want %v", got, OutcomeDiscarded)
	}
	if rec, _ := r.m.Record(id); rec.CurrentTier != TierHigh || rec.State != StateLoaded {
		t.Errorf("record = %+v, want loaded at high", rec)
	}

	// Once reconciled the tier is no longer pending; a new miss decodes again.
	low := r.m.ApplyTexture(id, r.art, ApplyOptions{Distance: ptr(50.0)})
	if low == medium || low == high {
		t.Error("finished request reused")
	}
}

func TestManager_CloseDiscardsSupersededPending(t *testing.T) {
	exec := &manualExecutor{}
	r := newRig(t, testConfig(), exec)
	id, _ := r.register(t, at(3))
	r.tick()

	high := r.m.ApplyTexture(id, r.art, ApplyOptions{Distance: ptr(1.0)})
	low := r.m.ApplyTexture(id, r.art, ApplyOptions{Distance: ptr(50.0)})
	r.m.Close()

	for name, req := range map[string]*Request{"superseded": high, "latest": low} {
		if got := req.Outcome(); got != OutcomeDiscarded {
			t.Errorf("%s Outcome() = %v, want %v", name, got, OutcomeDiscarded)
		}
		if !errors.Is(req.Err(), ErrClosed) {
			t.Errorf("%s Err() = %v, want %v", name, req.Err(), ErrClosed)
		}
	}
}

func TestManager_Close(t *testing.T) {
	exec := &manualExecutor{}
	r := newRig(t, testConfig(), exec)
	loaded, surf := r.register(t, at(3))
	pending, _ := r.register(t, at(4))
	r.tick()

	r.m.ApplyTexture(loaded, r.art, ApplyOptions{})
	exec.run()
	r.m.Reconcile()
	tex := surf.tex.(*fakeTexture)

	req := r.m.ApplyTexture(pending, r.art, ApplyOptions{})
	r.m.Close()
	r.m.Close()

	if got := req.Outcome(); got != OutcomeDiscarded {
		t.Errorf("pending Outcome() = %v, want %v", got, OutcomeDiscarded)
	}
	if !errors.Is(req.Err(), ErrClosed) {
		t.Errorf("pending Err() = %v, want %v", req.Err(), ErrClosed)
	}
	if tex.destroyed != 1 {
		t.Errorf("resident texture destroyed %d times, want 1", tex.destroyed)
	}
	if surf.tex != nil {
		t.Error("surface still shows a texture after Close")
	}

	// A worker finishing after Close changes nothing.
	exec.run()
	if got := len(r.up.uploads); got != 1 {
		t.Errorf("uploads = %d, want 1", got)
	}

	after := r.m.ApplyTexture(loaded, r.art, ApplyOptions{})
	if after.Outcome() != OutcomeSkipped || !errors.Is(after.Err(), ErrClosed) {
		t.Errorf("ApplyTexture after Close = %v (%v), want skipped (%v)", after.Outcome(), after.Err(), ErrClosed)
	}
	if err := r.m.Drain(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Drain() after Close error = %v, want %v", err, ErrClosed)
	}
}

func TestManager_DrainWithWorkerPool(t *testing.T) {
	m, err := New(testConfig(), WithClock(newFakeClock()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	surf := &recordingSurface{}
	id, err := m.Register(at(3), surf)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	m.UpdatePerformanceData(testCamera())

	req := m.ApplyTexture(id, Sources{SourceHeader: encodePNG(t, 64, 32)}, ApplyOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	if got := req.Outcome(); got != OutcomeApplied {
		t.Fatalf("Outcome() = %v, want %v (err %v)", got, OutcomeApplied, req.Err())
	}
	if req.Source() != SourceHeader {
		t.Errorf("Source() = %v, want %v", req.Source(), SourceHeader)
	}
	img, ok := surf.tex.(*ImageTexture)
	if !ok {
		t.Fatalf("surface texture = %T, want *ImageTexture", surf.tex)
	}
	if img.Width() != 32 || img.Height() != 16 {
		t.Errorf("texture size = %dx%d, want 32x16", img.Width(), img.Height())
	}
	if got := m.GetStats().ResidentBytes; got != 32*16*4 {
		t.Errorf("ResidentBytes = %d, want %d", got, 32*16*4)
	}
}

func TestManager_DrainContextDone(t *testing.T) {
	exec := &manualExecutor{}
	r := newRig(t, testConfig(), exec)
	id, _ := r.register(t, at(3))
	r.tick()
	r.m.ApplyTexture(id, r.art, ApplyOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.m.Drain(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Drain() error = %v, want %v", err, context.Canceled)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxActiveTextures = 0
	if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New() error = %v, want %v", err, ErrInvalidConfig)
	}
}

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		o    Outcome
		want string
	}{
		{OutcomePending, "pending"},
		{OutcomeApplied, "applied"},
		{OutcomeFallback, "fallback"},
		{OutcomeSkipped, "skipped"},
		{OutcomeDiscarded, "discarded"},
		{Outcome(99), "Outcome(99)"},
	}
	for _, tt := range tests {
		if got := tt.o.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestAttach_ReleasesDisplacedEntry(t *testing.T) {
	r := newRig(t, testConfig(), nil)
	id, surf := r.register(t, at(3))
	r.tick()

	stray := &fakeTexture{w: 1, h: 1}
	r.m.cache.Put(cacheKey{item: id, tier: TierHigh}, stray, 4)

	it, _ := r.m.registry.get(id)
	tex := &fakeTexture{w: 32, h: 16}
	r.m.attach(it, TierHigh, tex)

	if stray.destroyed != 1 {
		t.Errorf("displaced texture destroyed %d times, want 1", stray.destroyed)
	}
	if tex.destroyed != 0 {
		t.Errorf("attached texture destroyed %d times, want 0", tex.destroyed)
	}
	if surf.tex != Texture(tex) {
		t.Error("surface does not show the attached texture")
	}
	if got := r.m.GetStats().ActiveTextureCount; got != 1 {
		t.Errorf("ActiveTextureCount = %d, want 1", got)
	}
}
