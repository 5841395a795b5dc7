package showroom

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/showroom/internal/artwork"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// countingDecoder wraps the default decoder and counts calls.
type countingDecoder struct {
	calls atomic.Int32
	err   error
}

func (d *countingDecoder) Decode(ctx context.Context, data []byte, maxEdge int) (*image.NRGBA, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return artwork.DecodeFit(ctx, data, maxEdge)
}

// inlineExecutor runs jobs synchronously inside Submit.
type inlineExecutor struct{}

func (inlineExecutor) Submit(job func()) bool {
	job()
	return true
}

// manualExecutor queues jobs until run is called.
type manualExecutor struct {
	jobs []func()
}

func (e *manualExecutor) Submit(job func()) bool {
	e.jobs = append(e.jobs, job)
	return true
}

// run executes queued jobs in submission order.
func (e *manualExecutor) run() {
	jobs := e.jobs
	e.jobs = nil
	for _, job := range jobs {
		job()
	}
}

// rejectExecutor accepts nothing.
type rejectExecutor struct{}

func (rejectExecutor) Submit(func()) bool { return false }

// fakeTexture records its lifecycle.
type fakeTexture struct {
	w, h      int
	destroyed int
}

func (t *fakeTexture) Width() int  { return t.w }
func (t *fakeTexture) Height() int { return t.h }
func (t *fakeTexture) Destroy()    { t.destroyed++ }

// fakeUploader hands out fakeTextures.
type fakeUploader struct {
	fail    bool
	uploads []*fakeTexture
}

func (u *fakeUploader) Upload(img *image.NRGBA) (Texture, error) {
	if u.fail {
		return nil, errors.New("out of video memory")
	}
	b := img.Bounds()
	tex := &fakeTexture{w: b.Dx(), h: b.Dy()}
	u.uploads = append(u.uploads, tex)
	return tex, nil
}

// recordingSurface is a TextureSurface that remembers what it shows.
type recordingSurface struct {
	tex          Texture
	textureCalls int
	color        color.NRGBA
	colorSet     bool
}

func (s *recordingSurface) SetTexture(tex Texture) {
	s.tex = tex
	s.textureCalls++
}

func (s *recordingSurface) SetColor(c color.NRGBA) {
	s.color = c
	s.colorSet = true
}

// flatSurface can only show a color.
type flatSurface struct {
	color    color.NRGBA
	colorSet bool
}

func (s *flatSurface) SetColor(c color.NRGBA) {
	s.color = c
	s.colorSet = true
}

// movable is a Positioner tests can move between ticks.
type movable struct {
	p Vec3
}

func (m *movable) WorldPosition() Vec3 { return m.p }

// at returns a position on the camera's view axis, d units in front of it.
func at(d float64) *movable {
	return &movable{p: V3(0, 0, -d)}
}

// hide moves the item behind the camera, keeping its distance.
func (m *movable) hide() {
	m.p.Z = math.Abs(m.p.Z)
}

// testCamera sits at the origin looking down -Z with a 60° field of view.
func testCamera() Camera {
	return NewCamera(
		V3(0, 0, 0),
		Perspective(math.Pi/3, 1, 0.1, 100),
		LookAt(V3(0, 0, 0), V3(0, 0, -1), V3(0, 1, 0)),
	)
}

// encodePNG returns a w×h solid PNG.
func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = 0x40
		img.Pix[i+1] = 0x80
		img.Pix[i+2] = 0xc0
		img.Pix[i+3] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

// rig is a manager wired to fakes.
type rig struct {
	m     *Manager
	clock *fakeClock
	dec   *countingDecoder
	up    *fakeUploader
	art   Sources
}

// newRig creates a manager with a fake clock, counting decoder, fake
// uploader, and the given executor (inline if nil).
func newRig(t *testing.T, cfg Config, exec Executor) *rig {
	t.Helper()
	if exec == nil {
		exec = inlineExecutor{}
	}
	r := &rig{
		clock: newFakeClock(),
		dec:   &countingDecoder{},
		up:    &fakeUploader{},
		art:   Sources{SourceLibrary: encodePNG(t, 64, 32)},
	}
	m, err := New(cfg,
		WithClock(r.clock),
		WithDecoder(r.dec),
		WithUploader(r.up),
		WithExecutor(exec),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(m.Close)
	r.m = m
	return r
}

// register adds an item at pos with a recording surface.
func (r *rig) register(t *testing.T, pos Positioner) (ItemID, *recordingSurface) {
	t.Helper()
	surf := &recordingSurface{}
	id, err := r.m.Register(pos, surf)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return id, surf
}

// tick advances the clock by one second and runs a frame update.
func (r *rig) tick() {
	r.clock.Advance(time.Second)
	r.m.UpdatePerformanceData(testCamera())
}

// load applies artwork to id and reconciles, failing unless it is applied.
func (r *rig) load(t *testing.T, id ItemID) *Request {
	t.Helper()
	req := r.m.ApplyTexture(id, r.art, ApplyOptions{})
	r.m.Reconcile()
	if got := req.Outcome(); got != OutcomeApplied {
		t.Fatalf("load(%d) outcome = %v, want %v (err %v)", id, got, OutcomeApplied, req.Err())
	}
	return req
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TierSizes = TierSizes{High: 32, Medium: 16, Low: 8}
	return cfg
}
