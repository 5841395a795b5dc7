package showroom

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/gogpu/showroom/internal/artwork"
	"github.com/gogpu/showroom/internal/parallel"
	"github.com/gogpu/showroom/internal/texcache"
)

// Errors reported by the manager. Loader errors are never returned to the
// render loop; they surface through Request.Err on a Fallback outcome.
var (
	// ErrClosed is returned when the manager has been closed.
	ErrClosed = errors.New("showroom: manager is closed")

	// ErrInvalidConfig is returned for a Config that fails validation.
	ErrInvalidConfig = errors.New("showroom: invalid config")

	// ErrNilPosition is returned by Register for a nil Positioner.
	ErrNilPosition = errors.New("showroom: nil position")

	// ErrNilSurface is returned by Register for a nil Surface.
	ErrNilSurface = errors.New("showroom: nil surface")

	// ErrUnknownItem is the cause of a Skipped outcome for an unregistered id.
	ErrUnknownItem = errors.New("showroom: unknown item")

	// ErrNoSource means none of the configured artwork variants had data.
	ErrNoSource = errors.New("showroom: no artwork source")

	// ErrUnsupportedSource means the chosen artwork is not a decodable image.
	ErrUnsupportedSource = errors.New("showroom: unsupported artwork source")

	// ErrDecode means decoding or resizing the artwork failed.
	ErrDecode = errors.New("showroom: artwork decode failed")

	// ErrUpload means the uploader could not allocate the texture.
	ErrUpload = errors.New("showroom: texture upload failed")

	// ErrFlatSurface means the item's surface cannot display textures.
	ErrFlatSurface = errors.New("showroom: surface cannot display textures")

	// ErrRejected is the cause of a Skipped outcome when the decode
	// executor did not accept the job. Nothing changed; retry later.
	ErrRejected = errors.New("showroom: decode job rejected")
)

// cacheKey identifies a resident texture.
type cacheKey struct {
	item ItemID
	tier Tier
}

// completion is a finished decode posted by a worker.
type completion struct {
	req    *Request
	img    *image.NRGBA
	source SourceKind // variant that produced img
	err    error
}

// Manager decides which product artwork is resident, at what tier, and for
// how long.
//
// Manager is NOT safe for concurrent use. All methods, Close included, must
// be called from the render goroutine. Decodes run on worker goroutines and
// only hand their results back through an internal queue; the render
// goroutine applies them in Reconcile. Request values may be inspected from
// any goroutine.
type Manager struct {
	cfg      Config
	clock    Clock
	decoder  Decoder
	uploader Uploader
	exec     Executor
	pool     *parallel.Pool // owned; nil when an executor was injected
	logger   *slog.Logger   // nil: package logger

	registry *registry
	cache    *texcache.Table[cacheKey, Texture]

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	completed []completion
	shut      bool // guarded by mu; completions after Close are discarded
	wake      chan struct{}

	inflight  int
	fallbacks uint64

	// Shared neutral pattern, uploaded on first use.
	placeholderImg    *image.NRGBA
	placeholder       Texture
	placeholderFailed bool

	closed bool
}

// New validates cfg and creates a Manager.
//
// Unless WithExecutor is given, the manager starts cfg.DecodeWorkers decode
// goroutines, which Close stops.
func New(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultManagerOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg.SourcePriority = append([]SourceKind(nil), cfg.SourcePriority...)

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:            cfg,
		clock:          o.clock,
		decoder:        o.decoder,
		uploader:       o.uploader,
		exec:           o.executor,
		logger:         o.logger,
		registry:       newRegistry(),
		cache:          texcache.New[cacheKey, Texture](),
		ctx:            ctx,
		cancel:         cancel,
		wake:           make(chan struct{}, 1),
		placeholderImg: artwork.Placeholder(cfg.PlaceholderSize),
	}
	workers := 0 // injected executor
	if m.exec == nil {
		m.pool = parallel.NewPool(cfg.DecodeWorkers)
		m.exec = m.pool
		workers = m.pool.Workers()
	}

	m.log().Info("showroom: manager created",
		"max_active_textures", cfg.MaxActiveTextures,
		"decode_workers", workers,
		"near", cfg.NearDistance,
		"far", cfg.FarDistance,
		"lazy", cfg.LazyLoading,
		"overshoot", cfg.Overshoot.String())
	return m, nil
}

// MustNew is like New but panics on error.
func MustNew(cfg Config, opts ...Option) *Manager {
	m, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config {
	cfg := m.cfg
	cfg.SourcePriority = append([]SourceKind(nil), m.cfg.SourcePriority...)
	return cfg
}

func (m *Manager) log() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return Logger()
}

// post queues a finished decode. Called from decode workers.
func (m *Manager) post(c completion) {
	m.mu.Lock()
	if m.shut {
		m.mu.Unlock()
		c.req.resolve(OutcomeDiscarded, ErrClosed)
		return
	}
	m.completed = append(m.completed, c)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// takeCompleted removes and returns every queued completion.
func (m *Manager) takeCompleted() []completion {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := m.completed
	m.completed = nil
	return batch
}

// Reconcile applies every decode that finished since the last call and
// returns how many completions were processed. UpdatePerformanceData calls
// it first, so render loops rarely need to call it directly.
//
// If the applied loads push the cache over MaxActiveTextures, a capacity
// sweep runs immediately.
func (m *Manager) Reconcile() int {
	if m.closed {
		return 0
	}

	batch := m.takeCompleted()
	for _, c := range batch {
		m.inflight--
		m.complete(c)
	}

	if len(batch) > 0 && m.cache.Len() > m.cfg.MaxActiveTextures {
		m.EvictCapacity()
	}
	return len(batch)
}

// Drain reconciles until no load is in flight or ctx is done.
// It is meant for teardown and tests; a render loop relies on
// UpdatePerformanceData instead.
func (m *Manager) Drain(ctx context.Context) error {
	for {
		if m.closed {
			return ErrClosed
		}
		m.Reconcile()
		if m.inflight == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.wake:
		}
	}
}

// InFlight returns the number of decodes submitted and not yet reconciled.
func (m *Manager) InFlight() int {
	return m.inflight
}

// Close releases every resident texture and the placeholder, stops the
// decode workers it owns, and resolves unfinished requests as Discarded.
// Surfaces showing a manager texture are detached first.
//
// Close is idempotent. After Close, ApplyTexture resolves Skipped with
// ErrClosed and the other methods do nothing.
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.cancel()

	// Owned workers finish (or abort on the cancelled context) first.
	// Jobs still running on an injected executor resolve themselves in post.
	if m.pool != nil {
		m.pool.Close()
	}

	m.mu.Lock()
	m.shut = true
	pending := m.completed
	m.completed = nil
	m.mu.Unlock()
	for _, c := range pending {
		c.req.resolve(OutcomeDiscarded, ErrClosed)
	}
	m.inflight = 0

	m.registry.each(func(it *item) {
		if it.latest != nil {
			it.latest.resolve(OutcomeDiscarded, ErrClosed)
			it.latest = nil
		}
		for _, p := range it.pending {
			p.resolve(OutcomeDiscarded, ErrClosed)
		}
		it.pending = nil
		if it.textured != nil && (it.attached != TierNone || it.neutral) {
			it.textured.SetTexture(nil)
		}
		it.attached = TierNone
		it.neutral = false
		it.rec.TextureLoaded = false
		it.rec.CurrentTier = TierNone
		it.syncState()
	})

	resident := m.cache.Len()
	m.cache.Clear(func(tex Texture) { tex.Destroy() })
	if m.placeholder != nil {
		m.placeholder.Destroy()
		m.placeholder = nil
	}

	m.log().Info("showroom: manager closed",
		"items", m.registry.len(),
		"released", resident)
}

// neutralTexture returns the shared placeholder texture, uploading it on
// first use. It returns nil if the upload failed; callers then fall back
// to NeutralColor.
func (m *Manager) neutralTexture() Texture {
	if m.placeholder != nil || m.placeholderFailed {
		return m.placeholder
	}

	tex, err := m.uploader.Upload(m.placeholderImg)
	if err != nil {
		m.placeholderFailed = true
		m.log().Warn("showroom: placeholder upload failed, using flat color",
			"error", fmt.Errorf("%w: %w", ErrUpload, err))
		return nil
	}
	m.placeholder = tex
	return tex
}
