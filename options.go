package showroom

import (
	"context"
	"image"
	"log/slog"

	"github.com/gogpu/showroom/internal/artwork"
)

// Option configures the collaborators of a Manager.
//
// Example:
//
//	m, err := showroom.New(showroom.DefaultConfig(),
//	    showroom.WithUploader(gpuUploader),
//	    showroom.WithLogger(slog.Default()),
//	)
type Option func(*managerOptions)

// managerOptions holds the injectable collaborators.
type managerOptions struct {
	clock    Clock
	decoder  Decoder
	uploader Uploader
	executor Executor
	logger   *slog.Logger
}

func defaultManagerOptions() managerOptions {
	return managerOptions{
		clock:    SystemClock(),
		decoder:  DecoderFunc(artwork.DecodeFit),
		uploader: imageUploader{},
		// executor nil: the manager starts its own decode pool
		// logger nil: the package logger is used
	}
}

// Decoder turns encoded artwork into an image whose long edge is at most
// maxEdge, preserving aspect ratio. Decode runs on a decode worker, never
// on the render goroutine, and must not touch manager state.
type Decoder interface {
	Decode(ctx context.Context, data []byte, maxEdge int) (*image.NRGBA, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, data []byte, maxEdge int) (*image.NRGBA, error)

// Decode implements Decoder.
func (f DecoderFunc) Decode(ctx context.Context, data []byte, maxEdge int) (*image.NRGBA, error) {
	return f(ctx, data, maxEdge)
}

// Executor runs decode jobs off the render goroutine.
// Submit returns false if the job was not accepted.
type Executor interface {
	Submit(job func()) bool
}

// WithClock sets the clock used for recency and staleness.
func WithClock(c Clock) Option {
	return func(o *managerOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithDecoder replaces the default decoder (stdlib + x/image formats,
// Catmull-Rom downscaling).
func WithDecoder(d Decoder) Option {
	return func(o *managerOptions) {
		if d != nil {
			o.decoder = d
		}
	}
}

// WithUploader sets how decoded images become resident textures.
// The default keeps pixels in memory as *ImageTexture.
func WithUploader(u Uploader) Option {
	return func(o *managerOptions) {
		if u != nil {
			o.uploader = u
		}
	}
}

// WithExecutor runs decodes on e instead of the manager's own worker pool.
// The manager does not close an injected executor.
func WithExecutor(e Executor) Option {
	return func(o *managerOptions) {
		o.executor = e
	}
}

// WithLogger sets a logger for this manager only, overriding the package
// logger set through SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *managerOptions) {
		o.logger = l
	}
}
