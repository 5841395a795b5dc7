// Package artwork decodes and resizes product artwork into texture-sized
// images, and builds the neutral placeholder shown when artwork is missing.
package artwork

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder registration
	_ "image/jpeg" // JPEG decoder registration
	_ "image/png"  // PNG decoder registration

	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"  // BMP decoder registration
	_ "golang.org/x/image/webp" // WebP decoder registration
)

// Decode errors.
var (
	// ErrEmptyData is returned when source data is empty.
	ErrEmptyData = errors.New("artwork: empty data")

	// ErrUnsupportedFormat is returned when source data is not a supported
	// raster image.
	ErrUnsupportedFormat = errors.New("artwork: unsupported format")

	// ErrDecode is returned when a supported format fails to decode.
	ErrDecode = errors.New("artwork: decode failed")

	// ErrTooLarge is returned when the image header declares more than
	// MaxSourcePixels pixels.
	ErrTooLarge = errors.New("artwork: image too large")
)

// MaxSourcePixels bounds the declared size of a source image. Larger
// sources are refused before any pixel buffer is allocated.
const MaxSourcePixels = 8192 * 8192

// supported lists the file extensions, as reported by filetype, that have a
// registered decoder.
var supported = map[string]bool{
	"png":  true,
	"jpg":  true,
	"gif":  true,
	"bmp":  true,
	"webp": true,
}

// Sniff identifies the image format of data from its magic bytes.
// It returns the format's extension ("png", "jpg", ...) or
// ErrUnsupportedFormat if no registered decoder can read it.
func Sniff(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyData
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "", ErrUnsupportedFormat
	}
	if !supported[kind.Extension] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, kind.MIME.Value)
	}
	return kind.Extension, nil
}

// Decode sniffs and decodes data.
func Decode(data []byte) (image.Image, error) {
	ext, err := Sniff(data)
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, ext, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: %s: empty image", ErrDecode, ext)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return nil, fmt.Errorf("%w: %s: %dx%d", ErrTooLarge, ext, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, ext, err)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %s: empty image", ErrDecode, ext)
	}
	return img, nil
}
