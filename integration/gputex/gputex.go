// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package gputex uploads showroom artwork to GPU textures through a gogpu
// device.
//
// The host application owns the device; the Uploader only borrows it through
// gpucontext.DeviceProvider and creates textures with the renderer's
// TextureCreator:
//
//	up, err := gputex.New(app.GPUContextProvider(), renderer)
//	if err != nil {
//	    return err
//	}
//	m, err := showroom.New(cfg, showroom.WithUploader(up))
//
// Artwork is decoded as non-premultiplied RGBA. When the surface format is
// BGRA8, pixels are swizzled before upload so they can be sampled without a
// format conversion pass.
package gputex

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/showroom"
)

// Common errors returned by the Uploader.
var (
	// ErrNilProvider is returned when a nil DeviceProvider is passed.
	ErrNilProvider = errors.New("gputex: nil DeviceProvider")

	// ErrNilCreator is returned when a nil TextureCreator is passed.
	ErrNilCreator = errors.New("gputex: nil TextureCreator")

	// ErrEmptyImage is returned when asked to upload an image with no pixels.
	ErrEmptyImage = errors.New("gputex: empty image")

	// ErrTextureCreationFailed is returned when the creator fails.
	ErrTextureCreationFailed = errors.New("gputex: texture creation failed")
)

// TextureCreator creates GPU textures from tightly packed 8-bit pixel rows.
// This matches the gogpu renderer's NewTextureFromRGBA signature.
type TextureCreator interface {
	NewTextureFromRGBA(width, height int, data []byte) (any, error)
}

// textureDestroyer is the interface for destroying textures.
// This matches the gogpu.Texture.Destroy signature.
type textureDestroyer interface {
	Destroy()
}

// premultipliedSetter is implemented by gogpu textures that select their
// blend pipeline from the alpha mode.
type premultipliedSetter interface {
	SetPremultiplied(bool)
}

// Uploader is a showroom.Uploader backed by a GPU device.
//
// Uploader is NOT safe for concurrent use; showroom calls it from the render
// goroutine only.
type Uploader struct {
	provider gpucontext.DeviceProvider
	creator  TextureCreator
	format   gputypes.TextureFormat
}

var _ showroom.Uploader = (*Uploader)(nil)

// New creates an Uploader. The texture format follows the provider's
// surface format: BGRA8 surfaces get BGRA8 textures, everything else RGBA8.
func New(provider gpucontext.DeviceProvider, creator TextureCreator) (*Uploader, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	if creator == nil {
		return nil, ErrNilCreator
	}

	format := gputypes.TextureFormatRGBA8Unorm
	if provider.SurfaceFormat() == gputypes.TextureFormatBGRA8Unorm {
		format = gputypes.TextureFormatBGRA8Unorm
	}

	return &Uploader{
		provider: provider,
		creator:  creator,
		format:   format,
	}, nil
}

// Format returns the pixel format of uploaded textures.
func (u *Uploader) Format() gputypes.TextureFormat {
	return u.format
}

// Provider returns the DeviceProvider the uploader was created with.
func (u *Uploader) Provider() gpucontext.DeviceProvider {
	return u.provider
}

// Upload implements showroom.Uploader.
func (u *Uploader) Upload(img *image.NRGBA) (showroom.Texture, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	data := pack(img, u.format == gputypes.TextureFormatBGRA8Unorm)

	handle, err := u.creator.NewTextureFromRGBA(w, h, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %dx%d: %w", ErrTextureCreationFailed, w, h, err)
	}
	if handle == nil {
		return nil, fmt.Errorf("%w: %dx%d: nil texture", ErrTextureCreationFailed, w, h)
	}

	// Artwork is straight alpha, unlike gg pixmaps.
	if ps, ok := handle.(premultipliedSetter); ok {
		ps.SetPremultiplied(false)
	}

	return &Texture{
		handle: handle,
		width:  w,
		height: h,
		format: u.format,
	}, nil
}

// pack copies img into tightly packed rows, swapping R and B if bgra.
func pack(img *image.NRGBA, bgra bool) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rowBytes := w * 4
	data := make([]byte, rowBytes*h)

	for y := range h {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):][:rowBytes]
		dst := data[y*rowBytes : (y+1)*rowBytes]
		copy(dst, src)
		if bgra {
			for i := 0; i < rowBytes; i += 4 {
				dst[i], dst[i+2] = dst[i+2], dst[i]
			}
		}
	}
	return data
}

// Texture is a GPU texture created by an Uploader.
type Texture struct {
	handle    any
	width     int
	height    int
	format    gputypes.TextureFormat
	destroyed bool
}

// Width implements showroom.Texture.
func (t *Texture) Width() int { return t.width }

// Height implements showroom.Texture.
func (t *Texture) Height() int { return t.height }

// Format returns the texture's pixel format. showroom uses it to estimate
// resident memory.
func (t *Texture) Format() gputypes.TextureFormat { return t.format }

// Handle returns the renderer's texture (*gogpu.Texture), or nil after
// Destroy. Hosts pass it to their draw calls.
func (t *Texture) Handle() any {
	if t.destroyed {
		return nil
	}
	return t.handle
}

// Destroy releases the GPU texture. Destroy is idempotent.
func (t *Texture) Destroy() {
	if t.destroyed {
		return
	}
	t.destroyed = true
	if d, ok := t.handle.(textureDestroyer); ok {
		d.Destroy()
	}
	t.handle = nil
}
