package showroom

import (
	"image"
	"image/color"

	"github.com/gogpu/gputypes"
)

// Positioner is a live reference to an item's world position, owned by the
// scene graph. It is read once per tick.
type Positioner interface {
	WorldPosition() Vec3
}

// FixedPosition is a Positioner for items that never move.
type FixedPosition Vec3

// WorldPosition implements Positioner.
func (p FixedPosition) WorldPosition() Vec3 { return Vec3(p) }

// Surface is the visual surface of a product object. Every surface can show
// a flat color, which is the last-resort fallback appearance.
type Surface interface {
	SetColor(c color.NRGBA)
}

// TextureSurface is a Surface that can also display a texture.
// SetTexture(nil) detaches the current texture.
//
// Whether a surface is textured is decided once, when the item is
// registered; surfaces that only implement Surface never receive textures.
type TextureSurface interface {
	Surface
	SetTexture(tex Texture)
}

// Texture is a resident graphics resource created by an Uploader.
// The manager owns every Texture it attaches and calls Destroy exactly once.
type Texture interface {
	Width() int
	Height() int
	Destroy()
}

// formatter is implemented by textures that know their pixel format.
// Textures without it are costed as RGBA8.
type formatter interface {
	Format() gputypes.TextureFormat
}

// textureFormat returns tex's pixel format, defaulting to RGBA8.
func textureFormat(tex Texture) gputypes.TextureFormat {
	if f, ok := tex.(formatter); ok {
		return f.Format()
	}
	return gputypes.TextureFormatRGBA8Unorm
}

// Uploader turns a decoded, tier-sized image into a resident Texture.
// Upload is called on the render goroutine; an error is treated as an
// allocation failure and produces the fallback appearance.
type Uploader interface {
	Upload(img *image.NRGBA) (Texture, error)
}

// UploaderFunc adapts a function to the Uploader interface.
type UploaderFunc func(img *image.NRGBA) (Texture, error)

// Upload implements Uploader.
func (f UploaderFunc) Upload(img *image.NRGBA) (Texture, error) { return f(img) }

// ImageTexture is a CPU-resident Texture holding its pixels.
// It is what the default Uploader produces, for hosts that sample textures
// on the CPU or upload them on their own schedule.
type ImageTexture struct {
	img       *image.NRGBA
	destroyed bool
}

// NewImageTexture wraps img as a Texture.
func NewImageTexture(img *image.NRGBA) *ImageTexture {
	return &ImageTexture{img: img}
}

// Width implements Texture.
func (t *ImageTexture) Width() int { return t.img.Bounds().Dx() }

// Height implements Texture.
func (t *ImageTexture) Height() int { return t.img.Bounds().Dy() }

// Format reports RGBA8; pixels are stored non-premultiplied.
func (t *ImageTexture) Format() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

// Image returns the pixels, or nil after Destroy.
func (t *ImageTexture) Image() *image.NRGBA {
	if t.destroyed {
		return nil
	}
	return t.img
}

// Destroy releases the pixels.
func (t *ImageTexture) Destroy() {
	t.destroyed = true
}

// Destroyed reports whether Destroy has been called.
func (t *ImageTexture) Destroyed() bool {
	return t.destroyed
}

// imageUploader is the default Uploader.
type imageUploader struct{}

func (imageUploader) Upload(img *image.NRGBA) (Texture, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrUpload
	}
	return NewImageTexture(img), nil
}
