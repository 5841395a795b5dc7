package artwork

import "github.com/gogpu/gputypes"

// BytesPerPixel returns the storage cost of one texel in format.
// Unknown formats are costed as 4 bytes, the size of every color format
// a texture uploader produces today.
func BytesPerPixel(format gputypes.TextureFormat) int {
	switch format {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return 4
	default:
		return 4
	}
}

// ByteSize estimates the resident size of a width x height texture.
func ByteSize(width, height int, format gputypes.TextureFormat) int64 {
	if width <= 0 || height <= 0 {
		return 0
	}
	return int64(width) * int64(height) * int64(BytesPerPixel(format))
}
