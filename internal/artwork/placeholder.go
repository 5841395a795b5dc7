package artwork

import (
	"image"
	"image/color"
)

// Neutral placeholder colors: two close mid greys that read as "no artwork"
// without drawing attention on a lit shelf.
var (
	PlaceholderLight = color.NRGBA{R: 0x9a, G: 0x9a, B: 0x9a, A: 0xff}
	PlaceholderDark  = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
)

// Checker builds a size x size checkerboard with square cells of cellSize
// pixels alternating between a and b, starting with a at the top-left.
// Returns nil for a non-positive size; cellSize is clamped to at least 1.
func Checker(size, cellSize int, a, b color.NRGBA) *image.NRGBA {
	if size <= 0 {
		return nil
	}
	cellSize = max(cellSize, 1)

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := range size {
		row := img.Pix[y*img.Stride:]
		for x := range size {
			c := a
			if (x/cellSize+y/cellSize)%2 == 1 {
				c = b
			}
			off := x * 4
			row[off] = c.R
			row[off+1] = c.G
			row[off+2] = c.B
			row[off+3] = c.A
		}
	}
	return img
}

// Placeholder returns the default neutral checker used as the fallback
// appearance for products without usable artwork.
func Placeholder(size int) *image.NRGBA {
	return Checker(size, max(size/8, 1), PlaceholderLight, PlaceholderDark)
}
