package artwork

import (
	"context"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// FitSize returns the dimensions of a width x height image scaled so its
// long edge is at most maxEdge, preserving aspect ratio.
//
// Images already within maxEdge keep their size; artwork is never upscaled.
// Neither edge drops below 1 pixel. A non-positive maxEdge disables fitting.
func FitSize(width, height, maxEdge int) (int, int) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	if maxEdge <= 0 || (width <= maxEdge && height <= maxEdge) {
		return width, height
	}

	if width >= height {
		h := int(math.Round(float64(height) * float64(maxEdge) / float64(width)))
		return maxEdge, max(h, 1)
	}
	w := int(math.Round(float64(width) * float64(maxEdge) / float64(height)))
	return max(w, 1), maxEdge
}

// Fit resamples src into a new NRGBA image whose long edge is at most
// maxEdge. Catmull-Rom is used for downscaling; same-size sources are copied.
func Fit(src image.Image, maxEdge int) *image.NRGBA {
	sb := src.Bounds()
	w, h := FitSize(sb.Dx(), sb.Dy(), maxEdge)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Src)
		return dst
	}

	draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	return dst
}

// DecodeFit decodes data and fits it to maxEdge.
// ctx is checked before each expensive step; a cancelled context aborts
// with ctx.Err().
func DecodeFit(ctx context.Context, data []byte, maxEdge int) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Fit(img, maxEdge), nil
}
