package compose

import (
	"image"
	"math"

	"github.com/snapcommit/snapcommit/internal/logger"
	"github.com/snapcommit/snapcommit/internal/segment"
)

// Options control compositing behavior.
type Options struct {
	// CenterSubject translates the foreground so the mask's center of
	// mass lands on the frame's geometric center, filling exposed
	// borders with background.
	CenterSubject bool
}

// Composite blends frame over the rendered background using the mask as
// per-pixel alpha: mask*fg + (1-mask)*bg, computed in floating point and
// rounded with saturation. The mask is resampled to the frame's grid if
// its dimensions differ. An all-zero mask yields pure background. The
// returned image is freshly allocated; the inputs are not mutated.
func Composite(frame *image.RGBA, mask *segment.Mask, bg Spec, opts Options) *image.RGBA {
	bounds := frame.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	mask = mask.Resample(width, height)
	background := bg.Render(width, height)

	offsetX, offsetY := 0, 0
	if opts.CenterSubject {
		if cx, cy, ok := mask.Centroid(); ok {
			offsetX = int(math.Round(float64(width)/2 - cx))
			offsetY = int(math.Round(float64(height)/2 - cy))
			logger.Debug("centering subject",
				"centroid_x", cx, "centroid_y", cy,
				"offset_x", offsetX, "offset_y", offsetY)
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			di := out.PixOffset(x, y)

			srcX := x - offsetX
			srcY := y - offsetY
			if srcX < 0 || srcX >= width || srcY < 0 || srcY >= height {
				// Exposed border: background only.
				bi := background.PixOffset(x, y)
				copy(out.Pix[di:di+3], background.Pix[bi:bi+3])
				out.Pix[di+3] = 0xff
				continue
			}

			a := mask.Data[srcY*width+srcX]
			fi := frame.PixOffset(bounds.Min.X+srcX, bounds.Min.Y+srcY)
			bi := background.PixOffset(x, y)

			out.Pix[di+0] = blend(frame.Pix[fi+0], background.Pix[bi+0], a)
			out.Pix[di+1] = blend(frame.Pix[fi+1], background.Pix[bi+1], a)
			out.Pix[di+2] = blend(frame.Pix[fi+2], background.Pix[bi+2], a)
			out.Pix[di+3] = 0xff
		}
	}

	return out
}

// blend mixes a foreground and background channel with straight alpha,
// rounding to 8 bits and saturating rather than wrapping.
func blend(fg, bg uint8, a float32) uint8 {
	v := math.Round(float64(fg)*float64(a) + float64(bg)*(1-float64(a)))
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
