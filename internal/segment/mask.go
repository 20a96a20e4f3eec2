// Package segment produces per-pixel foreground probability masks for a
// captured frame. The inference backend is pluggable; the rest of the
// pipeline only sees the Segmenter interface and the Mask type.
package segment

import "math"

// Mask is a dense grid of foreground probabilities in [0, 1], row-major.
// A mask is always reconciled to the compositing frame's dimensions before
// any blending happens downstream.
type Mask struct {
	Width  int
	Height int
	Data   []float32
}

// NewMask allocates a zero-valued mask.
func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height),
	}
}

// At returns the probability at (x, y). Out-of-range coordinates clamp to
// the nearest edge.
func (m *Mask) At(x, y int) float32 {
	if x < 0 {
		x = 0
	} else if x >= m.Width {
		x = m.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= m.Height {
		y = m.Height - 1
	}
	return m.Data[y*m.Width+x]
}

// Set stores the probability at (x, y), clamping the value into [0, 1].
func (m *Mask) Set(x, y int, v float32) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	m.Data[y*m.Width+x] = v
}

// Resample scales the mask to the given dimensions using bilinear
// interpolation. Bilinear is used in both directions (model resolution to
// frame resolution and back) so subject-boundary pixels blend smoothly
// instead of stair-stepping. Returns the receiver when dimensions already
// match.
func (m *Mask) Resample(width, height int) *Mask {
	if width == m.Width && height == m.Height {
		return m
	}

	out := NewMask(width, height)
	xScale := float64(m.Width) / float64(width)
	yScale := float64(m.Height) / float64(height)

	for y := 0; y < height; y++ {
		// Sample at pixel centers.
		srcY := (float64(y)+0.5)*yScale - 0.5
		y0 := int(math.Floor(srcY))
		fy := float32(srcY - float64(y0))

		for x := 0; x < width; x++ {
			srcX := (float64(x)+0.5)*xScale - 0.5
			x0 := int(math.Floor(srcX))
			fx := float32(srcX - float64(x0))

			top := m.At(x0, y0)*(1-fx) + m.At(x0+1, y0)*fx
			bottom := m.At(x0, y0+1)*(1-fx) + m.At(x0+1, y0+1)*fx
			out.Data[y*width+x] = top*(1-fy) + bottom*fy
		}
	}

	return out
}

// centroidThreshold excludes near-zero probabilities from the center of
// mass so background noise cannot drag the subject center around.
const centroidThreshold = 0.1

// Centroid returns the intensity-weighted center of mass of the mask and
// whether any mass was found. An empty mask reports the geometric center
// with ok=false, which downstream treats as "no shift".
func (m *Mask) Centroid() (cx, cy float64, ok bool) {
	var sumX, sumY, total float64

	for y := 0; y < m.Height; y++ {
		row := m.Data[y*m.Width : (y+1)*m.Width]
		for x, w := range row {
			if w <= centroidThreshold {
				continue
			}
			sumX += float64(x) * float64(w)
			sumY += float64(y) * float64(w)
			total += float64(w)
		}
	}

	if total == 0 {
		return float64(m.Width) / 2, float64(m.Height) / 2, false
	}
	return sumX / total, sumY / total, true
}
