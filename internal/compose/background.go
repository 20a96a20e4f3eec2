// Package compose blends a captured frame with a configured background
// using a foreground probability mask.
package compose

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// Spec describes the configured background: either a solid color or a
// decoded source image. A Spec is resolved once per run and immutable.
type Spec struct {
	color color.NRGBA
	src   image.Image
}

// Solid returns a solid-color background spec.
func Solid(c color.NRGBA) Spec {
	return Spec{color: c}
}

// FromFile decodes a background image from disk.
func FromFile(path string) (Spec, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return Spec{}, fmt.Errorf("compose: open background %s: %w", path, err)
	}
	return Spec{src: img}, nil
}

// FromImage wraps an already-decoded background image.
func FromImage(img image.Image) Spec {
	return Spec{src: img}
}

// Parse resolves a configured background value. A value of the form
// "#rrggbb" is a solid color; anything else is treated as an image path.
func Parse(value string) (Spec, error) {
	if strings.HasPrefix(value, "#") {
		c, err := parseHexColor(value)
		if err != nil {
			return Spec{}, err
		}
		return Solid(c), nil
	}
	return FromFile(value)
}

func parseHexColor(s string) (color.NRGBA, error) {
	if len(s) != 7 {
		return color.NRGBA{}, fmt.Errorf("compose: invalid color %q, want #rrggbb", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("compose: invalid color %q: %w", s, err)
	}
	return color.NRGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 0xff,
	}, nil
}

// IsSolid reports whether the spec is a solid color.
func (s Spec) IsSolid() bool {
	return s.src == nil
}

// Render produces the background at the given dimensions. Image-backed
// specs are stretch-resized (Lanczos) to the exact target size; aspect
// ratio is not preserved, matching the frame's pixel grid one to one.
func (s Spec) Render(width, height int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, width, height))

	if s.src == nil {
		draw.Draw(out, out.Bounds(), &image.Uniform{s.color}, image.Point{}, draw.Src)
		return out
	}

	resized := imaging.Resize(s.src, width, height, imaging.Lanczos)
	draw.Draw(out, out.Bounds(), resized, image.Point{}, draw.Src)
	return out
}
