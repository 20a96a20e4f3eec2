package chyron

import (
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/golang/freetype/truetype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/snapcommit/snapcommit/internal/gitmeta"
)

// stubResolver serves a bundled font for a fixed set of names and fails
// for everything else.
type stubResolver struct {
	known map[string]bool
	font  *truetype.Font
}

func newStubResolver(t *testing.T, known ...string) *stubResolver {
	t.Helper()
	f, err := truetype.Parse(goregular.TTF)
	require.NoError(t, err)

	m := make(map[string]bool, len(known))
	for _, k := range known {
		m[k] = true
	}
	return &stubResolver{known: m, font: f}
}

func (r *stubResolver) Resolve(name string) (*truetype.Font, error) {
	if r.known[name] {
		return r.font, nil
	}
	return nil, fmt.Errorf("stub: no font %q", name)
}

func testStyle() Style {
	s := DefaultStyle()
	s.DefaultFontName = "default"
	return s
}

func testImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 0xff // white, fully opaque
	}
	return img
}

func testMeta() gitmeta.CommitMetadata {
	return gitmeta.CommitMetadata{
		Revision:   "0123456789abcdef",
		Message:    "feat: add thing",
		CommitType: "feat",
		RepoName:   "snapcommit",
		Stats:      gitmeta.DiffStats{FilesChanged: 2, Insertions: 10, Deletions: 3},
	}
}

func TestRenderDoesNotTouchPixelsAboveBand(t *testing.T) {
	img := testImage(640, 480)
	r := NewRenderer(newStubResolver(t, "default"), testStyle())

	require.NoError(t, r.Render(img, testMeta()))

	for y := 0; y < 480-bandHeight; y++ {
		for x := 0; x < 640; x += 7 {
			px := img.RGBAAt(x, y)
			require.Equal(t, uint8(0xff), px.R, "pixel (%d,%d) outside band modified", x, y)
		}
	}
}

func TestRenderDarkensBand(t *testing.T) {
	img := testImage(640, 480)
	r := NewRenderer(newStubResolver(t, "default"), testStyle())

	require.NoError(t, r.Render(img, gitmeta.CommitMetadata{}))

	// opacity 0.75 over white: 255 * 0.25 = 63
	px := img.RGBAAt(320, 470)
	assert.InDelta(t, 63, float64(px.R), 1)
	assert.Equal(t, uint8(0xff), px.A)
}

func TestRenderMissingDefaultFontFails(t *testing.T) {
	img := testImage(320, 240)
	r := NewRenderer(newStubResolver(t /* nothing known */), testStyle())

	err := r.Render(img, testMeta())
	assert.True(t, errors.Is(err, ErrFontResolution))
}

func TestRenderRoleFontFallsBackSilently(t *testing.T) {
	img := testImage(640, 480)
	style := testStyle()
	style.MessageFontName = "missing-role-font"
	r := NewRenderer(newStubResolver(t, "default"), style)

	assert.NoError(t, r.Render(img, testMeta()))
}

func TestRenderBadgeForRecognizedType(t *testing.T) {
	img := testImage(640, 480)
	r := NewRenderer(newStubResolver(t, "default"), testStyle())
	require.NoError(t, r.Render(img, testMeta()))

	// The badge fill (feat green) must appear somewhere on the info line.
	badgeColor, _ := BadgeColor("feat")
	found := false
	for y := 480 - bandHeight; y < 480 && !found; y++ {
		for x := 0; x < 200; x++ {
			px := img.RGBAAt(x, y)
			if px.R == badgeColor.R && px.G == badgeColor.G && px.B == badgeColor.B {
				found = true
				break
			}
		}
	}
	assert.True(t, found, "expected feat badge fill inside band")
}

func TestRenderNoBadgeForUnrecognizedType(t *testing.T) {
	img := testImage(640, 480)
	r := NewRenderer(newStubResolver(t, "default"), testStyle())

	meta := testMeta()
	meta.Message = "just a commit"
	meta.CommitType = "commit"
	require.NoError(t, r.Render(img, meta))

	for name, c := range badgeColors {
		for y := 480 - bandHeight; y < 480; y++ {
			for x := 0; x < 640; x++ {
				px := img.RGBAAt(x, y)
				require.False(t,
					px.R == c.R && px.G == c.G && px.B == c.B,
					"unexpected %s badge pixel at (%d,%d)", name, x, y)
			}
		}
	}
}

func TestRenderSmallImageClampsBandToImage(t *testing.T) {
	img := testImage(120, 40) // shorter than the band
	r := NewRenderer(newStubResolver(t, "default"), testStyle())
	assert.NoError(t, r.Render(img, testMeta()))
}

func TestStatsStartXLeavesRightMargin(t *testing.T) {
	r := NewRenderer(newStubResolver(t, "default"), testStyle())
	f, err := truetype.Parse(goregular.TTF)
	require.NoError(t, err)
	face := truetype.NewFace(f, &truetype.Options{Size: 18})

	x := r.statsStartX(face, 640, testMeta())
	assert.Greater(t, x, 320)
	assert.Less(t, x, 640-marginRight)
}
