package chyron

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/snapcommit/snapcommit/internal/gitmeta"
)

// Style configures the overlay band. Role font names are optional; an
// empty name means the default font.
type Style struct {
	DefaultFontName string
	MessageFontName string
	InfoFontName    string
	SHAFontName     string
	StatsFontName   string
	TitleFontSize   float64
	InfoFontSize    float64
	Opacity         float64
}

// DefaultStyle returns the stock chyron appearance.
func DefaultStyle() Style {
	return Style{
		DefaultFontName: "DejaVuSansMono",
		TitleFontSize:   28,
		InfoFontSize:    18,
		Opacity:         0.75,
	}
}

// bandHeight is the height of the overlay band in pixels.
const bandHeight = 80

// Layout constants within the band.
const (
	marginLeft   = 15
	marginRight  = 30
	titleOffset  = 10
	infoOffset   = 45
	statGap      = 10
	badgePadding = 6
)

var (
	textWhite  = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	textGrey   = color.NRGBA{R: 0xb4, G: 0xb4, B: 0xb4, A: 0xff}
	textYellow = color.NRGBA{R: 0xff, G: 0xff, B: 0x00, A: 0xff}
	textGreen  = color.NRGBA{R: 0x00, G: 0xff, B: 0x00, A: 0xff}
	textRed    = color.NRGBA{R: 0xff, G: 0x00, B: 0x00, A: 0xff}
)

// Renderer draws the chyron band onto a composited image.
type Renderer struct {
	resolver FontResolver
	style    Style
}

// NewRenderer builds a renderer with the given font resolver and style.
func NewRenderer(resolver FontResolver, style Style) *Renderer {
	return &Renderer{resolver: resolver, style: style}
}

// Render draws the overlay band in place on the bottom of img. Pixels
// outside the band are not touched. Only a failure to resolve the default
// font is an error; all other fallbacks are silent.
func (r *Renderer) Render(img *image.RGBA, meta gitmeta.CommitMetadata) error {
	messageFont, err := resolveRole(r.resolver, r.style.MessageFontName, r.style.DefaultFontName)
	if err != nil {
		return err
	}
	infoFont, err := resolveRole(r.resolver, r.style.InfoFontName, r.style.DefaultFontName)
	if err != nil {
		return err
	}
	shaFont, err := resolveRole(r.resolver, r.style.SHAFontName, r.style.DefaultFontName)
	if err != nil {
		return err
	}
	statsFont, err := resolveRole(r.resolver, r.style.StatsFontName, r.style.DefaultFontName)
	if err != nil {
		return err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	yStart := height - bandHeight
	if yStart < 0 {
		yStart = 0
	}

	r.fillBand(img, bounds.Min.Y+yStart)

	titleFace := truetype.NewFace(messageFont, &truetype.Options{Size: r.style.TitleFontSize})
	infoFace := truetype.NewFace(infoFont, &truetype.Options{Size: r.style.InfoFontSize})
	shaFace := truetype.NewFace(shaFont, &truetype.Options{Size: r.style.TitleFontSize})
	statsFace := truetype.NewFace(statsFont, &truetype.Options{Size: r.style.InfoFontSize})

	titleBaseline := yStart + titleOffset + titleFace.Metrics().Ascent.Ceil()
	infoBaseline := yStart + infoOffset + infoFace.Metrics().Ascent.Ceil()

	// Right-hand block: SHA above, stats below, both left-aligned at the
	// same x so they read as one column.
	statsX := r.statsStartX(statsFace, width, meta)

	r.drawTitle(img, titleFace, titleBaseline, meta)
	r.drawInfoLine(img, infoFace, yStart, infoBaseline, meta)

	if meta.Revision != "" {
		drawText(img, shaFace, textYellow, statsX, titleBaseline, meta.ShortRevision())
	}
	r.drawStats(img, statsFace, statsX, infoBaseline, meta.Stats)

	return nil
}

// fillBand darkens the band area by blending black at the configured
// opacity into the existing pixels. Opacity applies to the fill only.
func (r *Renderer) fillBand(img *image.RGBA, yStart int) {
	bounds := img.Bounds()
	keep := 1 - r.style.Opacity

	for y := yStart; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i+0] = uint8(float64(img.Pix[i+0]) * keep)
			img.Pix[i+1] = uint8(float64(img.Pix[i+1]) * keep)
			img.Pix[i+2] = uint8(float64(img.Pix[i+2]) * keep)
		}
	}
}

func (r *Renderer) drawTitle(img *image.RGBA, face font.Face, baseline int, meta gitmeta.CommitMetadata) {
	title := meta.Message
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	if _, recognized := BadgeColor(meta.CommitType); recognized {
		// The badge already shows the type; keep the title clean.
		title = gitmeta.StripCommitPrefix(title)
	}
	drawText(img, face, textWhite, marginLeft, baseline, title)
}

// drawInfoLine renders "scope • repo" prefixed with a colored badge when
// the commit type is recognized. Unrecognized types get no badge.
func (r *Renderer) drawInfoLine(img *image.RGBA, face font.Face, yStart, baseline int, meta gitmeta.CommitMetadata) {
	x := marginLeft

	if badgeColor, ok := BadgeColor(meta.CommitType); ok {
		label := strings.ToUpper(meta.CommitType)
		labelWidth := font.MeasureString(face, label).Ceil()

		ascent := face.Metrics().Ascent.Ceil()
		descent := face.Metrics().Descent.Ceil()

		min := img.Bounds().Min
		badge := image.Rect(
			min.X+x-badgePadding/2, min.Y+baseline-ascent-badgePadding/2,
			min.X+x+labelWidth+badgePadding/2, min.Y+baseline+descent+badgePadding/2,
		)
		// Keep the badge inside the band.
		badge = badge.Intersect(image.Rect(min.X, min.Y+yStart, img.Bounds().Max.X, img.Bounds().Max.Y))
		draw.Draw(img, badge, &image.Uniform{badgeColor}, image.Point{}, draw.Src)

		drawText(img, face, textWhite, x, baseline, label)
		x += labelWidth + statGap
	}

	var parts []string
	if meta.Scope != "" {
		parts = append(parts, meta.Scope)
	}
	if meta.RepoName != "" {
		parts = append(parts, meta.RepoName)
	}
	if len(parts) > 0 {
		drawText(img, face, textGrey, x, baseline, strings.Join(parts, " • "))
	}
}

// statsStartX measures the stats block and returns the x where it (and
// the SHA above it) begins.
func (r *Renderer) statsStartX(face font.Face, width int, meta gitmeta.CommitMetadata) int {
	total := 0
	if meta.Stats.FilesChanged > 0 {
		total += font.MeasureString(face, "("+FormatStatCount(meta.Stats.FilesChanged)+")").Ceil() + statGap
	}
	if meta.Stats.Insertions > 0 {
		total += font.MeasureString(face, "+"+FormatStatCount(meta.Stats.Insertions)).Ceil() + statGap
	}
	if meta.Stats.Deletions > 0 {
		total += font.MeasureString(face, "-"+FormatStatCount(meta.Stats.Deletions)).Ceil()
	}

	if total == 0 {
		// No stats: still leave room for the SHA.
		total = font.MeasureString(face, "0000000").Ceil()
	}

	x := width - marginRight - total
	if x < marginLeft {
		x = marginLeft
	}
	return x
}

// drawStats renders "(files) +insertions -deletions" with the usual
// color conventions.
func (r *Renderer) drawStats(img *image.RGBA, face font.Face, x, baseline int, stats gitmeta.DiffStats) {
	if stats.FilesChanged > 0 {
		s := "(" + FormatStatCount(stats.FilesChanged) + ")"
		drawText(img, face, textYellow, x, baseline, s)
		x += font.MeasureString(face, s).Ceil() + statGap
	}
	if stats.Insertions > 0 {
		s := "+" + FormatStatCount(stats.Insertions)
		drawText(img, face, textGreen, x, baseline, s)
		x += font.MeasureString(face, s).Ceil() + statGap
	}
	if stats.Deletions > 0 {
		drawText(img, face, textRed, x, baseline, "-"+FormatStatCount(stats.Deletions))
	}
}

func drawText(img *image.RGBA, face font.Face, c color.NRGBA, x, baseline int, text string) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(img.Bounds().Min.X+x, img.Bounds().Min.Y+baseline),
	}
	d.DrawString(text)
}
