// Package chyron renders the lower-third text overlay onto a composited
// snapshot: commit message, repo info, short SHA, diff stats, and a badge
// for recognized conventional-commit types.
package chyron

import (
	"fmt"
	"image/color"
	"strconv"
)

// FormatStatCount abbreviates a diff-stat count for display. Counts above
// 999 use a k suffix, counts of a million or more use M, both with one
// decimal place: 950 -> "950", 1500 -> "1.5k", 2300000 -> "2.3M".
func FormatStatCount(n uint32) string {
	switch {
	case n <= 999:
		return strconv.FormatUint(uint64(n), 10)
	case n < 1_000_000:
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	default:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
}

// badgeColors maps recognized conventional-commit types to their badge
// fill colors. Types outside this map render no badge.
var badgeColors = map[string]color.NRGBA{
	"feat":     {R: 0x2e, G: 0x8b, B: 0x57, A: 0xff},
	"fix":      {R: 0xc0, G: 0x39, B: 0x2b, A: 0xff},
	"chore":    {R: 0x7f, G: 0x8c, B: 0x8d, A: 0xff},
	"docs":     {R: 0x29, G: 0x80, B: 0xb9, A: 0xff},
	"style":    {R: 0x8e, G: 0x44, B: 0xad, A: 0xff},
	"refactor": {R: 0xd3, G: 0x54, B: 0x00, A: 0xff},
	"perf":     {R: 0x16, G: 0xa0, B: 0x85, A: 0xff},
	"test":     {R: 0xf3, G: 0x9c, B: 0x12, A: 0xff},
	"build":    {R: 0x2c, G: 0x3e, B: 0x50, A: 0xff},
	"ci":       {R: 0x34, G: 0x49, B: 0x5e, A: 0xff},
	"revert":   {R: 0x6c, G: 0x34, B: 0x83, A: 0xff},
}

// BadgeColor returns the badge color for a conventional-commit type and
// whether the type is recognized.
func BadgeColor(commitType string) (color.NRGBA, bool) {
	c, ok := badgeColors[commitType]
	return c, ok
}
