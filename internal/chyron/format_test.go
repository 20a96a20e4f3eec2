package chyron

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatStatCount(t *testing.T) {
	tests := []struct {
		n        uint32
		expected string
	}{
		{0, "0"},
		{42, "42"},
		{950, "950"},
		{999, "999"},
		{1000, "1.0k"},
		{1500, "1.5k"},
		{999_999, "1000.0k"},
		{1_000_000, "1.0M"},
		{2_300_000, "2.3M"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatStatCount(tt.n), "n=%d", tt.n)
	}
}

func TestBadgeColorRecognizedTypes(t *testing.T) {
	for _, typ := range []string{"feat", "fix", "chore", "refactor", "docs", "perf", "test", "ci", "build", "style", "revert"} {
		_, ok := BadgeColor(typ)
		assert.True(t, ok, "type %q should have a badge", typ)
	}
}

func TestBadgeColorUnrecognized(t *testing.T) {
	_, ok := BadgeColor("commit")
	assert.False(t, ok)
	_, ok = BadgeColor("")
	assert.False(t, ok)
	_, ok = BadgeColor("FEAT")
	assert.False(t, ok)
}
