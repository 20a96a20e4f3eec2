package metapng

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapcommit/snapcommit/internal/gitmeta"
)

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 128, A: 255})
		}
	}
	return img
}

func fullMeta() gitmeta.CommitMetadata {
	return gitmeta.CommitMetadata{
		Revision:   "0123456789abcdef0123456789abcdef01234567",
		Message:    "feat(api): add thing",
		CommitType: "feat",
		Scope:      "api",
		Timestamp:  "2026-08-30 12:34:56",
		RepoName:   "snapcommit",
		BranchName: "main",
		Stats:      gitmeta.DiffStats{FilesChanged: 3, Insertions: 42, Deletions: 7},
	}
}

func TestRoundTrip(t *testing.T) {
	encoded, err := Encode(testImage(), fullMeta())
	require.NoError(t, err)

	meta, found, err := Extract(encoded)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, fullMeta(), meta)
}

func TestRoundTripNonASCII(t *testing.T) {
	in := fullMeta()
	in.Message = "feat: поддержка эмодзи 🎉 と日本語"
	in.Scope = "unicodé"

	encoded, err := Encode(testImage(), in)
	require.NoError(t, err)

	meta, found, err := Extract(encoded)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in.Message, meta.Message)
	assert.Equal(t, in.Scope, meta.Scope)
}

func TestEncodedStreamStillDecodesAsPNG(t *testing.T) {
	encoded, err := Encode(testImage(), fullMeta())
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())
}

func TestEmptyOptionalFieldsOmitted(t *testing.T) {
	in := fullMeta()
	in.Scope = ""
	in.Stats = gitmeta.DiffStats{} // empty stats omit the diff string

	encoded, err := Encode(testImage(), in)
	require.NoError(t, err)

	meta, found, err := Extract(encoded)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "", meta.Scope)
	assert.True(t, meta.Stats.IsEmpty())
}

func TestExtractNoMetadata(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))

	_, found, err := Extract(buf.Bytes())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExtractNotPNG(t *testing.T) {
	_, _, err := Extract([]byte("definitely not a png"))
	assert.Error(t, err)
}

func TestEncodeInvalidUTF8Fails(t *testing.T) {
	in := fullMeta()
	in.Message = string([]byte{0xff, 0xfe, 0xfd})

	_, err := Encode(testImage(), in)
	assert.ErrorIs(t, err, ErrMetadataEncoding)
}

func TestLegacyTEXtChunksHonored(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))

	// Hand-build a tEXt chunk and splice it in.
	data := append([]byte(KeyRevision), 0)
	data = append(data, []byte("cafebabe")...)
	withText, err := insertAfterIHDR(buf.Bytes(), rawChunk("tEXt", data))
	require.NoError(t, err)

	meta, found, err := Extract(withText)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "cafebabe", meta.Revision)
}

func TestITXtWinsOverTEXt(t *testing.T) {
	encoded, err := Encode(testImage(), fullMeta())
	require.NoError(t, err)

	data := append([]byte(KeyRevision), 0)
	data = append(data, []byte("legacy-value")...)
	withBoth, err := insertAfterIHDR(encoded, rawChunk("tEXt", data))
	require.NoError(t, err)

	meta, found, err := Extract(withBoth)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, fullMeta().Revision, meta.Revision)
}

func TestParseFilenameLegacy(t *testing.T) {
	meta, ok := parseFilename("my-repo-20260830-123456-abc1234.png")
	require.True(t, ok)
	assert.Equal(t, "my-repo", meta.RepoName)
	assert.Equal(t, "abc1234", meta.Revision)
	assert.Equal(t, "2026-08-30 12:34:56", meta.Timestamp)
}

func TestParseFilenameRejectsOddNames(t *testing.T) {
	_, ok := parseFilename("nope.png")
	assert.False(t, ok)
	_, ok = parseFilename("not-a-png.jpg")
	assert.False(t, ok)
}
