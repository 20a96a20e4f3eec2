// Package metapng embeds commit metadata into PNG text chunks and reads
// it back. Metadata is written as iTXt chunks, which carry UTF-8 text;
// tEXt is Latin-1 only and would mangle non-ASCII commit messages, so it
// is never written (but is still honored when reading legacy files).
package metapng

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"strconv"
	"unicode/utf8"

	"github.com/snapcommit/snapcommit/internal/gitmeta"
)

// ErrMetadataEncoding reports metadata that cannot be represented in a
// PNG text chunk. Well-formed UTF-8 strings never trigger it.
var ErrMetadataEncoding = errors.New("metapng: metadata encoding failed")

// Stable metadata chunk keywords. Downstream viewers parse these without
// re-deriving anything from git.
const (
	KeyRevision     = "snapcommit:revision"
	KeyMessage      = "snapcommit:message"
	KeyType         = "snapcommit:type"
	KeyScope        = "snapcommit:scope"
	KeyTimestamp    = "snapcommit:timestamp"
	KeyRepo         = "snapcommit:repo"
	KeyBranch       = "snapcommit:branch"
	KeyDiff         = "snapcommit:diff"
	KeyFilesChanged = "snapcommit:files_changed"
	KeyInsertions   = "snapcommit:insertions"
	KeyDeletions    = "snapcommit:deletions"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Encode encodes the image as a PNG with the commit metadata embedded as
// iTXt chunks. The chunks are inserted directly after IHDR so readers
// find them without decoding image data.
func Encode(img image.Image, meta gitmeta.CommitMetadata) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("metapng: png encode: %w", err)
	}

	chunks, err := metadataChunks(meta)
	if err != nil {
		return nil, err
	}

	return insertAfterIHDR(buf.Bytes(), chunks)
}

// metadataChunks serializes all metadata fields into raw iTXt chunks.
// Empty optional fields (scope, diff string) are omitted.
func metadataChunks(meta gitmeta.CommitMetadata) ([]byte, error) {
	var out bytes.Buffer

	pairs := []struct {
		key, value string
		optional   bool
	}{
		{KeyRevision, meta.Revision, false},
		{KeyMessage, meta.Message, false},
		{KeyType, meta.CommitType, false},
		{KeyScope, meta.Scope, true},
		{KeyTimestamp, meta.Timestamp, false},
		{KeyRepo, meta.RepoName, false},
		{KeyBranch, meta.BranchName, false},
		{KeyDiff, meta.DiffStatsString(), true},
		{KeyFilesChanged, strconv.FormatUint(uint64(meta.Stats.FilesChanged), 10), false},
		{KeyInsertions, strconv.FormatUint(uint64(meta.Stats.Insertions), 10), false},
		{KeyDeletions, strconv.FormatUint(uint64(meta.Stats.Deletions), 10), false},
	}

	for _, p := range pairs {
		if p.optional && p.value == "" {
			continue
		}
		chunk, err := itxtChunk(p.key, p.value)
		if err != nil {
			return nil, err
		}
		out.Write(chunk)
	}

	return out.Bytes(), nil
}

// itxtChunk builds one uncompressed iTXt chunk:
// keyword NUL compressionFlag compressionMethod languageTag NUL
// translatedKeyword NUL text.
func itxtChunk(keyword, text string) ([]byte, error) {
	if len(keyword) == 0 || len(keyword) > 79 || bytes.IndexByte([]byte(keyword), 0) >= 0 {
		return nil, fmt.Errorf("%w: invalid keyword %q", ErrMetadataEncoding, keyword)
	}
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: text for %q is not valid UTF-8", ErrMetadataEncoding, keyword)
	}

	var data bytes.Buffer
	data.WriteString(keyword)
	data.WriteByte(0) // keyword terminator
	data.WriteByte(0) // compression flag: uncompressed
	data.WriteByte(0) // compression method
	data.WriteByte(0) // empty language tag, terminated
	data.WriteByte(0) // empty translated keyword, terminated
	data.WriteString(text)

	return rawChunk("iTXt", data.Bytes()), nil
}

// rawChunk frames chunk data with length, type, and CRC.
func rawChunk(chunkType string, data []byte) []byte {
	out := make([]byte, 0, 12+len(data))

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	out = append(out, length[:]...)
	out = append(out, chunkType...)
	out = append(out, data...)

	crc := crc32.NewIEEE()
	crc.Write([]byte(chunkType))
	crc.Write(data)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	return append(out, sum[:]...)
}

// insertAfterIHDR splices raw chunks into an encoded PNG stream right
// after the IHDR chunk.
func insertAfterIHDR(encoded, chunks []byte) ([]byte, error) {
	if !bytes.HasPrefix(encoded, pngSignature) {
		return nil, errors.New("metapng: not a PNG stream")
	}

	// IHDR is always the first chunk; its data is 13 bytes.
	ihdrEnd := len(pngSignature) + 8 + 13 + 4
	if len(encoded) < ihdrEnd {
		return nil, errors.New("metapng: truncated PNG stream")
	}

	out := make([]byte, 0, len(encoded)+len(chunks))
	out = append(out, encoded[:ihdrEnd]...)
	out = append(out, chunks...)
	out = append(out, encoded[ihdrEnd:]...)
	return out, nil
}
