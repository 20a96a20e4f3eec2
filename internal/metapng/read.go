package metapng

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/snapcommit/snapcommit/internal/gitmeta"
)

// Extract parses the text chunks of an encoded PNG and rebuilds the
// embedded CommitMetadata. It reads both tEXt (legacy) and iTXt chunks;
// when a keyword appears in both, the iTXt value wins. The boolean is
// false when the stream carries no snapcommit metadata at all.
func Extract(encoded []byte) (gitmeta.CommitMetadata, bool, error) {
	if !bytes.HasPrefix(encoded, pngSignature) {
		return gitmeta.CommitMetadata{}, false, errors.New("metapng: not a PNG stream")
	}

	text := map[string]string{}
	itxt := map[string]string{}

	rest := encoded[len(pngSignature):]
	for len(rest) >= 12 {
		length := binary.BigEndian.Uint32(rest[:4])
		chunkType := string(rest[4:8])
		if len(rest) < int(12+length) {
			return gitmeta.CommitMetadata{}, false, errors.New("metapng: truncated chunk")
		}
		data := rest[8 : 8+length]

		switch chunkType {
		case "tEXt":
			if k, v, ok := parseTEXt(data); ok {
				text[k] = v
			}
		case "iTXt":
			if k, v, ok := parseITXt(data); ok {
				itxt[k] = v
			}
		case "IEND":
			rest = nil
			continue
		}

		rest = rest[12+length:]
	}

	// iTXt takes priority over legacy tEXt.
	for k, v := range itxt {
		text[k] = v
	}

	meta := gitmeta.CommitMetadata{
		Revision:   text[KeyRevision],
		Message:    text[KeyMessage],
		CommitType: text[KeyType],
		Scope:      text[KeyScope],
		Timestamp:  text[KeyTimestamp],
		RepoName:   text[KeyRepo],
		BranchName: text[KeyBranch],
		Stats: gitmeta.DiffStats{
			FilesChanged: parseCount(text[KeyFilesChanged]),
			Insertions:   parseCount(text[KeyInsertions]),
			Deletions:    parseCount(text[KeyDeletions]),
		},
	}

	found := meta.Revision != "" || meta.Message != "" || meta.CommitType != ""
	return meta, found, nil
}

// ExtractFile reads a PNG from disk and extracts its metadata.
func ExtractFile(path string) (gitmeta.CommitMetadata, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gitmeta.CommitMetadata{}, false, fmt.Errorf("metapng: read %s: %w", path, err)
	}
	return Extract(data)
}

// parseTEXt splits a tEXt chunk into keyword and Latin-1 text.
func parseTEXt(data []byte) (string, string, bool) {
	nul := bytes.IndexByte(data, 0)
	if nul < 0 {
		return "", "", false
	}
	return string(data[:nul]), string(data[nul+1:]), true
}

// parseITXt splits an iTXt chunk into keyword and UTF-8 text. Compressed
// payloads are skipped; this package never writes them.
func parseITXt(data []byte) (string, string, bool) {
	nul := bytes.IndexByte(data, 0)
	if nul < 0 || len(data) < nul+3 {
		return "", "", false
	}
	keyword := string(data[:nul])
	compressed := data[nul+1] != 0

	rest := data[nul+3:] // past compression flag and method
	langEnd := bytes.IndexByte(rest, 0)
	if langEnd < 0 {
		return "", "", false
	}
	rest = rest[langEnd+1:]
	translatedEnd := bytes.IndexByte(rest, 0)
	if translatedEnd < 0 {
		return "", "", false
	}
	if compressed {
		return "", "", false
	}
	return keyword, string(rest[translatedEnd+1:]), true
}

func parseCount(s string) uint32 {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

// ParseFile extracts metadata from a snapshot file, falling back to
// filename parsing for legacy images written before metadata embedding.
// The expected legacy format is {repo}-{YYYYMMDD-HHMMSS}-{sha}.png.
func ParseFile(path string) (gitmeta.CommitMetadata, bool) {
	if meta, found, err := ExtractFile(path); err == nil && found {
		return meta, true
	}
	return parseFilename(filepath.Base(path))
}

func parseFilename(filename string) (gitmeta.CommitMetadata, bool) {
	name, ok := strings.CutSuffix(filename, ".png")
	if !ok {
		return gitmeta.CommitMetadata{}, false
	}

	// Split from the right: sha, then timestamp (two dash-joined parts).
	parts := strings.Split(name, "-")
	if len(parts) < 4 {
		return gitmeta.CommitMetadata{}, false
	}

	sha := parts[len(parts)-1]
	timePart := parts[len(parts)-3] + "-" + parts[len(parts)-2]
	repo := strings.Join(parts[:len(parts)-3], "-")
	if repo == "" {
		return gitmeta.CommitMetadata{}, false
	}

	return gitmeta.CommitMetadata{
		Revision:  sha,
		RepoName:  repo,
		Timestamp: formatLegacyTimestamp(timePart, repo),
	}, true
}

// formatLegacyTimestamp turns YYYYMMDD-HHMMSS into a display string,
// leaving unparseable values as repo-qualified raw text.
func formatLegacyTimestamp(ts, repo string) string {
	if len(ts) != 15 || ts[8] != '-' {
		return repo + "-" + ts
	}
	return fmt.Sprintf("%s-%s-%s %s:%s:%s",
		ts[0:4], ts[4:6], ts[6:8], ts[9:11], ts[11:13], ts[13:15])
}
