package gallery

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// Thumbnailer produces WebP thumbnails, cached on disk so repeat loads
// of the gallery grid skip the resize.
type Thumbnailer struct {
	cacheDir string
	width    int
	quality  int

	mu sync.Mutex
}

// NewThumbnailer caches thumbnails of the given width under cacheDir.
func NewThumbnailer(cacheDir string, width, quality int) *Thumbnailer {
	return &Thumbnailer{cacheDir: cacheDir, width: width, quality: quality}
}

// Render returns the WebP thumbnail for the image at path, generating
// and caching it on first use.
func (t *Thumbnailer) Render(path string) ([]byte, error) {
	cachePath := t.cachePath(filepath.Base(path))

	t.mu.Lock()
	defer t.mu.Unlock()

	if data, err := os.ReadFile(cachePath); err == nil {
		return data, nil
	}

	src, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gallery: open image %s: %w", path, err)
	}

	// Height 0 preserves aspect ratio.
	resized := imaging.Resize(src, t.width, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, resized, &webp.Options{Quality: float32(t.quality)}); err != nil {
		return nil, fmt.Errorf("gallery: encode thumbnail: %w", err)
	}

	if err := os.MkdirAll(t.cacheDir, 0o755); err == nil {
		// A failed cache write is not fatal; the thumbnail is still served.
		os.WriteFile(cachePath, buf.Bytes(), 0o644)
	}

	return buf.Bytes(), nil
}

// Invalidate drops the cached thumbnail for a source filename.
func (t *Thumbnailer) Invalidate(filename string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	os.Remove(t.cachePath(filename))
}

func (t *Thumbnailer) cachePath(filename string) string {
	return filepath.Join(t.cacheDir, fmt.Sprintf("%s.w%d.webp", filename, t.width))
}
