// Package persist writes finished snapshot artifacts to disk atomically.
// A temporary file in the target directory is written, synced, and then
// renamed over the final path, so directory watchers only ever observe
// complete files under their final names.
package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/snapcommit/snapcommit/internal/logger"
)

// ErrPersist wraps any write or rename failure.
var ErrPersist = errors.New("persist: write failed")

// Writer persists encoded artifacts into a directory.
type Writer struct {
	// Dir is created on first use if missing.
	Dir string
}

// NewWriter returns a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

// Write stores data at filename inside the writer's directory. The rename
// at the end is the sole commit point: on any earlier failure the target
// is untouched and the temporary file is removed. Returns the final path.
func (w *Writer) Write(filename string, data []byte) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create dir %s: %v", ErrPersist, w.Dir, err)
	}

	target := filepath.Join(w.Dir, filename)

	// The temp file lives in the same directory so the rename cannot
	// cross filesystems. The dot prefix keeps watchers from picking it up.
	tmpPath := filepath.Join(w.Dir, "."+filename+"."+uuid.NewString()+".tmp")

	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", ErrPersist, err)
	}

	if err := writeAndClose(tmp, data); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %v", ErrPersist, err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: rename to %s: %v", ErrPersist, target, err)
	}

	logger.Debug("artifact persisted", "path", target, "bytes", len(data))
	return target, nil
}

func writeAndClose(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write data: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
