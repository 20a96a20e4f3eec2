package gallery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/snapcommit/snapcommit/internal/events"
	"github.com/snapcommit/snapcommit/internal/logger"
	"github.com/snapcommit/snapcommit/internal/metapng"
)

// Watcher ingests snapshot PNGs dropped into a directory. Writers
// commit files by rename, so a create event always refers to a complete
// file.
type Watcher struct {
	store *Store
	bus   *events.Bus
	dir   string

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher prepares a watcher over dir. Call Start to begin.
func NewWatcher(store *Store, bus *events.Bus, dir string) *Watcher {
	return &Watcher{store: store, bus: bus, dir: dir, done: make(chan struct{})}
}

// Start scans the directory once for files indexed while the daemon was
// down, then watches for new ones until the context ends.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("gallery: create watch dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("gallery: start watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("gallery: watch %s: %w", w.dir, err)
	}
	w.fsw = fsw

	if err := w.scanExisting(); err != nil {
		fsw.Close()
		return err
	}

	go w.loop(ctx)
	logger.Info("watching for snapshots", "dir", w.dir)
	return nil
}

// Done is closed when the watch loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) scanExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("gallery: scan %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.ingest(filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			switch {
			case event.Op.Has(fsnotify.Create):
				w.ingest(event.Name)
			case event.Op.Has(fsnotify.Remove):
				w.forget(event.Name)
			case event.Op.Has(fsnotify.Rename):
				// Rename names the old path; the new one arrives as Create.
				if _, err := os.Stat(event.Name); os.IsNotExist(err) {
					w.forget(event.Name)
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Error("watcher error", "error", err)
		}
	}
}

// ingest indexes a single file. Non-PNG files and temp files are
// ignored; unreadable metadata falls back to filename parsing inside
// ParseFile, and a file yielding nothing at all is skipped.
func (w *Watcher) ingest(path string) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || !strings.EqualFold(filepath.Ext(base), ".png") {
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	meta, found := metapng.ParseFile(path)
	if !found {
		logger.Warn("skipping image without metadata", "file", base)
		return
	}

	img, created, err := w.store.Index(meta, base, path, info.Size(), false)
	if err != nil {
		logger.Error("failed to index image", "file", base, "error", err)
		return
	}

	if created {
		logger.Info("image indexed", "file", base, "revision", meta.Revision)
		w.publish(events.EventImageIndexed, img)
	} else {
		logger.Debug("image already indexed", "file", base, "revision", meta.Revision)
		w.publish(events.EventImageDuplicate, img)
	}
}

func (w *Watcher) forget(path string) {
	base := filepath.Base(path)
	if !strings.EqualFold(filepath.Ext(base), ".png") {
		return
	}
	if err := w.store.Remove(base); err != nil {
		logger.Error("failed to drop image from index", "file", base, "error", err)
	}
}

func (w *Watcher) publish(t events.EventType, img *Image) {
	if w.bus == nil {
		return
	}
	err := w.bus.Publish(events.Event{
		Type:   t,
		Source: "watcher",
		Data: map[string]interface{}{
			"filename": img.Filename,
			"revision": img.Revision,
			"repo":     img.RepoName,
		},
	})
	if err != nil {
		logger.Debug("event publish failed", "type", t, "error", err)
	}
}
