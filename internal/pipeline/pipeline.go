// Package pipeline chains the capture stages into a single run: grab a
// frame, strip the background, draw the chyron, embed commit metadata,
// and persist the result atomically.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/snapcommit/snapcommit/internal/capture"
	"github.com/snapcommit/snapcommit/internal/chyron"
	"github.com/snapcommit/snapcommit/internal/compose"
	"github.com/snapcommit/snapcommit/internal/events"
	"github.com/snapcommit/snapcommit/internal/gitmeta"
	"github.com/snapcommit/snapcommit/internal/logger"
	"github.com/snapcommit/snapcommit/internal/metapng"
	"github.com/snapcommit/snapcommit/internal/persist"
	"github.com/snapcommit/snapcommit/internal/segment"
)

// Pipeline wires the stages of a snapshot run. Segmenter and Chyron are
// optional; a nil Segmenter keeps the raw frame and a nil Chyron skips
// the overlay.
type Pipeline struct {
	Source        *capture.Source
	Segmenter     segment.Segmenter
	Background    compose.Spec
	CenterSubject bool
	Chyron        *chyron.Renderer
	Writer        *persist.Writer
	Bus           *events.Bus

	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

// Result describes a completed run.
type Result struct {
	Path     string
	Filename string
	PNG      []byte
}

// Run executes the full pipeline for one commit. Stage failures are
// wrapped with the stage name so callers can tell a camera problem from
// a font problem.
func (p *Pipeline) Run(ctx context.Context, meta *gitmeta.CommitMetadata) (*Result, error) {
	start := time.Now()

	frame, err := p.Source.Capture(ctx)
	if err != nil {
		return nil, &StageError{Stage: StageCapture, Err: err}
	}
	p.publish(events.EventCaptureCompleted, map[string]interface{}{
		"revision": meta.Revision,
		"width":    frame.Bounds().Dx(),
		"height":   frame.Bounds().Dy(),
	})

	encoded, err := p.Render(ctx, frame, meta)
	if err != nil {
		return nil, err
	}

	filename := Filename(meta, p.now())
	path, err := p.Writer.Write(filename, encoded)
	if err != nil {
		return nil, &StageError{Stage: StagePersist, Err: err}
	}
	p.publish(events.EventArtifactPersisted, map[string]interface{}{
		"revision": meta.Revision,
		"path":     path,
	})

	logger.Info("snapshot complete",
		"revision", meta.ShortRevision(),
		"path", path,
		"elapsed", time.Since(start))

	return &Result{Path: path, Filename: filename, PNG: encoded}, nil
}

// Render runs the stages between capture and persist on a frame:
// segmentation and background replacement, the chyron overlay, and
// metadata embedding. The gallery daemon calls it directly to process
// frames uploaded raw by capture clients.
func (p *Pipeline) Render(ctx context.Context, frame *image.RGBA, meta *gitmeta.CommitMetadata) ([]byte, error) {
	img, err := p.composite(ctx, frame)
	if err != nil {
		return nil, err
	}

	if p.Chyron != nil {
		if err := p.Chyron.Render(img, *meta); err != nil {
			return nil, &StageError{Stage: StageChyron, Err: err}
		}
	}

	encoded, err := metapng.Encode(img, *meta)
	if err != nil {
		return nil, &StageError{Stage: StageMetadata, Err: err}
	}
	return encoded, nil
}

// composite applies segmentation and background replacement, or returns
// the frame untouched when segmentation is disabled.
func (p *Pipeline) composite(ctx context.Context, frame *image.RGBA) (*image.RGBA, error) {
	if p.Segmenter == nil {
		return frame, nil
	}

	mask, err := p.Segmenter.Infer(ctx, frame)
	if err != nil {
		return nil, &StageError{Stage: StageSegment, Err: err}
	}

	return compose.Composite(frame, mask, p.Background, compose.Options{
		CenterSubject: p.CenterSubject,
	}), nil
}

func (p *Pipeline) publish(t events.EventType, data map[string]interface{}) {
	if p.Bus == nil {
		return
	}
	if err := p.Bus.Publish(events.Event{Type: t, Source: "pipeline", Data: data}); err != nil {
		logger.Debug("event publish failed", "type", t, "error", err)
	}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Filename builds the artifact name {repo}-{timestamp}-{shortsha}.png.
// Repos named with hyphens survive because the timestamp and revision
// are fixed-position from the right.
func Filename(meta *gitmeta.CommitMetadata, now time.Time) string {
	repo := meta.RepoName
	if repo == "" {
		repo = "snapshot"
	}
	return fmt.Sprintf("%s-%s-%s.png", repo, now.Format("20060102-150405"), meta.ShortRevision())
}
