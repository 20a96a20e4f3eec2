package segment

import (
	"context"
	"errors"
	"image"
)

// Segmentation errors. ErrModelLoad covers a missing or unreadable model
// file; ErrInference covers malformed model output such as an unexpected
// tensor shape.
var (
	ErrModelLoad = errors.New("segment: model load failed")
	ErrInference = errors.New("segment: inference failed")
)

// Segmenter turns a frame into a foreground probability mask with the same
// dimensions as the frame. Implementations must be deterministic for a
// fixed model and input, and safe for reuse across pipeline runs once
// constructed (the loaded model is read-only).
type Segmenter interface {
	Infer(ctx context.Context, frame *image.RGBA) (*Mask, error)
}
