// Package capture acquires single frames from a webcam-style device.
// Devices need a handful of throwaway reads after opening before exposure
// settles, so the source discards a configurable number of warm-up frames
// before returning the real one.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/snapcommit/snapcommit/internal/logger"
)

var (
	// ErrDeviceUnavailable indicates the device does not exist or could
	// not be opened.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")

	// ErrDeviceBusy indicates the device is held by another process.
	ErrDeviceBusy = errors.New("capture: device busy")

	// ErrCaptureTimeout indicates no frame arrived within the deadline.
	ErrCaptureTimeout = errors.New("capture: timed out waiting for frame")
)

// DefaultWarmupFrames matches the settle time of typical UVC webcams.
const DefaultWarmupFrames = 3

// Device is a minimal frame producer. Implementations must be safe to
// Close after a failed Read.
type Device interface {
	// Read blocks until the next frame is available.
	Read() (*image.RGBA, error)
	Close() error
}

// Source captures one frame from a device, handling warm-up and deadlines.
type Source struct {
	// Open acquires the device. Called once per Capture.
	Open func() (Device, error)

	// WarmupFrames is the number of frames discarded before the kept
	// one. Negative values are treated as zero.
	WarmupFrames int
}

// Capture opens the device, discards the warm-up frames, and returns the
// next frame. The device is always closed before returning. Cancellation
// of ctx during reads yields ErrCaptureTimeout; cancellation observed
// before the device was opened returns the context error unchanged.
func (s *Source) Capture(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dev, err := s.Open()
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	warmup := s.WarmupFrames
	if warmup < 0 {
		warmup = 0
	}

	start := time.Now()
	for i := 0; i < warmup; i++ {
		if _, err := readFrame(ctx, dev); err != nil {
			return nil, fmt.Errorf("warm-up frame %d: %w", i+1, err)
		}
	}

	frame, err := readFrame(ctx, dev)
	if err != nil {
		return nil, err
	}

	logger.Debug("frame captured",
		"warmup_frames", warmup,
		"width", frame.Bounds().Dx(),
		"height", frame.Bounds().Dy(),
		"elapsed", time.Since(start))
	return frame, nil
}

// readFrame runs dev.Read in a goroutine so a stuck device cannot outlive
// the context. When the deadline fires first the straggler goroutine
// drains into a buffered channel and is abandoned; closing the device on
// return unblocks it.
func readFrame(ctx context.Context, dev Device) (*image.RGBA, error) {
	type result struct {
		frame *image.RGBA
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := dev.Read()
		ch <- result{f, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrCaptureTimeout, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.frame, nil
	}
}
