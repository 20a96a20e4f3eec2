package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice serves a scripted sequence of frames, each painted a single
// shade so tests can tell which read produced it.
type fakeDevice struct {
	frames    int
	reads     int
	closed    bool
	readDelay time.Duration
	readErr   error
}

func (d *fakeDevice) Read() (*image.RGBA, error) {
	if d.readDelay > 0 {
		time.Sleep(d.readDelay)
	}
	if d.readErr != nil {
		return nil, d.readErr
	}
	d.reads++
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	shade := uint8(d.reads)
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	return img, nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func TestCaptureDiscardsWarmupFrames(t *testing.T) {
	dev := &fakeDevice{}
	src := &Source{
		Open:         func() (Device, error) { return dev, nil },
		WarmupFrames: 3,
	}

	frame, err := src.Capture(context.Background())
	require.NoError(t, err)

	// The returned frame is the fourth read.
	assert.Equal(t, 4, dev.reads)
	assert.Equal(t, color.RGBA{4, 4, 4, 4}, frame.RGBAAt(0, 0))
	assert.True(t, dev.closed)
}

func TestCaptureZeroWarmupReturnsFirstFrame(t *testing.T) {
	dev := &fakeDevice{}
	src := &Source{Open: func() (Device, error) { return dev, nil }}

	frame, err := src.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, dev.reads)
	assert.Equal(t, color.RGBA{1, 1, 1, 1}, frame.RGBAAt(0, 0))
}

func TestCaptureNegativeWarmupTreatedAsZero(t *testing.T) {
	dev := &fakeDevice{}
	src := &Source{
		Open:         func() (Device, error) { return dev, nil },
		WarmupFrames: -5,
	}

	_, err := src.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, dev.reads)
}

func TestCaptureOpenFailure(t *testing.T) {
	src := &Source{
		Open: func() (Device, error) { return nil, ErrDeviceUnavailable },
	}

	_, err := src.Capture(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestCaptureTimeoutDuringRead(t *testing.T) {
	dev := &fakeDevice{readDelay: 200 * time.Millisecond}
	src := &Source{Open: func() (Device, error) { return dev, nil }}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := src.Capture(ctx)
	assert.ErrorIs(t, err, ErrCaptureTimeout)
}

func TestCaptureTimeoutDuringWarmup(t *testing.T) {
	dev := &fakeDevice{readDelay: 100 * time.Millisecond}
	src := &Source{
		Open:         func() (Device, error) { return dev, nil },
		WarmupFrames: 5,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	_, err := src.Capture(ctx)
	assert.ErrorIs(t, err, ErrCaptureTimeout)
}

func TestCaptureCancelledBeforeOpen(t *testing.T) {
	opened := false
	src := &Source{
		Open: func() (Device, error) {
			opened = true
			return &fakeDevice{}, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Capture(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, opened)
}

func TestCaptureClosesDeviceOnReadError(t *testing.T) {
	dev := &fakeDevice{readErr: errors.New("sensor fault")}
	src := &Source{Open: func() (Device, error) { return dev, nil }}

	_, err := src.Capture(context.Background())
	require.Error(t, err)
	assert.True(t, dev.closed)
}
