package capture

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"os"
	"strconv"
	"strings"
	"syscall"

	"gocv.io/x/gocv"
)

// WebcamDevice reads frames from a V4L2 webcam through OpenCV.
type WebcamDevice struct {
	cam *gocv.VideoCapture
	mat gocv.Mat
}

// OpenWebcam opens the device named by spec, which is either a numeric
// index ("0") or a device path ("/dev/video0"). Requested dimensions of
// zero leave the device's native resolution in place.
func OpenWebcam(spec string, width, height int) (*WebcamDevice, error) {
	if strings.HasPrefix(spec, "/") {
		if err := probeDeviceNode(spec); err != nil {
			return nil, err
		}
	}

	var (
		cam *gocv.VideoCapture
		err error
	)
	if idx, convErr := strconv.Atoi(spec); convErr == nil {
		cam, err = gocv.OpenVideoCapture(idx)
	} else {
		cam, err = gocv.OpenVideoCapture(spec)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDeviceUnavailable, spec, err)
	}
	if !cam.IsOpened() {
		cam.Close()
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, spec)
	}

	if width > 0 {
		cam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	}
	if height > 0 {
		cam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}

	return &WebcamDevice{cam: cam, mat: gocv.NewMat()}, nil
}

// probeDeviceNode distinguishes a missing device from one held by
// another process, which OpenCV reports identically.
func probeDeviceNode(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s does not exist", ErrDeviceUnavailable, path)
		}
		if errors.Is(err, syscall.EBUSY) {
			return fmt.Errorf("%w: %s", ErrDeviceBusy, path)
		}
		return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, path, err)
	}
	f.Close()
	return nil
}

// Read grabs the next frame and converts it from OpenCV's BGR layout.
func (d *WebcamDevice) Read() (*image.RGBA, error) {
	if !d.cam.Read(&d.mat) || d.mat.Empty() {
		return nil, fmt.Errorf("%w: read returned no frame", ErrDeviceUnavailable)
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(d.mat, &rgb, gocv.ColorBGRToRGBA)

	img, err := rgb.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out, nil
}

// Close releases the device and its scratch buffer.
func (d *WebcamDevice) Close() error {
	d.mat.Close()
	return d.cam.Close()
}
