package segment

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/snapcommit/snapcommit/internal/logger"
)

// modelInputSize is the fixed input resolution of the U2Net export.
const modelInputSize = 320

// DNNSegmenter runs a U2Net ONNX model through the OpenCV DNN module on
// the CPU. The network is loaded once at construction and never mutated,
// so a single instance may be shared across pipeline runs; Infer itself is
// serialized because OpenCV networks are not safe for concurrent forward
// passes.
type DNNSegmenter struct {
	mu  sync.Mutex
	net gocv.Net
}

// NewDNNSegmenter loads the segmentation model from the given ONNX file.
// The file is expected to have been provisioned (downloaded and checksum
// verified) beforehand.
func NewDNNSegmenter(modelPath string) (*DNNSegmenter, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, modelPath, err)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: %s: unreadable network", ErrModelLoad, modelPath)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: set backend: %v", ErrModelLoad, err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: set target: %v", ErrModelLoad, err)
	}

	logger.Info("segmentation model loaded", "path", modelPath)
	return &DNNSegmenter{net: net}, nil
}

// Close releases the network.
func (s *DNNSegmenter) Close() error {
	return s.net.Close()
}

// Infer runs the model on the frame and returns a probability mask
// resampled to the frame's dimensions.
func (s *DNNSegmenter) Infer(ctx context.Context, frame *image.RGBA) (*Mask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bounds := frame.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	mat, err := gocv.ImageToMatRGBA(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: frame conversion: %v", ErrInference, err)
	}
	defer mat.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(mat, &bgr, gocv.ColorRGBAToBGR)

	// BlobFromImage scales to [0,1] and swaps BGR back to RGB, matching
	// the preprocessing the model was trained with.
	blob := gocv.BlobFromImage(bgr, 1.0/255.0,
		image.Pt(modelInputSize, modelInputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	if output.Empty() {
		return nil, fmt.Errorf("%w: empty output", ErrInference)
	}

	// The main U2Net output is a [1, 1, H, W] tensor.
	dims := output.Size()
	if len(dims) != 4 || dims[0] != 1 || dims[1] != 1 {
		return nil, fmt.Errorf("%w: unexpected output shape %v", ErrInference, dims)
	}
	outH, outW := dims[2], dims[3]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("%w: read output tensor: %v", ErrInference, err)
	}
	if len(data) < outH*outW {
		return nil, fmt.Errorf("%w: output tensor too small: %d < %d", ErrInference, len(data), outH*outW)
	}

	mask := NewMask(outW, outH)
	for i := 0; i < outW*outH; i++ {
		v := data[i]
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		mask.Data[i] = v
	}

	logger.Debug("segmentation inference complete",
		"model_size", modelInputSize, "frame_w", width, "frame_h", height)

	return mask.Resample(width, height), nil
}
