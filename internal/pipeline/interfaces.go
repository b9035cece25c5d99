package pipeline

import (
	"image"

	"gorgonia.org/tensor"

	"github.com/dudu/retinaface/internal/detector"
)

// Backend selects the ONNX Runtime execution provider
type Backend string

const (
	BackendCPU    Backend = "cpu"
	BackendCoreML Backend = "coreml"
)

// FaceDetector interface for face detection
type FaceDetector interface {
	DetectImage(img image.Image, limit int) ([]detector.Face, error)
	Close() error
}

// Runner executes the network on a prepared input blob and returns its
// outputs by name. *inference.Session implements it.
type Runner interface {
	Run(input []float32, shape []int64) (map[string]tensor.Tensor, error)
	Destroy() error
}

// Preparer letterboxes a frame into a w x h NCHW blob and reports the scale
// applied to it.
type Preparer func(w, h int, mean [3]float32) ([]float32, float32, error)
