package camera

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/dudu/retinaface/internal/pipeline"
	"github.com/dudu/retinaface/internal/preprocess"
)

// Blob is the OpenCV counterpart of preprocess.Letterbox plus preprocess.Blob:
// the BGR frame is resized into the top-left corner of a black w x h canvas
// and converted to a mean subtracted NCHW blob.
func Blob(img gocv.Mat, w, h int, mean [3]float32) ([]float32, float32, error) {
	if img.Empty() {
		return nil, 0, errors.New("empty frame")
	}

	scale := preprocess.Scale(img.Cols(), img.Rows(), w, h)
	nw, nh := preprocess.Fit(img.Cols(), img.Rows(), w, h, scale)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(nw, nh), 0, 0, gocv.InterpolationLinear)

	padded := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	defer padded.Close()
	padded.SetTo(gocv.NewScalar(0, 0, 0, 0))

	roi := padded.Region(image.Rect(0, 0, nw, nh))
	resized.CopyTo(&roi)
	roi.Close()

	blob := gocv.BlobFromImage(padded, 1.0, image.Pt(w, h),
		gocv.NewScalar(float64(mean[0]), float64(mean[1]), float64(mean[2]), 0), false, false)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read blob: %w", err)
	}

	out := make([]float32, len(data))
	copy(out, data)
	return out, scale, nil
}

// FramePreparer adapts a captured frame to pipeline.Preparer.
func FramePreparer(frame gocv.Mat) pipeline.Preparer {
	return func(w, h int, mean [3]float32) ([]float32, float32, error) {
		return Blob(frame, w, h, mean)
	}
}
