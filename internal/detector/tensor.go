package detector

import (
	"gorgonia.org/tensor"
)

// Row widths of the three RetinaFace outputs
const (
	boxCols      = 4
	scoreCols    = 2
	landmarkCols = 2 * NumLandmarks
)

// Outputs holds the raw tensors of one inference. Each may be shaped
// (N, C) or (1, N, C) and must be float32 with packed rows.
type Outputs struct {
	Boxes     tensor.Tensor // (N, 4): dx, dy, dw, dh
	Scores    tensor.Tensor // (N, 2): background, face
	Landmarks tensor.Tensor // (N, 10): x,y pairs in landmark order
}

// rows is a validated, read-only view over a packed row-major buffer
type rows struct {
	data []float32
	n    int
	cols int
}

func (r rows) row(i int) []float32 {
	return r.data[i*r.cols : (i+1)*r.cols]
}

// viewRows validates a tensor at the boundary and returns its rows.
// The batch dimension of a (1, N, C) tensor is dropped.
func viewRows(name string, t tensor.Tensor, cols int) (rows, error) {
	if t == nil {
		return rows{}, tensorErrorf(name, "missing")
	}
	if t.Dtype() != tensor.Float32 {
		return rows{}, tensorErrorf(name, "dtype %v, want float32", t.Dtype())
	}

	shape := t.Shape()
	strides := t.Strides()
	var n int
	switch len(shape) {
	case 2:
		n = shape[0]
	case 3:
		if shape[0] != 1 {
			return rows{}, tensorErrorf(name, "batch size %d, want 1", shape[0])
		}
		n = shape[1]
	default:
		return rows{}, tensorErrorf(name, "shape %v, want (N, %d) or (1, N, %d)", shape, cols, cols)
	}
	if shape[len(shape)-1] != cols {
		return rows{}, tensorErrorf(name, "shape %v, want %d columns", shape, cols)
	}
	if t.RequiresIterator() || len(strides) != len(shape) ||
		strides[len(strides)-1] != 1 || strides[len(strides)-2] != cols {
		return rows{}, tensorErrorf(name, "non-contiguous layout, strides %v", strides)
	}

	data, ok := t.Data().([]float32)
	if !ok {
		return rows{}, tensorErrorf(name, "backing data is %T", t.Data())
	}
	if len(data) < n*cols {
		return rows{}, tensorErrorf(name, "backing data has %d values, want %d", len(data), n*cols)
	}

	return rows{data: data[:n*cols], n: n, cols: cols}, nil
}

// NewOutputs wraps flat buffers as (N, C) tensors, for callers whose
// runtime hands back plain slices.
func NewOutputs(boxes, scores, landmarks []float32) (Outputs, error) {
	for _, b := range []struct {
		name string
		data []float32
		cols int
	}{
		{"boxes", boxes, boxCols},
		{"scores", scores, scoreCols},
		{"landmarks", landmarks, landmarkCols},
	} {
		if len(b.data) == 0 || len(b.data)%b.cols != 0 {
			return Outputs{}, tensorErrorf(b.name, "%d values is not a positive multiple of %d", len(b.data), b.cols)
		}
	}

	return Outputs{
		Boxes:     tensor.New(tensor.WithShape(len(boxes)/boxCols, boxCols), tensor.WithBacking(boxes)),
		Scores:    tensor.New(tensor.WithShape(len(scores)/scoreCols, scoreCols), tensor.WithBacking(scores)),
		Landmarks: tensor.New(tensor.WithShape(len(landmarks)/landmarkCols, landmarkCols), tensor.WithBacking(landmarks)),
	}, nil
}
