package detector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestViewRows(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6, 7, 8}

	r, err := viewRows("boxes", tensor.New(tensor.WithShape(2, 4), tensor.WithBacking(data)), boxCols)
	require.NoError(t, err)
	assert.Equal(t, 2, r.n)
	assert.Equal(t, []float32{5, 6, 7, 8}, r.row(1))

	r, err = viewRows("boxes", tensor.New(tensor.WithShape(1, 2, 4), tensor.WithBacking(data)), boxCols)
	require.NoError(t, err)
	assert.Equal(t, 2, r.n)
	assert.Equal(t, []float32{1, 2, 3, 4}, r.row(0))
}

func TestViewRows_Malformed(t *testing.T) {
	data := make([]float32, 24)
	full := tensor.New(tensor.WithShape(6, 4), tensor.WithBacking(data))
	sliced, err := full.Slice(nil, tensor.S(0, 2))
	require.NoError(t, err)

	for name, tc := range map[string]struct {
		t    tensor.Tensor
		cols int
	}{
		"missing":        {nil, boxCols},
		"wrong columns":  {tensor.New(tensor.WithShape(4, 6), tensor.WithBacking(data)), boxCols},
		"batch of two":   {tensor.New(tensor.WithShape(2, 3, 4), tensor.WithBacking(data)), boxCols},
		"flat":           {tensor.New(tensor.WithShape(24), tensor.WithBacking(data)), boxCols},
		"float64":        {tensor.New(tensor.WithShape(6, 4), tensor.WithBacking(make([]float64, 24))), boxCols},
		"non-contiguous": {sliced, scoreCols},
	} {
		_, err := viewRows("boxes", tc.t, tc.cols)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrMalformedTensor), name)

		var te *TensorError
		require.True(t, errors.As(err, &te), name)
		assert.Equal(t, "boxes", te.Name)
	}
}

func TestNewOutputs(t *testing.T) {
	out, err := NewOutputs(make([]float32, 8), make([]float32, 4), make([]float32, 20))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 4}, out.Boxes.Shape())
	assert.Equal(t, tensor.Shape{2, 2}, out.Scores.Shape())
	assert.Equal(t, tensor.Shape{2, 10}, out.Landmarks.Shape())

	_, err = NewOutputs(make([]float32, 7), make([]float32, 4), make([]float32, 20))
	assert.True(t, errors.Is(err, ErrMalformedTensor))

	_, err = NewOutputs(make([]float32, 8), nil, make([]float32, 20))
	assert.True(t, errors.Is(err, ErrMalformedTensor))
}
