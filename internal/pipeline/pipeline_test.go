package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/dudu/retinaface/internal/detector"
)

// anchor at row 20, column 20 of the stride 8 level, base size 32
const faceAnchor = (20*40+20)*2 + 1

type fakeRunner struct {
	mu        sync.Mutex
	shapes    [][]int64
	inputLen  int
	err       error
	drop      string
	destroyed int
}

func (f *fakeRunner) Run(input []float32, shape []int64) (map[string]tensor.Tensor, error) {
	f.mu.Lock()
	f.shapes = append(f.shapes, shape)
	f.inputLen = len(input)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	const n = 4200
	boxes := make([]float32, n*4)
	scores := make([]float32, n*2)
	landmarks := make([]float32, n*10)
	for i := 0; i < n; i++ {
		scores[2*i] = 1
	}
	scores[2*faceAnchor] = 0.1
	scores[2*faceAnchor+1] = 0.9
	copy(boxes[faceAnchor*4:], []float32{1, -1, 0, 0})

	out := map[string]tensor.Tensor{
		"boxes":     tensor.New(tensor.WithShape(1, n, 4), tensor.WithBacking(boxes)),
		"scores":    tensor.New(tensor.WithShape(1, n, 2), tensor.WithBacking(scores)),
		"landmarks": tensor.New(tensor.WithShape(1, n, 10), tensor.WithBacking(landmarks)),
	}
	delete(out, f.drop)
	return out, nil
}

func (f *fakeRunner) Destroy() error {
	f.destroyed++
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendCPU
	cfg.Workers = 2
	cfg.Detector.Priors.Width = 0
	cfg.Detector.Priors.Height = 0
	return cfg
}

func TestDetectImage(t *testing.T) {
	runner := &fakeRunner{}
	p, err := NewWithRunner(testConfig(), runner, nil)
	require.NoError(t, err)

	faces, err := p.DetectImage(image.NewNRGBA(image.Rect(0, 0, 640, 480)), -1)
	require.NoError(t, err)
	require.Len(t, faces, 1)

	assert.Equal(t, []int64{1, 3, 320, 320}, runner.shapes[0])
	assert.Equal(t, 3*320*320, runner.inputLen)

	// letterbox scale 0.5 doubles the 320 input coordinates
	f := faces[0]
	assert.InDelta(t, 0.9, f.Score, 1e-6)
	assert.InDelta(t, 302.4, f.Bounds.X, 1e-3)
	assert.InDelta(t, 289.6, f.Bounds.Y, 1e-3)
	assert.InDelta(t, 64, f.Bounds.Width, 1e-3)
	assert.InDelta(t, 64, f.Bounds.Height, 1e-3)

	timing := p.LastTiming()
	assert.GreaterOrEqual(t, timing.Total, timing.Inference)
}

func TestDetectImage_Errors(t *testing.T) {
	p, err := NewWithRunner(testConfig(), &fakeRunner{drop: "landmarks"}, nil)
	require.NoError(t, err)
	_, err = p.DetectImage(image.NewNRGBA(image.Rect(0, 0, 32, 32)), 5)
	assert.True(t, errors.Is(err, ErrMissingOutput))

	boom := errors.New("boom")
	p, err = NewWithRunner(testConfig(), &fakeRunner{err: boom}, nil)
	require.NoError(t, err)
	_, err = p.DetectImage(image.NewNRGBA(image.Rect(0, 0, 32, 32)), 5)
	assert.True(t, errors.Is(err, boom))

	_, err = p.DetectImage(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 5)
	assert.Error(t, err)
}

func TestDetectImage_PriorMismatch(t *testing.T) {
	// default config expects the 640x640 grid, the fake produces 4200 rows
	cfg := testConfig()
	cfg.Detector = detector.DefaultConfig()
	p, err := NewWithRunner(cfg, &fakeRunner{}, nil)
	require.NoError(t, err)

	_, err = p.DetectImage(image.NewNRGBA(image.Rect(0, 0, 32, 32)), 5)
	assert.True(t, errors.Is(err, detector.ErrPriorMismatch))
}

func TestDetectBatch(t *testing.T) {
	runner := &fakeRunner{}
	p, err := NewWithRunner(testConfig(), runner, nil)
	require.NoError(t, err)

	images := []image.Image{
		image.NewNRGBA(image.Rect(0, 0, 320, 320)),
		image.NewNRGBA(image.Rect(0, 0, 640, 480)),
		image.NewNRGBA(image.Rect(0, 0, 160, 160)),
	}
	results, err := p.DetectBatch(context.Background(), images, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Len(t, runner.shapes, 3)

	assert.InDelta(t, 151.2, results[0][0].Bounds.X, 1e-3)
	assert.InDelta(t, 302.4, results[1][0].Bounds.X, 1e-3)
	assert.InDelta(t, 75.6, results[2][0].Bounds.X, 1e-3)
}

func TestDetectBatch_Cancelled(t *testing.T) {
	p, err := NewWithRunner(testConfig(), &fakeRunner{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.DetectBatch(ctx, []image.Image{image.NewNRGBA(image.Rect(0, 0, 8, 8))}, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewWithRunner_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Backend = "tpu"
	_, err := NewWithRunner(cfg, &fakeRunner{}, nil)
	assert.True(t, errors.Is(err, detector.ErrInvalidConfig))

	cfg = testConfig()
	cfg.Detector.IoUThreshold = 2
	_, err = NewWithRunner(cfg, &fakeRunner{}, nil)
	assert.True(t, errors.Is(err, detector.ErrInvalidConfig))
}

func TestClose(t *testing.T) {
	runner := &fakeRunner{}
	p, err := NewWithRunner(testConfig(), runner, nil)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, runner.destroyed)
}
