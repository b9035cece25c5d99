package detector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBox_ZeroRegressionIsPrior(t *testing.T) {
	priors, err := GeneratePriors(PriorConfig{Levels: DefaultLevels(), Width: 320, Height: 320})
	require.NoError(t, err)

	zero := make([]float32, boxCols)
	for _, p := range priors {
		r := DecodeBox(p, zero)
		assert.Equal(t, Rect{X: p.CX - p.W/2, Y: p.CY - p.H/2, Width: p.W, Height: p.H}, r)
	}
}

func TestDecodeBox(t *testing.T) {
	p := Prior{CX: 0.5, CY: 0.5, W: 0.2, H: 0.4}

	r := DecodeBox(p, []float32{1, -1, 5, 0})
	w := 0.2 * math.E
	assert.InDelta(t, 0.52-w/2, r.X, 1e-6)
	assert.InDelta(t, 0.46-0.2, r.Y, 1e-6)
	assert.InDelta(t, w, r.Width, 1e-6)
	assert.InDelta(t, 0.4, r.Height, 1e-6)
}

func TestDecodeBox_Overflow(t *testing.T) {
	r := DecodeBox(Prior{CX: 0.5, CY: 0.5, W: 0.1, H: 0.1}, []float32{0, 0, 1e6, 0})
	assert.True(t, math.IsInf(float64(r.Width), 1))
}

func TestDecodeLandmarks(t *testing.T) {
	p := Prior{CX: 0.5, CY: 0.25, W: 0.2, H: 0.1}

	lm := DecodeLandmarks(p, make([]float32, landmarkCols))
	for _, pt := range lm {
		assert.Equal(t, Point{X: 0.5, Y: 0.25}, pt)
	}

	delta := []float32{-1, 0, 1, 0, 0, 1, -1, 2, 1, 2}
	lm = DecodeLandmarks(p, delta)
	assert.InDelta(t, 0.48, lm[LeftEye].X, 1e-6)
	assert.InDelta(t, 0.52, lm[RightEye].X, 1e-6)
	assert.InDelta(t, 0.26, lm[NoseTip].Y, 1e-6)
	assert.InDelta(t, 0.48, lm[MouthLeft].X, 1e-6)
	assert.InDelta(t, 0.27, lm[MouthLeft].Y, 1e-6)
	assert.InDelta(t, 0.52, lm[MouthRight].X, 1e-6)
	assert.InDelta(t, 0.27, lm[MouthRight].Y, 1e-6)
}

func TestFilterScores(t *testing.T) {
	scores := []float32{
		0.9, 0.1,
		0.7, 0.3,
		0.2, 0.8,
		0.6, 0.4,
	}

	kept := FilterScores(scores, 0.3)
	assert.Equal(t, []Candidate{{Index: 1, Score: 0.3}, {Index: 2, Score: 0.8}, {Index: 3, Score: 0.4}}, kept)

	assert.Empty(t, FilterScores(scores, 0.9))
}

func TestFilterScores_Monotonic(t *testing.T) {
	scores := make([]float32, 2*500)
	for i := 0; i < 500; i++ {
		scores[2*i+1] = float32(i%97) / 96
	}

	prev := len(scores)
	for th := float32(0); th <= 1; th += 0.05 {
		n := len(FilterScores(scores, th))
		assert.LessOrEqual(t, n, prev)
		prev = n
	}
}
