package detector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func face(score, x, y, w, h float32) Face {
	return Face{Score: score, Bounds: Rect{X: x, Y: y, Width: w, Height: h}}
}

func TestIoU(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 10, Height: 10}

	assert.InDelta(t, 1.0, IoU(a, a), 1e-9)
	assert.Equal(t, 0.0, IoU(a, Rect{X: 20, Y: 20, Width: 5, Height: 5}))
	// touching edges do not overlap
	assert.Equal(t, 0.0, IoU(a, Rect{X: 10, Y: 0, Width: 10, Height: 10}))
	// half overlap: 50 / (100 + 100 - 50)
	assert.InDelta(t, 1.0/3, IoU(a, Rect{X: 5, Y: 0, Width: 10, Height: 10}), 1e-9)
	// degenerate boxes
	assert.Equal(t, 0.0, IoU(Rect{}, Rect{}))
	assert.Equal(t, 0.0, IoU(a, Rect{X: 5, Y: 5, Width: 0, Height: 3}))
}

func TestNMS_SuppressesOverlap(t *testing.T) {
	faces := []Face{
		face(0.5, 0, 0, 10, 10),
		face(0.9, 1, 1, 10, 10),
		face(0.8, 50, 50, 10, 10),
		face(0.7, 2, 0, 10, 10),
	}

	kept := NMS(faces, 0.4, 10)
	assert.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].Score)
	assert.Equal(t, float32(0.8), kept[1].Score)

	// input untouched
	assert.Equal(t, float32(0.5), faces[0].Score)
}

func TestNMS_Limit(t *testing.T) {
	faces := []Face{
		face(0.9, 0, 0, 10, 10),
		face(0.8, 20, 0, 10, 10),
		face(0.7, 40, 0, 10, 10),
	}

	assert.Empty(t, NMS(faces, 0.4, 0))
	assert.NotNil(t, NMS(faces, 0.4, 0))
	assert.Len(t, NMS(faces, 0.4, 2), 2)
	assert.Len(t, NMS(faces, 0.4, 100), 3)
	assert.Empty(t, NMS(nil, 0.4, 5))
}

func TestNMS_StableTies(t *testing.T) {
	faces := []Face{
		{Score: 0.8, Quality: 1, Bounds: Rect{X: 0, Y: 0, Width: 10, Height: 10}},
		{Score: 0.8, Quality: 2, Bounds: Rect{X: 1, Y: 0, Width: 10, Height: 10}},
		{Score: 0.8, Quality: 3, Bounds: Rect{X: 40, Y: 0, Width: 10, Height: 10}},
	}

	kept := NMS(faces, 0.4, 10)
	assert.Len(t, kept, 2)
	assert.Equal(t, float32(1), kept[0].Quality)
	assert.Equal(t, float32(3), kept[1].Quality)
}

func TestNMS_OverflowedBoxes(t *testing.T) {
	inf := float32(math.Inf(1))
	faces := []Face{
		face(0.9, 0, 0, inf, inf),
		face(0.8, 0, 0, inf, inf),
		face(0.7, 40, 0, 10, 10),
	}

	assert.True(t, math.IsNaN(IoU(faces[0].Bounds, faces[1].Bounds)))

	kept := NMS(faces, 0.4, 10)
	assert.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].Score)
	assert.Equal(t, float32(0.7), kept[1].Score)
}

func TestNMS_Invariants(t *testing.T) {
	var faces []Face
	for i := 0; i < 12; i++ {
		for j := 0; j < 12; j++ {
			s := float32((i*12+j)%17) / 17
			faces = append(faces, face(s, float32(i*4), float32(j*4), 10, 10))
		}
	}

	const threshold = 0.3
	kept := NMS(faces, threshold, 50)
	assert.LessOrEqual(t, len(kept), 50)

	for i := range kept {
		if i > 0 {
			assert.GreaterOrEqual(t, kept[i-1].Score, kept[i].Score)
		}
		for j := i + 1; j < len(kept); j++ {
			assert.Less(t, IoU(kept[i].Bounds, kept[j].Bounds), float64(threshold))
		}
	}

	// idempotent
	assert.Equal(t, kept, NMS(kept, threshold, 50))
}
