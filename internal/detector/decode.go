package detector

import "math"

// Regression variances baked into the trained model. Not tunable without retraining.
const (
	centerVariance = 0.1
	sizeVariance   = 0.2
)

// DecodeBox converts one (dx, dy, dw, dh) regression row into a normalized
// rectangle relative to its prior. Large dw/dh overflow to +Inf like the
// reference decoder; no guard is applied.
func DecodeBox(p Prior, delta []float32) Rect {
	cx := p.CX + centerVariance*delta[0]*p.W
	cy := p.CY + centerVariance*delta[1]*p.H
	w := p.W * float32(math.Exp(float64(sizeVariance*delta[2])))
	h := p.H * float32(math.Exp(float64(sizeVariance*delta[3])))

	return Rect{X: cx - w/2, Y: cy - h/2, Width: w, Height: h}
}

// DecodeLandmarks converts one 10-wide regression row into five normalized
// points. Landmarks only use the center variance.
func DecodeLandmarks(p Prior, delta []float32) Landmarks {
	var lm Landmarks
	for k := range lm {
		lm[k] = Point{
			X: p.CX + centerVariance*delta[2*k]*p.W,
			Y: p.CY + centerVariance*delta[2*k+1]*p.H,
		}
	}
	return lm
}

// Candidate is an anchor that passed the score filter
type Candidate struct {
	Index int
	Score float32
}

// FilterScores returns the anchors whose face score (column 1) is at least
// threshold, in anchor order.
func FilterScores(scores []float32, threshold float32) []Candidate {
	var kept []Candidate
	for i := 0; i*scoreCols+1 < len(scores); i++ {
		s := scores[i*scoreCols+1]
		if s >= threshold {
			kept = append(kept, Candidate{Index: i, Score: s})
		}
	}
	return kept
}

// decode builds normalized faces for the surviving candidates only
func decode(priors Priors, boxes, landmarks rows, kept []Candidate) []Face {
	faces := make([]Face, 0, len(kept))
	for _, c := range kept {
		p := priors[c.Index]
		faces = append(faces, Face{
			Score:     c.Score,
			Quality:   c.Score * qualityScale,
			Bounds:    DecodeBox(p, boxes.row(c.Index)),
			Landmarks: DecodeLandmarks(p, landmarks.row(c.Index)),
		})
	}
	return faces
}

// qualityScale maps a face score onto the quality scale consumers expect
const qualityScale = 10
