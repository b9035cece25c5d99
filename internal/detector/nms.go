package detector

import "sort"

// iouEpsilon is float64 machine epsilon. Intersections at or below it count as no overlap.
const iouEpsilon = 2.220446049250313e-16

// NMS greedily keeps the highest scoring faces whose IoU with every
// already kept face is below iouThreshold, stopping after limit faces.
// Equal scores keep their input order. The input slice is not modified.
// A NaN IoU, from boxes whose decode overflowed, counts as overlap.
func NMS(faces []Face, iouThreshold float32, limit int) []Face {
	if limit <= 0 || len(faces) == 0 {
		return []Face{}
	}

	sorted := make([]Face, len(faces))
	copy(sorted, faces)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	result := make([]Face, 0, min(limit, len(sorted)))
	for _, face := range sorted {
		if len(result) >= limit {
			break
		}
		keep := true
		for _, sel := range result {
			if !(IoU(sel.Bounds, face.Bounds) < float64(iouThreshold)) {
				keep = false
				break
			}
		}
		if keep {
			result = append(result, face)
		}
	}

	return result
}

// IoU calculates Intersection over Union of two rectangles
func IoU(a, b Rect) float64 {
	x1 := max(float64(a.X), float64(b.X))
	y1 := max(float64(a.Y), float64(b.Y))
	x2 := min(float64(a.Right()), float64(b.Right()))
	y2 := min(float64(a.Bottom()), float64(b.Bottom()))

	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	if intersection <= iouEpsilon {
		return 0
	}
	union := float64(a.Width)*float64(a.Height) + float64(b.Width)*float64(b.Height) - intersection

	return intersection / union
}
