package detector

// Transform is an axis-aligned scale applied to boxes and landmarks alike,
// so the geometry between them is preserved.
type Transform struct {
	SX, SY float32
}

// Identity leaves coordinates unchanged
var Identity = Transform{SX: 1, SY: 1}

// ImageTransform maps coordinates normalized to a width x height network
// input back to original image pixels, undoing the letterbox scale.
func ImageTransform(width, height int, scale float32) Transform {
	return Transform{SX: float32(width), SY: float32(height)}.Then(Transform{SX: 1 / scale, SY: 1 / scale})
}

// Then returns the transform that applies t first and u second
func (t Transform) Then(u Transform) Transform {
	return Transform{SX: t.SX * u.SX, SY: t.SY * u.SY}
}

// Point maps a single point
func (t Transform) Point(p Point) Point {
	return Point{X: p.X * t.SX, Y: p.Y * t.SY}
}

// Rect maps a rectangle's origin and size
func (t Transform) Rect(r Rect) Rect {
	return Rect{X: r.X * t.SX, Y: r.Y * t.SY, Width: r.Width * t.SX, Height: r.Height * t.SY}
}

// Transformed returns a copy of f mapped by t
func (f Face) Transformed(t Transform) Face {
	out := f
	out.Bounds = t.Rect(f.Bounds)
	for k, p := range f.Landmarks {
		out.Landmarks[k] = t.Point(p)
	}
	return out
}
