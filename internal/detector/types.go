package detector

// Point represents a 2D point
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Midpoint returns the point halfway between p and q
func (p Point) Midpoint(q Point) Point {
	return Point{X: (p.X + q.X) / 2, Y: (p.Y + q.Y) / 2}
}

// Rect represents an axis-aligned box as origin plus size
type Rect struct {
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

// Right returns the x coordinate of the right edge
func (r Rect) Right() float32 {
	return r.X + r.Width
}

// Bottom returns the y coordinate of the bottom edge
func (r Rect) Bottom() float32 {
	return r.Y + r.Height
}

// Center returns box center point
func (r Rect) Center() Point {
	return Point{
		X: r.X + r.Width/2,
		Y: r.Y + r.Height/2,
	}
}

// Area returns box area
func (r Rect) Area() float32 {
	return r.Width * r.Height
}

// Landmark indices. Consumers index Landmarks by position, so this order is fixed.
const (
	LeftEye = iota
	RightEye
	NoseTip
	MouthLeft
	MouthRight

	NumLandmarks
)

// Landmarks holds the 5 facial points in the order
// left eye, right eye, nose tip, mouth left, mouth right.
type Landmarks [NumLandmarks]Point

// AsSlice returns landmarks as a flat slice [x0,y0,x1,y1,...]
func (l Landmarks) AsSlice() []float32 {
	out := make([]float32, 0, 2*NumLandmarks)
	for _, p := range l {
		out = append(out, p.X, p.Y)
	}
	return out
}

// EulerAngle is a head pose in degrees
type EulerAngle struct {
	Yaw   float32 `json:"yaw"`
	Pitch float32 `json:"pitch"`
	Roll  float32 `json:"roll"`
}

// Face represents a detected face.
//
// Faces are values: every transform returns a new Face and never mutates
// the receiver.
type Face struct {
	Score     float32    `json:"score"`
	Quality   float32    `json:"quality"`
	Bounds    Rect       `json:"bounds"`
	Landmarks Landmarks  `json:"landmarks"`
	Angle     EulerAngle `json:"angle"`
}
