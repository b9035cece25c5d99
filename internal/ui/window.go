// Package ui renders detections over camera frames in an OpenCV window.
package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/retinaface/internal/detector"
	"github.com/dudu/retinaface/internal/pipeline"
)

var (
	boxColor      = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	landmarkColor = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	textColor     = color.RGBA{R: 255, G: 255, B: 0, A: 255}
)

// Preview shows annotated detection frames with a stage timing overlay
type Preview struct {
	window *gocv.Window
	fps    fpsCounter
}

// fpsCounter averages displayed frames over one second windows
type fpsCounter struct {
	since  time.Time
	frames int
	value  float64
}

func (c *fpsCounter) tick(now time.Time) float64 {
	c.frames++
	if elapsed := now.Sub(c.since); elapsed >= time.Second {
		c.value = float64(c.frames) / elapsed.Seconds()
		c.frames = 0
		c.since = now
	}
	return c.value
}

// NewPreview opens a preview window sized for a width x height source
func NewPreview(title string, width, height int) *Preview {
	window := gocv.NewWindow(title)
	// Force window to appear on macOS
	window.ResizeWindow(width, height)
	window.MoveWindow(100, 100)
	return &Preview{
		window: window,
		fps:    fpsCounter{since: time.Now()},
	}
}

// DrawFaces overlays bounding boxes, the five landmarks and the estimated
// head pose of every face.
func DrawFaces(frame *gocv.Mat, faces []detector.Face) {
	for _, f := range faces {
		b := f.Bounds
		rect := image.Rect(int(b.X), int(b.Y), int(b.Right()), int(b.Bottom()))
		gocv.Rectangle(frame, rect, boxColor, 2)

		for _, pt := range f.Landmarks {
			gocv.Circle(frame, image.Pt(int(pt.X), int(pt.Y)), 2, landmarkColor, -1)
		}

		label := fmt.Sprintf("%.2f y:%.0f p:%.0f r:%.0f", f.Score, f.Angle.Yaw, f.Angle.Pitch, f.Angle.Roll)
		gocv.PutText(frame, label, image.Pt(rect.Min.X, max(rect.Min.Y-6, 12)),
			gocv.FontHersheyPlain, 1.2, textColor, 1)
	}
}

// TimingLines formats the overlay text for one frame
func TimingLines(fps float64, faces int, t pipeline.Timing) []string {
	return []string{
		fmt.Sprintf("FPS: %.1f  faces: %d", fps, faces),
		fmt.Sprintf("P:%.0fms I:%.0fms D:%.0fms T:%.0fms",
			ms(t.Preprocess), ms(t.Inference), ms(t.Postprocess), ms(t.Total)),
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Show draws faces and the timing overlay on frame, then displays it.
// It returns the key pressed within delayMs, or -1. WaitKey must run every
// frame to process window events on macOS.
func (p *Preview) Show(frame *gocv.Mat, faces []detector.Face, timing pipeline.Timing, delayMs int) int {
	DrawFaces(frame, faces)

	fps := p.fps.tick(time.Now())
	for i, line := range TimingLines(fps, len(faces), timing) {
		gocv.PutText(frame, line, image.Pt(10, 30+i*30), gocv.FontHersheyPlain, 1.5, boxColor, 2)
	}

	p.window.IMShow(*frame)
	return p.window.WaitKey(delayMs)
}

// Close closes the window
func (p *Preview) Close() error {
	if p.window != nil {
		return p.window.Close()
	}
	return nil
}
