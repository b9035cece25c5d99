// Package preprocess turns camera frames and decoded images into the NCHW
// float32 input a RetinaFace network expects.
package preprocess

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// DefaultMean is the per-channel BGR mean subtracted from every pixel.
var DefaultMean = [3]float32{104, 117, 123}

// Scale returns the aspect preserving factor that fits a srcW x srcH image
// inside dstW x dstH.
func Scale(srcW, srcH, dstW, dstH int) float32 {
	sx := float32(dstW) / float32(srcW)
	sy := float32(dstH) / float32(srcH)
	return min(sx, sy)
}

// Fit returns the resized dimensions for scale, never below one pixel or
// above the destination.
func Fit(srcW, srcH, dstW, dstH int, scale float32) (int, int) {
	w := int(float32(srcW) * scale)
	h := int(float32(srcH) * scale)
	return max(1, min(w, dstW)), max(1, min(h, dstH))
}

// Letterbox resizes img to fit w x h and pastes it at the top-left corner of a
// black canvas. The returned scale maps source pixels to canvas pixels.
func Letterbox(img image.Image, w, h int) (*image.NRGBA, float32) {
	b := img.Bounds()
	scale := Scale(b.Dx(), b.Dy(), w, h)
	nw, nh := Fit(b.Dx(), b.Dy(), w, h, scale)

	resized := imaging.Resize(img, nw, nh, imaging.Linear)
	canvas := imaging.New(w, h, color.NRGBA{A: 255})
	return imaging.Paste(canvas, resized, image.Pt(0, 0)), scale
}

// Blob lays img out as a 1x3xHxW tensor in BGR channel order with mean
// subtracted.
func Blob(img image.Image, mean [3]float32) []float32 {
	src, ok := img.(*image.NRGBA)
	if !ok || src.Rect.Min != (image.Point{}) {
		src = imaging.Clone(img)
	}

	w, h := src.Rect.Dx(), src.Rect.Dy()
	plane := w * h
	out := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			i := y*w + x
			out[i] = float32(px[2]) - mean[0]
			out[plane+i] = float32(px[1]) - mean[1]
			out[2*plane+i] = float32(px[0]) - mean[2]
		}
	}
	return out
}

// Shape is the NCHW input shape for a w x h blob.
func Shape(w, h int) []int64 {
	return []int64{1, 3, int64(h), int64(w)}
}
