package camera

import (
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// Source reads frames from a webcam or a video file
type Source struct {
	capture *gocv.VideoCapture
	name    string
	width   int
	height  int
	mu      sync.Mutex
}

// Open opens device, which is either a camera index ("0") or a video file
// path. Cameras are asked for width x height at fps; files keep their own.
func Open(device string, width, height, fps int) (*Source, error) {
	var (
		capture *gocv.VideoCapture
		err     error
	)
	index, convErr := strconv.Atoi(device)
	if convErr == nil {
		capture, err = gocv.OpenVideoCapture(index)
	} else {
		capture, err = gocv.VideoCaptureFile(device)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", device, err)
	}

	if convErr == nil {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(height))
		capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}

	// camera may not support requested resolution
	return &Source{
		capture: capture,
		name:    device,
		width:   int(capture.Get(gocv.VideoCaptureFrameWidth)),
		height:  int(capture.Get(gocv.VideoCaptureFrameHeight)),
	}, nil
}

// Read captures a frame into the provided Mat
func (s *Source) Read(frame *gocv.Mat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return false
	}
	return s.capture.Read(frame)
}

// Name returns the device the source was opened with
func (s *Source) Name() string {
	return s.name
}

// Width returns frame width
func (s *Source) Width() int {
	return s.width
}

// Height returns frame height
func (s *Source) Height() int {
	return s.height
}

// Close releases the device
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture != nil {
		err := s.capture.Close()
		s.capture = nil
		return err
	}
	return nil
}
