package detector

import "fmt"

// Config holds the post-processing configuration. It is fixed for the
// lifetime of a Postprocessor.
type Config struct {
	// InputWidth and InputHeight are the network input size in pixels
	InputWidth  int `json:"input_width"`
	InputHeight int `json:"input_height"`

	Priors PriorConfig `json:"priors"`

	// ScoreThreshold drops anchors whose face score is below it
	ScoreThreshold float32 `json:"score_threshold"`
	// IoUThreshold suppresses faces overlapping a better one at or above it
	IoUThreshold float32 `json:"iou_threshold"`
	// Limit is the result count used when a caller passes a negative limit
	Limit int `json:"limit"`

	Pose PoseEstimator `json:"pose"`
}

// DefaultConfig returns the configuration of the 320x320 RetinaFace model.
// That model was exported with the 640x640 prior grid (16800 anchors).
func DefaultConfig() Config {
	return Config{
		InputWidth:  320,
		InputHeight: 320,
		Priors: PriorConfig{
			Levels: DefaultLevels(),
			Width:  640,
			Height: 640,
		},
		ScoreThreshold: 0.3,
		IoUThreshold:   0.4,
		Limit:          10,
		Pose:           DefaultPoseEstimator(),
	}
}

// priorConfig resolves a zero prior grid size to the input size
func (c Config) priorConfig() PriorConfig {
	pc := c.Priors
	if pc.Width == 0 {
		pc.Width = c.InputWidth
	}
	if pc.Height == 0 {
		pc.Height = c.InputHeight
	}
	return pc
}

// Validate reports configuration errors
func (c Config) Validate() error {
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return fmt.Errorf("%w: input size %dx%d", ErrInvalidConfig, c.InputWidth, c.InputHeight)
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("%w: score threshold %v outside [0,1]", ErrInvalidConfig, c.ScoreThreshold)
	}
	if c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("%w: IoU threshold %v outside (0,1]", ErrInvalidConfig, c.IoUThreshold)
	}
	if c.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidConfig, c.Limit)
	}
	return c.priorConfig().validate()
}
