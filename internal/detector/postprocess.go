package detector

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Postprocessor turns raw RetinaFace outputs into faces in image
// coordinates. Priors are generated once in NewPostprocessor and only read
// afterwards, so Process is safe for concurrent use.
type Postprocessor struct {
	config Config
	priors Priors
	logger *zap.SugaredLogger
}

// Option configures a Postprocessor
type Option func(*Postprocessor)

// WithLogger sets the logger used for debug output
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(p *Postprocessor) {
		p.logger = logger
	}
}

// NewPostprocessor validates config and generates the prior table
func NewPostprocessor(config Config, opts ...Option) (*Postprocessor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	priors, err := GeneratePriors(config.priorConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to generate priors: %w", err)
	}

	p := &Postprocessor{
		config: config,
		priors: priors,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the configuration the postprocessor was built with
func (p *Postprocessor) Config() Config {
	return p.config
}

// Priors returns the shared prior table. Callers must not modify it.
func (p *Postprocessor) Priors() Priors {
	return p.priors
}

// Process decodes, filters, suppresses and maps one inference result.
//
// scale is the letterbox factor used to fit the original image into the
// network input and must be positive and finite. A negative limit means the configured default. The result
// is sorted by descending score and is empty, not nil, when nothing passes
// the score threshold.
func (p *Postprocessor) Process(out Outputs, scale float32, limit int) ([]Face, error) {
	if !(scale > 0) || math.IsInf(float64(scale), 1) {
		return nil, fmt.Errorf("invalid letterbox scale %v", scale)
	}
	if limit < 0 {
		limit = p.config.Limit
	}

	boxes, scores, landmarks, err := p.validate(out)
	if err != nil {
		return nil, err
	}

	kept := FilterScores(scores.data, p.config.ScoreThreshold)
	if len(kept) == 0 {
		return []Face{}, nil
	}

	faces := decode(p.priors, boxes, landmarks, kept)
	faces = NMS(faces, p.config.IoUThreshold, limit)

	toImage := ImageTransform(p.config.InputWidth, p.config.InputHeight, scale)
	for i, face := range faces {
		face = face.Transformed(toImage)
		face.Angle = p.config.Pose.Estimate(face.Landmarks)
		faces[i] = face
	}

	p.logger.Debugw("postprocessed outputs",
		"anchors", len(p.priors),
		"candidates", len(kept),
		"faces", len(faces),
	)

	return faces, nil
}

// validate checks all three tensors and their row count against the priors
func (p *Postprocessor) validate(out Outputs) (boxes, scores, landmarks rows, err error) {
	if boxes, err = viewRows("boxes", out.Boxes, boxCols); err != nil {
		return
	}
	if scores, err = viewRows("scores", out.Scores, scoreCols); err != nil {
		return
	}
	if landmarks, err = viewRows("landmarks", out.Landmarks, landmarkCols); err != nil {
		return
	}

	for _, r := range []rows{boxes, scores, landmarks} {
		if r.n != len(p.priors) {
			err = fmt.Errorf("%w: %d rows, %d priors", ErrPriorMismatch, r.n, len(p.priors))
			return
		}
	}
	return
}
