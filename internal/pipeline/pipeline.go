package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorgonia.org/tensor"

	"github.com/dudu/retinaface/internal/detector"
	"github.com/dudu/retinaface/internal/inference"
	"github.com/dudu/retinaface/internal/preprocess"
)

// ErrMissingOutput is returned when the network does not produce one of the
// configured outputs.
var ErrMissingOutput = errors.New("missing expected model output")

// OutputNames maps the three RetinaFace heads to the model's output names
type OutputNames struct {
	Boxes     string `json:"boxes"`
	Scores    string `json:"scores"`
	Landmarks string `json:"landmarks"`
}

func (o OutputNames) list() []string {
	return []string{o.Boxes, o.Scores, o.Landmarks}
}

// Config holds pipeline configuration
type Config struct {
	ModelPath   string      `json:"model_path"`
	LibraryPath string      `json:"library_path"`
	InputName   string      `json:"input_name"`
	Outputs     OutputNames `json:"outputs"`
	Mean        [3]float32  `json:"mean"`
	Backend     Backend     `json:"backend"`
	// Workers bounds DetectBatch concurrency, 0 means one per image
	Workers  int             `json:"workers"`
	Detector detector.Config `json:"detector"`
}

// DefaultConfig returns the settings of the 320x320 RetinaFace export.
func DefaultConfig() Config {
	return Config{
		ModelPath:   "models/retinaface.onnx",
		LibraryPath: inference.DefaultLibraryPath,
		InputName:   "input",
		Outputs:     OutputNames{Boxes: "boxes", Scores: "scores", Landmarks: "landmarks"},
		Mean:        preprocess.DefaultMean,
		Backend:     BackendCoreML,
		Workers:     4,
		Detector:    detector.DefaultConfig(),
	}
}

// Timing holds performance timing information
type Timing struct {
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Total       time.Duration
}

// Pipeline runs preprocessing, the network and post-processing for one model
type Pipeline struct {
	config      Config
	runner      Runner
	post        *detector.Postprocessor
	logger      *zap.SugaredLogger
	ownsRuntime bool

	mu         sync.Mutex
	lastTiming Timing
}

// New initializes ONNX Runtime, opens the model and generates priors.
func New(config Config, logger *zap.SugaredLogger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if err := inference.Initialize(config.LibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize inference: %w", err)
	}

	session, err := inference.NewSession(inference.SessionConfig{
		ModelPath:   config.ModelPath,
		InputName:   config.InputName,
		OutputNames: config.Outputs.list(),
		CoreML:      config.Backend == BackendCoreML,
	}, logger)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to create session: %w", err), inference.Shutdown())
	}

	p, err := NewWithRunner(config, session, logger)
	if err != nil {
		return nil, multierr.Combine(err, session.Destroy(), inference.Shutdown())
	}
	p.ownsRuntime = true
	return p, nil
}

// NewWithRunner builds a pipeline around an already created runner. Close
// destroys the runner but leaves the runtime environment alone.
func NewWithRunner(config Config, runner Runner, logger *zap.SugaredLogger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if config.Backend != BackendCPU && config.Backend != BackendCoreML {
		return nil, fmt.Errorf("%w: invalid backend %q (use %q or %q)",
			detector.ErrInvalidConfig, config.Backend, BackendCPU, BackendCoreML)
	}

	post, err := detector.NewPostprocessor(config.Detector, detector.WithLogger(logger.Named("detector")))
	if err != nil {
		return nil, fmt.Errorf("failed to create postprocessor: %w", err)
	}

	logger.Infow("pipeline ready",
		"model", config.ModelPath,
		"input", fmt.Sprintf("%dx%d", config.Detector.InputWidth, config.Detector.InputHeight),
		"priors", len(post.Priors()),
		"backend", config.Backend,
	)

	return &Pipeline{
		config: config,
		runner: runner,
		post:   post,
		logger: logger,
	}, nil
}

// Config returns the configuration the pipeline was built with
func (p *Pipeline) Config() Config {
	return p.config
}

// Detect prepares a frame with prepare, runs the network and decodes at most
// limit faces in source image coordinates. A negative limit uses the
// configured default.
func (p *Pipeline) Detect(prepare Preparer, limit int) ([]detector.Face, error) {
	totalStart := time.Now()
	var timing Timing

	cfg := p.config.Detector
	start := time.Now()
	blob, scale, err := prepare(cfg.InputWidth, cfg.InputHeight, p.config.Mean)
	timing.Preprocess = time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}

	start = time.Now()
	outputs, err := p.runner.Run(blob, preprocess.Shape(cfg.InputWidth, cfg.InputHeight))
	timing.Inference = time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out, err := p.outputs(outputs)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	faces, err := p.post.Process(out, scale, limit)
	timing.Postprocess = time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("postprocessing failed: %w", err)
	}

	timing.Total = time.Since(totalStart)
	p.logger.Debugw("frame processed", "faces", len(faces), "total", timing.Total)
	p.mu.Lock()
	p.lastTiming = timing
	p.mu.Unlock()

	return faces, nil
}

// DetectImage runs Detect on a decoded image using the pure Go letterbox.
func (p *Pipeline) DetectImage(img image.Image, limit int) ([]detector.Face, error) {
	return p.Detect(ImagePreparer(img), limit)
}

// DetectBatch runs DetectImage over images concurrently. Results are in input
// order; the first failure cancels the remaining work.
func (p *Pipeline) DetectBatch(ctx context.Context, images []image.Image, limit int) ([][]detector.Face, error) {
	results := make([][]detector.Face, len(images))

	g, ctx := errgroup.WithContext(ctx)
	if p.config.Workers > 0 {
		g.SetLimit(p.config.Workers)
	}

	for i, img := range images {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			faces, err := p.DetectImage(img, limit)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			results[i] = faces
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ImagePreparer adapts an image.Image to a Preparer.
func ImagePreparer(img image.Image) Preparer {
	return func(w, h int, mean [3]float32) ([]float32, float32, error) {
		if img == nil || img.Bounds().Empty() {
			return nil, 0, errors.New("empty image")
		}
		boxed, scale := preprocess.Letterbox(img, w, h)
		return preprocess.Blob(boxed, mean), scale, nil
	}
}

func (p *Pipeline) outputs(named map[string]tensor.Tensor) (detector.Outputs, error) {
	names := p.config.Outputs
	var out detector.Outputs
	for _, o := range []struct {
		name string
		dst  *tensor.Tensor
	}{
		{names.Boxes, &out.Boxes},
		{names.Scores, &out.Scores},
		{names.Landmarks, &out.Landmarks},
	} {
		t, ok := named[o.name]
		if !ok || t == nil {
			return detector.Outputs{}, fmt.Errorf("%w: %q", ErrMissingOutput, o.name)
		}
		*o.dst = t
	}
	return out, nil
}

// LastTiming returns timing from the last successful Detect call
func (p *Pipeline) LastTiming() Timing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTiming
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	var err error
	if p.runner != nil {
		err = multierr.Append(err, p.runner.Destroy())
		p.runner = nil
	}
	if p.ownsRuntime {
		err = multierr.Append(err, inference.Shutdown())
		p.ownsRuntime = false
	}
	if err != nil {
		return fmt.Errorf("cleanup errors: %w", err)
	}
	return nil
}
