package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/disintegration/imaging"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/dudu/retinaface/internal/camera"
	"github.com/dudu/retinaface/internal/detector"
	"github.com/dudu/retinaface/internal/logging"
	"github.com/dudu/retinaface/internal/pipeline"
	"github.com/dudu/retinaface/internal/ui"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func init() {
	// Lock the main goroutine to the main OS thread.
	// This is required on macOS for OpenCV's highgui (window creation).
	runtime.LockOSThread()
}

type Config struct {
	ConfigFile string
	ModelPath  string
	LibPath    string
	Backend    string
	Camera     string
	Limit      int
	Score      float64
	IoU        float64
	Size       int
	PriorSize  int
	JSON       bool
	Preview    bool
	TargetFPS  int
	LogLevel   string
	LogFile    string
	Images     []string
}

func main() {
	config := parseFlags()

	if config.Camera == "" && len(config.Images) == 0 {
		fmt.Fprintln(os.Stderr, "Error: pass image paths or --camera")
		flag.Usage()
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: config.LogLevel, File: config.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(config, logger); err != nil {
		logger.Errorw("retinaface failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() Config {
	config := Config{}

	flag.StringVar(&config.ConfigFile, "config", "", "JSON pipeline config, flags override it")
	flag.StringVar(&config.ModelPath, "model", "models/retinaface.onnx", "RetinaFace ONNX model")
	flag.StringVar(&config.ModelPath, "m", "models/retinaface.onnx", "RetinaFace ONNX model (shorthand)")
	flag.StringVar(&config.LibPath, "lib", "lib/libonnxruntime.dylib", "ONNX Runtime shared library")
	flag.StringVar(&config.Backend, "backend", "coreml", "Execution provider: cpu or coreml")
	flag.StringVar(&config.Backend, "b", "coreml", "Execution provider (shorthand)")
	flag.StringVar(&config.Camera, "camera", "", "Camera index or video file to run live")
	flag.StringVar(&config.Camera, "c", "", "Camera index or video file (shorthand)")
	flag.IntVar(&config.Limit, "limit", 10, "Maximum faces per frame")
	flag.IntVar(&config.Limit, "n", 10, "Maximum faces per frame (shorthand)")
	flag.Float64Var(&config.Score, "score", 0.3, "Minimum face score")
	flag.Float64Var(&config.IoU, "iou", 0.4, "NMS overlap threshold")
	flag.IntVar(&config.Size, "size", 320, "Network input size")
	flag.IntVar(&config.PriorSize, "prior-size", 640, "Prior grid size the model was exported with, 0 for the input size")
	flag.BoolVar(&config.JSON, "json", false, "Print detections as JSON")
	flag.BoolVar(&config.Preview, "preview", true, "Show preview window in camera mode")
	flag.BoolVar(&config.Preview, "p", true, "Show preview window (shorthand)")
	flag.IntVar(&config.TargetFPS, "fps", 30, "Target camera frames per second")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.LogFile, "log-file", "", "Also write JSON logs to this rotating file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "RetinaFace - face detection with landmarks and head pose\n\n")
		fmt.Fprintf(os.Stderr, "Usage: retinaface [options] [image ...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  retinaface group.jpg\n")
		fmt.Fprintf(os.Stderr, "  retinaface --json --limit 3 a.jpg b.jpg\n")
		fmt.Fprintf(os.Stderr, "  retinaface --camera 0 --backend cpu\n")
	}

	flag.Parse()
	config.Images = flag.Args()
	return config
}

// pipelineConfig layers the config file and then explicitly set flags over
// the defaults.
func pipelineConfig(config Config) (pipeline.Config, error) {
	pc := pipeline.DefaultConfig()

	if config.ConfigFile != "" {
		data, err := os.ReadFile(config.ConfigFile)
		if err != nil {
			return pc, fmt.Errorf("failed to read config: %w", err)
		}
		if err := json.Unmarshal(data, &pc); err != nil {
			return pc, fmt.Errorf("failed to parse config %s: %w", config.ConfigFile, err)
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model", "m":
			pc.ModelPath = config.ModelPath
		case "lib":
			pc.LibraryPath = config.LibPath
		case "backend", "b":
			pc.Backend = pipeline.Backend(config.Backend)
		case "limit", "n":
			pc.Detector.Limit = config.Limit
		case "score":
			pc.Detector.ScoreThreshold = float32(config.Score)
		case "iou":
			pc.Detector.IoUThreshold = float32(config.IoU)
		case "size":
			pc.Detector.InputWidth = config.Size
			pc.Detector.InputHeight = config.Size
		case "prior-size":
			pc.Detector.Priors.Width = config.PriorSize
			pc.Detector.Priors.Height = config.PriorSize
		}
	})

	return pc, nil
}

func run(config Config, logger *zap.SugaredLogger) error {
	pc, err := pipelineConfig(config)
	if err != nil {
		return err
	}

	logger.Infow("loading model", "model", pc.ModelPath, "backend", pc.Backend)
	p, err := pipeline.New(pc, logger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()

	if config.Camera != "" {
		return runCamera(config, p, logger)
	}
	return runImages(config, p, logger)
}

type imageResult struct {
	Image string          `json:"image"`
	Faces []detector.Face `json:"faces"`
}

func runImages(config Config, p *pipeline.Pipeline, logger *zap.SugaredLogger) error {
	images := make([]image.Image, len(config.Images))
	for i, path := range config.Images {
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			return fmt.Errorf("failed to load image: %w", err)
		}
		images[i] = img
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := p.DetectBatch(ctx, images, -1)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	if config.JSON {
		out := make([]imageResult, len(results))
		for i, faces := range results {
			out[i] = imageResult{Image: config.Images[i], Faces: faces}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for i, faces := range results {
		fmt.Printf("%s: %d face(s)\n", config.Images[i], len(faces))
		for _, f := range faces {
			b := f.Bounds
			fmt.Printf("  score=%.3f box=(%.0f,%.0f %.0fx%.0f) yaw=%.1f pitch=%.1f roll=%.1f\n",
				f.Score, b.X, b.Y, b.Width, b.Height, f.Angle.Yaw, f.Angle.Pitch, f.Angle.Roll)
		}
	}
	logger.Debugw("images processed", "count", len(results))
	return nil
}

func runCamera(config Config, p *pipeline.Pipeline, logger *zap.SugaredLogger) error {
	logger.Infow("opening source", "device", config.Camera)
	src, err := camera.Open(config.Camera, 1280, 720, config.TargetFPS)
	if err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}
	defer src.Close()
	logger.Infow("source opened", "width", src.Width(), "height", src.Height())

	var preview *ui.Preview
	if config.Preview {
		preview = ui.NewPreview("RetinaFace", src.Width(), src.Height())
		defer preview.Close()
	}

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	frame := gocv.NewMat()
	defer frame.Close()

	logger.Info("running, press 'q' to quit")

	for {
		select {
		case <-sigChan:
			logger.Info("shutting down")
			return nil
		default:
		}

		if !src.Read(&frame) {
			if _, err := os.Stat(config.Camera); err == nil {
				// end of video file
				return nil
			}
			continue
		}
		if frame.Empty() {
			continue
		}

		faces, err := p.Detect(camera.FramePreparer(frame), -1)
		if err != nil {
			logger.Warnw("detection failed", "error", err)
			continue
		}

		timing := p.LastTiming()
		if config.JSON {
			if err := json.NewEncoder(os.Stdout).Encode(faces); err != nil {
				return err
			}
		} else {
			fmt.Printf("\rP:%3.0fms I:%3.0fms D:%3.0fms T:%3.0fms faces:%d  ",
				float64(timing.Preprocess.Microseconds())/1000,
				float64(timing.Inference.Microseconds())/1000,
				float64(timing.Postprocess.Microseconds())/1000,
				float64(timing.Total.Microseconds())/1000,
				len(faces))
		}

		if preview != nil {
			key := preview.Show(&frame, faces, timing, 1)
			if key == 'q' || key == 27 { // 'q' or ESC
				logger.Info("quitting")
				return nil
			}
		}
	}
}
