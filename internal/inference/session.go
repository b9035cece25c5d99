package inference

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// DefaultLibraryPath is the ONNX Runtime build with CoreML support shipped under lib/.
const DefaultLibraryPath = "lib/libonnxruntime.dylib"

var (
	initialized bool
	initMu      sync.Mutex
)

// Initialize loads the ONNX Runtime shared library and sets up its environment.
// Calling it again after a successful call is a no-op.
func Initialize(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if libraryPath == "" {
		libraryPath = DefaultLibraryPath
	}
	ort.SetSharedLibraryPath(libraryPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	initialized = true
	return nil
}

// Shutdown cleans up ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// SessionConfig selects the model, its bound input and outputs, and whether
// the CoreML execution provider is requested.
type SessionConfig struct {
	ModelPath   string
	InputName   string
	OutputNames []string
	CoreML      bool
}

// Session wraps an ONNX Runtime inference session with a single float32 input
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	outputNames []string
}

// NewSession opens a model and binds one input and the named outputs. When
// CoreML is requested but unavailable the session falls back to CPU.
func NewSession(config SessionConfig, logger *zap.SugaredLogger) (*Session, error) {
	initMu.Lock()
	ready := initialized
	initMu.Unlock()
	if !ready {
		return nil, errors.New("ONNX Runtime not initialized, call Initialize() first")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if config.CoreML {
		// Flag 0 = default settings, use Neural Engine + GPU
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			logger.Warnw("CoreML unavailable, using CPU", "model", config.ModelPath, "error", err)
		} else {
			logger.Infow("CoreML execution provider enabled", "model", config.ModelPath)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		config.ModelPath,
		[]string{config.InputName},
		config.OutputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", config.ModelPath, err)
	}

	return &Session{
		session:     session,
		modelPath:   config.ModelPath,
		outputNames: config.OutputNames,
	}, nil
}

// Run feeds input with the given shape and returns every output keyed by name.
// Outputs are allocated by the runtime and copied out, so the returned tensors
// stay valid after the next call.
func (s *Session) Run(input []float32, shape []int64) (map[string]tensor.Tensor, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(shape...), input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := make([]ort.Value, len(s.outputNames))
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed for %s: %w", s.modelPath, err)
	}

	result := make(map[string]tensor.Tensor, len(outputs))
	for i, v := range outputs {
		t, err := toTensor(s.outputNames[i], v)
		if err != nil {
			return nil, err
		}
		result[s.outputNames[i]] = t
	}
	return result, nil
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		return err
	}
	return nil
}

func toTensor(name string, v ort.Value) (tensor.Tensor, error) {
	ft, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("output %q is not a float32 tensor", name)
	}

	dims := ft.GetShape()
	shape := make([]int, len(dims))
	for i, d := range dims {
		shape[i] = int(d)
	}

	src := ft.GetData()
	data := make([]float32, len(src))
	copy(data, src)

	if int64(len(data)) != dims.FlattenedSize() {
		return nil, fmt.Errorf("output %q has %d values for shape %v", name, len(data), dims)
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
}

// IOInfo describes one model input or output
type IOInfo struct {
	Name       string
	Dimensions []int64
	DataType   string
}

// ModelInfo reads input and output metadata without creating a session.
// Initialize must have been called.
func ModelInfo(modelPath string) (inputs, outputs []IOInfo, err error) {
	in, out, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get model info: %w", err)
	}
	return convertInfo(in), convertInfo(out), nil
}

func convertInfo(infos []ort.InputOutputInfo) []IOInfo {
	result := make([]IOInfo, len(infos))
	for i, info := range infos {
		result[i] = IOInfo{
			Name:       info.Name,
			Dimensions: []int64(info.Dimensions),
			DataType:   fmt.Sprint(info.DataType),
		}
	}
	return result
}
