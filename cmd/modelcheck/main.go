// Package main inspects RetinaFace ONNX models before they are deployed.
package main

import (
	"fmt"
	"os"

	"github.com/tsawler/go-metal/checkpoints"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/dudu/retinaface/internal/detector"
	"github.com/dudu/retinaface/internal/inference"
	"github.com/dudu/retinaface/internal/pipeline"
)

const (
	flagLib       = "lib"
	flagSize      = "size"
	flagPriorSize = "prior-size"
)

var gridFlags = []cli.Flag{
	&cli.IntFlag{
		Name:  flagSize,
		Value: 320,
		Usage: "network input size",
	},
	&cli.IntFlag{
		Name:  flagPriorSize,
		Value: 640,
		Usage: "prior grid size the model was exported with, 0 for the input size",
	},
}

var app = &cli.App{
	Name:            "modelcheck",
	Usage:           "inspect RetinaFace ONNX models",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  flagLib,
			Value: inference.DefaultLibraryPath,
			Usage: "ONNX Runtime shared `LIBRARY`",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "info",
			Usage:     "print model inputs and outputs",
			ArgsUsage: "<model.onnx>",
			Action:    InfoAction,
		},
		{
			Name:      "check",
			Usage:     "check that the model outputs match the prior grid",
			ArgsUsage: "<model.onnx>",
			Flags:     gridFlags,
			Action:    CheckAction,
		},
		{
			Name:   "priors",
			Usage:  "print the prior count for a grid",
			Flags:  gridFlags,
			Action: PriorsAction,
		},
		{
			Name:      "metal",
			Usage:     "try importing the model with go-metal",
			ArgsUsage: "<model.onnx>",
			Action:    MetalAction,
		},
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "\n❌ %v\n", err)
		os.Exit(1)
	}
}

func modelArg(c *cli.Context) (string, error) {
	path := c.Args().First()
	if path == "" {
		return "", cli.Exit("missing model path", 1)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("file not found: %s", path)
	}
	return path, nil
}

// withModelInfo initializes ONNX Runtime and reads the model's I/O metadata.
func withModelInfo(c *cli.Context, fn func(inputs, outputs []inference.IOInfo) error) error {
	path, err := modelArg(c)
	if err != nil {
		return err
	}
	fmt.Printf("Testing ONNX model: %s\n", path)

	if err := inference.Initialize(c.String(flagLib)); err != nil {
		return fmt.Errorf("%w\n\nYou may need to install ONNX Runtime:\n  brew install onnxruntime", err)
	}
	defer inference.Shutdown()

	inputs, outputs, err := inference.ModelInfo(path)
	if err != nil {
		return err
	}
	return fn(inputs, outputs)
}

func printInfo(inputs, outputs []inference.IOInfo) {
	fmt.Printf("\nInputs (%d):\n", len(inputs))
	for _, info := range inputs {
		fmt.Printf("  %s: shape=%v, type=%s\n", info.Name, info.Dimensions, info.DataType)
	}
	fmt.Printf("\nOutputs (%d):\n", len(outputs))
	for _, info := range outputs {
		fmt.Printf("  %s: shape=%v, type=%s\n", info.Name, info.Dimensions, info.DataType)
	}
}

// InfoAction prints the model inputs and outputs.
func InfoAction(c *cli.Context) error {
	return withModelInfo(c, func(inputs, outputs []inference.IOInfo) error {
		printInfo(inputs, outputs)
		return nil
	})
}

// CheckAction verifies the RetinaFace outputs against the prior grid.
func CheckAction(c *cli.Context) error {
	priors, err := priorCount(c.Int(flagSize), c.Int(flagPriorSize))
	if err != nil {
		return err
	}

	return withModelInfo(c, func(inputs, outputs []inference.IOInfo) error {
		printInfo(inputs, outputs)
		fmt.Printf("\nPrior grid: %d anchors\n", priors)
		if err := checkOutputs(outputs, pipeline.DefaultConfig().Outputs, priors); err != nil {
			return err
		}
		fmt.Println("\n✅ SUCCESS! Model outputs match the prior grid.")
		return nil
	})
}

// PriorsAction prints the anchor count for the configured grid.
func PriorsAction(c *cli.Context) error {
	priors, err := priorCount(c.Int(flagSize), c.Int(flagPriorSize))
	if err != nil {
		return err
	}
	fmt.Println(priors)
	return nil
}

// MetalAction tries to import the model with go-metal.
func MetalAction(c *cli.Context) error {
	path, err := modelArg(c)
	if err != nil {
		return err
	}

	fmt.Println("Attempting to import with go-metal...")
	importer := checkpoints.NewONNXImporter()
	checkpoint, err := importer.ImportFromONNX(path)
	if err != nil {
		return fmt.Errorf("go-metal cannot import this model: %w\n"+
			"go-metal only supports: Conv, MatMul, Add, Relu, LeakyRelu,\n"+
			"Sigmoid, Tanh, BatchNorm, Dropout, Softmax, Flatten", err)
	}

	fmt.Printf("  Layers: %d\n", len(checkpoint.ModelSpec.Layers))
	fmt.Printf("  Weights: %d tensors\n", len(checkpoint.Weights))
	for i, layer := range checkpoint.ModelSpec.Layers {
		fmt.Printf("  %d: %s (%s)\n", i+1, layer.Name, layer.Type)
	}
	return nil
}

func priorCount(size, priorSize int) (int, error) {
	dc := detector.DefaultConfig()
	dc.InputWidth, dc.InputHeight = size, size
	dc.Priors.Width, dc.Priors.Height = priorSize, priorSize
	post, err := detector.NewPostprocessor(dc)
	if err != nil {
		return 0, err
	}
	return len(post.Priors()), nil
}

// checkOutputs verifies every RetinaFace head exists and has one row per prior.
// Dynamic dimensions are reported and skipped.
func checkOutputs(outputs []inference.IOInfo, names pipeline.OutputNames, priors int) error {
	byName := make(map[string]inference.IOInfo, len(outputs))
	for _, o := range outputs {
		byName[o.Name] = o
	}

	var errs []error
	for _, name := range []string{names.Boxes, names.Scores, names.Landmarks} {
		info, ok := byName[name]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q", pipeline.ErrMissingOutput, name))
			continue
		}
		dims := info.Dimensions
		if len(dims) < 2 {
			errs = append(errs, fmt.Errorf("output %q has rank %d", name, len(dims)))
			continue
		}
		rows := dims[len(dims)-2]
		switch {
		case rows < 0:
			fmt.Printf("  %s: dynamic row count, checked at run time\n", name)
		case int(rows) != priors:
			errs = append(errs, fmt.Errorf("%w: %q has %d rows, grid has %d",
				detector.ErrPriorMismatch, name, rows, priors))
		default:
			fmt.Printf("  ✓ %s: %d rows\n", name, rows)
		}
	}
	return multierr.Combine(errs...)
}
