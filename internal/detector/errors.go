package detector

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned at construction for a bad resolution,
	// pyramid level or threshold.
	ErrInvalidConfig = errors.New("invalid detector config")

	// ErrPriorMismatch is returned when the row count of the model outputs
	// differs from the number of generated priors.
	ErrPriorMismatch = errors.New("model outputs do not match prior count")

	// ErrMalformedTensor is wrapped by every TensorError.
	ErrMalformedTensor = errors.New("malformed output tensor")
)

// TensorError reports a missing or malformed model output tensor
type TensorError struct {
	Name   string
	Reason string
}

func (e *TensorError) Error() string {
	return fmt.Sprintf("%s tensor: %s", e.Name, e.Reason)
}

// Unwrap lets errors.Is match ErrMalformedTensor
func (e *TensorError) Unwrap() error {
	return ErrMalformedTensor
}

func tensorErrorf(name, format string, args ...any) error {
	return &TensorError{Name: name, Reason: fmt.Sprintf(format, args...)}
}
