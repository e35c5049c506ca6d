package inference

import (
	"errors"
	"fmt"
)

// ErrModelNotReady is returned by Chat when Load has not completed successfully.
var ErrModelNotReady = errors.New("model not loaded")

// LoadError reports that the base model or adapter could not be resolved.
type LoadError struct {
	BaseModel   string
	AdapterPath string
	Err         error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s with adapter %s: %v", e.BaseModel, e.AdapterPath, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// GenerationError reports a failed completion. The failure has already been counted by the tracker.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
