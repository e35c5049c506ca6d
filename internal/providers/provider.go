// internal/providers/provider.go

// Package providers defines the contract between the inference engine and the model servers that
// host the base model and its fine-tuned adapter. A Backend resolves both once at startup and then
// serves raw-prompt completions with the configured sampling parameters.
package providers

import (
	"context"
	"errors"
	"time"
)

// ErrNotLoaded is returned by Generate when Load has not completed successfully.
var ErrNotLoaded = errors.New("backend: model not loaded")

// ModelSpec names the base model and the adapter to apply on top of it.
type ModelSpec struct {
	BaseModel   string
	AdapterPath string
}

// ModelInfo describes what the backend resolved during Load.
type ModelInfo struct {
	// Model is the identifier the server reports for the base model.
	Model string
	// Adapter is the adapter path or model tag that is active for generation.
	Adapter string
	// Device identifies where generation runs (the model server).
	Device string
}

// GenerateRequest carries one raw prompt and its sampling parameters.
type GenerateRequest struct {
	Prompt            string
	MaxNewTokens      int
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
	// Stop ends generation at the first of these strings.
	Stop []string
}

// Generation is the decoded output of one completion.
type Generation struct {
	Text            string
	Model           string
	PromptTokens    int
	TokensGenerated int
	Duration        time.Duration
}

// Backend is the interface that all model servers must implement.
type Backend interface {
	// Load resolves the base model and activates the adapter. It must succeed before Generate.
	Load(ctx context.Context, spec ModelSpec) (ModelInfo, error)
	// Generate samples a completion for a raw prompt.
	Generate(ctx context.Context, req GenerateRequest) (Generation, error)
	// Close cleans up any resources used by the backend.
	Close() error
}
