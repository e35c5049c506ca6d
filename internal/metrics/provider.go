// internal/metrics/provider.go
package metrics

import (
	"context"
	"time"

	"github.com/mwiater/supportbot/internal/logging"
	"github.com/mwiater/supportbot/internal/providers"
)

// Backend is a decorator that wraps a providers.Backend to time every model server call.
type Backend struct {
	wrapped providers.Backend
	tracker *Tracker
}

// NewBackend creates a metrics-enabled backend that wraps an existing one.
func NewBackend(wrapped providers.Backend, tracker *Tracker) *Backend {
	logging.LogEvent("[METRICS] Wrapping backend with metrics backend")
	return &Backend{wrapped: wrapped, tracker: tracker}
}

// Load times the wrapped backend's Load.
func (b *Backend) Load(ctx context.Context, ms providers.ModelSpec) (providers.ModelInfo, error) {
	start := time.Now()
	info, err := b.wrapped.Load(ctx, ms)
	b.tracker.ObserveBackend("load", time.Since(start), err)
	return info, err
}

// Generate times the wrapped backend's Generate.
func (b *Backend) Generate(ctx context.Context, req providers.GenerateRequest) (providers.Generation, error) {
	start := time.Now()
	gen, err := b.wrapped.Generate(ctx, req)
	b.tracker.ObserveBackend("generate", time.Since(start), err)
	return gen, err
}

// Close passes the call through to the wrapped backend.
func (b *Backend) Close() error {
	return b.wrapped.Close()
}

// Unwrap returns the decorated backend.
func (b *Backend) Unwrap() providers.Backend {
	return b.wrapped
}
