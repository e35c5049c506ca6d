// internal/providerfactory/factory.go
package providerfactory

import (
	"fmt"
	"strings"

	"github.com/mwiater/supportbot/internal/appconfig"
	"github.com/mwiater/supportbot/internal/logging"
	"github.com/mwiater/supportbot/internal/metrics"
	"github.com/mwiater/supportbot/internal/providers"
	"github.com/mwiater/supportbot/internal/providers/llamacpp"
	"github.com/mwiater/supportbot/internal/providers/ollama"
)

// NewBackend selects and configures the model server backend named by cfg.Backend.Type and, when a
// tracker is supplied, wraps it with metrics collection.
func NewBackend(cfg *appconfig.Config, tracker *metrics.Tracker) (providers.Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}

	backendType, err := normalizeType(cfg.Backend.Type)
	if err != nil {
		return nil, err
	}

	var backend providers.Backend
	switch backendType {
	case appconfig.BackendOllama:
		backend = ollama.New(cfg)
	default:
		backend = llamacpp.New(cfg)
	}
	logging.LogEvent("Backend ready: %s at %s", backendType, cfg.Backend.URL)

	if tracker != nil {
		backend = metrics.NewBackend(backend, tracker)
	}
	return backend, nil
}

// normalizeType maps configured backend types onto the supported set. An empty type means llama.cpp.
func normalizeType(t string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "", "llamacpp", appconfig.BackendLlamaCpp:
		return appconfig.BackendLlamaCpp, nil
	case appconfig.BackendOllama:
		return appconfig.BackendOllama, nil
	default:
		return "", fmt.Errorf("unsupported backend type: %s", t)
	}
}
