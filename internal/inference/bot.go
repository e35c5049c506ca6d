// Package inference drives a fine-tuned chat model: it loads the base model and adapter on a model
// server once, then answers questions with a fixed prompt template and sampling configuration.
package inference

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mwiater/supportbot/internal/appconfig"
	"github.com/mwiater/supportbot/internal/providers"
	"github.com/rs/zerolog"
)

// Chatter answers a single question. The evaluation harness, the HTTP API and the demo depend on
// this rather than on Bot.
type Chatter interface {
	Chat(ctx context.Context, question string) (string, error)
}

// Recorder receives per-inference telemetry. *metrics.Tracker implements it.
type Recorder interface {
	LogModelLoad(adapterPath string, d time.Duration)
	LogInference(question, response string, latency time.Duration, tokens int)
	LogError()
}

// Bot owns the loaded model on a backend. Load must succeed before Chat. Chat does not serialize
// calls; callers that share a Bot across goroutines decide how many generations run at once.
type Bot struct {
	cfg     appconfig.GenerationConfig
	backend providers.Backend
	metrics Recorder
	logger  zerolog.Logger

	mu     sync.RWMutex
	info   providers.ModelInfo
	loaded bool
}

// New creates a Bot. cfg is copied and treated as read-only.
func New(cfg appconfig.GenerationConfig, backend providers.Backend, metrics Recorder, logger zerolog.Logger) *Bot {
	return &Bot{cfg: cfg, backend: backend, metrics: metrics, logger: logger}
}

// Load resolves the base model and applies the adapter, recording the load duration.
func (b *Bot) Load(ctx context.Context) error {
	b.logger.Info().
		Str("base_model", b.cfg.BaseModel).
		Str("adapter", b.cfg.AdapterPath).
		Msg("loading model")

	start := time.Now()
	info, err := b.backend.Load(ctx, providers.ModelSpec{
		BaseModel:   b.cfg.BaseModel,
		AdapterPath: b.cfg.AdapterPath,
	})
	if err != nil {
		return &LoadError{BaseModel: b.cfg.BaseModel, AdapterPath: b.cfg.AdapterPath, Err: err}
	}
	elapsed := time.Since(start)

	b.mu.Lock()
	b.info = info
	b.loaded = true
	b.mu.Unlock()

	b.metrics.LogModelLoad(b.cfg.AdapterPath, elapsed)
	b.logger.Info().
		Str("model", info.Model).
		Str("adapter", info.Adapter).
		Str("device", info.Device).
		Dur("elapsed", elapsed).
		Msg("model loaded")
	return nil
}

// Loaded reports whether Load has completed successfully.
func (b *Bot) Loaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loaded
}

// Info returns what the backend resolved during Load.
func (b *Bot) Info() providers.ModelInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info
}

// Config returns the generation settings the bot was created with.
func (b *Bot) Config() appconfig.GenerationConfig {
	return b.cfg
}

// Chat generates an answer to question. Failures are counted and returned as *GenerationError
// without retrying.
func (b *Bot) Chat(ctx context.Context, question string) (string, error) {
	if !b.Loaded() {
		return "", ErrModelNotReady
	}

	start := time.Now()
	gen, err := b.backend.Generate(ctx, providers.GenerateRequest{
		Prompt:            BuildPrompt(question),
		MaxNewTokens:      b.cfg.MaxNewTokens,
		Temperature:       b.cfg.Temperature,
		TopP:              b.cfg.TopP,
		RepetitionPenalty: b.cfg.RepetitionPenalty,
		Stop:              stopSequences,
	})
	if err != nil {
		b.metrics.LogError()
		b.logger.Error().Err(err).Msg("generation failed")
		return "", &GenerationError{Err: err}
	}

	response := PostProcess(gen.Text)
	latency := time.Since(start)
	b.metrics.LogInference(question, response, latency, gen.TokensGenerated)
	b.logger.Debug().
		Dur("latency", latency).
		Dur("backend_duration", gen.Duration).
		Int("tokens", gen.TokensGenerated).
		Int("response_length", utf8.RuneCountInString(response)).
		Msg("chat completed")
	return response, nil
}
