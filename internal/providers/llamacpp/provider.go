// internal/providers/llamacpp/provider.go
// Package llamacpp provides a Backend backed by llama.cpp's llama-server HTTP API. The base model is
// the one the server was started with; adapters are registered with --lora and switched on through
// the /lora-adapters endpoint.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/mwiater/supportbot/internal/appconfig"
	"github.com/mwiater/supportbot/internal/logging"
	"github.com/mwiater/supportbot/internal/providers"
)

// Provider implements the providers.Backend interface using llama.cpp HTTP APIs.
type Provider struct {
	client  *http.Client
	baseURL string
	host    string
	timeout time.Duration

	model     string
	adapterID int
	adapter   string
	loaded    bool
}

// New constructs a Provider configured with the application's request timeout.
func New(cfg *appconfig.Config) *Provider {
	timeout := cfg.RequestTimeout()
	return &Provider{
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{ForceAttemptHTTP2: false},
		},
		baseURL: strings.TrimRight(cfg.Backend.URL, "/"),
		host:    hostIdentifier(*cfg),
		timeout: timeout,
	}
}

type modelsResponse struct {
	Data   []llamaModel `json:"data"`
	Models []llamaModel `json:"models"`
}

type llamaModel struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
	Path  string `json:"path"`
}

type loraAdapter struct {
	ID    int     `json:"id"`
	Path  string  `json:"path"`
	Scale float64 `json:"scale"`
}

type loraScale struct {
	ID    int     `json:"id"`
	Scale float64 `json:"scale"`
}

type completionResponse struct {
	Content         string `json:"content"`
	Model           string `json:"model"`
	TokensPredicted int    `json:"tokens_predicted"`
	TokensEvaluated int    `json:"tokens_evaluated"`
	Timings         struct {
		PromptMs    float64 `json:"prompt_ms"`
		PredictedMs float64 `json:"predicted_ms"`
	} `json:"timings"`
}

// Load checks the server is healthy, resolves the base model among the served models and activates
// the adapter whose path matches ms.AdapterPath. Every other registered adapter is scaled to zero.
func (p *Provider) Load(ctx context.Context, ms providers.ModelSpec) (providers.ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.get(ctx, "/health", ""); err != nil {
		return providers.ModelInfo{}, err
	}

	body, err := p.get(ctx, "/v1/models", ms.BaseModel)
	if err != nil {
		return providers.ModelInfo{}, err
	}
	models, err := parseModels(body)
	if err != nil {
		return providers.ModelInfo{}, err
	}
	model, ok := matchModel(models, ms.BaseModel)
	if !ok {
		return providers.ModelInfo{}, fmt.Errorf("llama.cpp: base model %q is not served by %s", ms.BaseModel, p.host)
	}

	body, err = p.get(ctx, "/lora-adapters", model)
	if err != nil {
		return providers.ModelInfo{}, err
	}
	var adapters []loraAdapter
	if err := json.Unmarshal(body, &adapters); err != nil {
		return providers.ModelInfo{}, fmt.Errorf("llama.cpp: decode /lora-adapters: %w", err)
	}
	adapter, ok := matchAdapter(adapters, ms.AdapterPath)
	if !ok {
		return providers.ModelInfo{}, fmt.Errorf("llama.cpp: adapter %q is not registered on %s (start llama-server with --lora)", ms.AdapterPath, p.host)
	}

	scales := make([]loraScale, 0, len(adapters))
	for _, a := range adapters {
		scale := 0.0
		if a.ID == adapter.ID {
			scale = 1.0
		}
		scales = append(scales, loraScale{ID: a.ID, Scale: scale})
	}
	if _, err := p.post(ctx, "/lora-adapters", model, scales); err != nil {
		return providers.ModelInfo{}, err
	}

	p.model = model
	p.adapterID = adapter.ID
	p.adapter = adapter.Path
	p.loaded = true
	return providers.ModelInfo{Model: model, Adapter: adapter.Path, Device: p.host}, nil
}

// Generate posts the raw prompt to /completion with the adapter pinned for this request.
func (p *Provider) Generate(ctx context.Context, req providers.GenerateRequest) (providers.Generation, error) {
	if !p.loaded {
		return providers.Generation{}, providers.ErrNotLoaded
	}
	payload := map[string]any{
		"prompt":         req.Prompt,
		"n_predict":      req.MaxNewTokens,
		"temperature":    req.Temperature,
		"top_p":          req.TopP,
		"repeat_penalty": req.RepetitionPenalty,
		"stream":         false,
		"lora":           []loraScale{{ID: p.adapterID, Scale: 1.0}},
	}
	if len(req.Stop) > 0 {
		payload["stop"] = req.Stop
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	body, err := p.post(ctx, "/completion", p.model, payload)
	if err != nil {
		return providers.Generation{}, err
	}
	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return providers.Generation{}, fmt.Errorf("llama.cpp: decode /completion: %w", err)
	}

	modelName := parsed.Model
	if modelName == "" {
		modelName = p.model
	}
	return providers.Generation{
		Text:            parsed.Content,
		Model:           modelName,
		PromptTokens:    parsed.TokensEvaluated,
		TokensGenerated: parsed.TokensPredicted,
		Duration:        time.Since(start),
	}, nil
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *Provider) get(ctx context.Context, endpoint, model string) ([]byte, error) {
	url := p.baseURL + endpoint
	logging.LogRequest("BOT->LLM", p.host, model, map[string]string{"method": http.MethodGet, "url": url})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return p.do(req, endpoint, model)
}

func (p *Provider) post(ctx context.Context, endpoint, model string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	logging.LogRequest("BOT->LLM", p.host, model, body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, endpoint, model)
}

func (p *Provider) do(req *http.Request, endpoint, model string) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	logging.LogRequest("LLM->BOT", p.host, model, body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llama.cpp: %s returned %s: %s", endpoint, resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func parseModels(body []byte) ([]llamaModel, error) {
	var wrapped modelsResponse
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if len(wrapped.Models) > 0 {
			return wrapped.Models, nil
		}
		if len(wrapped.Data) > 0 {
			return wrapped.Data, nil
		}
	}

	var direct []llamaModel
	if err := json.Unmarshal(body, &direct); err == nil && len(direct) > 0 {
		return direct, nil
	}

	return nil, fmt.Errorf("llama.cpp: unrecognized /v1/models response")
}

func modelDisplayName(model llamaModel) string {
	for _, candidate := range []string{model.ID, model.Name, model.Model, model.Path} {
		if c := strings.TrimSpace(candidate); c != "" {
			return c
		}
	}
	return ""
}

// matchModel finds the served model for a hub-style identifier such as
// "TinyLlama/TinyLlama-1.1B-Chat-v1.0". llama-server reports GGUF paths or aliases, so a served model
// matches when it equals the identifier or its file name contains the identifier's last segment.
func matchModel(models []llamaModel, want string) (string, bool) {
	want = strings.TrimSpace(want)
	key := strings.ToLower(path.Base(want))
	for _, m := range models {
		name := modelDisplayName(m)
		if name == "" {
			continue
		}
		if want == "" || strings.EqualFold(name, want) {
			return name, true
		}
		base := strings.ToLower(filepath.Base(filepath.ToSlash(name)))
		if strings.Contains(base, key) {
			return name, true
		}
	}
	return "", false
}

// matchAdapter finds the registered adapter for a configured path. Paths match exactly, by file
// name, or by file name without extension (models/customer-support-model vs customer-support-model.gguf).
func matchAdapter(adapters []loraAdapter, want string) (loraAdapter, bool) {
	want = strings.TrimSpace(want)
	if want == "" {
		return loraAdapter{}, false
	}
	wantBase := strings.ToLower(filepath.Base(want))
	wantStem := adapterStem(wantBase)
	for _, a := range adapters {
		if a.Path == want {
			return a, true
		}
		base := strings.ToLower(filepath.Base(a.Path))
		if base == wantBase || adapterStem(base) == wantStem {
			return a, true
		}
	}
	return loraAdapter{}, false
}

// adapterExtensions are the file suffixes dropped when comparing adapter names. Other dotted
// suffixes (support-v1.2) are part of the name.
var adapterExtensions = []string{".gguf", ".bin", ".safetensors"}

func adapterStem(name string) string {
	for _, ext := range adapterExtensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// hostIdentifier returns a string identifier for the backend, preferring the name over the URL.
func hostIdentifier(cfg appconfig.Config) string {
	if name := strings.TrimSpace(cfg.Backend.Name); name != "" {
		return name
	}
	if url := strings.TrimSpace(cfg.Backend.URL); url != "" {
		return url
	}
	return "llama.cpp-host"
}
