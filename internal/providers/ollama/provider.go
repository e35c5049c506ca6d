// internal/providers/ollama/provider.go
// Package ollama provides a Backend backed by Ollama-compatible HTTP endpoints. The fine-tuned
// adapter is packaged as its own model tag (a Modelfile with FROM <base> and ADAPTER <path>), so
// generation targets the adapter tag.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/supportbot/internal/appconfig"
	"github.com/mwiater/supportbot/internal/logging"
	"github.com/mwiater/supportbot/internal/providers"
)

// Provider implements the providers.Backend interface using Ollama HTTP APIs.
type Provider struct {
	client  *http.Client
	baseURL string
	host    string
	timeout time.Duration

	base   string
	model  string
	loaded bool
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

type showResponse struct {
	Modelfile string `json:"modelfile"`
	Details   struct {
		ParentModel       string `json:"parent_model"`
		Family            string `json:"family"`
		ParameterSize     string `json:"parameter_size"`
		QuantizationLevel string `json:"quantization_level"`
	} `json:"details"`
}

type generateResponse struct {
	Model              string `json:"model"`
	Response           string `json:"response"`
	Done               bool   `json:"done"`
	TotalDuration      int64  `json:"total_duration"`
	LoadDuration       int64  `json:"load_duration"`
	PromptEvalCount    int    `json:"prompt_eval_count"`
	PromptEvalDuration int64  `json:"prompt_eval_duration"`
	EvalCount          int    `json:"eval_count"`
	EvalDuration       int64  `json:"eval_duration"`
}

// Load verifies the adapter tag exists and warms it into memory. The base model is resolved from the
// configured name when the server knows it, otherwise from the adapter tag's parent model.
func (p *Provider) Load(ctx context.Context, ms providers.ModelSpec) (providers.ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	adapter := normalizeTag(ms.AdapterPath)
	shown, err := p.show(ctx, adapter)
	if err != nil {
		return providers.ModelInfo{}, fmt.Errorf("ollama: adapter model %q: %w", adapter, err)
	}
	if !hasAdapterDirective(shown.Modelfile) {
		logging.LogEvent("ollama: model %q has no ADAPTER directive; generating with it as-is", adapter)
	}

	base := normalizeTag(ms.BaseModel)
	if _, err := p.show(ctx, base); err != nil {
		parent := strings.TrimSpace(shown.Details.ParentModel)
		if parent == "" {
			return providers.ModelInfo{}, fmt.Errorf("ollama: base model %q not found and adapter %q reports no parent model: %w", base, adapter, err)
		}
		logging.LogEvent("ollama: base model %q not found (%v); using parent %q", base, err, parent)
		base = parent
	}

	if err := p.ensureModelReady(ctx, adapter); err != nil {
		return providers.ModelInfo{}, err
	}

	p.base = base
	p.model = adapter
	p.loaded = true
	return providers.ModelInfo{Model: base, Adapter: adapter, Device: p.host}, nil
}

// Generate issues a raw, non-streaming /api/generate request against the adapter tag.
func (p *Provider) Generate(ctx context.Context, req providers.GenerateRequest) (providers.Generation, error) {
	if !p.loaded {
		return providers.Generation{}, providers.ErrNotLoaded
	}
	payload := map[string]any{
		"model":   p.model,
		"prompt":  req.Prompt,
		"raw":     true,
		"stream":  false,
		"options": buildOptions(req),
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	body, err := p.post(ctx, "/api/generate", p.model, payload)
	if err != nil {
		return providers.Generation{}, err
	}
	var result generateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return providers.Generation{}, fmt.Errorf("ollama: decode /api/generate: %w", err)
	}

	modelName := result.Model
	if modelName == "" {
		modelName = p.model
	}
	return providers.Generation{
		Text:            result.Response,
		Model:           modelName,
		PromptTokens:    result.PromptEvalCount,
		TokensGenerated: result.EvalCount,
		Duration:        time.Since(start),
	}, nil
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *Provider) show(ctx context.Context, model string) (showResponse, error) {
	body, err := p.post(ctx, "/api/show", model, map[string]string{"model": model})
	if err != nil {
		return showResponse{}, err
	}
	var shown showResponse
	if err := json.Unmarshal(body, &shown); err != nil {
		return showResponse{}, fmt.Errorf("ollama: decode /api/show: %w", err)
	}
	return shown, nil
}

// ensureModelReady triggers a lightweight generate request to make sure the model is loaded.
func (p *Provider) ensureModelReady(ctx context.Context, model string) error {
	_, err := p.post(ctx, "/api/generate", model, map[string]any{"model": model})
	return err
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

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	logging.LogRequest("LLM->BOT", p.host, model, respBody)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: %s returned %s: %s", endpoint, resp.Status, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

func buildOptions(req providers.GenerateRequest) map[string]any {
	options := map[string]any{}
	if req.MaxNewTokens > 0 {
		options["num_predict"] = req.MaxNewTokens
	}
	options["temperature"] = req.Temperature
	if req.TopP > 0 {
		options["top_p"] = req.TopP
	}
	if req.RepetitionPenalty > 0 {
		options["repeat_penalty"] = req.RepetitionPenalty
	}
	if len(req.Stop) > 0 {
		options["stop"] = req.Stop
	}
	return options
}

// normalizeTag turns a configured model reference into an Ollama tag. Hub identifiers and adapter
// directories keep only their last path segment: "models/customer-support-model" becomes
// "customer-support-model".
func normalizeTag(ref string) string {
	ref = strings.TrimSpace(strings.TrimRight(ref, "/"))
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	return strings.ToLower(ref)
}

func hasAdapterDirective(modelfile string) bool {
	for _, line := range strings.Split(modelfile, "\n") {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(line)), "ADAPTER ") {
			return true
		}
	}
	return false
}

// hostIdentifier returns a string identifier for the host, preferring the name over the URL.
func hostIdentifier(cfg appconfig.Config) string {
	if name := strings.TrimSpace(cfg.Backend.Name); name != "" {
		return name
	}
	if url := strings.TrimSpace(cfg.Backend.URL); url != "" {
		return url
	}
	return "ollama-host"
}
