// internal/providers/llamacpp/provider_test.go
package llamacpp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mwiater/supportbot/internal/appconfig"
	"github.com/mwiater/supportbot/internal/providers"
)

type fakeServer struct {
	scales     []loraScale
	completion map[string]any
}

func newFakeServer(t *testing.T, f *fakeServer) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/health":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case r.URL.Path == "/v1/models":
			_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"/models/tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf"}]}`))
		case r.URL.Path == "/lora-adapters" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`[{"id":0,"path":"/adapters/other.gguf","scale":1.0},{"id":1,"path":"/adapters/customer-support-model.gguf","scale":0.0}]`))
		case r.URL.Path == "/lora-adapters" && r.Method == http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &f.scales); err != nil {
				t.Errorf("decode scales: %v", err)
			}
			_, _ = w.Write([]byte(`{"success":true}`))
		case r.URL.Path == "/completion":
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &f.completion); err != nil {
				t.Errorf("decode completion: %v", err)
			}
			_, _ = w.Write([]byte(`{"content":" Sure, I can help.</s>","tokens_predicted":7,"tokens_evaluated":42}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestProvider(url string) *Provider {
	cfg := &appconfig.Config{TimeoutSeconds: 5, Backend: appconfig.Backend{Name: "test", URL: url}}
	return New(cfg)
}

func TestLoadActivatesAdapter(t *testing.T) {
	t.Parallel()

	f := &fakeServer{}
	server := newFakeServer(t, f)
	defer server.Close()

	p := newTestProvider(server.URL)
	info, err := p.Load(context.Background(), providers.ModelSpec{
		BaseModel:   "TinyLlama/TinyLlama-1.1B-Chat-v1.0",
		AdapterPath: "models/customer-support-model",
	})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if info.Adapter != "/adapters/customer-support-model.gguf" || info.Device != "test" {
		t.Fatalf("unexpected model info: %+v", info)
	}
	if !strings.Contains(info.Model, "tinyllama-1.1b-chat-v1.0") {
		t.Fatalf("unexpected base model: %q", info.Model)
	}
	if len(f.scales) != 2 || f.scales[0].Scale != 0 || f.scales[1].Scale != 1 {
		t.Fatalf("expected only the support adapter enabled, got %+v", f.scales)
	}
}

func TestGenerateSendsSamplingParameters(t *testing.T) {
	t.Parallel()

	f := &fakeServer{}
	server := newFakeServer(t, f)
	defer server.Close()

	p := newTestProvider(server.URL)
	if _, err := p.Load(context.Background(), providers.ModelSpec{BaseModel: "TinyLlama/TinyLlama-1.1B-Chat-v1.0", AdapterPath: "customer-support-model.gguf"}); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	gen, err := p.Generate(context.Background(), providers.GenerateRequest{
		Prompt:            "<|user|>\nhi</s>\n<|assistant|>\n",
		MaxNewTokens:      150,
		Temperature:       0.7,
		TopP:              0.9,
		RepetitionPenalty: 1.2,
		Stop:              []string{"</s>", "<|user|>"},
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if gen.Text != " Sure, I can help.</s>" || gen.TokensGenerated != 7 || gen.PromptTokens != 42 {
		t.Fatalf("unexpected generation: %+v", gen)
	}

	if f.completion["n_predict"] != float64(150) || f.completion["repeat_penalty"] != 1.2 || f.completion["top_p"] != 0.9 {
		t.Fatalf("sampling parameters not forwarded: %+v", f.completion)
	}
	if stream, ok := f.completion["stream"].(bool); !ok || stream {
		t.Fatalf("expected stream=false, got %v", f.completion["stream"])
	}
	if stop, ok := f.completion["stop"].([]any); !ok || len(stop) != 2 || stop[0] != "</s>" || stop[1] != "<|user|>" {
		t.Fatalf("expected stop sequences to be forwarded, got %v", f.completion["stop"])
	}
	lora, ok := f.completion["lora"].([]any)
	if !ok || len(lora) != 1 {
		t.Fatalf("expected a single lora entry, got %v", f.completion["lora"])
	}
	if entry := lora[0].(map[string]any); entry["id"] != float64(1) || entry["scale"] != float64(1) {
		t.Fatalf("unexpected lora entry: %v", entry)
	}
}

func TestGenerateBeforeLoad(t *testing.T) {
	t.Parallel()

	p := newTestProvider("http://127.0.0.1:0")
	if _, err := p.Generate(context.Background(), providers.GenerateRequest{Prompt: "x"}); !errors.Is(err, providers.ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}

func TestLoadMissingAdapter(t *testing.T) {
	t.Parallel()

	server := newFakeServer(t, &fakeServer{})
	defer server.Close()

	p := newTestProvider(server.URL)
	_, err := p.Load(context.Background(), providers.ModelSpec{BaseModel: "TinyLlama/TinyLlama-1.1B-Chat-v1.0", AdapterPath: "models/billing-model"})
	if err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("expected missing adapter error, got %v", err)
	}
}

func TestLoadUnhealthyServer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Loading model"}`))
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	_, err := p.Load(context.Background(), providers.ModelSpec{BaseModel: "x", AdapterPath: "y"})
	if err == nil || !strings.Contains(err.Error(), "/health returned 503") {
		t.Fatalf("expected health error, got %v", err)
	}
}

func TestParseModelsVariants(t *testing.T) {
	t.Parallel()

	models, err := parseModels([]byte(`[{"name":"alias"}]`))
	if err != nil || len(models) != 1 || modelDisplayName(models[0]) != "alias" {
		t.Fatalf("direct array not parsed: %+v %v", models, err)
	}
	if _, err := parseModels([]byte(`{"data":[]}`)); err == nil {
		t.Fatal("expected error for empty model list")
	}
}

func TestMatchModel(t *testing.T) {
	t.Parallel()

	models := []llamaModel{{ID: "phi-2.gguf"}, {ID: "/srv/TinyLlama-1.1B-Chat-v1.0-q8.gguf"}}
	if got, ok := matchModel(models, "TinyLlama/TinyLlama-1.1B-Chat-v1.0"); !ok || got != "/srv/TinyLlama-1.1B-Chat-v1.0-q8.gguf" {
		t.Fatalf("unexpected match %q %v", got, ok)
	}
	if got, ok := matchModel(models, ""); !ok || got != "phi-2.gguf" {
		t.Fatalf("empty name should select the first model, got %q", got)
	}
	if _, ok := matchModel(models, "mistral"); ok {
		t.Fatal("unexpected match for unknown model")
	}
}

func TestMatchAdapter(t *testing.T) {
	t.Parallel()

	adapters := []loraAdapter{
		{ID: 0, Path: "/adapters/support-v1.gguf"},
		{ID: 1, Path: "/adapters/customer-support-model.bin"},
	}
	cases := []struct {
		want   string
		id     int
		wantOK bool
	}{
		{"/adapters/support-v1.gguf", 0, true},
		{"models/support-v1", 0, true},
		{"support-v1.gguf", 0, true},
		{"models/customer-support-model", 1, true},
		{"models/support-v1.2", 0, false},
		{"support-v1.2.gguf", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := matchAdapter(adapters, tc.want)
		if ok != tc.wantOK {
			t.Fatalf("matchAdapter(%q) ok = %v, want %v", tc.want, ok, tc.wantOK)
		}
		if ok && got.ID != tc.id {
			t.Fatalf("matchAdapter(%q) = id %d, want %d", tc.want, got.ID, tc.id)
		}
	}
}
