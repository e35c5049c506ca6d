// internal/server/server_test.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mwiater/supportbot/internal/appconfig"
	"github.com/mwiater/supportbot/internal/inference"
	"github.com/mwiater/supportbot/internal/metrics"
	"github.com/rs/zerolog"
)

type stubModel struct {
	mu       sync.Mutex
	loaded   bool
	loadErr  error
	response string
	chatErr  error
	tracker  *metrics.Tracker
}

func (m *stubModel) Load(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return m.loadErr
	}
	m.loaded = true
	return nil
}

func (m *stubModel) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *stubModel) Chat(_ context.Context, question string) (string, error) {
	if m.chatErr != nil {
		m.tracker.LogError()
		return "", &inference.GenerationError{Err: m.chatErr}
	}
	m.tracker.LogInference(question, m.response, 100*time.Millisecond, 0)
	return m.response, nil
}

func newTestServer(t *testing.T, model *stubModel) (*Server, *metrics.Tracker) {
	t.Helper()
	cfg := appconfig.Default()
	cfg.MetricsDir = t.TempDir()
	tracker := metrics.NewTracker(cfg.ModelName, cfg.MetricsDir)
	model.tracker = tracker
	return New(cfg, model, tracker, zerolog.Nop()), tracker
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
}

func TestRoot(t *testing.T) {
	s, _ := newTestServer(t, &stubModel{})
	rec := do(t, s, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["status"] != "ok" || body["model"] != appconfig.DefaultModelName {
		t.Fatalf("unexpected body %v", body)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected a request id header")
	}
}

func TestChatBeforeLoadIsUnavailable(t *testing.T) {
	s, _ := newTestServer(t, &stubModel{})
	rec := do(t, s, http.MethodPost, "/chat", `{"question":"hi"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body errorResponse
	decode(t, rec, &body)
	if body.Detail != "Model not loaded" {
		t.Fatalf("unexpected detail %q", body.Detail)
	}
}

func TestChat(t *testing.T) {
	s, tracker := newTestServer(t, &stubModel{loaded: true, response: "Your order ships today."})
	rec := do(t, s, http.MethodPost, "/chat", `{"question":"Where is my order?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body ChatResponse
	decode(t, rec, &body)
	if body.Question != "Where is my order?" || body.Response != "Your order ships today." || body.LatencyMs < 0 {
		t.Fatalf("unexpected body %+v", body)
	}
	if tracker.Summary().Model.TotalInferences != 1 {
		t.Fatal("expected the inference to be tracked")
	}
}

func TestChatRejectsBadBody(t *testing.T) {
	s, _ := newTestServer(t, &stubModel{loaded: true})
	for _, body := range []string{`{}`, `{"question":null}`, `not json`} {
		if rec := do(t, s, http.MethodPost, "/chat", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestChatAcceptsEmptyQuestion(t *testing.T) {
	model := &stubModel{loaded: true, response: "How can I help?"}
	s, tracker := newTestServer(t, model)
	rec := do(t, s, http.MethodPost, "/chat", `{"question":""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for an empty question, got %d: %s", rec.Code, rec.Body.String())
	}
	var body ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Question != "" || body.Response != "How can I help?" {
		t.Fatalf("unexpected body %+v", body)
	}
	if tracker.Summary().Model.TotalInferences != 1 {
		t.Fatal("expected the empty question to reach the model")
	}
}

func TestChatGenerationFailure(t *testing.T) {
	s, tracker := newTestServer(t, &stubModel{loaded: true, chatErr: errors.New("backend down")})
	rec := do(t, s, http.MethodPost, "/chat", `{"question":"hi"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "backend down") {
		t.Fatalf("expected the cause in the body, got %s", rec.Body.String())
	}
	if tracker.Summary().Model.Errors != 1 {
		t.Fatal("expected the error to be tracked")
	}
}

func TestHealth(t *testing.T) {
	s, tracker := newTestServer(t, &stubModel{loaded: true})
	tracker.LogInference("a", "b", 100*time.Millisecond, 1)
	tracker.LogInference("a", "b", 100*time.Millisecond+333*time.Microsecond, 1)
	tracker.LogInference("a", "b", 100*time.Millisecond, 1)
	tracker.LogError()

	rec := do(t, s, http.MethodGet, "/health", "")
	var body HealthResponse
	decode(t, rec, &body)
	if body.Status != "healthy" || !body.ModelLoaded || body.TotalRequests != 3 {
		t.Fatalf("unexpected health %+v", body)
	}
	if body.AvgLatencyMs != 100.11 {
		t.Fatalf("expected avg latency rounded to 100.11, got %v", body.AvgLatencyMs)
	}
	if body.ErrorRate != 0.3333 {
		t.Fatalf("expected error rate rounded to 0.3333, got %v", body.ErrorRate)
	}
}

func TestMetricsEndpoints(t *testing.T) {
	s, tracker := newTestServer(t, &stubModel{loaded: true})
	tracker.LogInference("q", "a", 10*time.Millisecond, 1)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	var summary metrics.Summary
	decode(t, rec, &summary)
	if summary.Model.TotalInferences != 1 || len(summary.RecentInferences) != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	rec = do(t, s, http.MethodGet, "/metrics/prometheus", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "supportbot_inferences_total 1") {
		t.Fatalf("unexpected prometheus output (%d): %s", rec.Code, rec.Body.String())
	}
}

func TestServeStopsOnLoadFailure(t *testing.T) {
	cause := errors.New("adapter not found")
	s, _ := newTestServer(t, &stubModel{loadErr: cause})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background(), ln) }()

	select {
	case err := <-done:
		if !errors.Is(err, cause) {
			t.Fatalf("expected load failure, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after load failure")
	}
}

func TestServeShutsDownAndSavesMetrics(t *testing.T) {
	model := &stubModel{}
	s, tracker := newTestServer(t, model)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	deadline := time.Now().Add(5 * time.Second)
	for !model.Loaded() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	if _, err := metrics.ReadSummary(tracker.Path()); err != nil {
		t.Fatalf("expected metrics saved on shutdown: %v", err)
	}
}
