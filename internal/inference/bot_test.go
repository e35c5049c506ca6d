package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mwiater/supportbot/internal/appconfig"
	"github.com/mwiater/supportbot/internal/metrics"
	"github.com/mwiater/supportbot/internal/providers"
	"github.com/rs/zerolog"
)

type fakeBackend struct {
	loadErr error
	genErr  error
	text    string
	tokens  int
	lastReq providers.GenerateRequest
}

func (f *fakeBackend) Load(_ context.Context, ms providers.ModelSpec) (providers.ModelInfo, error) {
	if f.loadErr != nil {
		return providers.ModelInfo{}, f.loadErr
	}
	return providers.ModelInfo{Model: ms.BaseModel, Adapter: ms.AdapterPath, Device: "fake"}, nil
}

func (f *fakeBackend) Generate(_ context.Context, req providers.GenerateRequest) (providers.Generation, error) {
	f.lastReq = req
	if f.genErr != nil {
		return providers.Generation{}, f.genErr
	}
	return providers.Generation{Text: f.text, TokensGenerated: f.tokens}, nil
}

func (f *fakeBackend) Close() error { return nil }

func newTestBot(t *testing.T, backend *fakeBackend) (*Bot, *metrics.Tracker) {
	t.Helper()
	tracker := metrics.NewTracker("support", t.TempDir())
	cfg := appconfig.Default().Generation
	return New(cfg, backend, tracker, zerolog.Nop()), tracker
}

func TestChatBeforeLoad(t *testing.T) {
	bot, tracker := newTestBot(t, &fakeBackend{text: "hi"})
	if _, err := bot.Chat(context.Background(), "hello"); !errors.Is(err, ErrModelNotReady) {
		t.Fatalf("expected ErrModelNotReady, got %v", err)
	}
	if tracker.Summary().Model.Errors != 0 {
		t.Fatal("not-ready calls must not be counted as generation errors")
	}
}

func TestLoadRecordsModel(t *testing.T) {
	bot, tracker := newTestBot(t, &fakeBackend{})
	if err := bot.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bot.Loaded() || bot.Info().Device != "fake" {
		t.Fatalf("unexpected state: loaded=%v info=%+v", bot.Loaded(), bot.Info())
	}
	if got := tracker.Summary().Model.AdapterPath; got != bot.Config().AdapterPath {
		t.Fatalf("expected adapter path %q recorded, got %q", bot.Config().AdapterPath, got)
	}
}

func TestLoadError(t *testing.T) {
	cause := errors.New("adapter missing")
	bot, _ := newTestBot(t, &fakeBackend{loadErr: cause})
	err := bot.Load(context.Background())
	var loadErr *LoadError
	if !errors.As(err, &loadErr) || !errors.Is(err, cause) {
		t.Fatalf("expected LoadError wrapping cause, got %v", err)
	}
	if bot.Loaded() {
		t.Fatal("bot must not be loaded after a failed Load")
	}
}

func TestChatPostProcessesAndRecords(t *testing.T) {
	backend := &fakeBackend{text: "Some prefix<|assistant|>Clean response here", tokens: 3}
	bot, tracker := newTestBot(t, backend)
	if err := bot.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	got, err := bot.Chat(context.Background(), "How do I cancel?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "Clean response here" {
		t.Fatalf("unexpected response %q", got)
	}

	if backend.lastReq.MaxNewTokens != 150 || backend.lastReq.Temperature != 0.7 || backend.lastReq.TopP != 0.9 || backend.lastReq.RepetitionPenalty != 1.2 {
		t.Fatalf("sampling parameters not forwarded: %+v", backend.lastReq)
	}
	if len(backend.lastReq.Stop) != 2 || backend.lastReq.Stop[0] != "</s>" || backend.lastReq.Stop[1] != "<|user|>" {
		t.Fatalf("expected turn-ending stop sequences, got %v", backend.lastReq.Stop)
	}
	if !strings.Contains(backend.lastReq.Prompt, "<|user|>\nHow do I cancel?</s>") {
		t.Fatalf("question missing from prompt: %q", backend.lastReq.Prompt)
	}

	s := tracker.Summary()
	if s.Model.TotalInferences != 1 || s.RecentInferences[0].TokensGenerated != 3 || s.RecentInferences[0].ResponseLength != len("Clean response here") {
		t.Fatalf("inference not recorded: %+v", s)
	}
}

func TestChatGenerationError(t *testing.T) {
	cause := errors.New("connection refused")
	bot, tracker := newTestBot(t, &fakeBackend{genErr: cause})
	if err := bot.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	_, err := bot.Chat(context.Background(), "hello")
	var genErr *GenerationError
	if !errors.As(err, &genErr) || !errors.Is(err, cause) {
		t.Fatalf("expected GenerationError wrapping cause, got %v", err)
	}
	s := tracker.Summary()
	if s.Model.Errors != 1 || s.Model.TotalInferences != 0 {
		t.Fatalf("expected one error and no inferences, got %+v", s.Model)
	}
}

func TestChatLogsResponseLengthInCharacters(t *testing.T) {
	var buf bytes.Buffer
	tracker := metrics.NewTracker("support", t.TempDir())
	backend := &fakeBackend{text: "Remboursement effectué à 100 %", tokens: 5}
	bot := New(appconfig.Default().Generation, backend, tracker, zerolog.New(&buf).Level(zerolog.DebugLevel))
	if err := bot.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	buf.Reset()
	if _, err := bot.Chat(context.Background(), "refund?"); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	var entry struct {
		Message        string `json:"message"`
		ResponseLength int    `json:"response_length"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	want := tracker.Summary().RecentInferences[0].ResponseLength
	if entry.Message != "chat completed" || entry.ResponseLength != want || want != 30 {
		t.Fatalf("logged length %d, tracked length %d, want 30", entry.ResponseLength, want)
	}
}
