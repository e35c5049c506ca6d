// internal/cli/session.go
package supportbot

import (
	"context"
	"errors"

	"github.com/mwiater/supportbot/internal/appconfig"
	"github.com/mwiater/supportbot/internal/inference"
	"github.com/mwiater/supportbot/internal/logging"
	"github.com/mwiater/supportbot/internal/metrics"
	"github.com/mwiater/supportbot/internal/providerfactory"
	"github.com/mwiater/supportbot/internal/providers"
)

// session bundles what demo, eval and api share: one tracker, one backend and one bot on top of it.
type session struct {
	cfg     appconfig.Config
	tracker *metrics.Tracker
	backend providers.Backend
	bot     *inference.Bot
}

func newSession(cfg *appconfig.Config) (*session, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	tracker := metrics.NewTracker(cfg.ModelName, cfg.MetricsDir)
	backend, err := providerfactory.NewBackend(cfg, tracker)
	if err != nil {
		return nil, err
	}
	bot := inference.New(cfg.Generation, backend, tracker, logging.New("inference"))
	return &session{cfg: *cfg, tracker: tracker, backend: backend, bot: bot}, nil
}

// load loads the model synchronously. The api command loads in the background instead.
func (s *session) load(ctx context.Context) error {
	return s.bot.Load(ctx)
}

// close saves the metrics summary and releases the backend.
func (s *session) close() error {
	path, saveErr := s.tracker.Save()
	if saveErr == nil {
		logging.LogEvent("Metrics saved to %s", path)
	}
	return errors.Join(saveErr, s.backend.Close())
}
