// internal/server/server.go
// Package server exposes the chat model over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mwiater/supportbot/internal/appconfig"
	"github.com/mwiater/supportbot/internal/inference"
	"github.com/mwiater/supportbot/internal/metrics"
	"github.com/rs/zerolog"
)

// Model is the chat model served by the API.
type Model interface {
	inference.Chatter
	Load(ctx context.Context) error
	Loaded() bool
}

// Server is the HTTP API. Chat requests are served one at a time because a single model instance
// runs one generation at a time.
type Server struct {
	cfg     appconfig.Config
	model   Model
	tracker *metrics.Tracker
	logger  zerolog.Logger
	engine  *gin.Engine

	chatMu sync.Mutex
}

// New builds the API and registers its routes.
func New(cfg appconfig.Config, model Model, tracker *metrics.Tracker, logger zerolog.Logger) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		model:   model,
		tracker: tracker,
		logger:  logger,
		engine:  gin.New(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on the configured address, loads the model in the background and serves until ctx is
// cancelled. A model load failure stops the server and is returned. The tracker is saved on exit.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	httpServer := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	go func() {
		if err := s.model.Load(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("model load failed")
			cancel(err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		if cause := context.Cause(ctx); !errors.Is(cause, context.Canceled) {
			runErr = cause
		}
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	s.logger.Info().Msg("shutting down HTTP server")
	shutdownCtx, stop := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout())
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("graceful shutdown failed")
		runErr = errors.Join(runErr, err)
	}

	if path, err := s.tracker.Save(); err != nil {
		s.logger.Error().Err(err).Msg("save metrics")
	} else {
		s.logger.Info().Str("path", path).Msg("metrics saved")
	}
	s.logger.Info().Msg("API server shutdown")
	return runErr
}
