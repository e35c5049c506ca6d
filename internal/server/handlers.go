// internal/server/handlers.go
package server

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mwiater/supportbot/internal/inference"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	// Question must be present; an empty string is a valid question.
	Question *string `json:"question" binding:"required"`
}

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	Question  string  `json:"question"`
	Response  string  `json:"response"`
	LatencyMs float64 `json:"latency_ms"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string  `json:"status"`
	ModelLoaded   bool    `json:"model_loaded"`
	TotalRequests int64   `json:"total_requests"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	ErrorRate     float64 `json:"error_rate"`
}

type errorResponse struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "model": s.cfg.ModelName})
}

func (s *Server) handleHealth(c *gin.Context) {
	summary := s.tracker.Summary()
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "healthy",
		ModelLoaded:   s.model.Loaded(),
		TotalRequests: summary.Model.TotalInferences,
		AvgLatencyMs:  round(summary.Model.AvgLatencyMs, 2),
		ErrorRate:     round(summary.Stats.ErrorRate, 4),
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.Summary())
}

func (s *Server) handleChat(c *gin.Context) {
	if !s.model.Loaded() {
		s.fail(c, http.StatusServiceUnavailable, "Model not loaded")
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err.Error())
		return
	}

	s.chatMu.Lock()
	defer s.chatMu.Unlock()

	start := time.Now()
	response, err := s.model.Chat(c.Request.Context(), *req.Question)
	if err != nil {
		_ = c.Error(err)
		switch {
		case errors.Is(err, inference.ErrModelNotReady):
			s.fail(c, http.StatusServiceUnavailable, "Model not loaded")
		default:
			s.fail(c, http.StatusBadGateway, err.Error())
		}
		return
	}
	latency := float64(time.Since(start).Nanoseconds()) / 1e6

	c.JSON(http.StatusOK, ChatResponse{
		Question:  *req.Question,
		Response:  response,
		LatencyMs: round(latency, 2),
	})
}

func (s *Server) fail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, errorResponse{Detail: detail, RequestID: GetRequestID(c)})
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
