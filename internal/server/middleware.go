// internal/server/middleware.go
package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// RequestIDKey is the gin context key holding the request id.
	RequestIDKey = "request_id"
	// RequestIDHeader carries the request id on requests and responses.
	RequestIDHeader = "X-Request-ID"
)

// requestLogger assigns every request an id (reusing a client-supplied X-Request-ID) and logs its
// completion. Requests under skipPaths are not logged.
func requestLogger(logger zerolog.Logger, skipPaths ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		if shouldSkipPath(c.Request.URL.Path, skipPaths) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		event := logger.Info()
		if c.Writer.Status() >= 500 {
			event = logger.Error()
		}
		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Float64("duration_ms", float64(time.Since(start).Nanoseconds())/1e6).
			Int("response_size", c.Writer.Size()).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request completed")

		for _, err := range c.Errors {
			logger.Error().Str("request_id", requestID).Err(err.Err).Msg("HTTP request error")
		}
	}
}

func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skip := range skipPaths {
		if path == skip {
			return true
		}
	}
	return false
}

// GetRequestID returns the request id assigned by the middleware.
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
