// internal/server/routes.go
package server

import "github.com/gin-gonic/gin"

func (s *Server) setupRoutes() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(requestLogger(s.logger, "/health"))

	s.engine.GET("/", s.handleRoot)
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", s.handleMetrics)
	s.engine.GET("/metrics/prometheus", gin.WrapH(s.tracker.Handler()))
	s.engine.POST("/chat", s.handleChat)
}
