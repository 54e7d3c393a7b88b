package http_api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	api := s.router.Group("/api/v1")
	{
		api.GET("/projects/:project_id/locks", s.getLocks)
		api.POST("/projects/:project_id/locks", s.lockField)
		api.POST("/projects/:project_id/locks/heartbeat", s.heartbeat)
		api.POST("/projects/:project_id/locks/release", s.unlockFields)
	}

	// Internal surface for trusted collaborators, not exposed to editing clients.
	internal := s.router.Group("/internal/v1")
	{
		internal.POST("/projects/:project_id/locks/clear", s.clearProjectLocks)
	}

	s.router.GET("/healthz", s.healthz)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
