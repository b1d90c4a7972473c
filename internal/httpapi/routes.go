package httpapi

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the inspection endpoints:
//
//	GET /healthz
//	GET /metrics
//	GET /v1/state
//	GET /v1/conflicts?status=active|escalated|resolved|all
//	GET /v1/blocking
//	GET /v1/movements?limit=N
func RegisterRoutes(router *gin.Engine, h *Handlers) {
	router.GET("/healthz", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(h.MetricsHandler()))

	v1 := router.Group("/v1")
	v1.GET("/state", h.HandleState)
	v1.GET("/conflicts", h.HandleConflicts)
	v1.GET("/blocking", h.HandleBlocking)
	v1.GET("/movements", h.HandleMovements)
}

// NewRouter returns a gin engine with recovery and the inspection routes.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	RegisterRoutes(router, h)
	return router
}
