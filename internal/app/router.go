package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/adapt-engine/internal/observability"
	"github.com/yungbote/adapt-engine/internal/server"
)

func wireRouter(handlers Handlers, middleware Middleware, metrics *observability.Metrics) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		AuthMiddleware:        middleware.Auth,
		IngestHandler:         handlers.Ingest,
		RecommendationHandler: handlers.Recommendation,
		EventHistoryHandler:   handlers.EventHistory,
		ReadinessHandler:      handlers.Readiness,
		Metrics:               metrics,
	})
}
