package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/adapt-engine/internal/handlers"
	"github.com/yungbote/adapt-engine/internal/middleware"
	"github.com/yungbote/adapt-engine/internal/observability"
)

type RouterConfig struct {
	AuthMiddleware        *middleware.AuthMiddleware
	IngestHandler         *handlers.IngestHandler
	RecommendationHandler *handlers.RecommendationHandler
	EventHistoryHandler   *handlers.EventHistoryHandler
	ReadinessHandler      *handlers.ReadinessHandler
	Metrics               *observability.Metrics
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))
	router.Use(otelgin.Middleware("adapt-engine"))
	if cfg.Metrics != nil {
		router.Use(metricsMiddleware(cfg.Metrics))
	}

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.GET("/readyz", cfg.ReadinessHandler.Ready)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapF(cfg.Metrics.Handler()))
	}

	// ===============
	// || Protected ||
	// ===============
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireServiceToken())
	// Ingestion
	api.POST("/events/batch", cfg.IngestHandler.IngestBatch)
	api.GET("/pipeline/stats", cfg.IngestHandler.Stats)
	api.GET("/events/:user_id/:module_id", cfg.EventHistoryHandler.History)
	api.GET("/batches/:batch_id", cfg.EventHistoryHandler.BatchStatus)
	// Recommendations
	api.GET("/recommendations/:user_id/:module_id", cfg.RecommendationHandler.Get)

	return router
}

func metricsMiddleware(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveAPIRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
