package app

import (
	"github.com/yungbote/adapt-engine/internal/db"
	"github.com/yungbote/adapt-engine/internal/handlers"
	"github.com/yungbote/adapt-engine/internal/logger"
)

type Handlers struct {
	Ingest         *handlers.IngestHandler
	Recommendation *handlers.RecommendationHandler
	EventHistory   *handlers.EventHistoryHandler
	Readiness      *handlers.ReadinessHandler
}

func wireHandlers(log *logger.Logger, dbSvc *db.Service, reposet Repos, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Ingest:         handlers.NewIngestHandler(log, services.Ingestion),
		Recommendation: handlers.NewRecommendationHandler(log, services.Recommendation),
		EventHistory:   handlers.NewEventHistoryHandler(log, reposet.RawEvent),
		Readiness:      handlers.NewReadinessHandler(dbSvc, services.Checkpoint, services.Ingestion),
	}
}
