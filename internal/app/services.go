package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/adapt-engine/internal/clients/catalog"
	"github.com/yungbote/adapt-engine/internal/clients/cohort"
	redisclient "github.com/yungbote/adapt-engine/internal/clients/redis"
	"github.com/yungbote/adapt-engine/internal/engine"
	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/observability"
	"github.com/yungbote/adapt-engine/internal/services"
)

type Services struct {
	EngineConfig engine.Config
	Agent        *engine.Agent
	Actions      *engine.ActionSpace

	Checkpoint     services.CheckpointService
	Recommendation services.RecommendationService
	Ingestion      services.IngestionService

	Cache redisclient.RecommendationCache
}

func wireServices(log *logger.Logger, cfg Config, reposet Repos, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	engineCfg, err := engine.LoadConfig(cfg.EngineConfigPath)
	if err != nil {
		return Services{}, fmt.Errorf("load engine config: %w", err)
	}

	actions := engine.NewActionSpace()
	agent := engine.NewAgent(actions, engineCfg, int64(cfg.AgentSeed))
	codec := engine.NewCodec(engineCfg.NumCohorts)
	detector := engine.NewDetector(codec, actions, engineCfg, log)
	rewards := engine.NewRewardCalculator(engineCfg)

	cohortClient := cohort.NewHTTPClient(cfg.CohortServiceURL, engineCfg, log)
	catalogClient := catalog.NewHTTPClient(cfg.CatalogServiceURL, log)

	cache, err := redisclient.NewRecommendationCache(log)
	if err != nil {
		return Services{}, fmt.Errorf("init redis cache: %w", err)
	}

	var store services.SnapshotStore
	switch strings.ToLower(cfg.SnapshotBackend) {
	case "gcs":
		store, err = services.NewGCSSnapshotStore(log)
		if err != nil {
			return Services{}, fmt.Errorf("init gcs snapshot store: %w", err)
		}
	default:
		store = services.NewDBSnapshotStore(reposet.QTableSnapshot)
	}

	checkpoint := services.NewCheckpointService(log, agent, store, cfg.CheckpointInterval, cfg.QTableBootstrap)

	recommendation := services.NewRecommendationService(
		log, engineCfg, agent, actions,
		reposet.UserModuleState, reposet.Recommendation,
		catalogClient, cache, metrics,
	)

	ingestion := services.NewIngestionService(
		log, engineCfg,
		detector, rewards, agent, actions, cohortClient,
		reposet.RawEvent, reposet.UserModuleState, reposet.IngestReceipt,
		recommendation, metrics,
		cfg.QueueSize, cfg.Workers, cfg.DefaultTopK,
	)

	return Services{
		EngineConfig:   engineCfg,
		Agent:          agent,
		Actions:        actions,
		Checkpoint:     checkpoint,
		Recommendation: recommendation,
		Ingestion:      ingestion,
		Cache:          cache,
	}, nil
}
