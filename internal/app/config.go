package app

import (
	"time"

	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/utils"
)

type Config struct {
	Environment        string
	Version            string
	ServiceTokenSecret string

	EngineConfigPath string
	AgentSeed        int

	QueueSize   int
	Workers     int
	DefaultTopK int

	SnapshotBackend    string
	CheckpointInterval time.Duration
	QTableBootstrap    bool

	CohortServiceURL  string
	CatalogServiceURL string
}

func LoadConfig(log *logger.Logger) Config {
	environment := utils.GetEnv("ENVIRONMENT", "development", log)
	version := utils.GetEnv("SERVICE_VERSION", "dev", log)
	serviceTokenSecret := utils.GetEnv("SERVICE_TOKEN_SECRET", "", log)
	engineConfigPath := utils.GetEnv("ENGINE_CONFIG_PATH", "", log)
	agentSeed := utils.GetEnvAsInt("AGENT_SEED", 0, log)
	queueSize := utils.GetEnvAsInt("INGEST_QUEUE_SIZE", 256, log)
	workers := utils.GetEnvAsInt("INGEST_WORKERS", 4, log)
	defaultTopK := utils.GetEnvAsInt("RECOMMEND_TOP_K", 3, log)
	snapshotBackend := utils.GetEnv("SNAPSHOT_BACKEND", "db", log)
	checkpointSeconds := utils.GetEnvAsInt("CHECKPOINT_INTERVAL_SECONDS", 300, log)
	qtableBootstrap := utils.GetEnvAsBool("QTABLE_BOOTSTRAP", false, log)
	cohortServiceURL := utils.GetEnv("COHORT_SERVICE_URL", "", log)
	catalogServiceURL := utils.GetEnv("CATALOG_SERVICE_URL", "", log)

	return Config{
		Environment:        environment,
		Version:            version,
		ServiceTokenSecret: serviceTokenSecret,
		EngineConfigPath:   engineConfigPath,
		AgentSeed:          agentSeed,
		QueueSize:          queueSize,
		Workers:            workers,
		DefaultTopK:        defaultTopK,
		SnapshotBackend:    snapshotBackend,
		CheckpointInterval: time.Duration(checkpointSeconds) * time.Second,
		QTableBootstrap:    qtableBootstrap,
		CohortServiceURL:   cohortServiceURL,
		CatalogServiceURL:  catalogServiceURL,
	}
}
