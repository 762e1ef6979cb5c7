package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/adapt-engine/internal/db"
	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/observability"
	"github.com/yungbote/adapt-engine/internal/services"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services
	Metrics  *observability.Metrics

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	dbSvc, err := db.New(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbSvc.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("database automigrate: %w", err)
	}
	theDB := dbSvc.DB()

	metrics := observability.NewMetrics()
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "adapt-engine",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(log, cfg, reposet, metrics)
	if err != nil {
		log.Sync()
		return nil, err
	}

	if err := serviceset.Checkpoint.LoadAtStartup(context.Background()); err != nil {
		if errors.Is(err, services.ErrNoSnapshot) {
			log.Sync()
			return nil, fmt.Errorf("no qtable snapshot; set QTABLE_BOOTSTRAP=true to start empty: %w", err)
		}
		log.Sync()
		return nil, fmt.Errorf("qtable startup load: %w", err)
	}

	handlerset := wireHandlers(log, dbSvc, reposet, serviceset)
	middleware := wireMiddleware(log, cfg)
	router := wireRouter(handlerset, middleware, metrics)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Metrics:      metrics,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background workers: the ingestion pool and the
// periodic q-table checkpoint loop.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Services.Ingestion.Start(ctx)
	go a.Services.Checkpoint.Run(ctx)
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.Cache != nil {
		_ = a.Services.Cache.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
