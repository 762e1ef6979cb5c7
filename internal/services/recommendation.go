package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/adapt-engine/internal/clients/catalog"
	redisclient "github.com/yungbote/adapt-engine/internal/clients/redis"
	"github.com/yungbote/adapt-engine/internal/engine"
	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/observability"
	"github.com/yungbote/adapt-engine/internal/repos"
	"github.com/yungbote/adapt-engine/internal/types"
)

// RecommendationItem is one ranked entry in a persisted record. The
// rationale is human-facing and explains where the score came from.
type RecommendationItem struct {
	Action           int               `json:"action"`
	ActivityType     string            `json:"activity_type"`
	Context          string            `json:"context"`
	ResolvedActivity *catalog.Activity `json:"resolved_activity"`
	Score            float64           `json:"score"`
	Rationale        string            `json:"rationale"`
}

type RecommendationService interface {
	// Get returns the most recently computed record, or nil when none
	// exists yet.
	Get(ctx context.Context, userID uuid.UUID, moduleID string) (*types.RecommendationRecord, error)
	// Recompute builds a fresh top-k record from the current state,
	// persists it as the latest, and returns it. First-time users get the
	// documented default state; it never errors for lack of history.
	Recompute(ctx context.Context, tx *gorm.DB, userID uuid.UUID, moduleID string, k int) (*types.RecommendationRecord, error)
}

type recommendationService struct {
	log       *logger.Logger
	cfg       engine.Config
	agent     *engine.Agent
	actions   *engine.ActionSpace
	stateRepo repos.UserModuleStateRepo
	recRepo   repos.RecommendationRepo
	catalog   catalog.Client
	cache     redisclient.RecommendationCache
	metrics   *observability.Metrics
}

func NewRecommendationService(
	baseLog *logger.Logger,
	cfg engine.Config,
	agent *engine.Agent,
	actions *engine.ActionSpace,
	stateRepo repos.UserModuleStateRepo,
	recRepo repos.RecommendationRepo,
	catalogClient catalog.Client,
	cache redisclient.RecommendationCache,
	metrics *observability.Metrics,
) RecommendationService {
	return &recommendationService{
		log:       baseLog.With("service", "RecommendationService"),
		cfg:       cfg,
		agent:     agent,
		actions:   actions,
		stateRepo: stateRepo,
		recRepo:   recRepo,
		catalog:   catalogClient,
		cache:     cache,
		metrics:   metrics,
	}
}

func (s *recommendationService) Get(ctx context.Context, userID uuid.UUID, moduleID string) (*types.RecommendationRecord, error) {
	if s.cache != nil {
		if rec, ok := s.cache.Get(ctx, userID, moduleID); ok {
			s.metrics.IncRecommendationServed("cache")
			return rec, nil
		}
	}
	rec, err := s.recRepo.GetByUserAndModule(ctx, nil, userID, moduleID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		s.metrics.IncRecommendationServed("store")
		if s.cache != nil {
			s.cache.Set(ctx, rec)
		}
	}
	return rec, nil
}

func (s *recommendationService) Recompute(ctx context.Context, tx *gorm.DB, userID uuid.UUID, moduleID string, k int) (*types.RecommendationRecord, error) {
	state, err := s.currentState(ctx, tx, userID, moduleID)
	if err != nil {
		return nil, err
	}

	scored, err := s.agent.Recommend(state, k)
	if err != nil {
		return nil, err
	}

	items := make([]RecommendationItem, 0, len(scored))
	lowConfidence := false
	for _, sa := range scored {
		meta, err := s.actions.ByIndex(sa.Action)
		if err != nil {
			return nil, err
		}
		item := RecommendationItem{
			Action:       sa.Action,
			ActivityType: meta.ActivityType,
			Context:      string(meta.Context),
			Score:        sa.Value,
			Rationale:    rationaleFor(sa.Basis),
		}
		if sa.Basis == engine.BasisColdStart {
			lowConfidence = true
		}
		item.ResolvedActivity, item.Rationale = s.resolve(ctx, sa.Action, moduleID, item.Rationale)
		items = append(items, item)
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal recommendation items: %w", err)
	}

	now := time.Now().UTC()
	rec := &types.RecommendationRecord{
		ID:            uuid.New(),
		UserID:        userID,
		ModuleID:      moduleID,
		Items:         datatypes.JSON(raw),
		StateCohort:   state.Cohort,
		StateModule:   state.ModuleIndex,
		StateProgress: state.ProgressBin,
		StateScore:    state.ScoreBin,
		StatePhase:    string(state.Phase),
		StateEngage:   string(state.Engagement),
		LowConfidence: lowConfidence,
		ComputedAt:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.recRepo.Upsert(ctx, tx, rec); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, rec)
	}
	s.metrics.IncRecommendationServed("recompute")
	return rec, nil
}

// currentState loads the persisted state for the key, falling back to the
// documented default for first-time users.
func (s *recommendationService) currentState(ctx context.Context, tx *gorm.DB, userID uuid.UUID, moduleID string) (engine.State, error) {
	persisted, err := s.stateRepo.GetByUserAndModule(ctx, tx, userID, moduleID)
	if err != nil {
		return engine.State{}, err
	}
	if persisted == nil {
		return engine.DefaultState(s.cfg), nil
	}
	return engine.State{
		Cohort:      persisted.CohortID,
		ModuleIndex: persisted.ModuleIndex,
		ProgressBin: persisted.ProgressBin,
		ScoreBin:    persisted.ScoreBin,
		Phase:       engine.Phase(persisted.Phase),
		Engagement:  engine.EngagementLevel(persisted.Engagement),
	}, nil
}

// resolve maps an action to a concrete activity. A miss keeps the action
// in the ranking with a nil activity so ordering stays intact.
func (s *recommendationService) resolve(ctx context.Context, action int, moduleID, rationale string) (*catalog.Activity, string) {
	if s.catalog == nil {
		return nil, rationale + "; catalog unavailable"
	}
	activity, err := s.catalog.Resolve(ctx, action, moduleID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, rationale + "; no concrete activity in catalog"
		}
		s.log.Warn("catalog resolution failed", "action", action, "module_id", moduleID, "error", err)
		return nil, rationale + "; catalog lookup failed"
	}
	return activity, rationale
}

func rationaleFor(basis string) string {
	switch basis {
	case engine.BasisTable:
		return "learned value for this exact state"
	case engine.BasisSimilarity:
		return "value borrowed from the nearest learned state"
	case engine.BasisColdStart:
		return "no learned values yet; exploratory suggestion"
	default:
		return basis
	}
}
