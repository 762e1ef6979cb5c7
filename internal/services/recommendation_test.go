package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/adapt-engine/internal/clients/catalog"
	"github.com/yungbote/adapt-engine/internal/engine"
	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/types"
)

type fakeRecRepo struct {
	mu      sync.Mutex
	records map[string]*types.RecommendationRecord
}

func newFakeRecRepo() *fakeRecRepo {
	return &fakeRecRepo{records: map[string]*types.RecommendationRecord{}}
}

func (f *fakeRecRepo) GetByUserAndModule(ctx context.Context, tx *gorm.DB, userID uuid.UUID, moduleID string) (*types.RecommendationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[userID.String()+"/"+moduleID], nil
}

func (f *fakeRecRepo) Upsert(ctx context.Context, tx *gorm.DB, rec *types.RecommendationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.UserID.String()+"/"+rec.ModuleID] = rec
	return nil
}

type fakeCatalog struct {
	missing bool
}

func (f *fakeCatalog) Resolve(ctx context.Context, actionIndex int, moduleID string) (*catalog.Activity, error) {
	if f.missing {
		return nil, catalog.ErrNotFound
	}
	return &catalog.Activity{ID: "act-1", Name: "Quiz 3", Difficulty: "medium"}, nil
}

type recFixture struct {
	svc    RecommendationService
	agent  *engine.Agent
	states *fakeStateRepo
	repo   *fakeRecRepo
	cfg    engine.Config
}

func newRecFixture(t *testing.T, cat catalog.Client) *recFixture {
	t.Helper()
	cfg := engine.DefaultConfig()
	actions := engine.NewActionSpace()
	agent := engine.NewAgent(actions, cfg, 1)
	states := newFakeStateRepo()
	repo := newFakeRecRepo()
	svc := NewRecommendationService(logger.NewNop(), cfg, agent, actions, states, repo, cat, nil, nil)
	return &recFixture{svc: svc, agent: agent, states: states, repo: repo, cfg: cfg}
}

func seedState(t *testing.T, f *recFixture, userID uuid.UUID, moduleID string, s engine.State) {
	t.Helper()
	err := f.states.Upsert(context.Background(), nil, &types.UserModuleState{
		ID:          uuid.New(),
		UserID:      userID,
		ModuleID:    moduleID,
		CohortID:    s.Cohort,
		ModuleIndex: s.ModuleIndex,
		ProgressBin: s.ProgressBin,
		ScoreBin:    s.ScoreBin,
		Phase:       string(s.Phase),
		Engagement:  string(s.Engagement),
		UpdatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed state: %v", err)
	}
}

func decodeItems(t *testing.T, rec *types.RecommendationRecord) []RecommendationItem {
	t.Helper()
	var items []RecommendationItem
	if err := json.Unmarshal(rec.Items, &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	return items
}

func TestRecomputeRanksLearnedValues(t *testing.T) {
	f := newRecFixture(t, &fakeCatalog{})
	ctx := context.Background()
	userID := uuid.New()

	s := engine.State{
		Cohort: 1, ModuleIndex: 2, ProgressBin: 1, ScoreBin: 2,
		Phase: engine.PhaseActive, Engagement: engine.EngagementMedium,
	}
	seedState(t, f, userID, "m1", s)
	if err := f.agent.Update(s, 3, 10, s); err != nil {
		t.Fatalf("seed agent: %v", err)
	}

	rec, err := f.svc.Recompute(ctx, nil, userID, "m1", 2)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if rec.LowConfidence {
		t.Fatal("exact table hit flagged low confidence")
	}
	items := decodeItems(t, rec)
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Action != 3 {
		t.Fatalf("top action = %d, want 3", items[0].Action)
	}
	if items[0].Score <= items[1].Score {
		t.Fatalf("ranking not descending: %f <= %f", items[0].Score, items[1].Score)
	}
	if items[0].ResolvedActivity == nil || items[0].ResolvedActivity.ID != "act-1" {
		t.Fatalf("catalog resolution missing: %+v", items[0].ResolvedActivity)
	}

	// Recompute persists as the latest record.
	stored, err := f.svc.Get(ctx, userID, "m1")
	if err != nil || stored == nil {
		t.Fatalf("stored record not found (err=%v)", err)
	}
	if stored.ID != rec.ID {
		t.Fatalf("stored record %s != recomputed %s", stored.ID, rec.ID)
	}
}

func TestRecomputeColdStartForNewUser(t *testing.T) {
	f := newRecFixture(t, &fakeCatalog{})
	ctx := context.Background()

	rec, err := f.svc.Recompute(ctx, nil, uuid.New(), "m9", 3)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !rec.LowConfidence {
		t.Fatal("cold start not flagged low confidence")
	}
	items := decodeItems(t, rec)
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}
	seen := map[int]bool{}
	for _, item := range items {
		if seen[item.Action] {
			t.Fatalf("duplicate action %d in cold start picks", item.Action)
		}
		seen[item.Action] = true
	}
}

func TestRecomputeKeepsUnresolvedActions(t *testing.T) {
	f := newRecFixture(t, &fakeCatalog{missing: true})
	ctx := context.Background()

	rec, err := f.svc.Recompute(ctx, nil, uuid.New(), "m1", 2)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	items := decodeItems(t, rec)
	for _, item := range items {
		if item.ResolvedActivity != nil {
			t.Fatalf("expected nil activity, got %+v", item.ResolvedActivity)
		}
		if !strings.Contains(item.Rationale, "no concrete activity") {
			t.Fatalf("rationale missing catalog note: %q", item.Rationale)
		}
	}
}

func TestGetReturnsNilWithoutRecord(t *testing.T) {
	f := newRecFixture(t, &fakeCatalog{})
	rec, err := f.svc.Get(context.Background(), uuid.New(), "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}
