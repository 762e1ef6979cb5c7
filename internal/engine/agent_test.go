package engine

import (
	"math"
	"testing"
)

func newTestAgent(t *testing.T) (*Agent, Config) {
	t.Helper()
	cfg := DefaultConfig()
	return NewAgent(NewActionSpace(), cfg, 42), cfg
}

func TestUpdateAppliesTDRule(t *testing.T) {
	agent, cfg := newTestAgent(t)

	s := State{Cohort: 1, ModuleIndex: 0, ProgressBin: 0, ScoreBin: 0, Phase: PhasePre, Engagement: EngagementLow}
	next := s
	next.ProgressBin = 1

	// Seed the next state so the bootstrap term is non-zero.
	if err := agent.Update(next, 2, 4.0, State{Cohort: 2}); err != nil {
		t.Fatal(err)
	}
	nextSeed := agent.values(t, next)

	if err := agent.Update(s, 3, 1.5, next); err != nil {
		t.Fatal(err)
	}

	alpha := cfg.Params(TierMedium).Alpha
	want := alpha * (1.5 + cfg.Gamma*maxValue(nextSeed) - 0)
	got := agent.values(t, s)[3]
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("Q(s,3) = %v, want %v", got, want)
	}
}

func TestUpdateAbsentNextStateIsZero(t *testing.T) {
	agent, cfg := newTestAgent(t)
	s := State{Cohort: 0}
	if err := agent.Update(s, 0, 2.0, State{Cohort: 1, ModuleIndex: 9}); err != nil {
		t.Fatal(err)
	}
	alpha := cfg.Params(TierWeak).Alpha
	if got := agent.values(t, s)[0]; math.Abs(got-alpha*2.0) > 1e-12 {
		t.Fatalf("Q(s,0) = %v, want %v", got, alpha*2.0)
	}
}

// Two independent agents fed the identical update sequence must end with
// identical cells.
func TestUpdateIsPureForFixedSnapshot(t *testing.T) {
	a, _ := newTestAgent(t)
	b, _ := newTestAgent(t)

	s := State{Cohort: 2, ModuleIndex: 1, ProgressBin: 2, ScoreBin: 1, Phase: PhaseActive, Engagement: EngagementHigh}
	next := s
	next.ScoreBin = 2

	steps := []struct {
		action int
		reward float64
	}{{0, 1.0}, {3, -2.5}, {0, 7.25}, {5, 0.0}}

	for _, step := range steps {
		if err := a.Update(s, step.action, step.reward, next); err != nil {
			t.Fatal(err)
		}
		if err := b.Update(s, step.action, step.reward, next); err != nil {
			t.Fatal(err)
		}
	}

	av, bv := a.values(t, s), b.values(t, s)
	for i := range av {
		if av[i] != bv[i] {
			t.Fatalf("cell %d diverged: %v vs %v", i, av[i], bv[i])
		}
	}
}

func TestUpdateRejectsBadAction(t *testing.T) {
	agent, _ := newTestAgent(t)
	if err := agent.Update(State{}, -1, 1.0, State{}); err == nil {
		t.Fatal("expected error for negative action")
	}
	if err := agent.Update(State{}, 99, 1.0, State{}); err == nil {
		t.Fatal("expected error for out-of-range action")
	}
}

func TestSelectActionGreedyTieBreak(t *testing.T) {
	agent, _ := newTestAgent(t)
	s := State{Cohort: 1}

	// All values equal: the lowest index must win with epsilon 0.
	if err := agent.Update(s, 0, 0, State{Cohort: 2}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if got := agent.SelectAction(s, 0); got != 0 {
			t.Fatalf("tie-break selected %d, want 0", got)
		}
	}

	if err := agent.Update(s, 4, 10.0, State{Cohort: 2}); err != nil {
		t.Fatal(err)
	}
	if got := agent.SelectAction(s, 0); got != 4 {
		t.Fatalf("greedy selected %d, want 4", got)
	}
}

func TestRecommendInvalidK(t *testing.T) {
	agent, _ := newTestAgent(t)
	if _, err := agent.Recommend(State{}, 0); err == nil {
		t.Fatal("expected error for k=0")
	}
	if _, err := agent.Recommend(State{}, -3); err == nil {
		t.Fatal("expected error for negative k")
	}
}

func TestRecommendTableHitRanksByValue(t *testing.T) {
	agent, _ := newTestAgent(t)
	s := State{Cohort: 1, ModuleIndex: 2}
	other := State{Cohort: 0, ModuleIndex: 5}

	_ = agent.Update(s, 2, 10.0, other)
	_ = agent.Update(s, 5, 30.0, other)
	_ = agent.Update(s, 1, 20.0, other)

	got, err := agent.Recommend(s, 3)
	if err != nil {
		t.Fatal(err)
	}
	wantOrder := []int{5, 1, 2}
	for i, sa := range got {
		if sa.Action != wantOrder[i] {
			t.Fatalf("rank %d = action %d, want %d", i, sa.Action, wantOrder[i])
		}
		if sa.Basis != BasisTable {
			t.Fatalf("basis = %s, want %s", sa.Basis, BasisTable)
		}
	}
}

func TestRecommendSimilarityFallback(t *testing.T) {
	agent, _ := newTestAgent(t)

	sameCohortModule := State{Cohort: 1, ModuleIndex: 3, ProgressBin: 2, ScoreBin: 2, Phase: PhaseActive, Engagement: EngagementMedium}
	sameCohortOther := State{Cohort: 1, ModuleIndex: 7, ProgressBin: 0, ScoreBin: 0, Phase: PhasePre, Engagement: EngagementLow}
	otherCohort := State{Cohort: 2, ModuleIndex: 3, ProgressBin: 0, ScoreBin: 0, Phase: PhasePre, Engagement: EngagementLow}

	sink := State{Cohort: 0, ModuleIndex: 99}
	_ = agent.Update(sameCohortModule, 6, 5.0, sink)
	_ = agent.Update(sameCohortOther, 1, 50.0, sink)
	_ = agent.Update(otherCohort, 2, 50.0, sink)

	// Unseen state in cohort 1, module 3: nearest must be the
	// same-cohort-same-module entry even though others have bigger values.
	query := State{Cohort: 1, ModuleIndex: 3, ProgressBin: 1, ScoreBin: 1, Phase: PhaseActive, Engagement: EngagementMedium}
	got, err := agent.Recommend(query, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Basis != BasisSimilarity {
		t.Fatalf("basis = %s, want %s", got[0].Basis, BasisSimilarity)
	}
	if got[0].Action != 6 {
		t.Fatalf("fallback picked action %d, want 6 from the same-cohort-module neighbour", got[0].Action)
	}
}

func TestRecommendNeverErrorsOnNonEmptyTable(t *testing.T) {
	agent, _ := newTestAgent(t)
	_ = agent.Update(State{Cohort: 0}, 0, 1.0, State{Cohort: 1})

	for cohort := 0; cohort < 3; cohort++ {
		for module := 0; module < 5; module++ {
			q := State{Cohort: cohort, ModuleIndex: module, Phase: PhaseActive, Engagement: EngagementHigh}
			got, err := agent.Recommend(q, 2)
			if err != nil {
				t.Fatalf("Recommend(%v): %v", q, err)
			}
			if len(got) != 2 {
				t.Fatalf("len = %d, want 2", len(got))
			}
			if got[0].Basis == BasisColdStart {
				t.Fatal("cold start basis on a non-empty table")
			}
		}
	}
}

func TestRecommendColdStart(t *testing.T) {
	agent, _ := newTestAgent(t)
	got, err := agent.Recommend(State{Cohort: 1}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	seen := map[int]bool{}
	for _, sa := range got {
		if sa.Basis != BasisColdStart {
			t.Fatalf("basis = %s, want %s", sa.Basis, BasisColdStart)
		}
		if sa.Value != 0.0 {
			t.Fatalf("cold start value = %v, want 0", sa.Value)
		}
		if seen[sa.Action] {
			t.Fatalf("duplicate action %d in cold start", sa.Action)
		}
		seen[sa.Action] = true
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	agent, cfg := newTestAgent(t)
	s1 := State{Cohort: 0, ModuleIndex: 1, ProgressBin: 1, ScoreBin: 0, Phase: PhaseActive, Engagement: EngagementLow}
	s2 := State{Cohort: 2, ModuleIndex: 0, ProgressBin: 3, ScoreBin: 3, Phase: PhasePost, Engagement: EngagementHigh}
	_ = agent.Update(s1, 1, 3.5, s2)
	_ = agent.Update(s2, 4, -1.0, s1)
	_ = agent.Update(s1, 1, 0.25, s2)

	raw, err := agent.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	restored := NewAgent(NewActionSpace(), cfg, 7)
	if err := restored.RestoreSnapshot(raw); err != nil {
		t.Fatal(err)
	}
	if restored.Len() != agent.Len() {
		t.Fatalf("restored %d entries, want %d", restored.Len(), agent.Len())
	}
	for _, s := range []State{s1, s2} {
		av, bv := agent.values(t, s), restored.values(t, s)
		for i := range av {
			if av[i] != bv[i] {
				t.Fatalf("state %s cell %d: %v vs %v", s.Key(), i, av[i], bv[i])
			}
		}
	}

	// Snapshots are deterministic for the same table.
	again, err := agent.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != string(again) {
		t.Fatal("two snapshots of the same table differ")
	}
}

func TestRestoreSnapshotRejectsGarbage(t *testing.T) {
	agent, _ := newTestAgent(t)
	cases := []struct {
		name string
		raw  []byte
	}{
		{name: "not_json", raw: []byte("definitely not json")},
		{name: "wrong_format", raw: []byte(`{"format":99,"actions":8,"entries":[]}`)},
		{name: "wrong_action_count", raw: []byte(`{"format":1,"actions":3,"entries":[]}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := agent.RestoreSnapshot(tc.raw); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// values returns a copy of the learned row for a state, failing the test
// if the state has no entry.
func (a *Agent) values(t *testing.T, s State) []float64 {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	row, ok := a.table[s]
	if !ok {
		t.Fatalf("no table entry for %s", s.Key())
	}
	cp := make([]float64, len(row))
	copy(cp, row)
	return cp
}
