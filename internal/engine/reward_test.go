package engine

import (
	"math"
	"testing"
	"time"
)

func testAction(t *testing.T, s *ActionSpace, activity string, ctx TemporalContext) ActionMeta {
	t.Helper()
	for i := 0; i < s.Count(); i++ {
		meta, _ := s.ByIndex(i)
		if meta.ActivityType == activity && meta.Context == ctx {
			return meta
		}
	}
	t.Fatalf("no action for %s/%s", activity, ctx)
	return ActionMeta{}
}

func TestRewardIsDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	calc := NewRewardCalculator(cfg)
	space := NewActionSpace()
	action := testAction(t, space, ActivityAttemptQuiz, ContextUpcoming)

	prev := State{Cohort: 1, ModuleIndex: 0, ProgressBin: 1, ScoreBin: 1, Phase: PhaseActive, Engagement: EngagementMedium}
	next := prev
	next.ScoreBin = 2
	out := Outcome{Completed: true, Score: 0.8, Success: true, Elapsed: 2 * time.Minute, MasteryDelta: 0.1}

	first := calc.Reward(next, action, out, prev)
	for i := 0; i < 10; i++ {
		if got := calc.Reward(next, action, out, prev); got != first {
			t.Fatalf("reward not deterministic: %v vs %v", got, first)
		}
	}
}

func TestRewardTierComposition(t *testing.T) {
	cfg := DefaultConfig()
	calc := NewRewardCalculator(cfg)
	space := NewActionSpace()
	attempt := testAction(t, space, ActivityAttemptQuiz, ContextUpcoming)

	out := Outcome{Completed: true, Score: 0.9, Success: true, MasteryDelta: 0.2}

	cases := []struct {
		name   string
		cohort int
		tier   Tier
	}{
		{name: "weak", cohort: 0, tier: TierWeak},
		{name: "medium", cohort: 1, tier: TierMedium},
		{name: "strong", cohort: 2, tier: TierStrong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prev := State{Cohort: tc.cohort, ScoreBin: 1, Phase: PhaseActive, Engagement: EngagementMedium}
			params := cfg.Params(tc.tier)
			want := params.CompletionBase + params.ChallengeBase +
				(out.Score-normalizedBin(prev.ScoreBin, NumScoreBins))*params.Alpha +
				out.MasteryDelta*params.MasteryBonus

			got := calc.Reward(prev, attempt, out, prev)
			if math.Abs(got-want) > 1e-12 {
				t.Fatalf("reward = %v, want %v", got, want)
			}
		})
	}
}

// The mastery multipliers are intentionally large relative to the base and
// delta terms; this locks the asymmetry in so nobody "fixes" it.
func TestRewardMasteryBonusDominates(t *testing.T) {
	cfg := DefaultConfig()
	calc := NewRewardCalculator(cfg)
	space := NewActionSpace()
	view := testAction(t, space, ActivityViewContent, ContextUpcoming)

	prev := State{Cohort: 0, ScoreBin: 2, Phase: PhaseActive, Engagement: EngagementMedium}
	flat := calc.Reward(prev, view, Outcome{Score: 0.5}, prev)
	mastered := calc.Reward(prev, view, Outcome{Score: 0.5, MasteryDelta: 0.5}, prev)

	if mastered-flat < 5.0 {
		t.Fatalf("mastery bonus too small: %v", mastered-flat)
	}
}

func TestRewardSequenceBonus(t *testing.T) {
	cfg := DefaultConfig()
	calc := NewRewardCalculator(cfg)
	space := NewActionSpace()
	review := testAction(t, space, ActivityReviewQuiz, ContextPast)
	attempt := testAction(t, space, ActivityAttemptQuiz, ContextUpcoming)
	view := testAction(t, space, ActivityViewContent, ContextUpcoming)

	failed := State{Cohort: 1, ScoreBin: 0, Phase: PhaseActive, Engagement: EngagementMedium}
	fresh := State{Cohort: 1, ScoreBin: 2, Phase: PhasePre, Engagement: EngagementMedium}
	out := Outcome{Score: 0.0}

	reviewAfterFail := calc.Reward(failed, review, out, failed)
	viewAfterFail := calc.Reward(failed, view, out, failed)
	if reviewAfterFail-viewAfterFail != cfg.SequenceBonus {
		t.Fatalf("review-after-failure bonus = %v, want %v", reviewAfterFail-viewAfterFail, cfg.SequenceBonus)
	}

	firstAttempt := calc.Reward(fresh, attempt, out, fresh)
	viewAgain := calc.Reward(fresh, view, out, fresh)
	if firstAttempt-viewAgain != cfg.SequenceBonus/2 {
		t.Fatalf("first-attempt bonus = %v, want %v", firstAttempt-viewAgain, cfg.SequenceBonus/2)
	}
}

func TestRewardUnclamped(t *testing.T) {
	cfg := DefaultConfig()
	calc := NewRewardCalculator(cfg)
	space := NewActionSpace()
	view := testAction(t, space, ActivityViewContent, ContextUpcoming)

	prev := State{Cohort: 0, ScoreBin: 0, Phase: PhaseActive, Engagement: EngagementMedium}
	big := calc.Reward(prev, view, Outcome{Score: 1.0, Completed: true, MasteryDelta: 1.0}, prev)
	if big <= 10 {
		t.Fatalf("expected unclamped reward above 10, got %v", big)
	}
}
