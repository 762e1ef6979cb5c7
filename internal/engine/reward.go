package engine

import "time"

// Outcome is the observed result of taking an action from a state. It only
// exists for the duration of a reward computation. MasteryDelta is the
// externally supplied learning-outcome mastery improvement signal.
type Outcome struct {
	Completed    bool
	Score        float64
	Elapsed      time.Duration
	Success      bool
	MasteryDelta float64
}

// RewardCalculator scores (state, action, outcome) triples with
// cohort-adaptive shaping. Deterministic and unclamped: callers must not
// assume any fixed range, and the mastery bonus dwarfs the other terms on
// purpose.
type RewardCalculator struct {
	cfg Config
}

func NewRewardCalculator(cfg Config) *RewardCalculator {
	return &RewardCalculator{cfg: cfg}
}

// Reward composes, in order: the cohort base term, the score-delta term,
// the mastery-improvement bonus, and the sequence bonus.
func (r *RewardCalculator) Reward(state State, action ActionMeta, out Outcome, prev State) float64 {
	tier := r.cfg.TierFor(prev.Cohort)
	params := r.cfg.Params(tier)

	total := r.base(params, tier, action, out)
	total += (out.Score - normalizedBin(prev.ScoreBin, NumScoreBins)) * params.Alpha
	if out.MasteryDelta > 0 {
		total += out.MasteryDelta * params.MasteryBonus
	}
	total += r.sequenceBonus(action, prev)
	return total
}

// base reflects what each tier responds to: weak cohorts get completion
// reinforcement, strong cohorts get challenge bonuses for succeeding at
// quiz work, medium cohorts sit in between.
func (r *RewardCalculator) base(params TierParams, tier Tier, action ActionMeta, out Outcome) float64 {
	var total float64
	if out.Completed {
		total += params.CompletionBase
	}
	if out.Success && isChallenge(action.ActivityType) {
		total += params.ChallengeBase
	}
	return total
}

func isChallenge(activity string) bool {
	return activity == ActivityAttemptQuiz || activity == ActivitySubmitQuiz
}

// sequenceBonus rewards pedagogically sound continuations: reviewing after
// a weak score, and moving from pure viewing into a first attempt.
func (r *RewardCalculator) sequenceBonus(action ActionMeta, prev State) float64 {
	switch {
	case action.ActivityType == ActivityReviewQuiz && prev.ScoreBin == 0:
		return r.cfg.SequenceBonus
	case action.ActivityType == ActivityAttemptQuiz && prev.Phase == PhasePre:
		return r.cfg.SequenceBonus / 2
	}
	return 0
}

// normalizedBin maps a bin index back onto [0,1] so it is comparable with
// a raw score.
func normalizedBin(b, bins int) float64 {
	if bins <= 1 {
		return 0
	}
	if b < 0 {
		b = 0
	}
	if b >= bins {
		b = bins - 1
	}
	return float64(b) / float64(bins-1)
}
