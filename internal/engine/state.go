package engine

import (
	"fmt"
	"strings"
)

type Phase string

const (
	PhasePre    Phase = "pre"
	PhaseActive Phase = "active"
	PhasePost   Phase = "post"
)

type EngagementLevel string

const (
	EngagementLow    EngagementLevel = "low"
	EngagementMedium EngagementLevel = "medium"
	EngagementHigh   EngagementLevel = "high"
)

const (
	NumProgressBins = 4
	NumScoreBins    = 4
)

// State is the discrete 6-tuple summarizing a learner's situation in a
// module. Every component is drawn from a bounded enumerated domain, so
// states are value-comparable and usable as map keys. Never mutated after
// construction.
type State struct {
	Cohort      int
	ModuleIndex int
	ProgressBin int
	ScoreBin    int
	Phase       Phase
	Engagement  EngagementLevel
}

func (s State) Key() string {
	return fmt.Sprintf("c%d|m%d|p%d|s%d|%s|%s", s.Cohort, s.ModuleIndex, s.ProgressBin, s.ScoreBin, s.Phase, s.Engagement)
}

// DefaultState is the documented state for first-time users: median-tier
// cohort, module 0, lowest bins, pre phase, medium engagement.
func DefaultState(cfg Config) State {
	return State{
		Cohort:      cfg.DefaultCohort(),
		ModuleIndex: 0,
		ProgressBin: 0,
		ScoreBin:    0,
		Phase:       PhasePre,
		Engagement:  EngagementMedium,
	}
}

// Codec turns raw telemetry into States. Total and deterministic: every
// valid input yields exactly one State, never an error. Missing progress
// or score defaults to the lowest bin rather than a sentinel.
type Codec struct {
	numCohorts int
}

func NewCodec(numCohorts int) *Codec {
	if numCohorts < 1 {
		numCohorts = 1
	}
	return &Codec{numCohorts: numCohorts}
}

func (c *Codec) Encode(cohortID, moduleIndex int, progress, score *float64, recentActions []string) State {
	if cohortID < 0 {
		cohortID = 0
	}
	if cohortID >= c.numCohorts {
		cohortID = c.numCohorts - 1
	}
	if moduleIndex < 0 {
		moduleIndex = 0
	}
	return State{
		Cohort:      cohortID,
		ModuleIndex: moduleIndex,
		ProgressBin: bin(progress, NumProgressBins),
		ScoreBin:    bin(score, NumScoreBins),
		Phase:       derivePhase(recentActions),
		Engagement:  deriveEngagement(recentActions),
	}
}

func bin(v *float64, bins int) int {
	if v == nil {
		return 0
	}
	x := *v
	if x != x || x <= 0 { // NaN or non-positive
		return 0
	}
	if x >= 1 {
		return bins - 1
	}
	return int(x * float64(bins))
}

// derivePhase classifies where the learner is in the module's lifecycle
// from the trailing action-label window: no attempt-like activity yet is
// pre, submit-heavy activity is post, everything in between is active.
func derivePhase(recentActions []string) Phase {
	var views, attempts, submits int
	for _, raw := range recentActions {
		label := strings.ToLower(raw)
		switch {
		case strings.Contains(label, "submit") || strings.Contains(label, "complete"):
			submits++
		case strings.Contains(label, "attempt") || strings.Contains(label, "start"):
			attempts++
		case strings.Contains(label, "view") || strings.Contains(label, "read"):
			views++
		}
	}
	if attempts == 0 && submits == 0 {
		return PhasePre
	}
	if submits > 0 && submits >= attempts {
		return PhasePost
	}
	return PhaseActive
}

func deriveEngagement(recentActions []string) EngagementLevel {
	switch n := len(recentActions); {
	case n >= 8:
		return EngagementHigh
	case n >= 3:
		return EngagementMedium
	default:
		return EngagementLow
	}
}
