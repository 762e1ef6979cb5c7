package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tier is the coarse behavioral-performance group a cohort belongs to.
// Cohort assignment itself happens in an external clustering pipeline; we
// only consume the resulting tier.
type Tier string

const (
	TierWeak   Tier = "weak"
	TierMedium Tier = "medium"
	TierStrong Tier = "strong"
)

// TierParams are the per-tier shaping constants. Alpha doubles as the
// TD learning rate and the progress-delta weight: weaker cohorts adapt
// faster from fewer observations. MasteryBonus is deliberately large
// relative to the other terms; mastery improvement is the terminal
// objective and the asymmetry is intentional, do not normalize it away.
type TierParams struct {
	Alpha          float64 `yaml:"alpha"`
	MasteryBonus   float64 `yaml:"mastery_bonus"`
	CompletionBase float64 `yaml:"completion_base"`
	ChallengeBase  float64 `yaml:"challenge_base"`
}

// Config is the engine's immutable tuning table, loaded once at startup.
type Config struct {
	Gamma             float64            `yaml:"gamma"`
	Epsilon           float64            `yaml:"epsilon"`
	EpsilonDecay      float64            `yaml:"epsilon_decay"`
	EpsilonFloor      float64            `yaml:"epsilon_floor"`
	SequenceBonus     float64            `yaml:"sequence_bonus"`
	MinGapSeconds     int                `yaml:"min_gap_seconds"`
	MaxGapSeconds     int                `yaml:"max_gap_seconds"`
	SimilarityScanCap int                `yaml:"similarity_scan_cap"`
	NumCohorts        int                `yaml:"num_cohorts"`
	CohortTiers       []Tier             `yaml:"cohort_tiers"`
	Tiers             map[Tier]TierParams `yaml:"tiers"`
}

func DefaultConfig() Config {
	return Config{
		Gamma:             0.9,
		Epsilon:           0.1,
		EpsilonDecay:      1.0,
		EpsilonFloor:      0.01,
		SequenceBonus:     0.5,
		MinGapSeconds:     60,
		MaxGapSeconds:     3600,
		SimilarityScanCap: 512,
		NumCohorts:        3,
		CohortTiers:       []Tier{TierWeak, TierMedium, TierStrong},
		Tiers: map[Tier]TierParams{
			TierWeak:   {Alpha: 0.4, MasteryBonus: 15.0, CompletionBase: 2.0, ChallengeBase: 0.5},
			TierMedium: {Alpha: 0.3, MasteryBonus: 10.0, CompletionBase: 1.5, ChallengeBase: 1.0},
			TierStrong: {Alpha: 0.2, MasteryBonus: 7.0, CompletionBase: 1.0, ChallengeBase: 2.0},
		},
	}
}

// LoadConfig overlays a yaml file onto the defaults. An empty path returns
// the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read engine config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("gamma out of range: %v", c.Gamma)
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("epsilon out of range: %v", c.Epsilon)
	}
	if c.NumCohorts < 1 {
		return fmt.Errorf("num_cohorts must be positive: %d", c.NumCohorts)
	}
	if c.MinGapSeconds <= 0 || c.MaxGapSeconds <= c.MinGapSeconds {
		return fmt.Errorf("invalid gap window: %d..%d", c.MinGapSeconds, c.MaxGapSeconds)
	}
	if c.SimilarityScanCap < 1 {
		return fmt.Errorf("similarity_scan_cap must be positive: %d", c.SimilarityScanCap)
	}
	for _, t := range []Tier{TierWeak, TierMedium, TierStrong} {
		if _, ok := c.Tiers[t]; !ok {
			return fmt.Errorf("missing tier params for %q", t)
		}
	}
	return nil
}

// TierFor maps a cohort id to its tier. Unknown cohorts land on medium,
// matching the default-cohort fallback everywhere else.
func (c Config) TierFor(cohortID int) Tier {
	if cohortID < 0 || cohortID >= len(c.CohortTiers) {
		return TierMedium
	}
	return c.CohortTiers[cohortID]
}

func (c Config) Params(t Tier) TierParams {
	p, ok := c.Tiers[t]
	if !ok {
		return c.Tiers[TierMedium]
	}
	return p
}

// DefaultCohort is the median tier cohort used for first-time users and
// when the cohort collaborator is unreachable.
func (c Config) DefaultCohort() int {
	for i, t := range c.CohortTiers {
		if t == TierMedium {
			return i
		}
	}
	return 0
}

func (c Config) MinGap() time.Duration { return time.Duration(c.MinGapSeconds) * time.Second }
func (c Config) MaxGap() time.Duration { return time.Duration(c.MaxGapSeconds) * time.Second }
