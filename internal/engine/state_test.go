package engine

import "testing"

func f(v float64) *float64 { return &v }

func TestEncodeIsTotalAndDeterministic(t *testing.T) {
	codec := NewCodec(3)
	history := []string{"page_viewed", "quiz_attempt_started"}

	a := codec.Encode(1, 2, f(0.55), f(0.7), history)
	b := codec.Encode(1, 2, f(0.55), f(0.7), history)
	if a != b {
		t.Fatalf("same inputs produced different states: %v vs %v", a, b)
	}
}

func TestEncodeBoundedDomains(t *testing.T) {
	codec := NewCodec(3)
	cases := []struct {
		name     string
		cohort   int
		module   int
		progress *float64
		score    *float64
	}{
		{name: "nominal", cohort: 1, module: 4, progress: f(0.5), score: f(0.9)},
		{name: "negative_cohort", cohort: -7, module: 0, progress: f(0.2), score: f(0.2)},
		{name: "cohort_past_end", cohort: 99, module: 1, progress: f(1.0), score: f(1.0)},
		{name: "negative_module", cohort: 0, module: -3, progress: f(0.1), score: nil},
		{name: "missing_values", cohort: 2, module: 0, progress: nil, score: nil},
		{name: "over_range_values", cohort: 0, module: 0, progress: f(7.5), score: f(-2.0)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := codec.Encode(tc.cohort, tc.module, tc.progress, tc.score, nil)
			if s.Cohort < 0 || s.Cohort >= 3 {
				t.Fatalf("cohort out of domain: %d", s.Cohort)
			}
			if s.ModuleIndex < 0 {
				t.Fatalf("module index negative: %d", s.ModuleIndex)
			}
			if s.ProgressBin < 0 || s.ProgressBin >= NumProgressBins {
				t.Fatalf("progress bin out of domain: %d", s.ProgressBin)
			}
			if s.ScoreBin < 0 || s.ScoreBin >= NumScoreBins {
				t.Fatalf("score bin out of domain: %d", s.ScoreBin)
			}
		})
	}
}

func TestEncodeMissingValuesLowestBin(t *testing.T) {
	codec := NewCodec(3)
	s := codec.Encode(0, 0, nil, nil, nil)
	if s.ProgressBin != 0 || s.ScoreBin != 0 {
		t.Fatalf("missing progress/score should map to lowest bins, got p=%d s=%d", s.ProgressBin, s.ScoreBin)
	}
}

func TestBinQuartiles(t *testing.T) {
	cases := []struct {
		value float64
		want  int
	}{
		{value: 0.0, want: 0},
		{value: 0.24, want: 0},
		{value: 0.25, want: 1},
		{value: 0.5, want: 2},
		{value: 0.74, want: 2},
		{value: 0.75, want: 3},
		{value: 1.0, want: 3},
	}
	for _, tc := range cases {
		if got := bin(f(tc.value), 4); got != tc.want {
			t.Fatalf("bin(%v) = %d, want %d", tc.value, got, tc.want)
		}
	}
}

func TestDerivePhase(t *testing.T) {
	cases := []struct {
		name    string
		history []string
		want    Phase
	}{
		{name: "empty_is_pre", history: nil, want: PhasePre},
		{name: "views_only_is_pre", history: []string{"page_viewed", "chapter_read"}, want: PhasePre},
		{name: "attempts_is_active", history: []string{"page_viewed", "quiz_attempt_started"}, want: PhaseActive},
		{name: "submit_heavy_is_post", history: []string{"quiz_attempt_submitted", "unit_completed"}, want: PhasePost},
		{name: "mixed_leans_active", history: []string{"attempt_started", "attempt_started", "homework_submit"}, want: PhaseActive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := derivePhase(tc.history); got != tc.want {
				t.Fatalf("derivePhase = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDeriveEngagement(t *testing.T) {
	if got := deriveEngagement(nil); got != EngagementLow {
		t.Fatalf("empty history engagement = %s, want low", got)
	}
	if got := deriveEngagement(make([]string, 4)); got != EngagementMedium {
		t.Fatalf("4-event engagement = %s, want medium", got)
	}
	if got := deriveEngagement(make([]string, 9)); got != EngagementHigh {
		t.Fatalf("9-event engagement = %s, want high", got)
	}
}

func TestDefaultState(t *testing.T) {
	cfg := DefaultConfig()
	s := DefaultState(cfg)
	if cfg.TierFor(s.Cohort) != TierMedium {
		t.Fatalf("default cohort tier = %s, want medium", cfg.TierFor(s.Cohort))
	}
	if s.ModuleIndex != 0 || s.ProgressBin != 0 || s.ScoreBin != 0 {
		t.Fatalf("default state bins not lowest: %+v", s)
	}
	if s.Phase != PhasePre || s.Engagement != EngagementMedium {
		t.Fatalf("default phase/engagement wrong: %+v", s)
	}
}

func TestStateKeyDistinct(t *testing.T) {
	a := State{Cohort: 1, ModuleIndex: 2, ProgressBin: 3, ScoreBin: 0, Phase: PhaseActive, Engagement: EngagementHigh}
	b := a
	b.ScoreBin = 1
	if a.Key() == b.Key() {
		t.Fatalf("distinct states share key %q", a.Key())
	}
}
