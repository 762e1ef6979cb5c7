package engine

import (
	"fmt"
	"strings"
	"time"
)

type TemporalContext string

const (
	ContextPast     TemporalContext = "past"
	ContextUpcoming TemporalContext = "upcoming"
)

const (
	ActivityViewContent = "view_content"
	ActivityAttemptQuiz = "attempt_quiz"
	ActivitySubmitQuiz  = "submit_quiz"
	ActivityReviewQuiz  = "review_quiz"
)

// ActionMeta describes one recommendable action. The action space is fixed
// at process start; indices are stable for the life of the process and of
// every persisted Q-table snapshot.
type ActionMeta struct {
	Index            int             `json:"index"`
	ActivityType     string          `json:"activity_type"`
	Context          TemporalContext `json:"context"`
	ExpectedDuration time.Duration   `json:"expected_duration"`
}

type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchExact
	MatchHeuristic
)

// LabelMatch is the result of mapping a raw event label onto the action
// space. Rule names the table entry or heuristic that fired, which keeps
// the mapping auditable from logs.
type LabelMatch struct {
	Kind  MatchKind
	Index int
	Rule  string
}

func (m LabelMatch) Found() bool { return m.Kind != MatchNone }

// heuristicRule is one priority-ordered substring rule. Rules are tried in
// declaration order after the exact-match table misses.
type heuristicRule struct {
	name       string
	substrings []string
	activity   string
}

type ActionSpace struct {
	actions    []ActionMeta
	exact      map[string]string
	heuristics []heuristicRule
	byActivity map[string]map[TemporalContext]int
}

func NewActionSpace() *ActionSpace {
	durations := map[string]time.Duration{
		ActivityViewContent: 10 * time.Minute,
		ActivityAttemptQuiz: 20 * time.Minute,
		ActivitySubmitQuiz:  5 * time.Minute,
		ActivityReviewQuiz:  15 * time.Minute,
	}
	activities := []string{ActivityViewContent, ActivityAttemptQuiz, ActivitySubmitQuiz, ActivityReviewQuiz}
	contexts := []TemporalContext{ContextUpcoming, ContextPast}

	s := &ActionSpace{
		exact: map[string]string{
			"course_module_viewed":    ActivityViewContent,
			"page_viewed":             ActivityViewContent,
			"resource_viewed":         ActivityViewContent,
			"quiz_attempt_started":    ActivityAttemptQuiz,
			"attempt_started":         ActivityAttemptQuiz,
			"quiz_attempt_submitted":  ActivitySubmitQuiz,
			"attempt_submitted":       ActivitySubmitQuiz,
			"quiz_attempt_reviewed":   ActivityReviewQuiz,
			"attempt_reviewed":        ActivityReviewQuiz,
			"assignment_submitted":    ActivitySubmitQuiz,
		},
		heuristics: []heuristicRule{
			{name: "view_like", substrings: []string{"view", "read"}, activity: ActivityViewContent},
			{name: "attempt_like", substrings: []string{"attempt", "start"}, activity: ActivityAttemptQuiz},
			{name: "submit_like", substrings: []string{"submit", "complete"}, activity: ActivitySubmitQuiz},
			{name: "review_like", substrings: []string{"review"}, activity: ActivityReviewQuiz},
		},
		byActivity: map[string]map[TemporalContext]int{},
	}

	idx := 0
	for _, act := range activities {
		s.byActivity[act] = map[TemporalContext]int{}
		for _, ctx := range contexts {
			s.actions = append(s.actions, ActionMeta{
				Index:            idx,
				ActivityType:     act,
				Context:          ctx,
				ExpectedDuration: durations[act],
			})
			s.byActivity[act][ctx] = idx
			idx++
		}
	}
	return s
}

func (s *ActionSpace) Count() int { return len(s.actions) }

func (s *ActionSpace) ByIndex(i int) (ActionMeta, error) {
	if i < 0 || i >= len(s.actions) {
		return ActionMeta{}, fmt.Errorf("action index %d out of range [0,%d)", i, len(s.actions))
	}
	return s.actions[i], nil
}

// MapLabel resolves a raw action label and temporal context to an action
// index. The exact table is consulted first, then the substring heuristics
// in priority order. A miss means the caller must skip the transition, not
// guess.
func (s *ActionSpace) MapLabel(rawLabel string, ctx TemporalContext) LabelMatch {
	label := strings.ToLower(strings.TrimSpace(rawLabel))
	if label == "" {
		return LabelMatch{Kind: MatchNone}
	}
	if ctx != ContextPast {
		ctx = ContextUpcoming
	}
	if act, ok := s.exact[label]; ok {
		return LabelMatch{Kind: MatchExact, Index: s.byActivity[act][ctx], Rule: label}
	}
	for _, rule := range s.heuristics {
		for _, sub := range rule.substrings {
			if strings.Contains(label, sub) {
				return LabelMatch{Kind: MatchHeuristic, Index: s.byActivity[rule.activity][ctx], Rule: rule.name}
			}
		}
	}
	return LabelMatch{Kind: MatchNone}
}
