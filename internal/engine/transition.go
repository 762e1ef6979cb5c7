package engine

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/adapt-engine/internal/logger"
)

// historyWindow is how many trailing action labels feed the phase and
// engagement heuristics.
const historyWindow = 10

// Event is one raw learner interaction, already validated by the caller.
type Event struct {
	UserID      uuid.UUID
	CourseID    string
	ModuleID    string
	ModuleIndex int
	EventName   string
	ActionLabel string
	Timestamp   time.Time
	Progress    *float64
	Score       *float64
	Success     *bool
}

// Transition is one observed (state, action, next_state, outcome) step,
// derived from two time-ordered events of the same user. Consumed once by
// the learning update, never persisted on its own.
type Transition struct {
	UserID   uuid.UUID
	ModuleID string
	State    State
	Action   int
	Next     State
	Outcome  Outcome
	TimeGap  time.Duration
}

// CohortInfo is the read-only signal from the cohort-assignment
// collaborator: the learner's cohort and their mastery-improvement delta.
type CohortInfo struct {
	CohortID     int
	MasteryDelta float64
}

// UserTransitions groups one user's detected transitions in timestamp
// order. No transition ever spans two users.
type UserTransitions struct {
	UserID      uuid.UUID
	Transitions []Transition
}

// Detector reconstructs transitions from a raw event batch. Events that
// fail encoding, label mapping, or the gap window are dropped from
// detection silently; the ingestion pipeline still persists them as raw
// history.
type Detector struct {
	codec   *Codec
	actions *ActionSpace
	minGap  time.Duration
	maxGap  time.Duration
	log     *logger.Logger
}

func NewDetector(codec *Codec, actions *ActionSpace, cfg Config, baseLog *logger.Logger) *Detector {
	return &Detector{
		codec:   codec,
		actions: actions,
		minGap:  cfg.MinGap(),
		maxGap:  cfg.MaxGap(),
		log:     baseLog.With("component", "TransitionDetector"),
	}
}

// Detect groups the batch by user, sorts each user's events by timestamp
// and scans consecutive pairs. Users are returned in a stable order so
// downstream processing is deterministic for a given batch.
func (d *Detector) Detect(events []Event, cohorts map[uuid.UUID]CohortInfo) []UserTransitions {
	byUser := make(map[uuid.UUID][]Event)
	for _, ev := range events {
		byUser[ev.UserID] = append(byUser[ev.UserID], ev)
	}

	userIDs := make([]uuid.UUID, 0, len(byUser))
	for id := range byUser {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i].String() < userIDs[j].String() })

	out := make([]UserTransitions, 0, len(userIDs))
	for _, userID := range userIDs {
		stream := byUser[userID]
		sort.SliceStable(stream, func(i, j int) bool { return stream[i].Timestamp.Before(stream[j].Timestamp) })
		info := cohorts[userID]
		ts := d.detectUser(stream, info)
		if len(ts) > 0 {
			out = append(out, UserTransitions{UserID: userID, Transitions: ts})
		}
	}
	return out
}

func (d *Detector) detectUser(stream []Event, info CohortInfo) []Transition {
	var (
		transitions []Transition
		history     []string
		reached     int
	)
	for i := 0; i+1 < len(stream); i++ {
		cur, next := stream[i], stream[i+1]
		if cur.ModuleIndex > reached {
			reached = cur.ModuleIndex
		}

		gap := next.Timestamp.Sub(cur.Timestamp)
		history = appendHistory(history, cur.ActionLabel)
		if gap < d.minGap || gap > d.maxGap {
			// Too short is noise or duplicate delivery, too long is an
			// unrelated session.
			d.log.Debug("transition gap outside window, skipping",
				"user_id", cur.UserID, "gap", gap.String())
			continue
		}

		match := d.actions.MapLabel(cur.ActionLabel, temporalContext(cur.ModuleIndex, reached))
		if !match.Found() {
			d.log.Debug("unmapped action label, skipping transition",
				"user_id", cur.UserID, "action_label", cur.ActionLabel)
			continue
		}

		state := d.codec.Encode(info.CohortID, cur.ModuleIndex, cur.Progress, cur.Score, history[:len(history)-1])
		nextState := d.codec.Encode(info.CohortID, next.ModuleIndex, next.Progress, next.Score, history)

		transitions = append(transitions, Transition{
			UserID:   cur.UserID,
			ModuleID: cur.ModuleID,
			State:    state,
			Action:   match.Index,
			Next:     nextState,
			Outcome:  deriveOutcome(cur, next, gap, info.MasteryDelta),
			TimeGap:  gap,
		})
	}
	return transitions
}

// temporalContext distinguishes acting on material the learner already
// passed from material at or ahead of their furthest module.
func temporalContext(moduleIndex, reached int) TemporalContext {
	if moduleIndex < reached {
		return ContextPast
	}
	return ContextUpcoming
}

func deriveOutcome(cur, next Event, gap time.Duration, masteryDelta float64) Outcome {
	out := Outcome{Elapsed: gap, MasteryDelta: masteryDelta}
	if next.Score != nil {
		out.Score = *next.Score
	}
	if next.Success != nil {
		out.Success = *next.Success
	}
	switch {
	case next.Progress != nil && cur.Progress != nil && *next.Progress > *cur.Progress:
		out.Completed = true
	case out.Success:
		out.Completed = true
	}
	return out
}

func appendHistory(history []string, label string) []string {
	history = append(history, label)
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	return history
}
