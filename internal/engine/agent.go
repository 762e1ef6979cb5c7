package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
)

const snapshotFormatVersion = 1

// similarity weights for the fallback search. Cohort and module dominate
// so the nearest neighbour is same-cohort-same-module when one exists,
// then same-cohort-any-module, then the global nearest.
const (
	distCohortMismatch = 10.0
	distModuleMismatch = 5.0
	distBinStep        = 1.0
	distPhaseMismatch  = 0.5
	distEngageMismatch = 0.5
)

// ScoredAction is one ranked recommendation from the agent. Basis records
// how the value was produced, which downstream callers surface as the
// rationale.
type ScoredAction struct {
	Action int     `json:"action"`
	Value  float64 `json:"value"`
	Basis  string  `json:"basis"`
}

const (
	BasisTable      = "table"
	BasisSimilarity = "similarity"
	BasisColdStart  = "cold_start"
)

// Agent owns the sparse state->action-value table. Absent entries mean
// "unknown", never zero; presence is what drives the similarity fallback.
// All access goes through the internal mutex because concurrent batches
// may touch the same cell through different users.
type Agent struct {
	mu      sync.Mutex
	table   map[State][]float64
	actions *ActionSpace
	cfg     Config
	epsilon float64
	rng     *rand.Rand
}

func NewAgent(actions *ActionSpace, cfg Config, seed int64) *Agent {
	return &Agent{
		table:   make(map[State][]float64),
		actions: actions,
		cfg:     cfg,
		epsilon: cfg.Epsilon,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Len reports how many states have learned entries.
func (a *Agent) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.table)
}

func (a *Agent) Epsilon() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.epsilon
}

// DecayEpsilon applies one multiplicative decay step, floor-bounded.
// Called once per processed batch when decay is enabled.
func (a *Agent) DecayEpsilon() {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.epsilon * a.cfg.EpsilonDecay
	if next < a.cfg.EpsilonFloor {
		next = a.cfg.EpsilonFloor
	}
	a.epsilon = next
}

// SelectAction is the epsilon-greedy policy: explore uniformly with
// probability epsilon, otherwise exploit argmax with ties broken on the
// lowest action index for determinism.
func (a *Agent) SelectAction(s State, epsilon float64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if epsilon > 0 && a.rng.Float64() < epsilon {
		return a.rng.Intn(a.actions.Count())
	}
	values, ok := a.table[s]
	if !ok {
		return a.rng.Intn(a.actions.Count())
	}
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

// Update applies the temporal-difference rule
//
//	Q(s,a) += alpha * (reward + gamma*max_a' Q(s',a') - Q(s,a))
//
// with alpha chosen from the tier of the state's cohort. An absent next
// state contributes 0 to the bootstrap term.
func (a *Agent) Update(s State, action int, reward float64, next State) error {
	if action < 0 || action >= a.actions.Count() {
		return fmt.Errorf("action index %d out of range [0,%d)", action, a.actions.Count())
	}
	alpha := a.cfg.Params(a.cfg.TierFor(s.Cohort)).Alpha

	a.mu.Lock()
	defer a.mu.Unlock()

	values, ok := a.table[s]
	if !ok {
		values = make([]float64, a.actions.Count())
		a.table[s] = values
	}

	var nextMax float64
	if nextValues, ok := a.table[next]; ok {
		nextMax = maxValue(nextValues)
	}
	values[action] += alpha * (reward + a.cfg.Gamma*nextMax - values[action])
	return nil
}

// Recommend returns the top-k actions for a state. An exact table hit
// ranks the learned values; a miss on a non-empty table falls back to the
// nearest learned neighbour under the weighted distance, scan-bounded for
// latency; an empty table degrades to k random zero-value actions flagged
// as cold start. Invalid k is a caller error.
func (a *Agent) Recommend(s State, k int) ([]ScoredAction, error) {
	if k <= 0 {
		return nil, fmt.Errorf("invalid k: %d", k)
	}
	if k > a.actions.Count() {
		k = a.actions.Count()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if values, ok := a.table[s]; ok {
		return rank(values, k, BasisTable), nil
	}
	if len(a.table) > 0 {
		if values := a.nearestLocked(s); values != nil {
			return rank(values, k, BasisSimilarity), nil
		}
	}
	return a.coldStartLocked(k), nil
}

// nearestLocked scans at most SimilarityScanCap entries and returns the
// values of the closest state. Bounded on purpose: an exhaustive scan of a
// large table under the agent lock would stall every concurrent update.
func (a *Agent) nearestLocked(s State) []float64 {
	var (
		best     []float64
		bestDist = math.Inf(1)
		scanned  int
	)
	for candidate, values := range a.table {
		if scanned >= a.cfg.SimilarityScanCap {
			break
		}
		scanned++
		d := distance(s, candidate)
		if d < bestDist {
			bestDist = d
			best = values
		}
	}
	return best
}

func (a *Agent) coldStartLocked(k int) []ScoredAction {
	perm := a.rng.Perm(a.actions.Count())
	out := make([]ScoredAction, 0, k)
	for _, idx := range perm[:k] {
		out = append(out, ScoredAction{Action: idx, Value: 0.0, Basis: BasisColdStart})
	}
	return out
}

func distance(a, b State) float64 {
	var d float64
	if a.Cohort != b.Cohort {
		d += distCohortMismatch
	}
	if a.ModuleIndex != b.ModuleIndex {
		d += distModuleMismatch
	}
	d += distBinStep * math.Abs(float64(a.ProgressBin-b.ProgressBin))
	d += distBinStep * math.Abs(float64(a.ScoreBin-b.ScoreBin))
	if a.Phase != b.Phase {
		d += distPhaseMismatch
	}
	if a.Engagement != b.Engagement {
		d += distEngageMismatch
	}
	return d
}

func rank(values []float64, k int, basis string) []ScoredAction {
	scored := make([]ScoredAction, len(values))
	for i, v := range values {
		scored[i] = ScoredAction{Action: i, Value: v, Basis: basis}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Value != scored[j].Value {
			return scored[i].Value > scored[j].Value
		}
		return scored[i].Action < scored[j].Action
	})
	return scored[:k]
}

func maxValue(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

type snapshotEntry struct {
	State  State     `json:"state"`
	Values []float64 `json:"values"`
}

type snapshotDoc struct {
	Format  int             `json:"format"`
	Actions int             `json:"actions"`
	Epsilon float64         `json:"epsilon"`
	Entries []snapshotEntry `json:"entries"`
}

// Snapshot serializes the whole table. Entries are sorted by state key so
// two snapshots of the same table are byte-identical.
func (a *Agent) Snapshot() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	doc := snapshotDoc{
		Format:  snapshotFormatVersion,
		Actions: a.actions.Count(),
		Epsilon: a.epsilon,
		Entries: make([]snapshotEntry, 0, len(a.table)),
	}
	for s, values := range a.table {
		cp := make([]float64, len(values))
		copy(cp, values)
		doc.Entries = append(doc.Entries, snapshotEntry{State: s, Values: cp})
	}
	sort.Slice(doc.Entries, func(i, j int) bool {
		return doc.Entries[i].State.Key() < doc.Entries[j].State.Key()
	})
	return json.Marshal(doc)
}

// RestoreSnapshot replaces the table with a previously serialized one.
// Any structural mismatch is an error; the caller treats that as fatal at
// startup rather than running with unknown knowledge.
func (a *Agent) RestoreSnapshot(raw []byte) error {
	var doc snapshotDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode qtable snapshot: %w", err)
	}
	if doc.Format != snapshotFormatVersion {
		return fmt.Errorf("unsupported snapshot format %d", doc.Format)
	}
	if doc.Actions != a.actions.Count() {
		return fmt.Errorf("snapshot action count %d does not match action space %d", doc.Actions, a.actions.Count())
	}
	table := make(map[State][]float64, len(doc.Entries))
	for _, e := range doc.Entries {
		if len(e.Values) != doc.Actions {
			return fmt.Errorf("snapshot entry %s has %d values, want %d", e.State.Key(), len(e.Values), doc.Actions)
		}
		table[e.State] = e.Values
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.table = table
	if doc.Epsilon > 0 {
		a.epsilon = doc.Epsilon
	}
	return nil
}
