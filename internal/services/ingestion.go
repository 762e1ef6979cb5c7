package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/adapt-engine/internal/clients/cohort"
	"github.com/yungbote/adapt-engine/internal/engine"
	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/observability"
	"github.com/yungbote/adapt-engine/internal/repos"
	"github.com/yungbote/adapt-engine/internal/types"
)

const (
	maxBatchEvents = 1000
	userFanout     = 4
	retryAttempts  = 3
	retryBackoff   = 500 * time.Millisecond
)

var (
	// ErrInvalidBatch marks synchronous input rejections; handlers map it
	// to a 400 and the batch is never queued.
	ErrInvalidBatch = errors.New("invalid event batch")
	// ErrQueueFull is backpressure: the caller should retry later instead
	// of us queueing unboundedly.
	ErrQueueFull = errors.New("ingestion queue full")
)

// EventInput is one raw interaction event as delivered by the LMS.
type EventInput struct {
	UserID         string     `json:"user_id"`
	CourseID       string     `json:"course_id"`
	EventName      string     `json:"event_name"`
	ActionLabel    string     `json:"action_label"`
	TargetModuleID string     `json:"target_module_id"`
	ModuleIndex    int        `json:"module_index"`
	Timestamp      time.Time  `json:"timestamp"`
	Progress       *float64   `json:"progress,omitempty"`
	Score          *float64   `json:"score,omitempty"`
	Success        *bool      `json:"success,omitempty"`
}

type BatchInput struct {
	IdempotencyToken string       `json:"idempotency_token"`
	Events           []EventInput `json:"events"`
}

// IngestAck is the synchronous acknowledgment; the learning work happens
// in the background afterwards.
type IngestAck struct {
	Accepted     bool      `json:"accepted"`
	Duplicate    bool      `json:"duplicate,omitempty"`
	BatchID      uuid.UUID `json:"batch_id"`
	QueuedEvents int       `json:"queued_events"`
}

type PipelineStats struct {
	ProcessedBatches int64 `json:"processed_batches"`
	FailedBatches    int64 `json:"failed_batches"`
	FailedUsers      int64 `json:"failed_users"`
	QueueDepth       int   `json:"queue_depth"`
	QueueCapacity    int   `json:"queue_capacity"`
	Accepting        bool  `json:"accepting"`
}

type IngestionService interface {
	// Ingest validates and enqueues a batch, returning immediately. It
	// never waits on the learning work.
	Ingest(ctx context.Context, in BatchInput) (*IngestAck, error)
	// Start launches the background workers; they stop when ctx ends.
	Start(ctx context.Context)
	Accepting() bool
	Stats() PipelineStats
}

type batchTask struct {
	batchID uuid.UUID
	events  []engine.Event
}

type ingestionService struct {
	log      *logger.Logger
	cfg      engine.Config
	detector *engine.Detector
	rewards  *engine.RewardCalculator
	agent    *engine.Agent
	actions  *engine.ActionSpace
	cohorts  cohort.Client

	eventRepo   repos.RawEventRepo
	stateRepo   repos.UserModuleStateRepo
	receiptRepo repos.IngestReceiptRepo
	recs        RecommendationService
	metrics     *observability.Metrics

	locks    *keyedMutex
	queue    chan batchTask
	workers  int
	defaultK int

	started          atomic.Bool
	processedBatches atomic.Int64
	failedBatches    atomic.Int64
	failedUsers      atomic.Int64
}

func NewIngestionService(
	baseLog *logger.Logger,
	cfg engine.Config,
	detector *engine.Detector,
	rewards *engine.RewardCalculator,
	agent *engine.Agent,
	actions *engine.ActionSpace,
	cohorts cohort.Client,
	eventRepo repos.RawEventRepo,
	stateRepo repos.UserModuleStateRepo,
	receiptRepo repos.IngestReceiptRepo,
	recs RecommendationService,
	metrics *observability.Metrics,
	queueSize int,
	workers int,
	defaultK int,
) IngestionService {
	if queueSize < 1 {
		queueSize = 64
	}
	if workers < 1 {
		workers = 2
	}
	if defaultK < 1 {
		defaultK = 3
	}
	return &ingestionService{
		log:         baseLog.With("service", "IngestionService"),
		cfg:         cfg,
		detector:    detector,
		rewards:     rewards,
		agent:       agent,
		actions:     actions,
		cohorts:     cohorts,
		eventRepo:   eventRepo,
		stateRepo:   stateRepo,
		receiptRepo: receiptRepo,
		recs:        recs,
		metrics:     metrics,
		locks:       newKeyedMutex(),
		queue:       make(chan batchTask, queueSize),
		workers:     workers,
		defaultK:    defaultK,
	}
}

func (s *ingestionService) Ingest(ctx context.Context, in BatchInput) (*IngestAck, error) {
	events, err := validateBatch(in)
	if err != nil {
		return nil, err
	}

	batchID := uuid.New()
	token := strings.TrimSpace(in.IdempotencyToken)

	if token != "" {
		inserted, err := s.receiptRepo.CreateIgnoreDuplicates(ctx, nil, &types.IngestReceipt{
			ID:         uuid.New(),
			Token:      token,
			BatchID:    batchID,
			EventCount: len(events),
			CreatedAt:  time.Now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("record ingest receipt: %w", err)
		}
		if !inserted {
			s.metrics.IncDuplicateBatch()
			s.log.Info("duplicate batch dropped", "token", token)
			return &IngestAck{Accepted: false, Duplicate: true, BatchID: batchID}, nil
		}
	}

	select {
	case s.queue <- batchTask{batchID: batchID, events: events}:
		s.metrics.SetQueueDepth(len(s.queue))
		return &IngestAck{Accepted: true, BatchID: batchID, QueuedEvents: len(events)}, nil
	default:
		// A rejected batch must stay retryable: release the receipt so the
		// same token is accepted once the queue has room again.
		if token != "" {
			if derr := s.receiptRepo.DeleteByToken(ctx, nil, token); derr != nil {
				s.log.Error("failed to release receipt after queue-full rejection", "token", token, "error", derr)
			}
		}
		return nil, ErrQueueFull
	}
}

func validateBatch(in BatchInput) ([]engine.Event, error) {
	if len(in.Events) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidBatch)
	}
	if len(in.Events) > maxBatchEvents {
		return nil, fmt.Errorf("%w: too many events (max %d)", ErrInvalidBatch, maxBatchEvents)
	}

	events := make([]engine.Event, 0, len(in.Events))
	for i, raw := range in.Events {
		userID, err := uuid.Parse(strings.TrimSpace(raw.UserID))
		if err != nil {
			return nil, fmt.Errorf("%w: event %d: bad user_id: %v", ErrInvalidBatch, i, err)
		}
		moduleID := strings.TrimSpace(raw.TargetModuleID)
		if moduleID == "" {
			return nil, fmt.Errorf("%w: event %d: missing target_module_id", ErrInvalidBatch, i)
		}
		if raw.Timestamp.IsZero() {
			return nil, fmt.Errorf("%w: event %d: missing timestamp", ErrInvalidBatch, i)
		}
		if strings.TrimSpace(raw.ActionLabel) == "" {
			return nil, fmt.Errorf("%w: event %d: missing action_label", ErrInvalidBatch, i)
		}
		moduleIndex := raw.ModuleIndex
		if moduleIndex < 0 {
			moduleIndex = 0
		}
		events = append(events, engine.Event{
			UserID:      userID,
			CourseID:    strings.TrimSpace(raw.CourseID),
			ModuleID:    moduleID,
			ModuleIndex: moduleIndex,
			EventName:   strings.TrimSpace(raw.EventName),
			ActionLabel: strings.TrimSpace(raw.ActionLabel),
			Timestamp:   raw.Timestamp.UTC(),
			Progress:    raw.Progress,
			Score:       raw.Score,
			Success:     raw.Success,
		})
	}
	return events, nil
}

func (s *ingestionService) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.log.Info("starting ingestion workers", "workers", s.workers, "queue_capacity", cap(s.queue))
	for i := 0; i < s.workers; i++ {
		workerID := i + 1
		go s.runLoop(ctx, workerID)
	}
}

func (s *ingestionService) runLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			s.log.Info("ingestion worker stopped", "worker_id", workerID)
			return
		case task := <-s.queue:
			func() {
				defer func() {
					if r := recover(); r != nil {
						s.failedBatches.Add(1)
						s.log.Error("batch processing panic", "worker_id", workerID, "batch_id", task.batchID, "panic", r)
					}
				}()
				s.processBatch(ctx, task)
			}()
		}
	}
}

func (s *ingestionService) processBatch(ctx context.Context, task batchTask) {
	start := time.Now()

	// Raw history first: even events that never become transitions are
	// recorded.
	rows := make([]*types.RawEvent, 0, len(task.events))
	now := time.Now().UTC()
	for _, ev := range task.events {
		rows = append(rows, &types.RawEvent{
			ID:          uuid.New(),
			BatchID:     task.batchID,
			UserID:      ev.UserID,
			CourseID:    ev.CourseID,
			ModuleID:    ev.ModuleID,
			ModuleIndex: ev.ModuleIndex,
			EventName:   ev.EventName,
			ActionLabel: ev.ActionLabel,
			OccurredAt:  ev.Timestamp,
			Progress:    ev.Progress,
			Score:       ev.Score,
			Success:     ev.Success,
			CreatedAt:   now,
		})
	}
	err := s.withRetry(ctx, "persist raw events", func() error {
		_, err := s.eventRepo.Create(ctx, nil, rows)
		return err
	})
	if err != nil {
		s.failedBatches.Add(1)
		s.metrics.IncBatchFailed()
		s.log.Error("batch failed: raw history not persisted", "batch_id", task.batchID, "error", err)
		return
	}

	cohorts := s.lookupCohorts(ctx, task.events)
	perUser := s.detector.Detect(task.events, cohorts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(userFanout)
	for _, ut := range perUser {
		ut := ut
		g.Go(func() error {
			// One user's failure never aborts the rest of the batch.
			if err := s.processUser(gctx, ut); err != nil {
				s.failedUsers.Add(1)
				s.metrics.IncUserFailed()
				s.log.Error("user processing failed", "batch_id", task.batchID, "user_id", ut.UserID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if s.cfg.EpsilonDecay > 0 && s.cfg.EpsilonDecay < 1 {
		s.agent.DecayEpsilon()
	}

	s.processedBatches.Add(1)
	s.metrics.IncBatchProcessed(len(task.events))
	s.metrics.SetQueueDepth(len(s.queue))
	s.metrics.SetQTableEntries(s.agent.Len())
	s.log.Info("batch processed",
		"batch_id", task.batchID,
		"events", len(task.events),
		"users", len(perUser),
		"elapsed", time.Since(start).String(),
	)
}

func (s *ingestionService) lookupCohorts(ctx context.Context, events []engine.Event) map[uuid.UUID]engine.CohortInfo {
	out := make(map[uuid.UUID]engine.CohortInfo)
	for _, ev := range events {
		if _, ok := out[ev.UserID]; ok {
			continue
		}
		out[ev.UserID] = cohort.Resolve(ctx, s.cohorts, s.cfg, ev.UserID)
	}
	return out
}

// processUser applies one user's transitions in timestamp order: reward,
// Q-table update, and the UserModuleState overwrite, then refreshes the
// recommendation for every touched (user, module) pair.
func (s *ingestionService) processUser(ctx context.Context, ut engine.UserTransitions) error {
	touched := make(map[string]engine.Transition)

	for _, tr := range ut.Transitions {
		meta, err := s.actions.ByIndex(tr.Action)
		if err != nil {
			return err
		}
		reward := s.rewards.Reward(tr.Next, meta, tr.Outcome, tr.State)

		key := lockKey(ut.UserID, tr.ModuleID)
		unlock := s.locks.Lock(key)
		err = func() error {
			if err := s.agent.Update(tr.State, tr.Action, reward, tr.Next); err != nil {
				return err
			}
			tr := tr
			return s.withRetry(ctx, "persist user state", func() error {
				return s.stateRepo.Upsert(ctx, nil, stateRow(ut.UserID, tr))
			})
		}()
		unlock()
		if err != nil {
			return err
		}
		touched[tr.ModuleID] = tr
	}

	for moduleID := range touched {
		key := lockKey(ut.UserID, moduleID)
		unlock := s.locks.Lock(key)
		err := s.withRetry(ctx, "refresh recommendation", func() error {
			_, err := s.recs.Recompute(ctx, nil, ut.UserID, moduleID, s.defaultK)
			return err
		})
		unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func stateRow(userID uuid.UUID, tr engine.Transition) *types.UserModuleState {
	now := time.Now().UTC()
	return &types.UserModuleState{
		ID:          uuid.New(),
		UserID:      userID,
		ModuleID:    tr.ModuleID,
		CohortID:    tr.Next.Cohort,
		ModuleIndex: tr.Next.ModuleIndex,
		ProgressBin: tr.Next.ProgressBin,
		ScoreBin:    tr.Next.ScoreBin,
		Phase:       string(tr.Next.Phase),
		Engagement:  string(tr.Next.Engagement),
		UpdatedAt:   now,
		CreatedAt:   now,
	}
}

func lockKey(userID uuid.UUID, moduleID string) string {
	return userID.String() + "/" + moduleID
}

// withRetry runs fn with bounded exponential backoff. Persistence hiccups
// get a few chances; after that the failure is surfaced to the caller.
func (s *ingestionService) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := retryBackoff
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == retryAttempts {
			break
		}
		s.log.Warn("operation failed, retrying", "op", op, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func (s *ingestionService) Accepting() bool {
	return s.started.Load() && len(s.queue) < cap(s.queue)
}

func (s *ingestionService) Stats() PipelineStats {
	return PipelineStats{
		ProcessedBatches: s.processedBatches.Load(),
		FailedBatches:    s.failedBatches.Load(),
		FailedUsers:      s.failedUsers.Load(),
		QueueDepth:       len(s.queue),
		QueueCapacity:    cap(s.queue),
		Accepting:        s.Accepting(),
	}
}
