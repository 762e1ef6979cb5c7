package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/yungbote/adapt-engine/internal/engine"
	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/repos"
	"github.com/yungbote/adapt-engine/internal/types"
)

// ErrNoSnapshot is returned when no checkpoint exists. Fatal at startup
// unless bootstrap mode was explicitly requested; running silently with an
// empty table is never acceptable.
var ErrNoSnapshot = errors.New("no qtable snapshot found")

// SnapshotStore persists whole-table checkpoints. Version handling is the
// caller's concern; a store only needs newest-wins semantics.
type SnapshotStore interface {
	Load(ctx context.Context) ([]byte, int64, error)
	Save(ctx context.Context, payload []byte, version int64, entryCount int) error
}

type dbSnapshotStore struct {
	repo repos.QTableSnapshotRepo
}

func NewDBSnapshotStore(repo repos.QTableSnapshotRepo) SnapshotStore {
	return &dbSnapshotStore{repo: repo}
}

func (s *dbSnapshotStore) Load(ctx context.Context) ([]byte, int64, error) {
	snap, err := s.repo.GetLatest(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	if snap == nil {
		return nil, 0, nil
	}
	return snap.Payload, snap.Version, nil
}

func (s *dbSnapshotStore) Save(ctx context.Context, payload []byte, version int64, entryCount int) error {
	err := s.repo.Create(ctx, nil, &types.QTableSnapshot{
		ID:         uuid.New(),
		Version:    version,
		EntryCount: entryCount,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.repo.DeleteOlderThanVersion(ctx, nil, version)
}

const gcsSnapshotKey = "qtable/latest.json"

type gcsSnapshotStore struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

// NewGCSSnapshotStore checkpoints into a bucket object instead of the
// database; selected with SNAPSHOT_BACKEND=gcs.
func NewGCSSnapshotStore(baseLog *logger.Logger) (SnapshotStore, error) {
	bucket := os.Getenv("GCS_BUCKET_NAME")
	if bucket == "" {
		return nil, fmt.Errorf("missing env var GCS_BUCKET_NAME")
	}
	saPath := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON")

	ctx := context.Background()
	var (
		client *storage.Client
		err    error
	)
	if saPath != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(saPath), option.WithScopes(storage.ScopeReadWrite))
	} else {
		client, err = storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
	}
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &gcsSnapshotStore{
		log:    baseLog.With("service", "GCSSnapshotStore"),
		client: client,
		bucket: bucket,
	}, nil
}

func (s *gcsSnapshotStore) Load(ctx context.Context) ([]byte, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	r, err := s.client.Bucket(s.bucket).Object(gcsSnapshotKey).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open snapshot object: %w", err)
	}
	defer r.Close()

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read snapshot object: %w", err)
	}
	return payload, 0, nil
}

func (s *gcsSnapshotStore) Save(ctx context.Context, payload []byte, version int64, entryCount int) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(gcsSnapshotKey).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return fmt.Errorf("write snapshot object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close snapshot writer: %w", err)
	}
	s.log.Debug("qtable snapshot written to gcs", "version", version, "entries", entryCount)
	return nil
}

// CheckpointService owns the load-once / persist-periodically lifecycle of
// the Q-table. Not persisting on every update bounds write amplification.
type CheckpointService interface {
	LoadAtStartup(ctx context.Context) error
	Run(ctx context.Context)
	SaveNow(ctx context.Context) error
	Loaded() bool
}

type checkpointService struct {
	log       *logger.Logger
	agent     *engine.Agent
	store     SnapshotStore
	interval  time.Duration
	bootstrap bool

	loaded  atomic.Bool
	version atomic.Int64
}

func NewCheckpointService(baseLog *logger.Logger, agent *engine.Agent, store SnapshotStore, interval time.Duration, bootstrap bool) CheckpointService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &checkpointService{
		log:       baseLog.With("service", "CheckpointService"),
		agent:     agent,
		store:     store,
		interval:  interval,
		bootstrap: bootstrap,
	}
}

func (s *checkpointService) Loaded() bool { return s.loaded.Load() }

// LoadAtStartup restores the newest snapshot into the agent. A missing
// snapshot is fatal unless bootstrap mode is on; a corrupt snapshot is
// always fatal.
func (s *checkpointService) LoadAtStartup(ctx context.Context) error {
	payload, version, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load qtable snapshot: %w", err)
	}
	if payload == nil {
		if !s.bootstrap {
			return ErrNoSnapshot
		}
		s.log.Warn("QTABLE_BOOTSTRAP enabled: starting with an empty q-table")
		s.loaded.Store(true)
		return nil
	}
	if err := s.agent.RestoreSnapshot(payload); err != nil {
		return fmt.Errorf("restore qtable snapshot: %w", err)
	}
	s.version.Store(version)
	s.loaded.Store(true)
	s.log.Info("qtable snapshot loaded", "version", version, "entries", s.agent.Len())
	return nil
}

func (s *checkpointService) SaveNow(ctx context.Context) error {
	payload, err := s.agent.Snapshot()
	if err != nil {
		return fmt.Errorf("serialize qtable: %w", err)
	}
	version := s.version.Add(1)
	if err := s.store.Save(ctx, payload, version, s.agent.Len()); err != nil {
		return fmt.Errorf("persist qtable snapshot: %w", err)
	}
	s.log.Debug("qtable checkpoint persisted", "version", version, "entries", s.agent.Len())
	return nil
}

// Run persists on a fixed interval and once more on shutdown.
func (s *checkpointService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := s.SaveNow(flushCtx); err != nil {
				s.log.Warn("final qtable checkpoint failed", "error", err)
			}
			cancel()
			s.log.Info("checkpoint loop stopped")
			return
		case <-ticker.C:
			if err := s.SaveNow(ctx); err != nil {
				s.log.Warn("qtable checkpoint failed", "error", err)
			}
		}
	}
}
