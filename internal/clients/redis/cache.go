package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/types"
)

// RecommendationCache is a read-through cache in front of the persisted
// recommendation records. Purely an accelerator: every miss or failure
// falls back to the store.
type RecommendationCache interface {
	Get(ctx context.Context, userID uuid.UUID, moduleID string) (*types.RecommendationRecord, bool)
	Set(ctx context.Context, rec *types.RecommendationRecord)
	Healthy(ctx context.Context) bool
	Close() error
}

type recommendationCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewRecommendationCache connects to REDIS_ADDR. Returns nil (no cache)
// when the address is unset; errors only when an address was configured
// but unreachable.
func NewRecommendationCache(baseLog *logger.Logger) (RecommendationCache, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &recommendationCache{
		log: baseLog.With("client", "RecommendationCache"),
		rdb: rdb,
		ttl: 15 * time.Minute,
	}, nil
}

func cacheKey(userID uuid.UUID, moduleID string) string {
	return "rec:" + userID.String() + ":" + moduleID
}

func (c *recommendationCache) Get(ctx context.Context, userID uuid.UUID, moduleID string) (*types.RecommendationRecord, bool) {
	raw, err := c.rdb.Get(ctx, cacheKey(userID, moduleID)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.log.Debug("cache get failed", "error", err)
		}
		return nil, false
	}
	var rec types.RecommendationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.log.Debug("cache entry decode failed, dropping", "error", err)
		return nil, false
	}
	return &rec, true
}

func (c *recommendationCache) Set(ctx context.Context, rec *types.RecommendationRecord) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(rec.UserID, rec.ModuleID), raw, c.ttl).Err(); err != nil {
		c.log.Debug("cache set failed", "error", err)
	}
}

func (c *recommendationCache) Healthy(ctx context.Context) bool {
	return c.rdb.Ping(ctx).Err() == nil
}

func (c *recommendationCache) Close() error {
	return c.rdb.Close()
}
