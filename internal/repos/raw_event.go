package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/types"
)

type RawEventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, events []*types.RawEvent) ([]*types.RawEvent, error)
	GetByUserAndModule(ctx context.Context, tx *gorm.DB, userID uuid.UUID, moduleID string, limit int) ([]*types.RawEvent, error)
	CountByBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) (int64, error)
}

type rawEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRawEventRepo(db *gorm.DB, baseLog *logger.Logger) RawEventRepo {
	return &rawEventRepo{db: db, log: baseLog.With("repo", "RawEventRepo")}
}

func (r *rawEventRepo) Create(ctx context.Context, tx *gorm.DB, events []*types.RawEvent) ([]*types.RawEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(events) == 0 {
		return []*types.RawEvent{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *rawEventRepo) GetByUserAndModule(ctx context.Context, tx *gorm.DB, userID uuid.UUID, moduleID string, limit int) ([]*types.RawEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.RawEvent
	if userID == uuid.Nil {
		return results, nil
	}
	if limit <= 0 {
		limit = 100
	}

	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND module_id = ?", userID, moduleID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *rawEventRepo) CountByBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var n int64
	if err := transaction.WithContext(ctx).
		Model(&types.RawEvent{}).
		Where("batch_id = ?", batchID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
