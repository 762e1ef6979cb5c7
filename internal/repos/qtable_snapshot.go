package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/types"
)

type QTableSnapshotRepo interface {
	GetLatest(ctx context.Context, tx *gorm.DB) (*types.QTableSnapshot, error)
	Create(ctx context.Context, tx *gorm.DB, snap *types.QTableSnapshot) error
	DeleteOlderThanVersion(ctx context.Context, tx *gorm.DB, version int64) error
}

type qtableSnapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQTableSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) QTableSnapshotRepo {
	return &qtableSnapshotRepo{db: db, log: baseLog.With("repo", "QTableSnapshotRepo")}
}

func (r *qtableSnapshotRepo) GetLatest(ctx context.Context, tx *gorm.DB) (*types.QTableSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.QTableSnapshot
	err := transaction.WithContext(ctx).
		Order("version DESC").
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *qtableSnapshotRepo) Create(ctx context.Context, tx *gorm.DB, snap *types.QTableSnapshot) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(snap).Error
}

// DeleteOlderThanVersion keeps checkpoint growth bounded; the checkpointer
// calls it after a successful write.
func (r *qtableSnapshotRepo) DeleteOlderThanVersion(ctx context.Context, tx *gorm.DB, version int64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("version < ?", version).
		Delete(&types.QTableSnapshot{}).Error
}
