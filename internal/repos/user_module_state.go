package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/types"
)

type UserModuleStateRepo interface {
	GetByUserAndModule(ctx context.Context, tx *gorm.DB, userID uuid.UUID, moduleID string) (*types.UserModuleState, error)
	Upsert(ctx context.Context, tx *gorm.DB, state *types.UserModuleState) error
}

type userModuleStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserModuleStateRepo(db *gorm.DB, baseLog *logger.Logger) UserModuleStateRepo {
	return &userModuleStateRepo{db: db, log: baseLog.With("repo", "UserModuleStateRepo")}
}

func (r *userModuleStateRepo) GetByUserAndModule(ctx context.Context, tx *gorm.DB, userID uuid.UUID, moduleID string) (*types.UserModuleState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.UserModuleState
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND module_id = ?", userID, moduleID).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Upsert overwrites the current state for the (user, module) key. The
// record is last-write-wins by design; history lives in raw_event.
func (r *userModuleStateRepo) Upsert(ctx context.Context, tx *gorm.DB, state *types.UserModuleState) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	state.UpdatedAt = time.Now().UTC()
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "module_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"cohort_id", "module_index", "progress_bin", "score_bin",
				"phase", "engagement", "extra", "updated_at",
			}),
		}).
		Create(state).Error
}
