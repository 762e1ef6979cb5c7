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

type RecommendationRepo interface {
	GetByUserAndModule(ctx context.Context, tx *gorm.DB, userID uuid.UUID, moduleID string) (*types.RecommendationRecord, error)
	Upsert(ctx context.Context, tx *gorm.DB, rec *types.RecommendationRecord) error
}

type recommendationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecommendationRepo(db *gorm.DB, baseLog *logger.Logger) RecommendationRepo {
	return &recommendationRepo{db: db, log: baseLog.With("repo", "RecommendationRepo")}
}

func (r *recommendationRepo) GetByUserAndModule(ctx context.Context, tx *gorm.DB, userID uuid.UUID, moduleID string) (*types.RecommendationRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.RecommendationRecord
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

// Upsert replaces the whole record; the most recent recommendation is the
// only one that exists for a (user, module) key.
func (r *recommendationRepo) Upsert(ctx context.Context, tx *gorm.DB, rec *types.RecommendationRecord) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	rec.UpdatedAt = time.Now().UTC()
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "module_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"items", "state_cohort", "state_module", "state_progress",
				"state_score", "state_phase", "state_engage",
				"low_confidence", "computed_at", "updated_at",
			}),
		}).
		Create(rec).Error
}
