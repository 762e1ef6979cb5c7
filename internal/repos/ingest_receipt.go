package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/types"
)

type IngestReceiptRepo interface {
	// CreateIgnoreDuplicates inserts the receipt and reports whether a row
	// was actually written. false means the token was seen before and the
	// batch is a duplicate delivery.
	CreateIgnoreDuplicates(ctx context.Context, tx *gorm.DB, receipt *types.IngestReceipt) (bool, error)
	// DeleteByToken releases a receipt whose batch was never queued, so the
	// caller can resend the same token later.
	DeleteByToken(ctx context.Context, tx *gorm.DB, token string) error
}

type ingestReceiptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIngestReceiptRepo(db *gorm.DB, baseLog *logger.Logger) IngestReceiptRepo {
	return &ingestReceiptRepo{db: db, log: baseLog.With("repo", "IngestReceiptRepo")}
}

func (r *ingestReceiptRepo) CreateIgnoreDuplicates(ctx context.Context, tx *gorm.DB, receipt *types.IngestReceipt) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoNothing: true,
		}).
		Create(receipt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ingestReceiptRepo) DeleteByToken(ctx context.Context, tx *gorm.DB, token string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("token = ?", token).
		Delete(&types.IngestReceipt{}).Error
}
