package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/repos"
)

type Repos struct {
	UserModuleState repos.UserModuleStateRepo
	RawEvent        repos.RawEventRepo
	Recommendation  repos.RecommendationRepo
	QTableSnapshot  repos.QTableSnapshotRepo
	IngestReceipt   repos.IngestReceiptRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		UserModuleState: repos.NewUserModuleStateRepo(db, log),
		RawEvent:        repos.NewRawEventRepo(db, log),
		Recommendation:  repos.NewRecommendationRepo(db, log),
		QTableSnapshot:  repos.NewQTableSnapshotRepo(db, log),
		IngestReceipt:   repos.NewIngestReceiptRepo(db, log),
	}
}
