package event_log

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inkwell/paywall/internal/models"
	"github.com/inkwell/paywall/pkg/logctx"
	"github.com/inkwell/paywall/pkg/tool"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save asynchronously persists a billing event log row. Nil input is ignored.
// Audit writes never block or fail the ingestion path.
func (s *Service) Save(ctx context.Context, entry *models.BillingEventLog) {
	if entry == nil || s.db == nil {
		return
	}
	go func() {
		if entry.ID == "" {
			entry.ID = tool.GenerateUUIDV7()
		}
		if err := s.db.Save(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save billing event log: %v", err)
		}
	}()
}

var Module = fx.Options(
	fx.Provide(New),
)
