package gate

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/inkwell/paywall/internal/app/service/entitlement"
	"github.com/inkwell/paywall/internal/models"
	cfgpkg "github.com/inkwell/paywall/pkg/config"
	"github.com/inkwell/paywall/pkg/logctx"
)

var errNoActiveEntitlement = errors.New("no active entitlement")

// Service answers access questions for protected routes. The bounded retry
// absorbs the window where a webhook or synchronous verification is still in
// flight; exhausting it fails closed.
type Service struct {
	store entitlement.Store
	cfg   *cfgpkg.Config
	log   *zap.SugaredLogger
}

func NewService(store entitlement.Store, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Service {
	return &Service{store: store, cfg: cfg, log: log}
}

// CheckAccess reports whether userID currently holds an active entitlement.
// The returned record is nil when access is denied.
func (s *Service) CheckAccess(ctx context.Context, userID string) (bool, *models.Entitlement) {
	attempts := s.cfg.Gate.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := s.cfg.Gate.RetryDelay()
	if delay <= 0 {
		// retry.NewConstant rejects non-positive intervals.
		delay = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(delay))

	var rec *models.Entitlement
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := s.store.LatestActiveByUser(ctx, userID)
		if err != nil {
			return retry.RetryableError(err)
		}
		if r == nil {
			return retry.RetryableError(errNoActiveEntitlement)
		}
		rec = r
		return nil
	})
	if err != nil {
		logctx.FromCtx(ctx, s.log).Infow("access_denied", "user_id", userID, "attempts", attempts)
		return false, nil
	}
	return true, rec
}

var Module = fx.Options(
	fx.Provide(NewService),
)
