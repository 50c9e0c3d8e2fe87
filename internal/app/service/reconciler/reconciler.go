package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/inkwell/paywall/internal/app/service/entitlement"
	"github.com/inkwell/paywall/internal/app/service/normalizer"
	"github.com/inkwell/paywall/internal/models"
	"github.com/inkwell/paywall/pkg/logctx"
	"github.com/inkwell/paywall/pkg/tool"
	"github.com/inkwell/paywall/pkg/types"
)

// Service applies canonical entitlement updates to the store. Every write is
// a full-record overwrite keyed by provider identity, which makes the whole
// pipeline safe under at-least-once delivery and the webhook/verifier race:
// concurrent writers converge instead of corrupting.
type Service struct {
	store entitlement.Store
	log   *zap.SugaredLogger
}

func NewService(store entitlement.Store, log *zap.SugaredLogger) *Service {
	return &Service{store: store, log: log}
}

// Reconcile upserts an update using the identity fallback chain: by
// subscription id, then by customer id, then insert. The two ingestion paths
// can observe a subscription's first state in either order; matching
// subscription-first then customer prevents duplicate rows while staying
// idempotent under replay.
func (s *Service) Reconcile(ctx context.Context, upd *normalizer.EntitlementUpdate) (*models.Entitlement, error) {
	if upd == nil || (upd.SubscriptionID == "" && upd.CustomerID == "") {
		return nil, fmt.Errorf("update carries no provider identity")
	}

	existing, err := s.lookup(ctx, upd)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		rec := &models.Entitlement{ID: tool.GenerateUUIDV7()}
		applyUpdate(rec, upd)
		if err := s.store.Save(ctx, rec); err != nil {
			return nil, err
		}
		logctx.FromCtx(ctx, s.log).Infow("entitlement_created",
			"user_id", rec.UserID, "subscription_id", rec.StripeSubscriptionID, "status", rec.Status)
		return rec, nil
	}

	// Staleness guard: an out-of-order redelivery must not clobber fresher
	// state. The provider gives no ordering guarantee across events, so the
	// event's own timestamp is the best available clock.
	if !upd.ObservedAt.IsZero() && upd.ObservedAt.Before(existing.ProviderObservedAt) {
		logctx.FromCtx(ctx, s.log).Infow("entitlement_update_stale_skipped",
			"subscription_id", upd.SubscriptionID,
			"observed_at", upd.ObservedAt, "stored_observed_at", existing.ProviderObservedAt)
		return existing, nil
	}

	applyUpdate(existing, upd)
	if err := s.store.Save(ctx, existing); err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("entitlement_reconciled",
		"user_id", existing.UserID, "subscription_id", existing.StripeSubscriptionID, "status", existing.Status)
	return existing, nil
}

// Cancel transitions the record for subscriptionID to canceled, touching
// nothing else. A cancellation for an unknown subscription is a no-op: there
// is nothing to cancel, and creating a canceled row would only confuse the
// access gate's history.
func (s *Service) Cancel(ctx context.Context, subscriptionID string, canceledAt time.Time) (*models.Entitlement, error) {
	rec, err := s.store.GetBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entitlement for cancel: %w", err)
	}
	if rec == nil {
		logctx.FromCtx(ctx, s.log).Infow("entitlement_cancel_noop", "subscription_id", subscriptionID)
		return nil, nil
	}
	rec.Status = types.EntitlementStatusCanceled
	rec.CanceledAt = lo.ToPtr(canceledAt)
	if canceledAt.After(rec.ProviderObservedAt) {
		rec.ProviderObservedAt = canceledAt
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("entitlement_canceled",
		"user_id", rec.UserID, "subscription_id", subscriptionID)
	return rec, nil
}

// MarkPastDue flips an existing record to past_due. Returns (nil, nil) when
// no record exists; the caller decides whether a backfill is possible.
func (s *Service) MarkPastDue(ctx context.Context, subscriptionID string, observedAt time.Time) (*models.Entitlement, error) {
	rec, err := s.store.GetBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entitlement for past_due: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	if !observedAt.IsZero() && observedAt.Before(rec.ProviderObservedAt) {
		logctx.FromCtx(ctx, s.log).Infow("entitlement_past_due_stale_skipped",
			"subscription_id", subscriptionID,
			"observed_at", observedAt, "stored_observed_at", rec.ProviderObservedAt)
		return rec, nil
	}
	rec.Status = types.EntitlementStatusPastDue
	if observedAt.After(rec.ProviderObservedAt) {
		rec.ProviderObservedAt = observedAt
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("entitlement_past_due",
		"user_id", rec.UserID, "subscription_id", subscriptionID)
	return rec, nil
}

func (s *Service) lookup(ctx context.Context, upd *normalizer.EntitlementUpdate) (*models.Entitlement, error) {
	if upd.SubscriptionID != "" {
		rec, err := s.store.GetBySubscriptionID(ctx, upd.SubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up by subscription id: %w", err)
		}
		if rec != nil {
			return rec, nil
		}
	}
	if upd.CustomerID != "" {
		rec, err := s.store.GetByCustomerID(ctx, upd.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up by customer id: %w", err)
		}
		if rec != nil {
			return rec, nil
		}
	}
	return nil, nil
}

func applyUpdate(rec *models.Entitlement, upd *normalizer.EntitlementUpdate) {
	// UserID is immutable once set; the first writer to know it wins.
	if rec.UserID == "" {
		rec.UserID = upd.UserID
	}
	if upd.CustomerID != "" {
		rec.StripeCustomerID = upd.CustomerID
	}
	if upd.SubscriptionID != "" {
		rec.StripeSubscriptionID = upd.SubscriptionID
	}
	rec.Status = upd.Status
	rec.PriceID = upd.PriceID
	rec.CurrentPeriodStart = upd.PeriodStart
	rec.CurrentPeriodEnd = upd.PeriodEnd
	rec.CancelAtPeriodEnd = upd.CancelAtPeriodEnd
	rec.CanceledAt = upd.CanceledAt
	if upd.ObservedAt.After(rec.ProviderObservedAt) {
		rec.ProviderObservedAt = upd.ObservedAt
	}
}
