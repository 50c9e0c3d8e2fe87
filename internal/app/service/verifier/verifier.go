package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripeapi "github.com/stripe/stripe-go/v74"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/inkwell/paywall/internal/app/service/normalizer"
	"github.com/inkwell/paywall/internal/app/service/reconciler"
	stripepf "github.com/inkwell/paywall/internal/platform/stripe"
	"github.com/inkwell/paywall/internal/models"
	"github.com/inkwell/paywall/pkg/logctx"
)

var (
	// ErrPaymentNotCompleted means the checkout session is not in a paid
	// state; the caller must restart the checkout flow.
	ErrPaymentNotCompleted = errors.New("payment not completed")
	// ErrIdentityMismatch means the session belongs to a different user than
	// the caller; redeeming someone else's session reference is refused.
	ErrIdentityMismatch = errors.New("session user does not match caller")
	// ErrNoSubscription means the session carries no subscription object.
	ErrNoSubscription = errors.New("no subscription on checkout session")
)

// Service is the synchronous verification path: invoked right after the
// checkout redirect, it reads authoritative state from the provider and
// reconciles it without waiting for the webhook delivery. The reconciler's
// idempotent upsert makes the later webhook a harmless overwrite.
type Service struct {
	provider stripepf.Provider
	rec      *reconciler.Service
	log      *zap.SugaredLogger
}

func NewService(provider stripepf.Provider, rec *reconciler.Service, log *zap.SugaredLogger) *Service {
	return &Service{provider: provider, rec: rec, log: log}
}

// VerifySession validates the checkout session referenced by sessionID on
// behalf of callerUserID and reconciles the embedded subscription.
func (s *Service) VerifySession(ctx context.Context, sessionID, callerUserID string) (*models.Entitlement, error) {
	sess, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve checkout session: %w", err)
	}

	if sess.PaymentStatus != stripeapi.CheckoutSessionPaymentStatusPaid &&
		sess.PaymentStatus != stripeapi.CheckoutSessionPaymentStatusNoPaymentRequired {
		return nil, fmt.Errorf("%w: payment status %s", ErrPaymentNotCompleted, sess.PaymentStatus)
	}

	if sess.Metadata[stripepf.UserIDMetadataKey] != callerUserID {
		logctx.FromCtx(ctx, s.log).Warnw("session_identity_mismatch",
			"session_id", sessionID, "caller", callerUserID)
		return nil, ErrIdentityMismatch
	}

	sub, err := s.sessionSubscription(ctx, sess)
	if err != nil {
		return nil, err
	}

	rec, err := s.rec.Reconcile(ctx, normalizer.FromSubscription(sub, callerUserID, time.Now()))
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("session_verified",
		"session_id", sessionID, "subscription_id", sub.ID, "status", rec.Status)
	return rec, nil
}

// sessionSubscription returns the expanded subscription, fetching it
// separately when the session only carries the id.
func (s *Service) sessionSubscription(ctx context.Context, sess *stripeapi.CheckoutSession) (*stripeapi.Subscription, error) {
	if sess.Subscription == nil || sess.Subscription.ID == "" {
		return nil, ErrNoSubscription
	}
	if sess.Subscription.Status != "" {
		return sess.Subscription, nil
	}
	sub, err := s.provider.GetSubscription(ctx, sess.Subscription.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subscription %s: %w", sess.Subscription.ID, err)
	}
	return sub, nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
