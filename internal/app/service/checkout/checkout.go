package checkout

import (
	"context"
	"errors"
	"fmt"

	stripeapi "github.com/stripe/stripe-go/v74"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/inkwell/paywall/internal/app/service/entitlement"
	stripepf "github.com/inkwell/paywall/internal/platform/stripe"
	cfgpkg "github.com/inkwell/paywall/pkg/config"
	"github.com/inkwell/paywall/pkg/logctx"
)

// ErrNoPriceConfigured means the subscription price id is absent from
// configuration; checkout cannot start.
var ErrNoPriceConfigured = errors.New("no price id configured")

// Service starts the subscribe flow: it pins a provider customer to the user
// and opens a subscription-mode checkout session for the single configured
// price.
type Service struct {
	provider stripepf.Provider
	store    entitlement.Store
	cfg      *cfgpkg.Config
	log      *zap.SugaredLogger
}

func NewService(provider stripepf.Provider, store entitlement.Store, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Service {
	return &Service{provider: provider, store: store, cfg: cfg, log: log}
}

// CreateSession returns a checkout session for userID. The customer id from
// the user's most recent entitlement record is reused when present, so a
// re-subscribe keeps the same provider billing account.
func (s *Service) CreateSession(ctx context.Context, userID, email string) (*stripeapi.CheckoutSession, error) {
	if s.cfg.Stripe.PriceID == "" {
		return nil, ErrNoPriceConfigured
	}

	customerID := ""
	if rec, err := s.store.LatestByUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to check existing entitlement: %w", err)
	} else if rec != nil {
		customerID = rec.StripeCustomerID
	}

	if customerID == "" {
		cust, err := s.provider.CreateCustomer(ctx, email, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to create customer: %w", err)
		}
		customerID = cust.ID
		logctx.FromCtx(ctx, s.log).Infow("stripe_customer_created", "user_id", userID, "customer_id", customerID)
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, customerID, s.cfg.Stripe.PriceID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("checkout_session_created", "user_id", userID, "session_id", sess.ID)
	return sess, nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
