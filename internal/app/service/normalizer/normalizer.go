package normalizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripeapi "github.com/stripe/stripe-go/v74"
	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"

	stripepf "github.com/inkwell/paywall/internal/platform/stripe"
	"github.com/inkwell/paywall/pkg/types"
)

// ErrMissingUserIdentity means neither the subscription metadata nor the
// owning customer's metadata carries a local user id. Such an event can never
// be reconciled automatically; it is logged and dropped.
var ErrMissingUserIdentity = errors.New("no user identity on subscription or customer metadata")

// EntitlementUpdate is the canonical, provider-agnostic command applied by
// the reconciler.
type EntitlementUpdate struct {
	UserID            string
	CustomerID        string
	SubscriptionID    string
	PriceID           string
	Status            types.EntitlementStatus
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
	// ObservedAt is the provider-side timestamp of the event (or of the API
	// read, for the synchronous path). Used by the reconciler's staleness guard.
	ObservedAt time.Time
}

type Service struct {
	provider stripepf.Provider
	log      *zap.SugaredLogger
}

func NewService(provider stripepf.Provider, log *zap.SugaredLogger) *Service {
	return &Service{provider: provider, log: log}
}

// statusMap is a total function from provider statuses to the local enum.
// Unrecognized statuses (e.g. trialing, which this product never issues) fall
// back to active; permissive by choice so a new provider status does not
// lock paying users out.
var statusMap = map[stripeapi.SubscriptionStatus]types.EntitlementStatus{
	stripeapi.SubscriptionStatusActive:            types.EntitlementStatusActive,
	stripeapi.SubscriptionStatusPastDue:           types.EntitlementStatusPastDue,
	stripeapi.SubscriptionStatusCanceled:          types.EntitlementStatusCanceled,
	stripeapi.SubscriptionStatusIncomplete:        types.EntitlementStatusIncomplete,
	stripeapi.SubscriptionStatusIncompleteExpired: types.EntitlementStatusIncompleteExpired,
	stripeapi.SubscriptionStatusUnpaid:            types.EntitlementStatusUnpaid,
}

// MapStatus converts a provider subscription status into the local enum.
func MapStatus(s stripeapi.SubscriptionStatus) types.EntitlementStatus {
	if mapped, ok := statusMap[s]; ok {
		return mapped
	}
	return types.EntitlementStatusActive
}

// FromSubscription builds the canonical update from a provider subscription
// object. userID must already be resolved; observedAt is the event timestamp
// or, for synchronous reads, the retrieval time.
func FromSubscription(sub *stripeapi.Subscription, userID string, observedAt time.Time) *EntitlementUpdate {
	upd := &EntitlementUpdate{
		UserID:            userID,
		SubscriptionID:    sub.ID,
		Status:            MapStatus(sub.Status),
		PeriodStart:       time.Unix(sub.CurrentPeriodStart, 0),
		PeriodEnd:         time.Unix(sub.CurrentPeriodEnd, 0),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		ObservedAt:        observedAt,
	}
	if sub.Customer != nil {
		upd.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		upd.PriceID = sub.Items.Data[0].Price.ID
	}
	if sub.CanceledAt > 0 {
		upd.CanceledAt = lo.ToPtr(time.Unix(sub.CanceledAt, 0))
	}
	return upd
}

// ResolveUserID finds the local user behind a subscription: first the
// subscription's own metadata, then the owning customer's metadata. Failing
// both returns ErrMissingUserIdentity.
func (s *Service) ResolveUserID(ctx context.Context, sub *stripeapi.Subscription) (string, error) {
	if uid := sub.Metadata[stripepf.UserIDMetadataKey]; uid != "" {
		return uid, nil
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return "", ErrMissingUserIdentity
	}
	cust, err := s.provider.GetCustomer(ctx, sub.Customer.ID)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve customer %s: %w", sub.Customer.ID, err)
	}
	if cust.Deleted {
		return "", ErrMissingUserIdentity
	}
	if uid := cust.Metadata[stripepf.UserIDMetadataKey]; uid != "" {
		return uid, nil
	}
	return "", ErrMissingUserIdentity
}

var Module = fx.Options(
	fx.Provide(NewService),
)
