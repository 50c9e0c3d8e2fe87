package verifier

import (
	"context"
	"testing"
	"time"

	stripeapi "github.com/stripe/stripe-go/v74"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inkwell/paywall/internal/app/service/reconciler"
	stripepf "github.com/inkwell/paywall/internal/platform/stripe"
	"github.com/inkwell/paywall/internal/models"
	"github.com/inkwell/paywall/pkg/types"
)

type stubProvider struct {
	session      *stripeapi.CheckoutSession
	subscription *stripeapi.Subscription
	subFetches   int
}

func (s *stubProvider) ConstructEvent(_ []byte, _ string) (stripeapi.Event, error) {
	panic("not used")
}
func (s *stubProvider) GetCheckoutSession(_ context.Context, _ string) (*stripeapi.CheckoutSession, error) {
	return s.session, nil
}
func (s *stubProvider) GetSubscription(_ context.Context, _ string) (*stripeapi.Subscription, error) {
	s.subFetches++
	return s.subscription, nil
}
func (s *stubProvider) GetCustomer(_ context.Context, _ string) (*stripeapi.Customer, error) {
	panic("not used")
}
func (s *stubProvider) CreateCustomer(_ context.Context, _, _ string) (*stripeapi.Customer, error) {
	panic("not used")
}
func (s *stubProvider) CreateCheckoutSession(_ context.Context, _, _, _ string) (*stripeapi.CheckoutSession, error) {
	panic("not used")
}
func (s *stubProvider) ConfigError() error { return nil }

type memStore struct {
	records []*models.Entitlement
}

func (m *memStore) GetBySubscriptionID(_ context.Context, subscriptionID string) (*models.Entitlement, error) {
	for _, r := range m.records {
		if r.StripeSubscriptionID == subscriptionID {
			return r, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetByCustomerID(_ context.Context, customerID string) (*models.Entitlement, error) {
	for _, r := range m.records {
		if r.StripeCustomerID == customerID {
			return r, nil
		}
	}
	return nil, nil
}

func (m *memStore) Save(_ context.Context, rec *models.Entitlement) error {
	for i, r := range m.records {
		if r.ID == rec.ID {
			m.records[i] = rec
			return nil
		}
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) LatestActiveByUser(_ context.Context, _ string) (*models.Entitlement, error) {
	panic("not used")
}
func (m *memStore) LatestByUser(_ context.Context, _ string) (*models.Entitlement, error) {
	panic("not used")
}

func activeSubscription() *stripeapi.Subscription {
	return &stripeapi.Subscription{
		ID:                 "sub_1",
		Status:             stripeapi.SubscriptionStatusActive,
		CurrentPeriodStart: time.Now().Unix(),
		CurrentPeriodEnd:   time.Now().Add(30 * 24 * time.Hour).Unix(),
		Customer:           &stripeapi.Customer{ID: "cus_1"},
	}
}

func paidSession(sub *stripeapi.Subscription) *stripeapi.CheckoutSession {
	return &stripeapi.CheckoutSession{
		ID:            "cs_1",
		PaymentStatus: stripeapi.CheckoutSessionPaymentStatusPaid,
		Metadata:      map[string]string{stripepf.UserIDMetadataKey: "user-1"},
		Subscription:  sub,
	}
}

func newTestService(provider stripepf.Provider) (*Service, *memStore) {
	store := &memStore{}
	rec := reconciler.NewService(store, zap.NewNop().Sugar())
	return NewService(provider, rec, zap.NewNop().Sugar()), store
}

func TestVerifySession_GrantsEntitlement(t *testing.T) {
	provider := &stubProvider{session: paidSession(activeSubscription())}
	svc, store := newTestService(provider)

	rec, err := svc.VerifySession(context.Background(), "cs_1", "user-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", rec.UserID)
	require.Equal(t, types.EntitlementStatusActive, rec.Status)
	require.Len(t, store.records, 1)
	// Subscription arrived expanded; no extra provider round trip.
	require.Zero(t, provider.subFetches)
}

func TestVerifySession_FetchesUnexpandedSubscription(t *testing.T) {
	provider := &stubProvider{
		session:      paidSession(&stripeapi.Subscription{ID: "sub_1"}),
		subscription: activeSubscription(),
	}
	svc, _ := newTestService(provider)

	rec, err := svc.VerifySession(context.Background(), "cs_1", "user-1")
	require.NoError(t, err)
	require.Equal(t, types.EntitlementStatusActive, rec.Status)
	require.Equal(t, 1, provider.subFetches)
}

func TestVerifySession_RejectsUnpaid(t *testing.T) {
	sess := paidSession(activeSubscription())
	sess.PaymentStatus = stripeapi.CheckoutSessionPaymentStatusUnpaid
	svc, store := newTestService(&stubProvider{session: sess})

	_, err := svc.VerifySession(context.Background(), "cs_1", "user-1")
	require.ErrorIs(t, err, ErrPaymentNotCompleted)
	require.Empty(t, store.records)
}

func TestVerifySession_AllowsNoPaymentRequired(t *testing.T) {
	sess := paidSession(activeSubscription())
	sess.PaymentStatus = stripeapi.CheckoutSessionPaymentStatusNoPaymentRequired
	svc, _ := newTestService(&stubProvider{session: sess})

	_, err := svc.VerifySession(context.Background(), "cs_1", "user-1")
	require.NoError(t, err)
}

func TestVerifySession_RejectsIdentityMismatch(t *testing.T) {
	svc, store := newTestService(&stubProvider{session: paidSession(activeSubscription())})

	_, err := svc.VerifySession(context.Background(), "cs_1", "user-other")
	require.ErrorIs(t, err, ErrIdentityMismatch)
	require.Empty(t, store.records)
}

func TestVerifySession_RejectsSessionWithoutSubscription(t *testing.T) {
	svc, _ := newTestService(&stubProvider{session: paidSession(nil)})

	_, err := svc.VerifySession(context.Background(), "cs_1", "user-1")
	require.ErrorIs(t, err, ErrNoSubscription)
}

func TestVerifySession_ConvergesWithWebhookReplay(t *testing.T) {
	provider := &stubProvider{session: paidSession(activeSubscription())}
	svc, store := newTestService(provider)

	// Verifier and a redelivered webhook both reconcile the same subscription.
	_, err := svc.VerifySession(context.Background(), "cs_1", "user-1")
	require.NoError(t, err)
	_, err = svc.VerifySession(context.Background(), "cs_1", "user-1")
	require.NoError(t, err)
	require.Len(t, store.records, 1)
}
