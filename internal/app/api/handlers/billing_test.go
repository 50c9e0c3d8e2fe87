package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	stripeapi "github.com/stripe/stripe-go/v74"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inkwell/paywall/internal/app/service/reconciler"
	"github.com/inkwell/paywall/internal/app/service/verifier"
	stripepf "github.com/inkwell/paywall/internal/platform/stripe"
)

type stubSessionProvider struct {
	stubWebhookProvider
	session *stripeapi.CheckoutSession
}

func (s *stubSessionProvider) GetCheckoutSession(_ context.Context, _ string) (*stripeapi.CheckoutSession, error) {
	return s.session, nil
}

func newBillingRouter(provider stripepf.Provider, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()
	rec := reconciler.NewService(nilStore{}, log)
	v := verifier.NewService(provider, rec, log)

	r := gin.New()
	group := r.Group("/api/v1/billing")
	group.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
		}
	})
	RegisterBillingRoutes(group, v, nil, log)
	return r
}

func postVerifySession(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/verify-session", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func paidTestSession(userID string) *stripeapi.CheckoutSession {
	return &stripeapi.CheckoutSession{
		ID:            "cs_1",
		PaymentStatus: stripeapi.CheckoutSessionPaymentStatusPaid,
		Metadata:      map[string]string{stripepf.UserIDMetadataKey: userID},
		Subscription: &stripeapi.Subscription{
			ID:                 "sub_1",
			Status:             stripeapi.SubscriptionStatusActive,
			CurrentPeriodStart: time.Now().Unix(),
			CurrentPeriodEnd:   time.Now().Add(30 * 24 * time.Hour).Unix(),
			Customer:           &stripeapi.Customer{ID: "cus_1"},
		},
	}
}

func TestApiVerifySession_Success(t *testing.T) {
	provider := &stubSessionProvider{session: paidTestSession("user-1")}
	r := newBillingRouter(provider, "user-1")

	w := postVerifySession(r, `{"session_id":"cs_1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"success":true`)
	require.Contains(t, w.Body.String(), "sub_1")
}

func TestApiVerifySession_MissingSessionID(t *testing.T) {
	r := newBillingRouter(&stubSessionProvider{}, "user-1")

	w := postVerifySession(r, `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "session_id is required")
}

func TestApiVerifySession_Unauthenticated(t *testing.T) {
	r := newBillingRouter(&stubSessionProvider{}, "")

	w := postVerifySession(r, `{"session_id":"cs_1"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestApiVerifySession_IdentityMismatch(t *testing.T) {
	provider := &stubSessionProvider{session: paidTestSession("user-other")}
	r := newBillingRouter(provider, "user-1")

	w := postVerifySession(r, `{"session_id":"cs_1"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "session user ID mismatch")
}

func TestApiVerifySession_UnpaidSession(t *testing.T) {
	sess := paidTestSession("user-1")
	sess.PaymentStatus = stripeapi.CheckoutSessionPaymentStatusUnpaid
	r := newBillingRouter(&stubSessionProvider{session: sess}, "user-1")

	w := postVerifySession(r, `{"session_id":"cs_1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
