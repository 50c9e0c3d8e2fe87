package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inkwell/paywall/internal/app/service/gate"
	"github.com/inkwell/paywall/internal/models"
	cfgpkg "github.com/inkwell/paywall/pkg/config"
	"github.com/inkwell/paywall/pkg/types"
)

type fixedStore struct {
	active *models.Entitlement
}

func (f *fixedStore) GetBySubscriptionID(_ context.Context, _ string) (*models.Entitlement, error) {
	panic("not used")
}
func (f *fixedStore) GetByCustomerID(_ context.Context, _ string) (*models.Entitlement, error) {
	panic("not used")
}
func (f *fixedStore) Save(_ context.Context, _ *models.Entitlement) error { panic("not used") }
func (f *fixedStore) LatestActiveByUser(_ context.Context, _ string) (*models.Entitlement, error) {
	return f.active, nil
}
func (f *fixedStore) LatestByUser(_ context.Context, _ string) (*models.Entitlement, error) {
	panic("not used")
}

const subscribeURL = "http://localhost:3000/subscribe"

func newGateRouter(store *fixedStore, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &cfgpkg.Config{Gate: cfgpkg.GateConfig{MaxAttempts: 1, RetryDelayMS: 1}}
	g := gate.NewService(store, cfg, zap.NewNop().Sugar())

	r := gin.New()
	r.GET("/dashboard",
		func(c *gin.Context) {
			if userID != "" {
				c.Set("user_id", userID)
			}
		},
		RequireSubscription(g, subscribeURL),
		func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) },
	)
	return r
}

func TestRequireSubscription_GrantsActiveUser(t *testing.T) {
	store := &fixedStore{active: &models.Entitlement{UserID: "user-1", Status: types.EntitlementStatusActive}}
	r := newGateRouter(store, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequireSubscription_RedirectsWithoutEntitlement(t *testing.T) {
	r := newGateRouter(&fixedStore{}, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, subscribeURL, w.Header().Get("Location"))
}

func TestRequireSubscription_SessionIDBypassesGate(t *testing.T) {
	// Fresh from checkout: no entitlement row yet, but the session_id parameter
	// lets the request through so the verifier can finish.
	r := newGateRouter(&fixedStore{}, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/dashboard?session_id=cs_1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequireSubscription_MissingUser(t *testing.T) {
	r := newGateRouter(&fixedStore{}, "")

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
