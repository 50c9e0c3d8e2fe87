package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkwell/paywall/internal/app/service/checkout"
	"github.com/inkwell/paywall/internal/app/service/verifier"
	stripepf "github.com/inkwell/paywall/internal/platform/stripe"
	"github.com/inkwell/paywall/pkg/logctx"
)

type verifySessionReq struct {
	SessionID string `json:"session_id"`
}

// @Summary      Verify Checkout Session
// @Description  Validates a checkout session right after the billing redirect and grants the entitlement synchronously, without waiting for the webhook.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Param        request body handlers.verifySessionReq true "Checkout session reference"
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /api/v1/billing/verify-session [post]
func ApiVerifySession(v *verifier.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req verifySessionReq
		if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
			return
		}

		rec, err := v.VerifySession(c.Request.Context(), req.SessionID, userID)
		if err != nil {
			logctx.FromGin(c, log).Warnw("verify_session_failed", "session_id", req.SessionID, "err", err)
			switch {
			case errors.Is(err, verifier.ErrPaymentNotCompleted), errors.Is(err, verifier.ErrNoSubscription):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, verifier.ErrIdentityMismatch):
				c.JSON(http.StatusForbidden, gin.H{"error": "session user ID mismatch"})
			case errors.Is(err, stripepf.ErrNotConfigured):
				c.JSON(http.StatusInternalServerError, gin.H{"error": "billing provider not configured"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify session"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"subscription": gin.H{
				"id":      rec.StripeSubscriptionID,
				"status":  rec.Status,
				"user_id": rec.UserID,
			},
		})
	}
}

// @Summary      Start Checkout
// @Description  Creates a subscription checkout session for the caller and returns the redirect URL.
// @Tags         Billing
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/billing/checkout [post]
func ApiCreateCheckout(svc *checkout.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		sess, err := svc.CreateSession(c.Request.Context(), userID, c.GetString("email"))
		if err != nil {
			logctx.FromGin(c, log).Errorw("checkout_session_failed", "err", err)
			switch {
			case errors.Is(err, checkout.ErrNoPriceConfigured), errors.Is(err, stripepf.ErrNotConfigured):
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"sessionId": sess.ID, "url": sess.URL})
	}
}

func RegisterBillingRoutes(r gin.IRouter, v *verifier.Service, svc *checkout.Service, log *zap.SugaredLogger) {
	r.POST("/verify-session", ApiVerifySession(v, log))
	r.POST("/checkout", ApiCreateCheckout(svc, log))
}
