package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/inkwell/paywall/internal/app/service/dispatcher"
	"github.com/inkwell/paywall/internal/app/service/event_log"
	stripepf "github.com/inkwell/paywall/internal/platform/stripe"
	"github.com/inkwell/paywall/internal/models"
	"github.com/inkwell/paywall/pkg/logctx"

	"go.uber.org/zap"
)

// maxWebhookBody bounds the raw payload read; Stripe events fit well under this.
const maxWebhookBody = int64(65536)

// @Summary      Stripe Webhook
// @Description  Ingests Stripe billing events. Verifies the Stripe-Signature header against the raw body, acknowledges immediately, and reconciles in the background.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/billing/webhook/stripe [post]
func ApiStripeWebhook(provider stripepf.Provider, disp *dispatcher.Dispatcher, evlog *event_log.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sig := c.GetHeader("Stripe-Signature")
		if sig == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no signature"})
			return
		}

		if err := provider.ConfigError(); err != nil {
			logctx.FromGin(c, log).Errorw("webhook_provider_not_configured", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "billing provider not configured"})
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}

		event, err := provider.ConstructEvent(payload, sig)
		if err != nil {
			logctx.FromGin(c, log).Warnw("webhook_signature_invalid", "err", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
			return
		}

		traceID := c.GetString("traceID")
		evlog.Save(c.Request.Context(), &models.BillingEventLog{
			EventID:   event.ID,
			EventType: string(event.Type),
			TraceID:   traceID,
			EventTime: time.Unix(event.Created, 0),
			Data:      datatypes.JSON(event.Data.Raw),
			Status:    models.BillingEventLogStatusReceived,
		})

		disp.Enqueue(dispatcher.Job{Event: event, TraceID: traceID})
		logctx.FromGin(c, log).Infow("webhook_event_accepted", "event_id", event.ID, "type", event.Type)

		// Acknowledge before reconciliation: the provider must see a response
		// independent of downstream store latency.
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

func RegisterBillingWebhookRoutes(r gin.IRouter, provider stripepf.Provider, disp *dispatcher.Dispatcher, evlog *event_log.Service, log *zap.SugaredLogger) {
	r.POST("/webhook/stripe", ApiStripeWebhook(provider, disp, evlog, log))
}
