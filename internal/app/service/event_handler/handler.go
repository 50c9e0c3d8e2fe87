package event_handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripeapi "github.com/stripe/stripe-go/v74"
	"go.uber.org/zap"

	"github.com/inkwell/paywall/internal/app/service/entitlement"
	"github.com/inkwell/paywall/internal/app/service/normalizer"
	"github.com/inkwell/paywall/internal/app/service/reconciler"
	stripepf "github.com/inkwell/paywall/internal/platform/stripe"
	"github.com/inkwell/paywall/pkg/logctx"
	"github.com/inkwell/paywall/pkg/types"
)

// EventHandler turns verified provider events into entitlement
// reconciliations. It runs on the dispatcher worker, after the webhook
// response has already been sent; errors here are logged and counted, never
// surfaced to the provider.
type EventHandler struct {
	provider stripepf.Provider
	norm     *normalizer.Service
	rec      *reconciler.Service
	store    entitlement.Store
	log      *zap.SugaredLogger
}

func NewEventHandler(provider stripepf.Provider, norm *normalizer.Service, rec *reconciler.Service, store entitlement.Store, log *zap.SugaredLogger) *EventHandler {
	return &EventHandler{provider: provider, norm: norm, rec: rec, store: store, log: log}
}

// HandleEvent applies one provider event. Unrecognized event types are a
// successful no-op; the provider already got its acknowledgement.
func (h *EventHandler) HandleEvent(ctx context.Context, event stripeapi.Event) error {
	observedAt := time.Unix(event.Created, 0)

	switch event.Type {
	case "checkout.session.completed":
		return h.handleCheckoutCompleted(ctx, event, observedAt)
	case "customer.subscription.created", "customer.subscription.updated":
		return h.handleSubscriptionChanged(ctx, event, observedAt)
	case "customer.subscription.deleted":
		return h.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_succeeded":
		return h.handleInvoicePaid(ctx, event, observedAt)
	case "invoice.payment_failed":
		return h.handleInvoiceFailed(ctx, event, observedAt)
	default:
		logctx.FromCtx(ctx, h.log).Infow("billing_event_ignored", "type", event.Type)
		return nil
	}
}

func (h *EventHandler) handleCheckoutCompleted(ctx context.Context, event stripeapi.Event, observedAt time.Time) error {
	var sess stripeapi.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to decode checkout session: %w", err)
	}

	userID := sess.Metadata[stripepf.UserIDMetadataKey]
	if userID == "" {
		logctx.FromCtx(ctx, h.log).Errorw("checkout_session_missing_user", "session_id", sess.ID)
		return normalizer.ErrMissingUserIdentity
	}
	if sess.Subscription == nil || sess.Subscription.ID == "" {
		// One-off payment sessions carry no subscription; nothing to reconcile.
		logctx.FromCtx(ctx, h.log).Warnw("checkout_session_without_subscription", "session_id", sess.ID)
		return nil
	}

	sub, err := h.provider.GetSubscription(ctx, sess.Subscription.ID)
	if err != nil {
		return fmt.Errorf("failed to retrieve subscription %s: %w", sess.Subscription.ID, err)
	}

	_, err = h.rec.Reconcile(ctx, normalizer.FromSubscription(sub, userID, observedAt))
	return err
}

func (h *EventHandler) handleSubscriptionChanged(ctx context.Context, event stripeapi.Event, observedAt time.Time) error {
	var sub stripeapi.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to decode subscription: %w", err)
	}

	userID, err := h.resolveUser(ctx, &sub)
	if err != nil {
		if errors.Is(err, normalizer.ErrMissingUserIdentity) {
			logctx.FromCtx(ctx, h.log).Errorw("subscription_event_missing_user",
				"type", event.Type, "subscription_id", sub.ID)
		}
		return err
	}

	_, err = h.rec.Reconcile(ctx, normalizer.FromSubscription(&sub, userID, observedAt))
	return err
}

func (h *EventHandler) handleSubscriptionDeleted(ctx context.Context, event stripeapi.Event) error {
	var sub stripeapi.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to decode subscription: %w", err)
	}
	_, err := h.rec.Cancel(ctx, sub.ID, time.Now())
	return err
}

func (h *EventHandler) handleInvoicePaid(ctx context.Context, event stripeapi.Event, observedAt time.Time) error {
	subID, err := invoiceSubscriptionID(event)
	if err != nil || subID == "" {
		return err
	}

	sub, err := h.provider.GetSubscription(ctx, subID)
	if err != nil {
		return fmt.Errorf("failed to retrieve subscription %s: %w", subID, err)
	}
	userID, err := h.resolveUser(ctx, sub)
	if err != nil {
		if errors.Is(err, normalizer.ErrMissingUserIdentity) {
			logctx.FromCtx(ctx, h.log).Errorw("invoice_event_missing_user", "subscription_id", subID)
		}
		return err
	}

	_, err = h.rec.Reconcile(ctx, normalizer.FromSubscription(sub, userID, observedAt))
	return err
}

// handleInvoiceFailed marks an existing record past_due, or backfills a new
// one when the failure webhook won the race against subscription creation.
// An unresolvable failure event is dropped: without a user identity it is not
// actionable.
func (h *EventHandler) handleInvoiceFailed(ctx context.Context, event stripeapi.Event, observedAt time.Time) error {
	subID, err := invoiceSubscriptionID(event)
	if err != nil || subID == "" {
		return err
	}

	rec, err := h.rec.MarkPastDue(ctx, subID, observedAt)
	if err != nil {
		return err
	}
	if rec != nil {
		return nil
	}

	sub, err := h.provider.GetSubscription(ctx, subID)
	if err != nil {
		logctx.FromCtx(ctx, h.log).Warnw("payment_failed_subscription_lookup_failed",
			"subscription_id", subID, "err", err)
		return nil
	}
	userID, err := h.norm.ResolveUserID(ctx, sub)
	if err != nil {
		logctx.FromCtx(ctx, h.log).Warnw("payment_failed_unresolvable", "subscription_id", subID, "err", err)
		return nil
	}

	upd := normalizer.FromSubscription(sub, userID, observedAt)
	upd.Status = types.EntitlementStatusPastDue
	_, err = h.rec.Reconcile(ctx, upd)
	return err
}

// resolveUser prefers the identity already recorded for the subscription;
// the metadata fallback chain only runs for first-contact events.
func (h *EventHandler) resolveUser(ctx context.Context, sub *stripeapi.Subscription) (string, error) {
	existing, err := h.store.GetBySubscriptionID(ctx, sub.ID)
	if err != nil {
		return "", fmt.Errorf("failed to look up entitlement: %w", err)
	}
	if existing != nil {
		return existing.UserID, nil
	}
	return h.norm.ResolveUserID(ctx, sub)
}

func invoiceSubscriptionID(event stripeapi.Event) (string, error) {
	var inv stripeapi.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return "", fmt.Errorf("failed to decode invoice: %w", err)
	}
	if inv.Subscription == nil {
		return "", nil
	}
	return inv.Subscription.ID, nil
}
