package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/inkwell/paywall/pkg/config"
)

// ErrNotConfigured is returned by every Provider method when the Stripe
// credentials failed validation at construction. Handlers map it to a 500 for
// the affected request; a misconfigured key never crashes the process.
var ErrNotConfigured = errors.New("stripe provider is not configured")

// Provider is the billing provider surface the services depend on. Tests
// substitute a fake; production wires the stripe-go client.
type Provider interface {
	// ConstructEvent verifies the webhook signature over the raw body and
	// decodes the event envelope.
	ConstructEvent(payload []byte, sigHeader string) (stripeapi.Event, error)
	// GetCheckoutSession retrieves a checkout session with the subscription expanded.
	GetCheckoutSession(ctx context.Context, id string) (*stripeapi.CheckoutSession, error)
	GetSubscription(ctx context.Context, id string) (*stripeapi.Subscription, error)
	GetCustomer(ctx context.Context, id string) (*stripeapi.Customer, error)
	CreateCustomer(ctx context.Context, email, userID string) (*stripeapi.Customer, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID, userID string) (*stripeapi.CheckoutSession, error)
	// ConfigError reports the validation failure recorded at construction, if any.
	ConfigError() error
}

type stripeProvider struct {
	api           *client.API
	webhookSecret string
	siteURL       string
	cfgErr        error
}

// New validates the configured credentials once and returns a stateless
// client handle. Validation failures are recorded, not fatal: the handle is
// still returned and every call reports ErrNotConfigured.
func New(cfg *cfgpkg.Config, log *zap.SugaredLogger) Provider {
	p := &stripeProvider{
		webhookSecret: strings.TrimSpace(cfg.Stripe.WebhookSecret),
		siteURL:       cfg.Stripe.SiteURL,
	}

	key := strings.TrimSpace(cfg.Stripe.SecretKey)
	switch {
	case key == "":
		p.cfgErr = fmt.Errorf("%w: secret key is empty", ErrNotConfigured)
	case !strings.HasPrefix(key, "sk_test_") && !strings.HasPrefix(key, "sk_live_"):
		p.cfgErr = fmt.Errorf("%w: secret key has unexpected format", ErrNotConfigured)
	case p.webhookSecret != "" && !strings.HasPrefix(p.webhookSecret, "whsec_"):
		p.cfgErr = fmt.Errorf("%w: webhook secret has unexpected format", ErrNotConfigured)
	}
	if p.cfgErr != nil {
		log.Warnw("stripe_provider_not_configured", "err", p.cfgErr)
		return p
	}

	api := &client.API{}
	api.Init(key, nil)
	p.api = api
	log.Infow("stripe_provider_ready", "live", strings.HasPrefix(key, "sk_live_"))
	return p
}

func (p *stripeProvider) ConfigError() error { return p.cfgErr }

func (p *stripeProvider) ConstructEvent(payload []byte, sigHeader string) (stripeapi.Event, error) {
	if p.cfgErr != nil {
		return stripeapi.Event{}, p.cfgErr
	}
	if p.webhookSecret == "" {
		return stripeapi.Event{}, fmt.Errorf("%w: webhook secret is empty", ErrNotConfigured)
	}
	// The account's webhook API version trails the SDK pin; signature over the
	// raw body is the authenticity check, not the version field.
	return webhook.ConstructEventWithOptions(payload, sigHeader, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

func (p *stripeProvider) GetCheckoutSession(ctx context.Context, id string) (*stripeapi.CheckoutSession, error) {
	if p.cfgErr != nil {
		return nil, p.cfgErr
	}
	params := &stripeapi.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")
	return p.api.CheckoutSessions.Get(id, params)
}

func (p *stripeProvider) GetSubscription(ctx context.Context, id string) (*stripeapi.Subscription, error) {
	if p.cfgErr != nil {
		return nil, p.cfgErr
	}
	params := &stripeapi.SubscriptionParams{}
	params.Context = ctx
	return p.api.Subscriptions.Get(id, params)
}

func (p *stripeProvider) GetCustomer(ctx context.Context, id string) (*stripeapi.Customer, error) {
	if p.cfgErr != nil {
		return nil, p.cfgErr
	}
	params := &stripeapi.CustomerParams{}
	params.Context = ctx
	return p.api.Customers.Get(id, params)
}

func (p *stripeProvider) CreateCustomer(ctx context.Context, email, userID string) (*stripeapi.Customer, error) {
	if p.cfgErr != nil {
		return nil, p.cfgErr
	}
	params := &stripeapi.CustomerParams{Email: stripeapi.String(email)}
	params.Context = ctx
	params.AddMetadata(UserIDMetadataKey, userID)
	return p.api.Customers.New(params)
}

func (p *stripeProvider) CreateCheckoutSession(ctx context.Context, customerID, priceID, userID string) (*stripeapi.CheckoutSession, error) {
	if p.cfgErr != nil {
		return nil, p.cfgErr
	}
	params := &stripeapi.CheckoutSessionParams{
		Customer:           stripeapi.String(customerID),
		Mode:               stripeapi.String(string(stripeapi.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{Price: stripeapi.String(priceID), Quantity: stripeapi.Int64(1)},
		},
		SubscriptionData: &stripeapi.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{UserIDMetadataKey: userID},
		},
		SuccessURL: stripeapi.String(strings.TrimRight(p.siteURL, "/") + "/dashboard?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripeapi.String(strings.TrimRight(p.siteURL, "/") + "/subscribe"),
	}
	params.Context = ctx
	params.AddMetadata(UserIDMetadataKey, userID)
	return p.api.CheckoutSessions.New(params)
}

// UserIDMetadataKey is the metadata field carrying the local user identifier
// on Stripe sessions, subscriptions and customers. It is the only link back
// from provider objects to local identity.
const UserIDMetadataKey = "user_id"

var Module = fx.Options(
	fx.Provide(New),
)
