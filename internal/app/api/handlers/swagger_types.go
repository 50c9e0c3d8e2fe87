package handlers

import (
	"time"

	"github.com/inkwell/paywall/pkg/response"
	types "github.com/inkwell/paywall/pkg/types"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespEntitlement wraps the entitlement record in the standard envelope.
type RespEntitlement struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    SwaggerEntitlement       `json:"data"`
}

// SwaggerEntitlement is a simplified view of models.Entitlement for documentation purposes.
type SwaggerEntitlement struct {
	ID                   string                  `json:"id"`
	UserID               string                  `json:"user_id"`
	StripeCustomerID     string                  `json:"stripe_customer_id"`
	StripeSubscriptionID string                  `json:"stripe_subscription_id"`
	Status               types.EntitlementStatus `json:"status"`
	PriceID              string                  `json:"price_id"`
	CurrentPeriodStart   time.Time               `json:"current_period_start"`
	CurrentPeriodEnd     time.Time               `json:"current_period_end"`
	CancelAtPeriodEnd    bool                    `json:"cancel_at_period_end"`
	CanceledAt           *time.Time              `json:"canceled_at"`
	CreatedAt            time.Time               `json:"created_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
}
