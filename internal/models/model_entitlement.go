package models

import (
	"time"

	"github.com/inkwell/paywall/pkg/types"
)

// Entitlement is the canonical per-subscription record derived from billing
// provider events. Rows are never deleted; cancellation is a status
// transition, so a user can accumulate historical rows across re-subscribes.
// Access decisions read the most recently created active row for the user.
type Entitlement struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(64);not null;index:idx_entitlement_user_id" json:"user_id"`
	// StripeCustomerID is stable for the user's lifetime.
	StripeCustomerID string `gorm:"column:stripe_customer_id;type:varchar(64);not null;index" json:"stripe_customer_id"`
	// StripeSubscriptionID changes when the user re-subscribes after a cancellation.
	StripeSubscriptionID string                  `gorm:"column:stripe_subscription_id;type:varchar(64);not null;uniqueIndex" json:"stripe_subscription_id"`
	Status               types.EntitlementStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	PriceID              string                  `gorm:"column:price_id;type:varchar(64);not null" json:"price_id"`
	CurrentPeriodStart   time.Time               `gorm:"column:current_period_start" json:"current_period_start"`
	CurrentPeriodEnd     time.Time               `gorm:"column:current_period_end" json:"current_period_end"`
	CancelAtPeriodEnd    bool                    `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	// CanceledAt is non-nil iff Status is canceled.
	CanceledAt *time.Time `gorm:"column:canceled_at;default:null" json:"canceled_at"`
	// ProviderObservedAt is the provider-side event/object timestamp of the
	// last applied reconciliation; the reconciler rejects older overwrites.
	ProviderObservedAt time.Time `gorm:"column:provider_observed_at" json:"provider_observed_at"`
	// CreatedAt is managed by GORM and records the creation time.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is managed by GORM and records the last reconciliation time.
	UpdatedAt time.Time `json:"updated_at"`
}

func (Entitlement) TableName() string {
	return "entitlement"
}

func (e *Entitlement) Granting() bool {
	return e != nil && e.Status == types.EntitlementStatusActive
}
