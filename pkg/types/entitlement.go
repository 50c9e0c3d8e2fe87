package types

// EntitlementStatus is the local subscription status enum. Values mirror the
// provider's wire strings so stored rows stay greppable against provider
// dashboards.
type EntitlementStatus string

const (
	EntitlementStatusActive            EntitlementStatus = "active"
	EntitlementStatusPastDue           EntitlementStatus = "past_due"
	EntitlementStatusCanceled          EntitlementStatus = "canceled"
	EntitlementStatusIncomplete        EntitlementStatus = "incomplete"
	EntitlementStatusIncompleteExpired EntitlementStatus = "incomplete_expired"
	EntitlementStatusUnpaid            EntitlementStatus = "unpaid"
)
