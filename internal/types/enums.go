package types

// PlanTier identifies the billing plan of an account. The set is closed; the
// plan catalog may only reference these tiers.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanPro        PlanTier = "pro"
	PlanBusiness   PlanTier = "business"
	PlanEnterprise PlanTier = "enterprise"
)

// Valid reports whether p is one of the known tiers.
func (p PlanTier) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanBusiness, PlanEnterprise:
		return true
	}
	return false
}

// IsPaid reports whether p is a paid tier.
func (p PlanTier) IsPaid() bool {
	return p.Valid() && p != PlanFree
}

// SubscriptionStatus is the local lifecycle state of an account's
// subscription. The zero value means the account has never subscribed.
type SubscriptionStatus string

const (
	SubStatusUnset      SubscriptionStatus = ""
	SubStatusIncomplete SubscriptionStatus = "incomplete"
	SubStatusTrialing   SubscriptionStatus = "trialing"
	SubStatusActive     SubscriptionStatus = "active"
	SubStatusPastDue    SubscriptionStatus = "past_due"
	SubStatusCanceling  SubscriptionStatus = "canceling"
	SubStatusCanceled   SubscriptionStatus = "canceled"
)

// Valid reports whether s is one of the known statuses, including unset.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubStatusUnset, SubStatusIncomplete, SubStatusTrialing, SubStatusActive,
		SubStatusPastDue, SubStatusCanceling, SubStatusCanceled:
		return true
	}
	return false
}

// AllowedOnFree reports whether an account on the free plan may carry s.
// A free account is never active, trialing or canceling.
func (s SubscriptionStatus) AllowedOnFree() bool {
	switch s {
	case SubStatusUnset, SubStatusIncomplete, SubStatusPastDue, SubStatusCanceled:
		return true
	}
	return false
}

// NotificationKind identifies an owner notification raised by a billing
// state transition.
type NotificationKind string

const (
	NotifyPaymentFailed        NotificationKind = "payment_failed"
	NotifySubscriptionCanceled NotificationKind = "subscription_canceled"
)
