package types

import "time"

// Account is the unit of billing. Rows are created at onboarding; the billing
// webhook pipeline only ever updates existing rows.
type Account struct {
	ID                    string
	Name                  string
	OwnerEmail            string
	Plan                  PlanTier
	SubscriptionStatus    SubscriptionStatus
	BillingCustomerID     *string
	BillingSubscriptionID *string
	BillingPriceID        *string
	CurrentPeriodEndsAt   *time.Time
	SubscriptionEndsAt    *time.Time
	SubscriptionStartedAt *time.Time
	UpdatedAt             time.Time
}

// Clone returns a deep copy of the account so transition code can mutate the
// copy without aliasing the caller's pointers.
func (a Account) Clone() Account {
	out := a
	out.BillingCustomerID = cloneString(a.BillingCustomerID)
	out.BillingSubscriptionID = cloneString(a.BillingSubscriptionID)
	out.BillingPriceID = cloneString(a.BillingPriceID)
	out.CurrentPeriodEndsAt = cloneTime(a.CurrentPeriodEndsAt)
	out.SubscriptionEndsAt = cloneTime(a.SubscriptionEndsAt)
	out.SubscriptionStartedAt = cloneTime(a.SubscriptionStartedAt)
	return out
}

// Notification is an owner notification produced by a reconciliation.
type Notification struct {
	Kind       NotificationKind
	AccountID  string
	OwnerEmail string
	Plan       PlanTier
	EventID    string
	OccurredAt time.Time
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
