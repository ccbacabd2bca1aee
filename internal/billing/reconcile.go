package billing

import (
	"time"

	"billingsync/internal/types"
)

// Result is the outcome of applying one event to one account. The transition
// functions below are pure: they never touch storage and never mutate their
// input account.
type Result struct {
	Account      types.Account
	Notification *types.Notification
	Changed      bool

	// Diagnostics for the caller to log.
	UnknownPriceID string
	UnknownStatus  string
}

// ApplyCheckoutCompleted links the account to the customer and subscription
// created by checkout.
func ApplyCheckoutCompleted(acct types.Account, s *CheckoutSession, plans PlanResolver, at time.Time) Result {
	if s.Subscription.ID == "" {
		return unchanged(acct)
	}
	next := acct.Clone()
	res := Result{}

	if s.Customer != "" {
		next.BillingCustomerID = types.StringPtr(string(s.Customer))
	}
	next.BillingSubscriptionID = types.StringPtr(s.Subscription.ID)

	if sub := s.Subscription.Expanded; sub != nil {
		if mapped, ok := MapProviderStatus(sub.Status); ok && mapped == types.SubStatusCanceled {
			if acct.BillingSubscriptionID != nil && *acct.BillingSubscriptionID != sub.ID {
				return unchanged(acct)
			}
			// Never held by the account; nothing to tell the owner.
			out := finish(acct, cancelSubscription(next, sub), res, at)
			out.Notification = nil
			return out
		}
		res.UnknownStatus = applyProviderStatus(&next, sub)
		if end := sub.PeriodEnd(); end != nil {
			next.CurrentPeriodEndsAt = end
		}
	} else {
		switch s.PaymentStatus {
		case "paid", "no_payment_required":
			next.SubscriptionStatus = types.SubStatusActive
		default:
			next.SubscriptionStatus = types.SubStatusIncomplete
		}
	}

	priceID := s.PriceID()
	if plan, ok := plans.ResolvePlan(priceID); ok {
		next.Plan = plan
	} else {
		res.UnknownPriceID = priceID
		if next.Plan == "" {
			next.Plan = types.PlanFree
		}
	}
	if priceID != "" {
		next.BillingPriceID = types.StringPtr(priceID)
	}

	return finish(acct, next, res, at)
}

// ApplySubscriptionChange applies a subscription created or updated event.
// An unresolvable price keeps the current plan.
func ApplySubscriptionChange(acct types.Account, sub *Subscription, plans PlanResolver, at time.Time) Result {
	if mapped, ok := MapProviderStatus(sub.Status); ok && mapped == types.SubStatusCanceled {
		return ApplySubscriptionDeleted(acct, sub, at)
	}

	next := acct.Clone()
	res := Result{}

	if next.BillingSubscriptionID == nil {
		next.BillingSubscriptionID = types.StringPtr(sub.ID)
	}
	if next.BillingCustomerID == nil && sub.Customer != "" {
		next.BillingCustomerID = types.StringPtr(string(sub.Customer))
	}

	res.UnknownStatus = applyProviderStatus(&next, sub)
	if end := sub.PeriodEnd(); end != nil {
		next.CurrentPeriodEndsAt = end
	}

	priceID := sub.PriceID()
	if plan, ok := plans.ResolvePlan(priceID); ok {
		next.Plan = plan
	} else if priceID != "" {
		res.UnknownPriceID = priceID
	}
	if priceID != "" {
		next.BillingPriceID = types.StringPtr(priceID)
	}

	return finish(acct, next, res, at)
}

// ApplySubscriptionDeleted downgrades the account to free. Accounts already
// downgraded are left untouched.
func ApplySubscriptionDeleted(acct types.Account, sub *Subscription, at time.Time) Result {
	if acct.SubscriptionStatus == types.SubStatusCanceled &&
		acct.Plan == types.PlanFree &&
		acct.BillingSubscriptionID == nil {
		return unchanged(acct)
	}
	return finish(acct, cancelSubscription(acct.Clone(), sub), Result{}, at)
}

func cancelSubscription(next types.Account, sub *Subscription) types.Account {
	next.SubscriptionStatus = types.SubStatusCanceled
	next.Plan = types.PlanFree
	next.BillingSubscriptionID = nil
	next.BillingPriceID = nil
	if ended := sub.EndedTime(); ended != nil {
		next.SubscriptionEndsAt = ended
	}
	return next
}

// ApplyPaymentFailed moves the account to past_due. Invoices without a
// subscription, or billing a subscription other than the account's current
// one, are ignored, as are accounts already past_due or canceled.
func ApplyPaymentFailed(acct types.Account, inv *Invoice, at time.Time) Result {
	if !billsCurrentSubscription(acct, inv) {
		return unchanged(acct)
	}
	switch acct.SubscriptionStatus {
	case types.SubStatusPastDue, types.SubStatusCanceled:
		return unchanged(acct)
	}
	next := acct.Clone()
	next.SubscriptionStatus = types.SubStatusPastDue
	return finish(acct, next, Result{}, at)
}

// ApplyPaymentSucceeded reactivates the account and refreshes the period
// end. Invoices without a subscription, or billing a subscription other than
// the account's current one, are ignored. A scheduled cancellation stays
// scheduled.
func ApplyPaymentSucceeded(acct types.Account, inv *Invoice, at time.Time) Result {
	if !billsCurrentSubscription(acct, inv) {
		return unchanged(acct)
	}
	next := acct.Clone()
	if next.SubscriptionStatus != types.SubStatusCanceling {
		next.SubscriptionStatus = types.SubStatusActive
	}
	if end := inv.ServicePeriodEnd(); end != nil {
		next.CurrentPeriodEndsAt = end
	}
	return finish(acct, next, Result{}, at)
}

func billsCurrentSubscription(acct types.Account, inv *Invoice) bool {
	subID := inv.SubscriptionID()
	return subID != "" && acct.BillingSubscriptionID != nil && *acct.BillingSubscriptionID == subID
}

// CanAdoptSubscription reports whether an account found by customer id may
// take sub as its subscription. The account must not hold another
// subscription, sub must not be terminal, and a subscription created before
// the account's previous one ended is treated as stale. Without a recorded
// end, the account's last update stands in; with neither, adoption is refused.
func CanAdoptSubscription(acct types.Account, sub *Subscription) bool {
	if acct.BillingSubscriptionID != nil {
		return *acct.BillingSubscriptionID == sub.ID
	}
	if mapped, ok := MapProviderStatus(sub.Status); ok && mapped == types.SubStatusCanceled {
		return false
	}
	if acct.SubscriptionStatus != types.SubStatusCanceled {
		return true
	}
	cutoff := acct.SubscriptionEndsAt
	if cutoff == nil && !acct.UpdatedAt.IsZero() {
		cutoff = &acct.UpdatedAt
	}
	if cutoff == nil {
		return false
	}
	return sub.Created > 0 && time.Unix(sub.Created, 0).After(*cutoff)
}

// applyProviderStatus maps the provider status onto next, honoring scheduled
// cancellation. It returns the raw status when it is not in the mapping
// table; the account's status is then left as is.
func applyProviderStatus(next *types.Account, sub *Subscription) string {
	mapped, ok := MapProviderStatus(sub.Status)
	if !ok {
		return sub.Status
	}

	scheduled, endsAt := sub.ScheduledCancellation()
	switch {
	case scheduled && (mapped == types.SubStatusActive || mapped == types.SubStatusTrialing):
		next.SubscriptionStatus = types.SubStatusCanceling
		next.SubscriptionEndsAt = endsAt
	case mapped == types.SubStatusCanceled:
		next.SubscriptionStatus = mapped
		if ended := sub.EndedTime(); ended != nil {
			next.SubscriptionEndsAt = ended
		}
	default:
		next.SubscriptionStatus = mapped
		// Cancellation revoked.
		if !scheduled {
			next.SubscriptionEndsAt = nil
		}
	}
	return ""
}

// finish enforces account invariants, detects change, and decides whether
// the transition warrants an owner notification.
func finish(before, next types.Account, res Result, at time.Time) Result {
	if next.Plan == types.PlanFree && !next.SubscriptionStatus.AllowedOnFree() {
		next.SubscriptionStatus = types.SubStatusIncomplete
	}
	if next.SubscriptionStatus == types.SubStatusActive && next.SubscriptionStartedAt == nil {
		started := at
		next.SubscriptionStartedAt = &started
	}

	res.Account = next
	res.Changed = !sameBillingState(before, next)
	if !res.Changed || before.SubscriptionStatus == next.SubscriptionStatus {
		return res
	}

	var kind types.NotificationKind
	switch next.SubscriptionStatus {
	case types.SubStatusPastDue:
		kind = types.NotifyPaymentFailed
	case types.SubStatusCanceled:
		kind = types.NotifySubscriptionCanceled
	default:
		return res
	}
	res.Notification = &types.Notification{
		Kind:       kind,
		AccountID:  before.ID,
		OwnerEmail: before.OwnerEmail,
		Plan:       before.Plan,
		OccurredAt: at,
	}
	return res
}

func unchanged(acct types.Account) Result {
	return Result{Account: acct}
}

func sameBillingState(a, b types.Account) bool {
	return a.Plan == b.Plan &&
		a.SubscriptionStatus == b.SubscriptionStatus &&
		eqString(a.BillingCustomerID, b.BillingCustomerID) &&
		eqString(a.BillingSubscriptionID, b.BillingSubscriptionID) &&
		eqString(a.BillingPriceID, b.BillingPriceID) &&
		eqTime(a.CurrentPeriodEndsAt, b.CurrentPeriodEndsAt) &&
		eqTime(a.SubscriptionEndsAt, b.SubscriptionEndsAt) &&
		eqTime(a.SubscriptionStartedAt, b.SubscriptionStartedAt)
}

func eqString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
