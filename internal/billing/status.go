package billing

import "billingsync/internal/types"

// providerStatuses is the single mapping from provider subscription status
// strings onto the local enum.
var providerStatuses = map[string]types.SubscriptionStatus{
	"active":             types.SubStatusActive,
	"trialing":           types.SubStatusTrialing,
	"past_due":           types.SubStatusPastDue,
	"unpaid":             types.SubStatusPastDue,
	"incomplete":         types.SubStatusIncomplete,
	"incomplete_expired": types.SubStatusCanceled,
	"canceled":           types.SubStatusCanceled,
	"paused":             types.SubStatusPastDue,
}

// MapProviderStatus maps a provider status string. ok is false for statuses
// outside the table; callers keep the existing local status in that case.
func MapProviderStatus(raw string) (status types.SubscriptionStatus, ok bool) {
	status, ok = providerStatuses[raw]
	return status, ok
}
