package types

import "time"

// BillingNotificationMessage is the SQS payload handed from the webhook API to
// the notify worker. JSON tags are snake_case to match the queue contract.
type BillingNotificationMessage struct {
	MessageID  string           `json:"message_id"`
	Kind       NotificationKind `json:"kind"`
	AccountID  string           `json:"account_id"`
	OwnerEmail string           `json:"owner_email"`
	Plan       PlanTier         `json:"plan"`
	EventID    string           `json:"event_id"`
	OccurredAt time.Time        `json:"occurred_at"`
	TraceID    string           `json:"trace_id,omitempty"`
}

// SendInput carries pre-rendered email content to an EmailProvider.
type SendInput struct {
	To          string
	FromAddress string
	FromName    string
	Subject     string
	BodyText    string
	ReferenceID string
}
