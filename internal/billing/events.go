package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the closed set of provider events this service reconciles.
type EventType string

const (
	EventCheckoutCompleted       EventType = "checkout_completed"
	EventSubscriptionCreated     EventType = "subscription_created"
	EventSubscriptionUpdated     EventType = "subscription_updated"
	EventSubscriptionDeleted     EventType = "subscription_deleted"
	EventInvoicePaymentFailed    EventType = "invoice_payment_failed"
	EventInvoicePaymentSucceeded EventType = "invoice_payment_succeeded"
)

// eventTags accepts the provider's native tags and the neutral aliases.
var eventTags = map[string]EventType{
	"checkout.session.completed":    EventCheckoutCompleted,
	"checkout_session.completed":    EventCheckoutCompleted,
	"customer.subscription.created": EventSubscriptionCreated,
	"subscription.created":          EventSubscriptionCreated,
	"customer.subscription.updated": EventSubscriptionUpdated,
	"subscription.updated":          EventSubscriptionUpdated,
	"customer.subscription.deleted": EventSubscriptionDeleted,
	"subscription.deleted":          EventSubscriptionDeleted,
	"invoice.payment_failed":        EventInvoicePaymentFailed,
	"invoice.payment_succeeded":     EventInvoicePaymentSucceeded,
	"invoice.paid":                  EventInvoicePaymentSucceeded,
}

// Route maps an event type tag to its EventType. ok is false for tags this
// service does not handle; that is not an error.
func Route(tag string) (EventType, bool) {
	et, ok := eventTags[tag]
	return et, ok
}

// Envelope is a parsed provider event. Object holds the raw data.object.
type Envelope struct {
	ID       string
	Type     string
	Created  time.Time
	Livemode bool
	Object   json.RawMessage
}

type rawEnvelope struct {
	ID       string  `json:"id"`
	Type     *string `json:"type"`
	Created  int64   `json:"created"`
	Livemode bool    `json:"livemode"`
	Data     *struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEnvelope decodes a verified payload. type and data.object are
// required; any failure wraps ErrMalformedPayload.
func ParseEnvelope(payload []byte) (*Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw.Type == nil || *raw.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	if raw.Data == nil || isNullJSON(raw.Data.Object) {
		return nil, fmt.Errorf("%w: missing data.object", ErrMalformedPayload)
	}

	env := &Envelope{
		ID:       raw.ID,
		Type:     *raw.Type,
		Livemode: raw.Livemode,
		Object:   raw.Data.Object,
	}
	if raw.Created > 0 {
		env.Created = time.Unix(raw.Created, 0).UTC()
	}
	return env, nil
}

// DecodeObject unmarshals data.object into dst.
func (e *Envelope) DecodeObject(dst any) error {
	if err := json.Unmarshal(e.Object, dst); err != nil {
		return fmt.Errorf("%w: data.object for %s: %v", ErrMalformedPayload, e.Type, err)
	}
	return nil
}

func isNullJSON(b json.RawMessage) bool {
	t := bytes.TrimSpace(b)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
