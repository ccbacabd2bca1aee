package billing

import (
	"encoding/json"
	"time"
)

// ExpandableID decodes a provider reference that is either a bare id string
// or an expanded object carrying an "id" field.
type ExpandableID string

func (x *ExpandableID) UnmarshalJSON(b []byte) error {
	if isNullJSON(b) {
		*x = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*x = ExpandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*x = ExpandableID(obj.ID)
	return nil
}

func (x ExpandableID) String() string { return string(x) }

// SubscriptionRef is the subscription field of a checkout session: an id, or
// the full subscription when the session was fetched with expansion.
type SubscriptionRef struct {
	ID       string
	Expanded *Subscription
}

func (r *SubscriptionRef) UnmarshalJSON(b []byte) error {
	if isNullJSON(b) {
		*r = SubscriptionRef{}
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &r.ID)
	}
	var sub Subscription
	if err := json.Unmarshal(b, &sub); err != nil {
		return err
	}
	r.ID = sub.ID
	r.Expanded = &sub
	return nil
}

// CheckoutSession is the subset of a completed checkout session we read.
type CheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          ExpandableID      `json:"customer"`
	CustomerEmail     string            `json:"customer_email"`
	Subscription      SubscriptionRef   `json:"subscription"`
	PaymentStatus     string            `json:"payment_status"`
	Metadata          map[string]string `json:"metadata"`
	LineItems         *struct {
		Data []struct {
			Price *struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"line_items"`
}

// AccountRef returns the local account id embedded in the session.
func (s *CheckoutSession) AccountRef() string {
	if s.ClientReferenceID != "" {
		return s.ClientReferenceID
	}
	return s.Metadata["account_id"]
}

// PriceID returns the purchased price id, preferring the expanded
// subscription, then line items, then session metadata.
func (s *CheckoutSession) PriceID() string {
	if s.Subscription.Expanded != nil {
		if id := s.Subscription.Expanded.PriceID(); id != "" {
			return id
		}
	}
	if s.LineItems != nil {
		for _, li := range s.LineItems.Data {
			if li.Price != nil && li.Price.ID != "" {
				return li.Price.ID
			}
		}
	}
	return s.Metadata["price_id"]
}

// Subscription is the subset of a provider subscription object we read.
type Subscription struct {
	ID                string            `json:"id"`
	Customer          ExpandableID      `json:"customer"`
	Status            string            `json:"status"`
	Created           int64             `json:"created"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CancelAt          *int64            `json:"cancel_at"`
	CanceledAt        *int64            `json:"canceled_at"`
	EndedAt           *int64            `json:"ended_at"`
	CurrentPeriodEnd  *int64            `json:"current_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []SubscriptionItem `json:"data"`
	} `json:"items"`
}

// SubscriptionItem is one line of a subscription. Newer API versions carry
// the billing period on the item rather than the subscription.
type SubscriptionItem struct {
	ID    string `json:"id"`
	Price *struct {
		ID string `json:"id"`
	} `json:"price"`
	Plan *struct {
		ID string `json:"id"`
	} `json:"plan"`
	CurrentPeriodEnd *int64 `json:"current_period_end"`
}

// PriceID returns the price of the first item, falling back to the legacy
// plan id.
func (s *Subscription) PriceID() string {
	for _, it := range s.Items.Data {
		if it.Price != nil && it.Price.ID != "" {
			return it.Price.ID
		}
		if it.Plan != nil && it.Plan.ID != "" {
			return it.Plan.ID
		}
	}
	return ""
}

// PeriodEnd returns the end of the current billing period, or nil.
func (s *Subscription) PeriodEnd() *time.Time {
	if s.CurrentPeriodEnd != nil {
		return unixPtr(*s.CurrentPeriodEnd)
	}
	for _, it := range s.Items.Data {
		if it.CurrentPeriodEnd != nil {
			return unixPtr(*it.CurrentPeriodEnd)
		}
	}
	return nil
}

// ScheduledCancellation reports whether the subscription will end at a
// future boundary, and that boundary when known.
func (s *Subscription) ScheduledCancellation() (bool, *time.Time) {
	switch {
	case s.CancelAt != nil:
		return true, unixPtr(*s.CancelAt)
	case s.CancelAtPeriodEnd:
		return true, s.PeriodEnd()
	}
	return false, nil
}

// EndedTime returns when the subscription ended: ended_at, then canceled_at,
// then the period end.
func (s *Subscription) EndedTime() *time.Time {
	switch {
	case s.EndedAt != nil:
		return unixPtr(*s.EndedAt)
	case s.CanceledAt != nil:
		return unixPtr(*s.CanceledAt)
	}
	return s.PeriodEnd()
}

// Invoice is the subset of a provider invoice we read.
type Invoice struct {
	ID           string       `json:"id"`
	Customer     ExpandableID `json:"customer"`
	Subscription ExpandableID `json:"subscription"`
	Status       string       `json:"status"`
	PeriodEnd    *int64       `json:"period_end"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription ExpandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Period *struct {
				Start int64 `json:"start"`
				End   int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

// SubscriptionID returns the subscription the invoice bills, checking the
// top-level field and the newer parent.subscription_details location.
func (inv *Invoice) SubscriptionID() string {
	if inv.Subscription != "" {
		return string(inv.Subscription)
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		return string(inv.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

// ServicePeriodEnd returns the latest line period end, falling back to the
// invoice period_end.
func (inv *Invoice) ServicePeriodEnd() *time.Time {
	var latest int64
	for _, l := range inv.Lines.Data {
		if l.Period != nil && l.Period.End > latest {
			latest = l.Period.End
		}
	}
	if latest > 0 {
		return unixPtr(latest)
	}
	if inv.PeriodEnd != nil && *inv.PeriodEnd > 0 {
		return unixPtr(*inv.PeriodEnd)
	}
	return nil
}

func unixPtr(sec int64) *time.Time {
	t := time.Unix(sec, 0).UTC()
	return &t
}
