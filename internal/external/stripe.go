package external

import (
	"errors"

	"github.com/stripe/stripe-go/v82/webhook"

	"billingsync/internal/billing"
)

// StripeSignatureHeader carries "t=<unix>,v1=<hex hmac>" on provider webhooks.
const StripeSignatureHeader = "Stripe-Signature"

// StripeVerifier checks HMAC-SHA256 signatures over "{t}.{body}" using
// stripe-go. Any v1 digest may match. The timestamp is not checked against a
// tolerance window.
type StripeVerifier struct{}

// Verify returns an error wrapping billing.ErrSignatureInvalid on a missing
// or malformed header or a digest mismatch.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	if header == "" {
		return errors.Join(billing.ErrSignatureInvalid, webhook.ErrNotSigned)
	}
	if secret == "" {
		return errors.Join(billing.ErrSignatureInvalid, errors.New("webhook signing secret not configured"))
	}
	if err := webhook.ValidatePayloadIgnoringTolerance(payload, header, secret); err != nil {
		return errors.Join(billing.ErrSignatureInvalid, err)
	}
	return nil
}

var _ WebhookVerifier = (*StripeVerifier)(nil)
