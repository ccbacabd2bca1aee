package external

import (
	"context"

	"billingsync/internal/types"
)

// WebhookVerifier abstracts payment provider webhook signature checking.
type WebhookVerifier interface {
	// Verify returns nil when header carries a valid signature of payload
	// under secret.
	Verify(payload []byte, header string, secret string) error
}

// EmailProvider transmits pre-rendered email content and returns the
// provider's message id.
type EmailProvider interface {
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}
