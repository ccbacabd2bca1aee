package billing

import (
	"errors"

	"billingsync/internal/types"
)

// Terminal failures of the reconciliation pipeline. AccountNotFound and
// unhandled event types are Outcomes, not errors.
var (
	ErrSignatureInvalid = errors.New("billing: signature invalid")
	ErrMalformedPayload = errors.New("billing: malformed payload")
	ErrPersistence      = errors.New("billing: persistence failure")
)

// isNotFound reports whether err is the repository's account-not-found error.
func isNotFound(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundAccount
}
