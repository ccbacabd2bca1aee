// Package handlers contains the HTTP handlers of the billing sync API.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"billingsync/internal/billing"
	"billingsync/internal/core"
	"billingsync/internal/external"
	"billingsync/internal/types"
)

// maxWebhookBodySize caps provider payloads at 64 KB.
const maxWebhookBodySize = 64 * 1024

// Outcome labels for rejected deliveries; accepted deliveries use the
// reconciler's Outcome.
const (
	outcomeSignatureInvalid = "signature_invalid"
	outcomeMalformed        = "malformed_payload"
	outcomePersistenceError = "persistence_failure"
)

// WebhookReconciler applies a verified, parsed event.
type WebhookReconciler interface {
	Reconcile(ctx context.Context, env *billing.Envelope) (billing.Outcome, error)
}

// WebhookMetrics counts processed deliveries.
type WebhookMetrics interface {
	RecordWebhook(eventType, outcome string)
}

// BillingWebhookHandler receives payment provider events. It sits outside any
// auth middleware; the signature header is the only credential.
type BillingWebhookHandler struct {
	verifier   external.WebhookVerifier
	reconciler WebhookReconciler
	secret     types.SecretString
	metrics    WebhookMetrics
	logger     *slog.Logger
}

func NewBillingWebhookHandler(
	verifier external.WebhookVerifier,
	reconciler WebhookReconciler,
	secret types.SecretString,
	metrics WebhookMetrics,
	logger *slog.Logger,
) *BillingWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = core.NoopMetrics{}
	}
	return &BillingWebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		secret:     secret,
		metrics:    metrics,
		logger:     logger,
	}
}

func (h *BillingWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/billing", h.Handle)
}

type webhookAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// Handle answers 200 once the event is durably applied or deliberately
// ignored, 400 when the delivery cannot be trusted or understood, and 500
// when the write failed so the provider retries.
func (h *BillingWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "billing webhook body unreadable", "error", err)
		h.reject(w, r, "", outcomeMalformed,
			types.NewAppError(types.ErrCodeValidationMalformedPayload, "request body could not be read", err))
		return
	}

	// Verify before parsing: unauthenticated bytes are never interpreted.
	if err := h.verifier.Verify(payload, r.Header.Get(external.StripeSignatureHeader), h.secret.Unmask()); err != nil {
		h.logger.WarnContext(ctx, "billing webhook signature rejected",
			"error", err,
			"body_bytes", len(payload),
		)
		h.reject(w, r, "", outcomeSignatureInvalid,
			types.NewAppError(types.ErrCodeValidationSignature, "webhook signature verification failed", err))
		return
	}

	env, err := billing.ParseEnvelope(payload)
	if err != nil {
		h.logger.WarnContext(ctx, "billing webhook payload malformed", "error", err)
		h.reject(w, r, "", outcomeMalformed,
			types.NewAppError(types.ErrCodeValidationMalformedPayload, "webhook payload is malformed", err))
		return
	}

	ctx = types.WithEventID(ctx, env.ID)
	outcome, err := h.reconciler.Reconcile(ctx, env)
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrMalformedPayload):
		h.logger.WarnContext(ctx, "billing webhook payload malformed",
			"event_id", env.ID,
			"event_type", env.Type,
			"error", err,
		)
		h.reject(w, r, env.Type, outcomeMalformed,
			types.NewAppError(types.ErrCodeValidationMalformedPayload, "webhook payload is malformed", err))
		return
	default:
		h.logger.ErrorContext(ctx, "billing webhook not applied, provider will retry",
			"event_id", env.ID,
			"event_type", env.Type,
			"error", err,
		)
		h.reject(w, r, env.Type, outcomePersistenceError,
			types.NewAppError(types.ErrCodeInternalDB, "event could not be applied", err))
		return
	}

	h.metrics.RecordWebhook(metricEventType(env.Type), string(outcome))
	core.JSON(w, r, http.StatusOK, webhookAck{Received: true, Outcome: string(outcome)})
}

func (h *BillingWebhookHandler) reject(w http.ResponseWriter, r *http.Request, tag, outcome string, err *types.AppError) {
	h.metrics.RecordWebhook(metricEventType(tag), outcome)
	core.Error(w, r, err)
}

// metricEventType collapses unknown provider tags so a noisy sender cannot
// create unbounded metric dimensions.
func metricEventType(tag string) string {
	if et, ok := billing.Route(tag); ok {
		return string(et)
	}
	return "other"
}
