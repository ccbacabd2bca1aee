// Package main is the entrypoint for the notify worker Lambda.
//
// The worker consumes billing notification messages from SQS, renders the
// owner email for the notification kind and sends it through SendGrid.
// Transient send failures are reported as partial batch failures so SQS
// redelivers only those records; malformed or undeliverable messages are
// acknowledged and logged.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"billingsync/internal/config"
	"billingsync/internal/external"
	"billingsync/internal/notifications/email"
	"billingsync/internal/types"
)

// Renderer turns a queue message into email content.
type Renderer interface {
	Render(msg types.BillingNotificationMessage) (*email.RenderedEmail, error)
}

// Handler holds the dependencies of the Lambda handler.
type Handler struct {
	renderer    Renderer
	sender      external.EmailProvider
	fromAddress string
	fromName    string
	logger      *slog.Logger
}

// Handle processes a batch. Each record is independent.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var response events.SQSEventResponse

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "billing notification send failed, will retry",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}
	return response, nil
}

// processMessage returns an error only when a retry could succeed.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var msg types.BillingNotificationMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.ErrorContext(ctx, "dropping unparseable billing notification",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}

	logger := h.logger.With(
		"message_id", msg.MessageID,
		"kind", string(msg.Kind),
		"account_id", msg.AccountID,
		"event_id", msg.EventID,
		"trace_id", msg.TraceID,
	)
	if lag, ok := queueLag(record); ok {
		logger = logger.With("queue_lag_ms", lag.Milliseconds())
	}

	if msg.OwnerEmail == "" {
		logger.WarnContext(ctx, "account has no owner email, notification skipped")
		return nil
	}

	content, err := h.renderer.Render(msg)
	if err != nil {
		logger.ErrorContext(ctx, "dropping billing notification that cannot be rendered", "error", err.Error())
		return nil
	}

	providerID, err := h.sender.Send(ctx, types.SendInput{
		To:          msg.OwnerEmail,
		FromAddress: h.fromAddress,
		FromName:    h.fromName,
		Subject:     content.Subject,
		BodyText:    content.BodyText,
		ReferenceID: msg.MessageID,
	})
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeEmailBlocked {
			logger.WarnContext(ctx, "recipient blocked by email provider, notification dropped",
				"to", email.RedactAddress(msg.OwnerEmail),
			)
			return nil
		}
		return fmt.Errorf("send %s to %s: %w", msg.Kind, email.RedactAddress(msg.OwnerEmail), err)
	}

	logger.InfoContext(ctx, "billing notification sent",
		"to", email.RedactAddress(msg.OwnerEmail),
		"provider_message_id", providerID,
	)
	return nil
}

// queueLag is the time since SQS accepted the record.
func queueLag(record events.SQSMessage) (time.Duration, bool) {
	raw, ok := record.Attributes["SentTimestamp"]
	if !ok {
		return 0, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return time.Since(time.UnixMilli(ms)), true
}

func main() {
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	logger.Info("notify worker initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	renderer, err := email.NewRenderer(email.RendererConfig{
		DashboardURL: cfg.Email.DashboardURL,
		FromName:     cfg.Email.FromName,
	})
	if err != nil {
		logger.Error("failed to initialize email renderer", "error", err)
		os.Exit(1)
	}

	sender := external.NewSendGridClient(
		&http.Client{Timeout: 10 * time.Second},
		nil,
		external.SendGridClientConfig{
			APIKey: cfg.Email.SendGridAPIKey.Unmask(),
			Logger: logger,
		},
	)

	h := &Handler{
		renderer:    renderer,
		sender:      sender,
		fromAddress: cfg.Email.FromAddress,
		fromName:    cfg.Email.FromName,
		logger:      logger,
	}
	lambda.Start(h.Handle)
}

func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
