package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"billingsync/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher serializes owner notifications onto the billing notification
// queue consumed by the notify worker.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

func NewSQSPublisher(client SQSSender, queueURL string, logger *slog.Logger) *SQSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Publish sends one message per notification. The message id is fresh per
// call; consumers deduplicate on event_id + kind if they need to.
func (p *SQSPublisher) Publish(ctx context.Context, n types.Notification) error {
	msg := types.BillingNotificationMessage{
		MessageID:  uuid.NewString(),
		Kind:       n.Kind,
		AccountID:  n.AccountID,
		OwnerEmail: n.OwnerEmail,
		Plan:       n.Plan,
		EventID:    n.EventID,
		OccurredAt: n.OccurredAt,
		TraceID:    types.GetRequestID(ctx),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notification publisher: failed to marshal message: %w", err)
	}

	// kind is mirrored as an attribute so subscriptions can filter on it.
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Kind)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue, "failed to enqueue billing notification", err)
	}

	p.logger.InfoContext(ctx, "billing notification enqueued",
		"message_id", msg.MessageID,
		"kind", string(msg.Kind),
		"account_id", msg.AccountID,
		"event_id", msg.EventID,
	)
	return nil
}

// LogPublisher only logs notifications. Used in local runs without a queue.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, n types.Notification) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "billing notification (no queue configured)",
		"kind", string(n.Kind),
		"account_id", n.AccountID,
		"event_id", n.EventID,
	)
	return nil
}
