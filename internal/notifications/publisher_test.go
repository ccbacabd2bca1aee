package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billingsync/internal/types"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func sampleNotification() types.Notification {
	return types.Notification{
		Kind:       types.NotifyPaymentFailed,
		AccountID:  "acct_1",
		OwnerEmail: "owner@example.com",
		Plan:       types.PlanPro,
		EventID:    "evt_1",
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSQSPublisher_Publish(t *testing.T) {
	client := &fakeSQS{}
	p := NewSQSPublisher(client, "https://sqs.local/queue/billing", nil)

	ctx := types.WithRequestID(context.Background(), "req-42")
	require.NoError(t, p.Publish(ctx, sampleNotification()))
	require.Len(t, client.inputs, 1)

	in := client.inputs[0]
	assert.Equal(t, "https://sqs.local/queue/billing", *in.QueueUrl)
	assert.Equal(t, "payment_failed", *in.MessageAttributes["kind"].StringValue)

	var msg types.BillingNotificationMessage
	require.NoError(t, json.Unmarshal([]byte(*in.MessageBody), &msg))
	assert.NotEmpty(t, msg.MessageID)
	assert.Equal(t, types.NotifyPaymentFailed, msg.Kind)
	assert.Equal(t, "acct_1", msg.AccountID)
	assert.Equal(t, "owner@example.com", msg.OwnerEmail)
	assert.Equal(t, types.PlanPro, msg.Plan)
	assert.Equal(t, "evt_1", msg.EventID)
	assert.Equal(t, "req-42", msg.TraceID)
	assert.True(t, msg.OccurredAt.Equal(sampleNotification().OccurredAt))
}

func TestSQSPublisher_PublishFailure(t *testing.T) {
	client := &fakeSQS{err: errors.New("throttled")}
	p := NewSQSPublisher(client, "q", nil)

	err := p.Publish(context.Background(), sampleNotification())
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamQueue, appErr.Code)
}

func TestSQSPublisher_FreshMessageIDs(t *testing.T) {
	client := &fakeSQS{}
	p := NewSQSPublisher(client, "q", nil)

	require.NoError(t, p.Publish(context.Background(), sampleNotification()))
	require.NoError(t, p.Publish(context.Background(), sampleNotification()))

	var a, b types.BillingNotificationMessage
	require.NoError(t, json.Unmarshal([]byte(*client.inputs[0].MessageBody), &a))
	require.NoError(t, json.Unmarshal([]byte(*client.inputs[1].MessageBody), &b))
	assert.NotEqual(t, a.MessageID, b.MessageID)
}

func TestLogPublisher(t *testing.T) {
	var p Publisher = LogPublisher{}
	assert.NoError(t, p.Publish(context.Background(), sampleNotification()))
}
