package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billingsync/internal/notifications/email"
	"billingsync/internal/types"
)

type mockSender struct {
	sent []types.SendInput
	err  error
}

func (m *mockSender) Send(_ context.Context, in types.SendInput) (string, error) {
	m.sent = append(m.sent, in)
	if m.err != nil {
		return "", m.err
	}
	return "sg-" + in.ReferenceID, nil
}

func newTestHandler(t *testing.T, sender *mockSender) *Handler {
	t.Helper()
	renderer, err := email.NewRenderer(email.RendererConfig{
		DashboardURL: "https://app.example.com",
		FromName:     "Billing",
	})
	require.NoError(t, err)
	return &Handler{
		renderer:    renderer,
		sender:      sender,
		fromAddress: "billing@example.com",
		fromName:    "Billing",
		logger:      slog.Default(),
	}
}

func record(t *testing.T, id string, msg types.BillingNotificationMessage) events.SQSMessage {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return events.SQSMessage{
		MessageId: id,
		Body:      string(body),
		Attributes: map[string]string{
			"SentTimestamp": strconv.FormatInt(time.Now().Add(-time.Second).UnixMilli(), 10),
		},
	}
}

func notification(kind types.NotificationKind) types.BillingNotificationMessage {
	return types.BillingNotificationMessage{
		MessageID:  "msg-1",
		Kind:       kind,
		AccountID:  "acct_1",
		OwnerEmail: "owner@example.com",
		Plan:       types.PlanPro,
		EventID:    "evt_1",
		OccurredAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestHandle_SendsRenderedEmail(t *testing.T) {
	sender := &mockSender{}
	h := newTestHandler(t, sender)

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		record(t, "r1", notification(types.NotifyPaymentFailed)),
		record(t, "r2", notification(types.NotifySubscriptionCanceled)),
	}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "owner@example.com", sender.sent[0].To)
	assert.Equal(t, "billing@example.com", sender.sent[0].FromAddress)
	assert.Equal(t, "Action required: Payment failed", sender.sent[0].Subject)
	assert.Equal(t, "msg-1", sender.sent[0].ReferenceID)
	assert.Equal(t, "Your subscription has been canceled", sender.sent[1].Subject)
}

func TestHandle_TransientFailureIsRetried(t *testing.T) {
	sender := &mockSender{err: types.NewAppError(types.ErrCodeUpstreamUnavailable, "sendgrid unavailable", nil)}
	h := newTestHandler(t, sender)

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		record(t, "r1", notification(types.NotifyPaymentFailed)),
	}})
	require.NoError(t, err)
	assert.Equal(t, []events.SQSBatchItemFailure{{ItemIdentifier: "r1"}}, resp.BatchItemFailures)
}

func TestHandle_PermanentFailuresAreAcknowledged(t *testing.T) {
	blocked := &mockSender{err: types.NewAppError(types.ErrCodeEmailBlocked, "blocked", nil)}
	noEmail := notification(types.NotifyPaymentFailed)
	noEmail.OwnerEmail = ""

	tests := []struct {
		name   string
		sender *mockSender
		rec    func(t *testing.T) events.SQSMessage
		sends  int
	}{
		{
			name:   "unparseable body",
			sender: &mockSender{},
			rec: func(*testing.T) events.SQSMessage {
				return events.SQSMessage{MessageId: "r1", Body: "{not json"}
			},
		},
		{
			name:   "unknown kind",
			sender: &mockSender{},
			rec: func(t *testing.T) events.SQSMessage {
				return record(t, "r1", notification(types.NotificationKind("refund")))
			},
		},
		{
			name:   "missing owner email",
			sender: &mockSender{},
			rec:    func(t *testing.T) events.SQSMessage { return record(t, "r1", noEmail) },
		},
		{
			name:   "recipient blocked",
			sender: blocked,
			rec: func(t *testing.T) events.SQSMessage {
				return record(t, "r1", notification(types.NotifyPaymentFailed))
			},
			sends: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.sender)
			resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{tt.rec(t)}})
			require.NoError(t, err)
			assert.Empty(t, resp.BatchItemFailures)
			assert.Len(t, tt.sender.sent, tt.sends)
		})
	}
}

func TestHandle_PartialBatch(t *testing.T) {
	sender := &flakySender{failFor: "fail@example.com"}
	renderer, err := email.NewRenderer(email.RendererConfig{DashboardURL: "https://app.example.com"})
	require.NoError(t, err)
	h := &Handler{renderer: renderer, sender: sender, logger: slog.Default()}

	bad := notification(types.NotifyPaymentFailed)
	bad.OwnerEmail = "fail@example.com"

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		record(t, "ok", notification(types.NotifyPaymentFailed)),
		record(t, "bad", bad),
	}})
	require.NoError(t, err)
	assert.Equal(t, []events.SQSBatchItemFailure{{ItemIdentifier: "bad"}}, resp.BatchItemFailures)
}

type flakySender struct{ failFor string }

func (f *flakySender) Send(_ context.Context, in types.SendInput) (string, error) {
	if in.To == f.failFor {
		return "", errors.New("connection reset")
	}
	return "sg-1", nil
}

func TestQueueLag(t *testing.T) {
	_, ok := queueLag(events.SQSMessage{})
	assert.False(t, ok)

	_, ok = queueLag(events.SQSMessage{Attributes: map[string]string{"SentTimestamp": "abc"}})
	assert.False(t, ok)

	lag, ok := queueLag(events.SQSMessage{Attributes: map[string]string{
		"SentTimestamp": strconv.FormatInt(time.Now().Add(-2*time.Second).UnixMilli(), 10),
	}})
	assert.True(t, ok)
	assert.GreaterOrEqual(t, lag, 2*time.Second)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
