package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"

	"billingsync/internal/config"
	"billingsync/internal/core"
	"billingsync/internal/notifications"
)

func TestNewLogger_Levels(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		logger := newLogger(in)
		assert.True(t, logger.Enabled(context.Background(), want), in)
		if want > slog.LevelDebug {
			assert.False(t, logger.Enabled(context.Background(), want-1), in)
		}
	}
}

func TestNewPublisher(t *testing.T) {
	cfg := &config.Config{Environment: "local"}
	assert.IsType(t, notifications.LogPublisher{}, newPublisher(cfg, aws.Config{Region: "us-east-1"}, slog.Default()))

	cfg.AWS.BillingNotificationQueue = "https://sqs.us-east-1.amazonaws.com/123456789012/billing"
	cfg.AWS.EndpointURL = "http://localhost:4566"
	assert.IsType(t, &notifications.SQSPublisher{}, newPublisher(cfg, aws.Config{Region: "us-east-1"}, slog.Default()))
}

func TestNewMetrics(t *testing.T) {
	cfg := &config.Config{Environment: "local"}
	cfg.Observability.EnableMetrics = true

	sink, flush := newMetrics(cfg, aws.Config{Region: "us-east-1"}, slog.Default())
	assert.IsType(t, core.NoopMetrics{}, sink)
	assert.Nil(t, flush)

	cfg.Environment = "prod"
	sink, flush = newMetrics(cfg, aws.Config{Region: "us-east-1"}, slog.Default())
	assert.IsType(t, &core.CloudWatchMetrics{}, sink)
	assert.NotNil(t, flush)

	cfg.Observability.EnableMetrics = false
	sink, _ = newMetrics(cfg, aws.Config{Region: "us-east-1"}, slog.Default())
	assert.IsType(t, core.NoopMetrics{}, sink)
}
