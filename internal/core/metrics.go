package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"billingsync/internal/types"
)

const (
	metricsBufferSize    = 1024
	metricsFlushInterval = 10 * time.Second
	metricsMaxBatch      = 500
	metricsFlushTimeout  = 5 * time.Second
)

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics buffers datums in memory and ships them in batches from
// Run, so recording never adds a network round trip to a request. Datums
// recorded while the buffer is full are dropped.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
	interval  time.Duration

	data chan cwtypes.MetricDatum

	mu      sync.Mutex
	dropped int
}

func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
		interval:  metricsFlushInterval,
		data:      make(chan cwtypes.MetricDatum, metricsBufferSize),
	}
}

// RecordRequest implements MetricsCollector.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(types.DimMethod), Value: aws.String(method)},
		{Name: aws.String(types.DimStatus), Value: aws.String(status)},
	}
	now := time.Now()
	m.record(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAPILatency),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Timestamp:  aws.Time(now),
		Dimensions: dims,
	})
	m.record(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAPIRequestCount),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Timestamp:  aws.Time(now),
		Dimensions: dims,
	})
}

// RecordWebhook counts one processed webhook by event type and outcome.
func (m *CloudWatchMetrics) RecordWebhook(eventType, outcome string) {
	m.record(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricWebhookOutcome),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Timestamp:  aws.Time(time.Now()),
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimEventType), Value: aws.String(eventType)},
			{Name: aws.String(types.DimOutcome), Value: aws.String(outcome)},
		},
	})
}

func (m *CloudWatchMetrics) record(d cwtypes.MetricDatum) {
	select {
	case m.data <- d:
	default:
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
	}
}

// Run flushes buffered datums every interval until ctx is canceled, then
// performs a final flush.
func (m *CloudWatchMetrics) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), metricsFlushTimeout)
			m.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			m.Flush(ctx)
		}
	}
}

// Flush sends everything currently buffered.
func (m *CloudWatchMetrics) Flush(ctx context.Context) {
	m.mu.Lock()
	dropped := m.dropped
	m.dropped = 0
	m.mu.Unlock()
	if dropped > 0 {
		m.logger.Warn("metric datums dropped: buffer full", "dropped", dropped)
	}

	batch := make([]cwtypes.MetricDatum, 0, metricsMaxBatch)
	for {
		select {
		case d := <-m.data:
			batch = append(batch, d)
			if len(batch) == metricsMaxBatch {
				m.put(ctx, batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				m.put(ctx, batch)
			}
			return
		}
	}
}

func (m *CloudWatchMetrics) put(ctx context.Context, batch []cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: append([]cwtypes.MetricDatum(nil), batch...),
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to put metric data",
			"error", err.Error(),
			"datums", len(batch),
		)
	}
}

// NoopMetrics discards everything. Used when metrics are disabled.
type NoopMetrics struct{}

func (NoopMetrics) RecordRequest(_, _, _ string, _ time.Duration) {}
func (NoopMetrics) RecordWebhook(_, _ string)                    {}
