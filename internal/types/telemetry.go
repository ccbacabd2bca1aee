package types

// CloudWatch metric names and dimensions. Components must use these constants.
const (
	MetricAPILatency      = "APILatency"
	MetricAPIRequestCount = "APIRequestCount"
	MetricWebhookOutcome  = "WebhookOutcome"

	DimEndpoint  = "Endpoint"
	DimMethod    = "Method"
	DimStatus    = "Status"
	DimEventType = "EventType"
	DimOutcome   = "Outcome"

	MetricNamespace = "BillingSync"
)
