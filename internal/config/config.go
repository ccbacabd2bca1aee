// Package config defines the process configuration for the billing sync API
// and the notify worker. Configuration is loaded once at startup and is
// immutable thereafter.
//
// Values are resolved in priority order:
//
//	OS Environment (Highest) -> Dotenv File
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"billingsync/internal/types"
)

// SecretString is an alias for types.SecretString so secrets stay redacted in
// config dumps and logs.
type SecretString = types.SecretString

// Config is the configuration of the webhook API process.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"billingsync-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Billing       BillingConfig
	Notify        NotifyConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2" validate:"min=0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	ConnectTimeout    time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"5s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS region and resource identifiers.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Required outside local; see validateEnvironment.
	BillingNotificationQueue string `envconfig:"SQS_BILLING_NOTIFICATIONS" validate:"omitempty,url"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// BillingConfig holds the payment provider webhook settings and the plan
// catalog location.
type BillingConfig struct {
	WebhookSecret   SecretString `envconfig:"BILLING_WEBHOOK_SECRET" validate:"required"`
	PlanCatalogPath string       `envconfig:"PLAN_CATALOG_PATH" default:"config/plans.yml" validate:"required"`
}

// NotifyConfig sizes the in-process notification dispatcher.
type NotifyConfig struct {
	QueueSize   int           `envconfig:"NOTIFY_QUEUE_SIZE" default:"256" validate:"min=1"`
	Workers     int           `envconfig:"NOTIFY_WORKERS" default:"2" validate:"min=1,max=64"`
	SendTimeout time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"5s"`
}

// SecurityConfig holds admin access settings. An empty hash disables the
// admin endpoints.
type SecurityConfig struct {
	AdminAPIKeyHash SecretString `envconfig:"ADMIN_API_KEY_HASH"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"BillingSync"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// WorkerConfig is the configuration of the notify worker Lambda.
type WorkerConfig struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	AWS   AWSConfig
	Email EmailConfig

	Build BuildInfo
}

// EmailConfig holds email delivery provider credentials.
type EmailConfig struct {
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY" validate:"required"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"billing@example.com" validate:"email"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"Billing"`
	DashboardURL   string       `envconfig:"DASHBOARD_URL" default:"http://localhost:3000" validate:"url"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing    ConfigErrorType = "PARSING_FAILED"
)
