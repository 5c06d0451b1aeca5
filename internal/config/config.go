// Package config defines the process configuration of the alert processor.
// Configuration is loaded once per Lambda cold start and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format makes Load fail, and main
// refuses to start.
package config

import (
	"time"

	"alertprocessor/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration of the processor.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"prod" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	Routing       RoutingConfig
	AWS           AWSConfig
	Credentials   CredentialsConfig
	Observability ObservabilityConfig
	Webhook       WebhookConfig
	Email         EmailConfig
	Archive       ArchiveConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// UseStubs reports whether outputs should be replaced by logging stubs.
func (c *Config) UseStubs() bool {
	return c.IsTestMode || c.Environment == localEnv
}

// RoutingConfig controls how alerts are routed to outputs.
type RoutingConfig struct {
	OutputsPath    string `envconfig:"OUTPUTS_CONFIG_PATH" default:"conf/outputs.json" validate:"required"`
	MaxConcurrency int    `envconfig:"MAX_CONCURRENCY" default:"4" validate:"min=1,max=64"`
}

// AWSConfig holds regional configuration. Region and FunctionName are only
// fallbacks: inside Lambda both come from the invocation context.
type AWSConfig struct {
	Region       string `envconfig:"AWS_REGION" default:"us-east-1"`
	FunctionName string `envconfig:"FUNCTION_NAME" default:"alert_processor"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// CredentialsConfig locates per-output credentials.
type CredentialsConfig struct {
	// Source is "ssm" (Parameter Store) or "env" (OUTPUT_CREDENTIALS_* variables).
	Source string `envconfig:"CREDENTIALS_SOURCE" default:"ssm" validate:"oneof=ssm env"`
	// Prefix is the SSM path under which "<service>/<descriptor>" parameters live.
	Prefix   string        `envconfig:"CREDENTIALS_PREFIX" default:"/alertprocessor/outputs" validate:"startswith=/"`
	CacheTTL time.Duration `envconfig:"CREDENTIALS_CACHE_TTL" default:"5m"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"AlertProcessor"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// WebhookConfig holds settings for HTTP outputs.
type WebhookConfig struct {
	UserAgent      string        `envconfig:"WEBHOOK_USER_AGENT" default:"AlertProcessor/1.0"`
	DefaultTimeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
	MaxRedirects   int           `envconfig:"WEBHOOK_MAX_REDIRECTS" default:"3" validate:"min=0,max=10"`
	// SigningSecret signs webhook outputs whose credentials carry no secret.
	SigningSecret SecretString `envconfig:"WEBHOOK_SIGNING_SECRET"`
}

// EmailConfig holds the sender identity for the email output.
type EmailConfig struct {
	FromAddress string `envconfig:"EMAIL_FROM_ADDRESS" default:"alerts@example.com" validate:"email"`
	FromName    string `envconfig:"EMAIL_FROM_NAME" default:"Security Alerts"`
	ConfigSet   string `envconfig:"SES_CONFIG_SET"`
}

// ArchiveConfig configures the aws-s3 output.
type ArchiveConfig struct {
	// Bucket is used for aws-s3 descriptors with no bucket of their own.
	Bucket string `envconfig:"ARCHIVE_BUCKET"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
