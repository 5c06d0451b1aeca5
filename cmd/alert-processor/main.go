// Package main is the entrypoint for the Alert Processor Lambda function.
//
// The function is subscribed to the alerts SNS topic. Each invocation
// receives a batch of SNS records, unwraps the alert carried by each one and
// fans it out to the outputs it declares ("service:descriptor"), as long as
// the routing configuration bundled with the function lists them.
//
// Cold Start (main):
//  1. Initialize structured logger.
//  2. Load AWS SDK configuration.
//  3. Load process configuration (env, .env, SSM).
//  4. Build the dispatcher registry: real outputs, or logging stubs in
//     local/test mode.
//  5. Initialize CloudWatch metrics when enabled.
//  6. Register Processor.Handle and call lambda.Start.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"alertprocessor/internal/config"
	"alertprocessor/internal/credentials"
	"alertprocessor/internal/dispatch"
	"alertprocessor/internal/external"
	"alertprocessor/internal/outputs"
	"alertprocessor/internal/security"
	"alertprocessor/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies the level methods but With returns *slog.Logger, not
// types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// parseLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	ctx := context.Background()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("Alert Processor Lambda initializing (cold start)")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("Failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(ctx, config.NewSSMProvider(ssm.NewFromConfig(awsCfg)))
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.AWS.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	})).With("version", cfg.Build.Version)
	typedLogger := &slogAdapter{logger: logger}

	processor, err := newProcessor(cfg, awsCfg, typedLogger)
	if err != nil {
		logger.Error("Failed to initialize processor", "error", err)
		os.Exit(1)
	}

	logger.Info("Alert Processor Lambda initialized",
		"environment", cfg.Environment,
		"outputs_config", cfg.Routing.OutputsPath,
		"max_concurrency", cfg.Routing.MaxConcurrency,
		"stubs", cfg.UseStubs(),
		"metrics", cfg.Observability.EnableMetrics,
	)

	lambda.Start(processor.Handle)
}

// newProcessor wires the dispatch pipeline from cfg.
func newProcessor(cfg *config.Config, awsCfg aws.Config, logger types.Logger) (*dispatch.Processor, error) {
	registry := dispatch.NewRegistry(nil)
	if cfg.UseStubs() {
		outputs.RegisterStubs(registry)
	} else {
		deps, err := newOutputDeps(cfg, awsCfg)
		if err != nil {
			return nil, err
		}
		outputs.Register(registry, deps)
	}

	var metrics dispatch.Metrics = dispatch.NopMetrics{}
	if cfg.Observability.EnableMetrics && !cfg.UseStubs() {
		metrics = dispatch.NewCloudWatchMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			cfg.AWS.FunctionName,
			logger,
		)
	}

	orchestrator := dispatch.NewOrchestrator(
		dispatch.WithMaxConcurrency(cfg.Routing.MaxConcurrency),
		dispatch.WithMetrics(metrics),
	)

	return dispatch.NewProcessor(dispatch.ProcessorConfig{
		Registry:     registry,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		Logger:       logger,
		ConfigPath:   cfg.Routing.OutputsPath,
		Region:       cfg.AWS.Region,
		FunctionName: cfg.AWS.FunctionName,
	}), nil
}

// newOutputDeps builds the clients shared by the output dispatchers.
func newOutputDeps(cfg *config.Config, awsCfg aws.Config) (outputs.Deps, error) {
	guard, err := security.NewGuard()
	if err != nil {
		return outputs.Deps{}, fmt.Errorf("create SSRF guard: %w", err)
	}

	var store credentials.Store
	switch cfg.Credentials.Source {
	case "env":
		store = credentials.NewEnvStore(os.LookupEnv)
	default:
		store = credentials.NewSSMStore(ssm.NewFromConfig(awsCfg), cfg.Credentials.Prefix, cfg.Credentials.CacheTTL, nil)
	}

	ua := external.WithUserAgent(cfg.Webhook.UserAgent)
	httpClient := external.NewBaseClient(&http.Client{Timeout: cfg.Webhook.DefaultTimeout}, "outputs", ua)
	webhookClient := external.NewBaseClient(
		guard.NewSafeHTTPClient(cfg.Webhook.DefaultTimeout, cfg.Webhook.MaxRedirects), "webhook", ua)

	return outputs.Deps{
		Credentials:   store,
		HTTP:          httpClient,
		WebhookHTTP:   webhookClient,
		ValidateURL:   guard.Validator(),
		WebhookSecret: cfg.Webhook.SigningSecret,
		Email:         external.NewSESClient(sesv2.NewFromConfig(awsCfg), cfg.Email.ConfigSet),
		Sender:        external.Sender{Name: cfg.Email.FromName, Address: cfg.Email.FromAddress},
		SQS:           sqs.NewFromConfig(awsCfg),
		S3:            s3.NewFromConfig(awsCfg),
		Lambda:        awslambda.NewFromConfig(awsCfg),
		ArchiveBucket: cfg.Archive.Bucket,
	}, nil
}

// Compile-time assertion that slogAdapter implements types.Logger.
var _ types.Logger = (*slogAdapter)(nil)
