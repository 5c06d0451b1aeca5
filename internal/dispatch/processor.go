package dispatch

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"alertprocessor/internal/routing"
	"alertprocessor/internal/types"
)

// Event is the SNS batch delivered to the function.
type Event struct {
	Records []Record `json:"Records"`
}

// Record is one entry of an Event. Sns is nil for records delivered by other
// event sources.
type Record struct {
	EventSource string            `json:"EventSource"`
	Sns         *events.SNSEntity `json:"Sns,omitempty"`
}

// ProcessorConfig holds the dependencies of a Processor.
type ProcessorConfig struct {
	Registry     *Registry
	Orchestrator *Orchestrator
	Metrics      Metrics
	Logger       types.Logger

	// ConfigPath is the routing configuration file, read on every invocation.
	ConfigPath string

	// Region and FunctionName are used when the invocation context carries
	// no function ARN, e.g. in local runs.
	Region       string
	FunctionName string
}

// Processor is the batch entry point of the function.
type Processor struct {
	registry     *Registry
	orchestrator *Orchestrator
	metrics      Metrics
	logger       types.Logger
	configPath   string
	region       string
	functionName string
}

// NewProcessor creates a Processor, filling in defaults for unset fields.
func NewProcessor(cfg ProcessorConfig) *Processor {
	p := &Processor{
		registry:     cfg.Registry,
		orchestrator: cfg.Orchestrator,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		configPath:   cfg.ConfigPath,
		region:       cfg.Region,
		functionName: cfg.FunctionName,
	}
	if p.registry == nil {
		p.registry = NewRegistry(nil)
	}
	if p.orchestrator == nil {
		p.orchestrator = NewOrchestrator(WithMetrics(p.metrics))
	}
	if p.metrics == nil {
		p.metrics = NopMetrics{}
	}
	if p.logger == nil {
		p.logger = types.NopLogger{}
	}
	if p.configPath == "" {
		p.configPath = routing.DefaultConfigPath
	}
	return p
}

// Handle processes one SNS batch and returns the outcome of every dispatch
// attempt. Problems with individual records or outputs are logged and
// skipped; an unusable routing configuration aborts the batch with no
// results. The returned error is always nil.
func (p *Processor) Handle(ctx context.Context, event Event) ([]Result, error) {
	logger := p.logger
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		logger = logger.With("request_id", lc.AwsRequestID)
		ctx = types.WithRequestID(ctx, lc.AwsRequestID)
	}

	logger.Info("running alert processor", "record_count", len(event.Records))
	p.metrics.RecordRecords(ctx, len(event.Records))

	cfg, err := routing.LoadConfig(p.configPath)
	if err != nil {
		code := types.CodeOf(err)
		logger.Error("failed to load routing config",
			"path", p.configPath,
			"code", string(code),
			"scope", code.Scope(),
			"error", err.Error(),
		)
		p.metrics.RecordConfigFailure(ctx)
		return nil, nil
	}

	region, functionName := p.invocationTarget(ctx)
	dispatchers := p.registry.NewCache(Env{
		Region:       region,
		FunctionName: functionName,
		Routing:      cfg,
		Logger:       logger,
	})

	results := []Result{}
	for i, record := range event.Records {
		if record.Sns == nil {
			continue
		}

		envelope, err := DecodeEnvelope(record.Sns.Message)
		if err != nil {
			code := types.CodeOf(err)
			if code == types.ErrCodeEnvelopeIgnored {
				continue
			}
			logger.Error("skipping SNS record",
				"record_index", i,
				"message_id", record.Sns.MessageID,
				"code", string(code),
				"scope", code.Scope(),
				"error", err.Error(),
			)
			continue
		}

		results = append(results, p.orchestrator.Run(ctx, envelope, dispatchers)...)
	}

	return results, nil
}

// invocationTarget returns the region and function name of the running
// function. The region is the fourth field of the invoked function ARN.
func (p *Processor) invocationTarget(ctx context.Context) (string, string) {
	region, functionName := p.region, p.functionName

	if lc, ok := lambdacontext.FromContext(ctx); ok {
		if parts := strings.Split(lc.InvokedFunctionArn, ":"); len(parts) > 3 && parts[3] != "" {
			region = parts[3]
		}
	}
	if lambdacontext.FunctionName != "" {
		functionName = lambdacontext.FunctionName
	}
	return region, functionName
}

// DecodeEnvelope decodes an SNS message body. The error is a *types.AppError:
// ErrCodeEnvelopeDecode for invalid JSON, ErrCodeEnvelopeIgnored for CloudWatch
// alarm notifications and ErrCodeEnvelopeMalformed for anything else lacking
// an alert.
func DecodeEnvelope(message string) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal([]byte(message), &envelope); err != nil {
		return nil, types.NewAppError(types.ErrCodeEnvelopeDecode,
			"an error occurred while decoding message to JSON", err)
	}

	if _, ok := envelope[DefaultKey]; ok {
		return envelope, nil
	}
	if _, ok := envelope["AlarmName"]; ok {
		return nil, types.NewAppError(types.ErrCodeEnvelopeIgnored, "alarm notification", nil)
	}
	return nil, types.NewAppError(types.ErrCodeEnvelopeMalformed, "malformed SNS message", nil).
		WithDetails(map[string]any{"message": message})
}
