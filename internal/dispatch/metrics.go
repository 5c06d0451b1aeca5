package dispatch

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"alertprocessor/internal/types"
)

// MetricResult categorizes a dispatch outcome for metrics reporting.
type MetricResult string

const (
	MetricSuccess     MetricResult = "success"
	MetricFailed      MetricResult = "failed"
	MetricUnavailable MetricResult = "unavailable"
)

// Metrics abstracts telemetry for the processor.
type Metrics interface {
	RecordDispatch(ctx context.Context, service string, result MetricResult)
	RecordLatency(ctx context.Context, service string, duration time.Duration)
	RecordRecords(ctx context.Context, count int)
	RecordConfigFailure(ctx context.Context)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) RecordDispatch(context.Context, string, MetricResult) {}
func (NopMetrics) RecordLatency(context.Context, string, time.Duration) {}
func (NopMetrics) RecordRecords(context.Context, int)                   {}
func (NopMetrics) RecordConfigFailure(context.Context)                  {}

var _ Metrics = NopMetrics{}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics emits processor metrics to AWS CloudWatch.
//
// Metrics emitted:
//   - DispatchAttempt: Dims {Service, Result} -- on every dispatch outcome
//   - DispatchLatency: Dims {Service} -- time taken by the dispatcher
//   - RecordsReceived: no service dim -- batch size per invocation
//   - RoutingConfigFailure: no service dim -- batches aborted by a bad config
//
// Every datum also carries the FunctionName dimension when one is set.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	function  string
	logger    types.Logger
}

var _ Metrics = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to namespace
// (types.MetricNamespace when empty).
func NewCloudWatchMetrics(client CloudWatchClient, namespace, functionName string, logger types.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		function:  functionName,
		logger:    logger,
	}
}

// RecordDispatch emits a DispatchAttempt metric with Service and Result dimensions.
func (m *CloudWatchMetrics) RecordDispatch(ctx context.Context, service string, result MetricResult) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDispatchAttempt),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: m.dimensions(
			types.DimService, service,
			types.DimResult, string(result),
		),
	}, "service", service, "result", string(result))
}

// RecordLatency emits the dispatch latency in milliseconds.
func (m *CloudWatchMetrics) RecordLatency(ctx context.Context, service string, duration time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDispatchLatency),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: m.dimensions(types.DimService, service),
	}, "service", service, "duration_ms", duration.Milliseconds())
}

// RecordRecords emits the number of records received in a batch.
func (m *CloudWatchMetrics) RecordRecords(ctx context.Context, count int) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricRecordsReceived),
		Value:      aws.Float64(float64(count)),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: m.dimensions(),
	}, "count", count)
}

// RecordConfigFailure counts a batch aborted by an unusable routing config.
func (m *CloudWatchMetrics) RecordConfigFailure(ctx context.Context) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricConfigFailure),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: m.dimensions(),
	})
}

func (m *CloudWatchMetrics) put(ctx context.Context, datum cwtypes.MetricDatum, logArgs ...any) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		args := append([]any{"metric", aws.ToString(datum.MetricName), "error", err.Error()}, logArgs...)
		m.logger.Error("failed to record metric", args...)
	}
}

// dimensions builds a dimension list from name/value pairs, appending the
// function dimension when configured.
func (m *CloudWatchMetrics) dimensions(pairs ...string) []cwtypes.Dimension {
	dims := make([]cwtypes.Dimension, 0, len(pairs)/2+1)
	for i := 0; i+1 < len(pairs); i += 2 {
		dims = append(dims, cwtypes.Dimension{
			Name:  aws.String(pairs[i]),
			Value: aws.String(pairs[i+1]),
		})
	}
	if m.function != "" {
		dims = append(dims, cwtypes.Dimension{
			Name:  aws.String(types.DimFunction),
			Value: aws.String(m.function),
		})
	}
	return dims
}
