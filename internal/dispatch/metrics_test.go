package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertprocessor/internal/types"
)

// mockCloudWatchClient records PutMetricData calls for verification.
type mockCloudWatchClient struct {
	mu        sync.Mutex
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func dimensionMap(dims []cwtypes.Dimension) map[string]string {
	out := make(map[string]string, len(dims))
	for _, d := range dims {
		out[aws.ToString(d.Name)] = aws.ToString(d.Value)
	}
	return out
}

func TestCloudWatchMetrics_RecordDispatch(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchMetrics(cw, "", "alert_processor", nil)

	m.RecordDispatch(context.Background(), "slack", MetricSuccess)

	require.Len(t, cw.calls, 1)
	input := cw.calls[0]
	assert.Equal(t, types.MetricNamespace, aws.ToString(input.Namespace))
	require.Len(t, input.MetricData, 1)

	datum := input.MetricData[0]
	assert.Equal(t, types.MetricDispatchAttempt, aws.ToString(datum.MetricName))
	assert.Equal(t, 1.0, aws.ToFloat64(datum.Value))
	assert.Equal(t, cwtypes.StandardUnitCount, datum.Unit)
	assert.Equal(t, map[string]string{
		types.DimService:  "slack",
		types.DimResult:   "success",
		types.DimFunction: "alert_processor",
	}, dimensionMap(datum.Dimensions))
}

func TestCloudWatchMetrics_RecordLatency(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchMetrics(cw, "Custom/Alerts", "", nil)

	m.RecordLatency(context.Background(), "pagerduty", 1500*time.Millisecond)

	require.Len(t, cw.calls, 1)
	assert.Equal(t, "Custom/Alerts", aws.ToString(cw.calls[0].Namespace))
	datum := cw.calls[0].MetricData[0]
	assert.Equal(t, types.MetricDispatchLatency, aws.ToString(datum.MetricName))
	assert.Equal(t, 1500.0, aws.ToFloat64(datum.Value))
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, datum.Unit)
	assert.Equal(t, map[string]string{types.DimService: "pagerduty"}, dimensionMap(datum.Dimensions))
}

func TestCloudWatchMetrics_BatchMetrics(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchMetrics(cw, "", "", nil)

	m.RecordRecords(context.Background(), 7)
	m.RecordConfigFailure(context.Background())

	require.Len(t, cw.calls, 2)
	assert.Equal(t, types.MetricRecordsReceived, aws.ToString(cw.calls[0].MetricData[0].MetricName))
	assert.Equal(t, 7.0, aws.ToFloat64(cw.calls[0].MetricData[0].Value))
	assert.Empty(t, cw.calls[0].MetricData[0].Dimensions)
	assert.Equal(t, types.MetricConfigFailure, aws.ToString(cw.calls[1].MetricData[0].MetricName))
}

func TestCloudWatchMetrics_ErrorIsLoggedNotPropagated(t *testing.T) {
	cw := &mockCloudWatchClient{returnErr: errors.New("throttled")}
	logger := newRecordingLogger()
	m := NewCloudWatchMetrics(cw, "", "", logger)

	m.RecordDispatch(context.Background(), "email", MetricFailed)

	errs := logger.byLevel("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "failed to record metric", errs[0].msg)
	assert.Equal(t, types.MetricDispatchAttempt, errs[0].value("metric"))
	assert.Equal(t, "email", errs[0].value("service"))
}
