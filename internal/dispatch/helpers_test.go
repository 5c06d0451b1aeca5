package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"alertprocessor/internal/alert"
	"alertprocessor/internal/routing"
	"alertprocessor/internal/types"
)

type logEntry struct {
	level string
	msg   string
	args  []any
}

// recordingLogger captures log calls. Loggers derived with With share the
// parent's entries.
type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
	fields  []any
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l *recordingLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := append(append([]any{}, l.fields...), args...)
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg, args: all})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.log("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.log("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.log("error", msg, args) }
func (l *recordingLogger) With(args ...any) types.Logger {
	return &recordingLogger{
		mu:      l.mu,
		entries: l.entries,
		fields:  append(append([]any{}, l.fields...), args...),
	}
}

func (l *recordingLogger) byLevel(level string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range *l.entries {
		if e.level == level {
			out = append(out, e)
		}
	}
	return out
}

func (e logEntry) value(key string) any {
	for i := 0; i+1 < len(e.args); i += 2 {
		if k, ok := e.args[i].(string); ok && k == key {
			return e.args[i+1]
		}
	}
	return nil
}

type dispatchCall struct {
	descriptor string
	ruleName   string
	alert      *alert.Alert
}

// fakeDispatcher records calls and fails for descriptors listed in failOn.
type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []dispatchCall
	failOn  map[string]bool
	panicOn map[string]bool
	delay   time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, descriptor, ruleName string, a *alert.Alert) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, dispatchCall{descriptor: descriptor, ruleName: ruleName, alert: a})
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panicOn[descriptor] {
		panic("boom")
	}
	if f.failOn[descriptor] {
		return errors.New("upstream rejected alert")
	}
	return nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// dispatcherFunc adapts a function to Dispatcher.
type dispatcherFunc func(ctx context.Context, descriptor, ruleName string, a *alert.Alert) error

func (f dispatcherFunc) Dispatch(ctx context.Context, descriptor, ruleName string, a *alert.Alert) error {
	return f(ctx, descriptor, ruleName, a)
}

func staticFactory(d Dispatcher) Factory {
	return func(context.Context, Env) (Dispatcher, error) { return d, nil }
}

type metricCall struct {
	service string
	result  MetricResult
}

type recordingMetrics struct {
	mu             sync.Mutex
	dispatches     []metricCall
	latencies      int
	records        []int
	configFailures int
}

func (m *recordingMetrics) RecordDispatch(_ context.Context, service string, result MetricResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatches = append(m.dispatches, metricCall{service: service, result: result})
}

func (m *recordingMetrics) RecordLatency(context.Context, string, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies++
}

func (m *recordingMetrics) RecordRecords(_ context.Context, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, count)
}

func (m *recordingMetrics) RecordConfigFailure(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configFailures++
}

func writeRoutingConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outputs.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func mustDestination(t *testing.T, token string) routing.Destination {
	t.Helper()
	d, err := routing.ParseOutput(token)
	require.NoError(t, err)
	return d
}
