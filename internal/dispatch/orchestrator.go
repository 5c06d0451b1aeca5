package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"alertprocessor/internal/alert"
	"alertprocessor/internal/routing"
	"alertprocessor/internal/types"
)

// DefaultMaxConcurrency bounds how many destinations of one alert are
// dispatched at the same time.
const DefaultMaxConcurrency = 4

// DefaultKey is the envelope member holding the alert.
const DefaultKey = "default"

// Envelope is a decoded SNS message.
type Envelope map[string]json.RawMessage

// Orchestrator sends one alert to each of its resolved destinations.
type Orchestrator struct {
	maxConcurrency int
	metrics        Metrics
	clock          types.Clock
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithMaxConcurrency sets the dispatch bulkhead size. Values below 1 are ignored.
func WithMaxConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.maxConcurrency = n
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock sets the clock used for latency measurements.
func WithClock(c types.Clock) OrchestratorOption {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		maxConcurrency: DefaultMaxConcurrency,
		metrics:        NopMetrics{},
		clock:          types.RealClock{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run dispatches the alert held by envelope to every unique, valid output it
// declares, using dispatchers from the invocation cache. It returns one
// Result per destination that reached a dispatcher; outputs that are
// malformed, not configured, or have no dispatcher produce none.
//
// Destinations are dispatched concurrently. A dispatcher that fails or
// panics yields sent=false for its own output and never affects the others.
func (o *Orchestrator) Run(ctx context.Context, envelope Envelope, dispatchers *Cache) []Result {
	env := dispatchers.Env()
	logger := env.Logger

	a, err := alert.Decode(envelope[DefaultKey])
	if err != nil {
		logger.Error("failed to decode alert",
			"code", string(types.ErrCodeAlertDecode),
			"scope", types.ErrCodeAlertDecode.Scope(),
			"error", err.Error(),
		)
		return nil
	}
	a = a.Canonical()

	logger = logger.With("rule_name", a.Metadata.RuleName)

	destinations := routing.ResolveAll(a.Metadata.Outputs, env.Routing, logger)

	var mu sync.Mutex
	results := make([]Result, 0, len(destinations))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrency)

	for _, dest := range destinations {
		dispatcher, ok := dispatchers.Get(ctx, dest.Service)
		if !ok {
			logger.Warn("no dispatcher available for output",
				"output", dest.String(),
				"code", string(types.ErrCodeDispatcherUnavailable),
			)
			o.metrics.RecordDispatch(ctx, dest.Service, MetricUnavailable)
			continue
		}

		g.Go(func() error {
			sent := o.dispatch(gCtx, dispatcher, dest, a, logger)

			mu.Lock()
			results = append(results, Result{Sent: sent, Output: dest.String()})
			mu.Unlock()

			// Failures stay in the result; returning them would cancel siblings.
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// dispatch calls the dispatcher for one destination, converting an error or a
// panic into sent=false.
func (o *Orchestrator) dispatch(ctx context.Context, d Dispatcher, dest routing.Destination, a *alert.Alert, logger types.Logger) (sent bool) {
	start := o.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			o.logFailure(logger, dest, a, fmt.Errorf("dispatcher panic: %v", r))
			sent = false
		}

		result := MetricFailed
		if sent {
			result = MetricSuccess
		}
		o.metrics.RecordDispatch(ctx, dest.Service, result)
		o.metrics.RecordLatency(ctx, dest.Service, o.clock.Now().Sub(start))
	}()

	logger.Debug("sending alert", "service", dest.Service, "descriptor", dest.Descriptor)

	ctx = types.WithLogger(ctx, logger.With("service", dest.Service, "descriptor", dest.Descriptor))
	if err := d.Dispatch(ctx, dest.Descriptor, a.Metadata.RuleName, a); err != nil {
		o.logFailure(logger, dest, a, err)
		return false
	}
	return true
}

func (o *Orchestrator) logFailure(logger types.Logger, dest routing.Destination, a *alert.Alert, err error) {
	logger.Error("an error occurred while sending alert",
		"service", dest.Service,
		"descriptor", dest.Descriptor,
		"code", string(types.ErrCodeDispatchFailed),
		"cause", string(types.CodeOf(err)),
		"error", err.Error(),
		"alert", a.Body.Indent(),
	)
}
