package outputs

import (
	"context"

	"alertprocessor/internal/alert"
	"alertprocessor/internal/dispatch"
	"alertprocessor/internal/types"
)

// stubDispatcher logs the delivery it would have made and reports success.
// It stands in for every output when the processor runs locally or in test
// mode, so no credentials or AWS access are needed.
type stubDispatcher struct {
	service string
	logger  types.Logger
}

func (s *stubDispatcher) Dispatch(ctx context.Context, descriptor, ruleName string, a *alert.Alert) error {
	loggerFor(ctx, s.logger).Info("stub: alert dispatched",
		"service", s.service,
		"descriptor", descriptor,
		"rule_name", ruleName,
		"outputs", a.Metadata.Outputs.Len(),
	)
	return nil
}

// RegisterStubs registers a stub dispatcher for every output service.
func RegisterStubs(reg *dispatch.Registry) {
	for _, service := range Services {
		reg.Register(service, func(_ context.Context, env dispatch.Env) (dispatch.Dispatcher, error) {
			return &stubDispatcher{service: service, logger: env.Logger}, nil
		})
	}
}

var _ dispatch.Dispatcher = (*stubDispatcher)(nil)
