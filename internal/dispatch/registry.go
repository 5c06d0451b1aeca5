// Package dispatch fans a batch of alerts out to their configured outputs.
//
// A Processor handles one Lambda invocation: it loads the routing
// configuration, unwraps each SNS record into an alert envelope and hands it
// to the Orchestrator, which resolves the alert's outputs and calls the
// Dispatcher registered for each service. Failures are contained at the
// smallest possible scope; only an unusable routing configuration aborts the
// batch.
package dispatch

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"alertprocessor/internal/alert"
	"alertprocessor/internal/routing"
	"alertprocessor/internal/types"
)

// Dispatcher delivers an alert to one kind of output service. A nil error
// means the alert was sent.
type Dispatcher interface {
	Dispatch(ctx context.Context, descriptor, ruleName string, a *alert.Alert) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, descriptor, ruleName string, a *alert.Alert) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, descriptor, ruleName string, a *alert.Alert) error {
	return f(ctx, descriptor, ruleName, a)
}

// Env carries the per-invocation values dispatchers are built with.
type Env struct {
	Region       string
	FunctionName string
	Routing      routing.Config
	Logger       types.Logger
}

// Factory builds the Dispatcher for one service.
type Factory func(ctx context.Context, env Env) (Dispatcher, error)

// Registry maps service names to dispatcher factories. It is populated at
// cold start and only read afterwards.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry holding a copy of factories.
func NewRegistry(factories map[string]Factory) *Registry {
	r := &Registry{factories: make(map[string]Factory, len(factories))}
	for service, f := range factories {
		r.Register(service, f)
	}
	return r
}

// Register adds or replaces the factory for service.
func (r *Registry) Register(service string, f Factory) {
	if f == nil {
		panic(fmt.Sprintf("dispatch: nil factory for service %q", service))
	}
	r.factories[service] = f
}

// Services returns the registered service names, sorted.
func (r *Registry) Services() []string {
	out := make([]string, 0, len(r.factories))
	for s := range r.factories {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// NewCache returns a dispatcher cache bound to env. A cache must not outlive
// the invocation it was created for.
func (r *Registry) NewCache(env Env) *Cache {
	if env.Logger == nil {
		env.Logger = types.NopLogger{}
	}
	return &Cache{
		registry: r,
		env:      env,
		built:    make(map[string]Dispatcher),
		failed:   make(map[string]error),
	}
}

// Cache builds dispatchers lazily and keeps them for the rest of the
// invocation. It is safe for concurrent use.
type Cache struct {
	registry *Registry
	env      Env

	mu     sync.Mutex
	built  map[string]Dispatcher
	failed map[string]error
}

// Env returns the invocation values the cache builds dispatchers with.
func (c *Cache) Env() Env { return c.env }

// Get returns the dispatcher for service. It reports false when no factory is
// registered or the factory failed; a failed construction is logged once and
// not retried within the invocation.
func (c *Cache) Get(ctx context.Context, service string) (Dispatcher, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.built[service]; ok {
		return d, true
	}
	if _, ok := c.failed[service]; ok {
		return nil, false
	}

	factory, ok := c.registry.factories[service]
	if !ok {
		return nil, false
	}

	d, err := factory(ctx, c.env)
	if err == nil && d == nil {
		err = fmt.Errorf("factory returned no dispatcher")
	}
	if err != nil {
		c.failed[service] = err
		c.env.Logger.Error("failed to create output dispatcher",
			"service", service,
			"code", string(types.ErrCodeDispatcherUnavailable),
			"error", err.Error(),
		)
		return nil, false
	}

	c.built[service] = d
	return d, true
}
