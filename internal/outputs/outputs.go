// Package outputs implements the dispatchers that deliver alerts to their
// destinations, one per output service, and registers them by service name.
//
// Dispatchers are built once per invocation by the dispatch.Cache. Each one
// looks up the credentials for a descriptor when it sends, so a bad
// credential document only fails the destinations that use it.
package outputs

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"alertprocessor/internal/alert"
	"alertprocessor/internal/credentials"
	"alertprocessor/internal/dispatch"
	"alertprocessor/internal/external"
	"alertprocessor/internal/routing"
	"alertprocessor/internal/types"
)

// Output service names, as used in "service:descriptor" tokens.
const (
	ServiceSlack     = "slack"
	ServicePagerDuty = "pagerduty"
	ServicePhantom   = "phantom"
	ServiceWebhook   = "webhook"
	ServiceEmail     = "email"
	ServiceSQS       = "aws-sqs"
	ServiceS3        = "aws-s3"
	ServiceLambda    = "aws-lambda"
)

// Services lists every output service this package can register.
var Services = []string{
	ServiceSlack,
	ServicePagerDuty,
	ServicePhantom,
	ServiceWebhook,
	ServiceEmail,
	ServiceSQS,
	ServiceS3,
	ServiceLambda,
}

// Deps holds the clients shared by all dispatchers. A nil client disables the
// services that need it: their factories fail and the cache reports them
// unavailable.
type Deps struct {
	Credentials credentials.Store

	// HTTP reaches the fixed SaaS endpoints (Slack, PagerDuty, Phantom).
	HTTP *external.BaseClient
	// WebhookHTTP reaches operator supplied URLs and must refuse private
	// addresses.
	WebhookHTTP *external.BaseClient
	// ValidateURL screens webhook URLs before any request is made.
	ValidateURL types.SSRFValidator
	// WebhookSecret signs webhooks whose credentials carry no secret.
	WebhookSecret types.SecretString

	Email  *external.SESClient
	Sender external.Sender

	SQS    SQSSender
	S3     S3Putter
	Lambda LambdaInvoker

	// ArchiveBucket is the aws-s3 bucket used when neither the routing
	// config nor the credentials name one.
	ArchiveBucket string

	Clock types.Clock
	NewID func() string
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = types.RealClock{}
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

// Register adds a factory for every output service to reg.
func Register(reg *dispatch.Registry, deps Deps) {
	deps = deps.withDefaults()

	reg.Register(ServiceSlack, newSlackFactory(deps))
	reg.Register(ServicePagerDuty, newPagerDutyFactory(deps))
	reg.Register(ServicePhantom, newPhantomFactory(deps))
	reg.Register(ServiceWebhook, newWebhookFactory(deps))
	reg.Register(ServiceEmail, newEmailFactory(deps))
	reg.Register(ServiceSQS, newSQSFactory(deps))
	reg.Register(ServiceS3, newS3Factory(deps))
	reg.Register(ServiceLambda, newLambdaFactory(deps))
}

// errMissingDep is returned by a factory whose client was not configured.
// loggerFor returns the delivery logger carried by ctx, or fallback when the
// dispatcher is called outside the orchestrator.
func loggerFor(ctx context.Context, fallback types.Logger) types.Logger {
	if l := types.LoggerFromContext(ctx); l != nil {
		return l
	}
	return fallback
}

func errMissingDep(service, dep string) error {
	return fmt.Errorf("%s output requires %s", service, dep)
}

// title is the one-line headline used by every human-facing output.
func title(ruleName string) string {
	return "Rule triggered: " + ruleName
}

// resource returns the routing config resource for service:descriptor.
func resource(env dispatch.Env, service, descriptor string) string {
	return env.Routing.Resource(routing.Destination{Service: service, Descriptor: descriptor})
}

// truncate shortens s to at most n bytes without splitting a rune, marking the
// cut with an ellipsis.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	const ellipsis = "…"
	cut := n - len(ellipsis)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}

// description returns the rule description, or a fallback naming the rule.
func description(ruleName string, a *alert.Alert) string {
	if a.Metadata.RuleDescription != "" {
		return a.Metadata.RuleDescription
	}
	return "No rule description provided for " + ruleName
}

// serviceCredentials binds a credentials store to one service.
type serviceCredentials struct {
	store   credentials.Store
	service string
}

func credsFor(deps Deps, service string) serviceCredentials {
	return serviceCredentials{store: deps.Credentials, service: service}
}

func (c serviceCredentials) load(ctx context.Context, descriptor string, dst any) error {
	return c.store.Load(ctx, c.service, descriptor, dst)
}
