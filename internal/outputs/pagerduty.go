package outputs

import (
	"context"

	"alertprocessor/internal/alert"
	"alertprocessor/internal/dispatch"
	"alertprocessor/internal/external"
	"alertprocessor/internal/types"
)

// PagerDutyEventsURL is the Events API v2 endpoint used when the credentials
// do not override it.
const PagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// pagerDutySummaryMax is the Events API limit on payload.summary.
const pagerDutySummaryMax = 1024

type pagerDutyCredentials struct {
	RoutingKey types.SecretString `json:"routing_key" validate:"required"`
	URL        string             `json:"url" validate:"omitempty,url"`
	Severity   string             `json:"severity" validate:"omitempty,oneof=critical error warning info"`
}

// PagerDutyEvent is an Events API v2 trigger.
type PagerDutyEvent struct {
	RoutingKey  string           `json:"routing_key"`
	EventAction string           `json:"event_action"`
	DedupKey    string           `json:"dedup_key"`
	Client      string           `json:"client,omitempty"`
	Payload     PagerDutyPayload `json:"payload"`
}

// PagerDutyPayload describes the incident.
type PagerDutyPayload struct {
	Summary       string      `json:"summary"`
	Source        string      `json:"source"`
	Severity      string      `json:"severity"`
	Component     string      `json:"component,omitempty"`
	Class         string      `json:"class,omitempty"`
	CustomDetails alert.Value `json:"custom_details"`
}

type pagerDutyDispatcher struct {
	creds  serviceCredentials
	client *external.BaseClient
	newID  func() string
}

func newPagerDutyFactory(deps Deps) dispatch.Factory {
	return func(_ context.Context, _ dispatch.Env) (dispatch.Dispatcher, error) {
		if deps.HTTP == nil {
			return nil, errMissingDep(ServicePagerDuty, "an HTTP client")
		}
		if deps.Credentials == nil {
			return nil, errMissingDep(ServicePagerDuty, "a credentials store")
		}
		return &pagerDutyDispatcher{
			creds:  credsFor(deps, ServicePagerDuty),
			client: deps.HTTP,
			newID:  deps.NewID,
		}, nil
	}
}

func (d *pagerDutyDispatcher) Dispatch(ctx context.Context, descriptor, ruleName string, a *alert.Alert) error {
	var creds pagerDutyCredentials
	if err := d.creds.load(ctx, descriptor, &creds); err != nil {
		return err
	}

	url := creds.URL
	if url == "" {
		url = PagerDutyEventsURL
	}
	severity := creds.Severity
	if severity == "" {
		severity = "critical"
	}

	event := PagerDutyEvent{
		RoutingKey:  creds.RoutingKey.Unmask(),
		EventAction: "trigger",
		DedupKey:    d.newID(),
		Client:      "alertprocessor",
		Payload: PagerDutyPayload{
			Summary:       truncate(title(ruleName)+": "+description(ruleName, a), pagerDutySummaryMax),
			Source:        pagerDutySource(a),
			Severity:      severity,
			Component:     a.Metadata.Source.Service,
			Class:         a.Metadata.Log,
			CustomDetails: a.Body,
		},
	}

	_, err := d.client.PostJSON(ctx, url, event, nil)
	return err
}

func pagerDutySource(a *alert.Alert) string {
	if a.Metadata.Source.Entity != "" {
		return a.Metadata.Source.Entity
	}
	return "alertprocessor"
}

var _ dispatch.Dispatcher = (*pagerDutyDispatcher)(nil)
