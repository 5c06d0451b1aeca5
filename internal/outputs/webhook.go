package outputs

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"alertprocessor/internal/alert"
	"alertprocessor/internal/dispatch"
	"alertprocessor/internal/external"
	"alertprocessor/internal/types"
)

type webhookCredentials struct {
	URL                     string             `json:"url" validate:"required,url"`
	Secret                  types.SecretString `json:"secret"`
	PreviousSecret          types.SecretString `json:"previous_secret"`
	PreviousSecretExpiresAt time.Time          `json:"previous_secret_expires_at"`
}

// WebhookPayload is the JSON document POSTed to generic webhooks.
type WebhookPayload struct {
	ID              string      `json:"id"`
	Output          string      `json:"output"`
	RuleName        string      `json:"rule_name"`
	RuleDescription string      `json:"rule_description,omitempty"`
	SentAt          time.Time   `json:"sent_at"`
	Alert           alert.Value `json:"alert"`
}

type webhookDispatcher struct {
	creds         serviceCredentials
	client        *external.BaseClient
	validateURL   types.SSRFValidator
	defaultSecret types.SecretString
	clock         types.Clock
	newID         func() string
}

func newWebhookFactory(deps Deps) dispatch.Factory {
	return func(_ context.Context, _ dispatch.Env) (dispatch.Dispatcher, error) {
		if deps.WebhookHTTP == nil {
			return nil, errMissingDep(ServiceWebhook, "an SSRF-safe HTTP client")
		}
		if deps.Credentials == nil {
			return nil, errMissingDep(ServiceWebhook, "a credentials store")
		}
		return &webhookDispatcher{
			creds:         credsFor(deps, ServiceWebhook),
			client:        deps.WebhookHTTP,
			validateURL:   deps.ValidateURL,
			defaultSecret: deps.WebhookSecret,
			clock:         deps.Clock,
			newID:         deps.NewID,
		}, nil
	}
}

// Dispatch POSTs the canonical alert. When a secret is available, from the
// credentials or the processor-wide default, the body is signed.
func (d *webhookDispatcher) Dispatch(ctx context.Context, descriptor, ruleName string, a *alert.Alert) error {
	var creds webhookCredentials
	if err := d.creds.load(ctx, descriptor, &creds); err != nil {
		return err
	}

	if d.validateURL != nil {
		if err := d.validateURL(creds.URL); err != nil {
			return types.NewAppError(types.ErrCodeCredentialsInvalid, "webhook URL is not allowed", err)
		}
	}

	now := d.clock.Now()
	body, err := json.Marshal(WebhookPayload{
		ID:              d.newID(),
		Output:          ServiceWebhook + ":" + descriptor,
		RuleName:        ruleName,
		RuleDescription: a.Metadata.RuleDescription,
		SentAt:          now,
		Alert:           a.Body,
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode webhook payload", err)
	}

	header := http.Header{}
	keys := SigningKeys{
		Current:           creds.Secret.Unmask(),
		Previous:          creds.PreviousSecret.Unmask(),
		PreviousExpiresAt: creds.PreviousSecretExpiresAt,
	}
	if keys.Current == "" {
		keys = SigningKeys{Current: d.defaultSecret.Unmask()}
	}
	if keys.Current != "" {
		sig, err := Sign(body, keys, now)
		if err != nil {
			return err
		}
		header.Set(SignatureHeader, sig)
	}

	_, err = d.client.PostJSON(ctx, creds.URL, json.RawMessage(body), header)
	return err
}

var _ dispatch.Dispatcher = (*webhookDispatcher)(nil)
