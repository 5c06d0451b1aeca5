package outputs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"alertprocessor/internal/alert"
	"alertprocessor/internal/dispatch"
	"alertprocessor/internal/external"
	"alertprocessor/internal/types"
)

// slackMaxText is the Block Kit limit for a section's text.
const slackMaxText = 3000

// SlackPayload is the top-level structure for Slack Block Kit messages.
type SlackPayload struct {
	Text   string       `json:"text"`   // Fallback text for push notifications
	Blocks []SlackBlock `json:"blocks"` // Rich layout
}

// SlackBlock represents a single block in a Slack Block Kit message.
type SlackBlock struct {
	Type     string       `json:"type"` // "section", "header", "context"
	Text     *SlackText   `json:"text,omitempty"`
	Fields   []*SlackText `json:"fields,omitempty"`
	Elements []*SlackText `json:"elements,omitempty"`
}

// SlackText is a text composition object for Slack Block Kit.
type SlackText struct {
	Type string `json:"type"` // "plain_text", "mrkdwn"
	Text string `json:"text"`
}

type slackCredentials struct {
	URL string `json:"url" validate:"required,url"`
}

type slackDispatcher struct {
	creds  serviceCredentials
	client *external.BaseClient
}

func newSlackFactory(deps Deps) dispatch.Factory {
	return func(_ context.Context, _ dispatch.Env) (dispatch.Dispatcher, error) {
		if deps.HTTP == nil {
			return nil, errMissingDep(ServiceSlack, "an HTTP client")
		}
		if deps.Credentials == nil {
			return nil, errMissingDep(ServiceSlack, "a credentials store")
		}
		return &slackDispatcher{creds: credsFor(deps, ServiceSlack), client: deps.HTTP}, nil
	}
}

func (d *slackDispatcher) Dispatch(ctx context.Context, descriptor, ruleName string, a *alert.Alert) error {
	var creds slackCredentials
	if err := d.creds.load(ctx, descriptor, &creds); err != nil {
		return err
	}

	body, err := d.client.PostJSON(ctx, creds.URL, FormatSlack(ruleName, a), nil)
	if err != nil {
		return err
	}
	return validateSlackResponse(body)
}

// FormatSlack builds the Block Kit message for an alert: a header naming the
// rule, the rule description, the record source and the record itself as a
// code block.
func FormatSlack(ruleName string, a *alert.Alert) SlackPayload {
	headline := title(ruleName)

	payload := SlackPayload{
		Text: headline,
		Blocks: []SlackBlock{
			{
				Type: "header",
				Text: &SlackText{Type: "plain_text", Text: truncate(headline, 150)},
			},
			{
				Type: "section",
				Text: &SlackText{Type: "mrkdwn", Text: truncate(description(ruleName, a), slackMaxText)},
			},
		},
	}

	var fields []*SlackText
	if src := a.Metadata.Source; src.Service != "" {
		fields = append(fields, &SlackText{Type: "mrkdwn", Text: fmt.Sprintf("*Source*\n%s", src.Service)})
		if src.Entity != "" {
			fields = append(fields, &SlackText{Type: "mrkdwn", Text: fmt.Sprintf("*Entity*\n%s", src.Entity)})
		}
	}
	if a.Metadata.Log != "" {
		fields = append(fields, &SlackText{Type: "mrkdwn", Text: fmt.Sprintf("*Log*\n%s", a.Metadata.Log)})
	}
	if len(fields) > 0 {
		payload.Blocks = append(payload.Blocks, SlackBlock{Type: "section", Fields: fields})
	}

	const fence = "```"
	record := truncate(a.Record().Indent(), slackMaxText-2*len(fence)-2)
	payload.Blocks = append(payload.Blocks, SlackBlock{
		Type: "section",
		Text: &SlackText{Type: "mrkdwn", Text: fence + "\n" + record + "\n" + fence},
	})

	return payload
}

// validateSlackResponse catches Slack's "soft failure" pattern: HTTP 200 with
// a body that is an error code or a JSON object with "ok": false.
func validateSlackResponse(body []byte) error {
	bodyStr := strings.TrimSpace(string(body))
	if bodyStr == "" || bodyStr == "ok" {
		return nil
	}

	var resp struct {
		OK    *bool  `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil {
		if resp.OK != nil && !*resp.OK {
			msg := resp.Error
			if msg == "" {
				msg = "unknown error"
			}
			return types.NewAppError(types.ErrCodeUpstreamRejected, "slack: API error: "+msg, nil)
		}
		return nil
	}

	switch bodyStr {
	case "no_text", "channel_not_found", "channel_is_archived", "invalid_payload", "too_many_attachments":
		return types.NewAppError(types.ErrCodeUpstreamRejected, "slack: API error: "+bodyStr, nil)
	}
	return nil
}

var _ dispatch.Dispatcher = (*slackDispatcher)(nil)
