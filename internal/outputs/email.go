package outputs

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"regexp"
	texttemplate "text/template"

	"alertprocessor/internal/alert"
	"alertprocessor/internal/dispatch"
	"alertprocessor/internal/external"
	"alertprocessor/internal/types"
)

//go:embed templates/alert.html templates/alert.txt
var templateFS embed.FS

var (
	htmlTemplate = template.Must(template.ParseFS(templateFS, "templates/alert.html"))
	textTemplate = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/alert.txt"))
)

// sesTagInvalid matches characters SES rejects in message tag values.
var sesTagInvalid = regexp.MustCompile(`[^A-Za-z0-9_-]`)

type emailCredentials struct {
	To []string `json:"to" validate:"required,min=1,dive,email"`
}

// emailData is the struct passed into the email templates.
type emailData struct {
	Title         string
	Description   string
	SourceService string
	SourceEntity  string
	Log           string
	Alert         string
	Output        string
}

type emailDispatcher struct {
	creds  serviceCredentials
	client *external.SESClient
	sender external.Sender
	logger types.Logger
}

func newEmailFactory(deps Deps) dispatch.Factory {
	return func(_ context.Context, env dispatch.Env) (dispatch.Dispatcher, error) {
		if deps.Email == nil {
			return nil, errMissingDep(ServiceEmail, "an SES client")
		}
		if deps.Credentials == nil {
			return nil, errMissingDep(ServiceEmail, "a credentials store")
		}
		if deps.Sender.Address == "" {
			return nil, errMissingDep(ServiceEmail, "a sender address")
		}
		return &emailDispatcher{
			creds:  credsFor(deps, ServiceEmail),
			client: deps.Email,
			sender: deps.Sender,
			logger: env.Logger,
		}, nil
	}
}

func (d *emailDispatcher) Dispatch(ctx context.Context, descriptor, ruleName string, a *alert.Alert) error {
	var creds emailCredentials
	if err := d.creds.load(ctx, descriptor, &creds); err != nil {
		return err
	}

	msg, err := RenderEmail(ruleName, ServiceEmail+":"+descriptor, a)
	if err != nil {
		return err
	}
	msg.From = d.sender
	msg.To = creds.To

	id, err := d.client.Send(ctx, msg)
	if err != nil {
		return err
	}
	loggerFor(ctx, d.logger).Info("alert email accepted",
		"message_id", id,
		"recipients", len(creds.To),
	)
	return nil
}

// RenderEmail renders the subject and bodies for an alert. Sender and
// recipients are left for the caller.
func RenderEmail(ruleName, output string, a *alert.Alert) (external.Email, error) {
	data := emailData{
		Title:         title(ruleName),
		Description:   description(ruleName, a),
		SourceService: a.Metadata.Source.Service,
		SourceEntity:  a.Metadata.Source.Entity,
		Log:           a.Metadata.Log,
		Alert:         a.Body.Indent(),
		Output:        output,
	}

	var html, text bytes.Buffer
	if err := htmlTemplate.Execute(&html, data); err != nil {
		return external.Email{}, fmt.Errorf("email: render html: %w", err)
	}
	if err := textTemplate.Execute(&text, data); err != nil {
		return external.Email{}, fmt.Errorf("email: render text: %w", err)
	}

	return external.Email{
		Subject:  truncate(data.Title, 998),
		BodyHTML: html.String(),
		BodyText: text.String(),
		Tags: map[string]string{
			"rule_name": sesTagValue(ruleName),
		},
	}, nil
}

// sesTagValue rewrites s into the character set SES allows for tags.
func sesTagValue(s string) string {
	v := sesTagInvalid.ReplaceAllString(s, "_")
	if v == "" {
		return "unknown"
	}
	if len(v) > 256 {
		v = v[:256]
	}
	return v
}

var _ dispatch.Dispatcher = (*emailDispatcher)(nil)
