package external

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"alertprocessor/internal/types"
)

// SESAPI defines the subset of the SES v2 client used by SESClient.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Sender identifies the From address of outgoing mail.
type Sender struct {
	Name    string
	Address string
}

// String formats the sender as an RFC 5322 mailbox.
func (s Sender) String() string {
	if s.Name == "" {
		return s.Address
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Address)
}

// Email is a pre-rendered message.
type Email struct {
	From     Sender
	To       []string
	Subject  string
	BodyHTML string
	BodyText string
	// Tags are attached as SES message tags for event correlation.
	Tags map[string]string
}

// SESClient sends mail through AWS SES v2. Authentication comes from the
// function's IAM role and the SDK retries throttled calls itself, so no
// BaseClient is involved.
type SESClient struct {
	api           SESAPI
	configSetName string
}

// NewSESClient creates an SESClient. configSetName is optional.
func NewSESClient(api SESAPI, configSetName string) *SESClient {
	return &SESClient{api: api, configSetName: configSetName}
}

// Send transmits msg and returns the SES message ID.
//
// Error mapping:
//   - MessageRejected → ErrCodeEmailBlocked
//   - TooManyRequestsException → ErrCodeUpstreamRateLimited
//   - SendingPausedException → ErrCodeUpstreamUnavailable
//   - Other → ErrCodeUpstreamEmailProvider
func (s *SESClient) Send(ctx context.Context, msg Email) (string, error) {
	if len(msg.To) == 0 {
		return "", types.NewAppError(types.ErrCodeEmailBlocked, "email has no recipients", nil)
	}

	body := &sestypes.Body{}
	if msg.BodyHTML != "" {
		body.Html = utf8Content(msg.BodyHTML)
	}
	if msg.BodyText != "" {
		body.Text = utf8Content(msg.BodyText)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From.String()),
		Destination:      &sestypes.Destination{ToAddresses: msg.To},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: utf8Content(msg.Subject),
				Body:    body,
			},
		},
	}
	if s.configSetName != "" {
		input.ConfigurationSetName = aws.String(s.configSetName)
	}
	for name, value := range msg.Tags {
		input.EmailTags = append(input.EmailTags, sestypes.MessageTag{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}

	out, err := s.api.SendEmail(ctx, input)
	if err != nil {
		return "", mapSESError(err)
	}
	return aws.ToString(out.MessageId), nil
}

func utf8Content(data string) *sestypes.Content {
	return &sestypes.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

// mapSESError translates AWS SES errors into domain AppErrors.
func mapSESError(err error) error {
	var rejected *sestypes.MessageRejected
	if errors.As(err, &rejected) {
		return types.NewAppError(types.ErrCodeEmailBlocked, "SES rejected message", err)
	}

	var throttled *sestypes.TooManyRequestsException
	if errors.As(err, &throttled) {
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "SES rate limit exceeded", err)
	}

	var paused *sestypes.SendingPausedException
	if errors.As(err, &paused) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "SES account sending paused", err)
	}

	return types.NewAppError(types.ErrCodeUpstreamEmailProvider, "SES error", err)
}
