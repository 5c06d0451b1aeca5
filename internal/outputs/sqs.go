package outputs

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"alertprocessor/internal/alert"
	"alertprocessor/internal/dispatch"
	"alertprocessor/internal/types"
)

// sqsMaxMessageBytes is the SQS limit on a message body.
const sqsMaxMessageBytes = 256 << 10

type sqsCredentials struct {
	QueueURL string `json:"queue_url" validate:"required,url"`
}

// sqsDispatcher forwards the canonical alert document to a queue.
type sqsDispatcher struct {
	creds  serviceCredentials
	client SQSSender
	region string
	logger types.Logger
}

func newSQSFactory(deps Deps) dispatch.Factory {
	return func(_ context.Context, env dispatch.Env) (dispatch.Dispatcher, error) {
		if deps.SQS == nil {
			return nil, errMissingDep(ServiceSQS, "an SQS client")
		}
		if deps.Credentials == nil {
			return nil, errMissingDep(ServiceSQS, "a credentials store")
		}
		return &sqsDispatcher{
			creds:  credsFor(deps, ServiceSQS),
			client: deps.SQS,
			region: env.Region,
			logger: env.Logger,
		}, nil
	}
}

func (d *sqsDispatcher) Dispatch(ctx context.Context, descriptor, ruleName string, a *alert.Alert) error {
	var creds sqsCredentials
	if err := d.creds.load(ctx, descriptor, &creds); err != nil {
		return err
	}

	body, err := a.MarshalJSON()
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode alert", err)
	}
	if len(body) > sqsMaxMessageBytes {
		return types.NewAppError(types.ErrCodeUpstreamRejected,
			fmt.Sprintf("alert is %d bytes, over the SQS message limit", len(body)), nil)
	}

	out, err := d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(creds.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"rule_name": {DataType: aws.String("String"), StringValue: aws.String(ruleName)},
		},
	}, inRegion(d.region, func(o *sqs.Options, r string) { o.Region = r })...)
	if err != nil {
		return fmt.Errorf("sqs: failed to send alert to %s: %w", creds.QueueURL, err)
	}

	loggerFor(ctx, d.logger).Info("alert queued",
		"message_id", aws.ToString(out.MessageId),
	)
	return nil
}

var _ dispatch.Dispatcher = (*sqsDispatcher)(nil)
