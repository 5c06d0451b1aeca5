package outputs

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"alertprocessor/internal/alert"
	"alertprocessor/internal/dispatch"
	"alertprocessor/internal/types"
)

type lambdaCredentials struct {
	FunctionName string `json:"function_name" validate:"required"`
	Qualifier    string `json:"qualifier"`
}

// lambdaDispatcher invokes a function asynchronously with the canonical alert
// as its event. The function comes from the descriptor's resource in the
// routing config ("name", "name:qualifier" or a function ARN), else from its
// credentials.
type lambdaDispatcher struct {
	creds  serviceCredentials
	client LambdaInvoker
	env    dispatch.Env
}

func newLambdaFactory(deps Deps) dispatch.Factory {
	return func(_ context.Context, env dispatch.Env) (dispatch.Dispatcher, error) {
		if deps.Lambda == nil {
			return nil, errMissingDep(ServiceLambda, "a Lambda client")
		}
		return &lambdaDispatcher{
			creds:  credsFor(deps, ServiceLambda),
			client: deps.Lambda,
			env:    env,
		}, nil
	}
}

func (d *lambdaDispatcher) Dispatch(ctx context.Context, descriptor, _ string, a *alert.Alert) error {
	target, err := d.target(ctx, descriptor)
	if err != nil {
		return err
	}

	payload, err := a.MarshalJSON()
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode alert", err)
	}

	input := &lambda.InvokeInput{
		FunctionName:   aws.String(target.FunctionName),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        payload,
	}
	if target.Qualifier != "" {
		input.Qualifier = aws.String(target.Qualifier)
	}

	out, err := d.client.Invoke(ctx, input,
		inRegion(d.env.Region, func(o *lambda.Options, r string) { o.Region = r })...)
	if err != nil {
		return fmt.Errorf("lambda: failed to invoke %s: %w", target.FunctionName, err)
	}
	if out.FunctionError != nil {
		return types.NewAppError(types.ErrCodeUpstreamRejected,
			fmt.Sprintf("lambda %s reported %s", target.FunctionName, aws.ToString(out.FunctionError)), nil)
	}

	loggerFor(ctx, d.env.Logger).Info("alert sent to function",
		"function_name", target.FunctionName,
		"status_code", out.StatusCode,
	)
	return nil
}

func (d *lambdaDispatcher) target(ctx context.Context, descriptor string) (lambdaCredentials, error) {
	if res := resource(d.env, ServiceLambda, descriptor); res != "" {
		if strings.HasPrefix(res, "arn:") {
			return lambdaCredentials{FunctionName: res}, nil
		}
		name, qualifier, _ := strings.Cut(res, ":")
		return lambdaCredentials{FunctionName: name, Qualifier: qualifier}, nil
	}
	if d.creds.store == nil {
		return lambdaCredentials{}, types.NewAppError(types.ErrCodeCredentialsMissing,
			fmt.Sprintf("no function configured for %s:%s", ServiceLambda, descriptor), nil)
	}

	var creds lambdaCredentials
	if err := d.creds.load(ctx, descriptor, &creds); err != nil {
		return lambdaCredentials{}, err
	}
	return creds, nil
}

var _ dispatch.Dispatcher = (*lambdaDispatcher)(nil)
