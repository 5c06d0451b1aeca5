package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmMaxBatchSize is the GetParameters limit imposed by AWS.
const ssmMaxBatchSize = 10

// SSMGetParametersAPI is the subset of the SSM client used by SSMProvider.
type SSMGetParametersAPI interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMProvider resolves secrets from AWS Systems Manager Parameter Store,
// decrypting SecureString parameters.
type SSMProvider struct {
	client SSMGetParametersAPI
}

// NewSSMProvider creates an SSMProvider backed by client.
func NewSSMProvider(client SSMGetParametersAPI) *SSMProvider {
	return &SSMProvider{client: client}
}

// GetParametersBatch fetches keys in batches of ten, stopping early when ctx
// is done. Parameters SSM reports as invalid are omitted, so the caller can
// name exactly which variables are missing.
func (p *SSMProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))

	for start := 0; start < len(keys); start += ssmMaxBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during SSM parameter retrieval: %w", err)
		}

		end := min(start+ssmMaxBatchSize, len(keys))
		out, err := p.client.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          keys[start:end],
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("SSM GetParameters failed (batch %d-%d of %d): %w",
				start, end-1, len(keys), err)
		}

		for _, param := range out.Parameters {
			if param.Name != nil && param.Value != nil {
				result[*param.Name] = *param.Value
			}
		}
	}

	return result, nil
}

var _ SecretProvider = (*SSMProvider)(nil)
