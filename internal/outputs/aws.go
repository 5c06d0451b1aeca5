package outputs

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// S3Putter abstracts S3 PutObject.
type S3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// LambdaInvoker abstracts Lambda Invoke.
type LambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// inRegion returns an SDK option that pins a call to region, the region the
// processor is running in. An empty region keeps the client's default.
func inRegion[O any](region string, set func(*O, string)) []func(*O) {
	if region == "" {
		return nil
	}
	return []func(*O){func(o *O) { set(o, region) }}
}

var (
	_ SQSSender     = (*sqs.Client)(nil)
	_ S3Putter      = (*s3.Client)(nil)
	_ LambdaInvoker = (*lambda.Client)(nil)
)
