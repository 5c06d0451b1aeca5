package outputs

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"alertprocessor/internal/alert"
	"alertprocessor/internal/dispatch"
	"alertprocessor/internal/types"
)

type s3Credentials struct {
	Bucket string `json:"bucket" validate:"required"`
}

// s3Dispatcher archives the canonical alert as a zstd-compressed JSON object.
//
// The bucket comes from, in order: the descriptor's resource in the routing
// config, the descriptor's credentials, the processor-wide archive bucket.
type s3Dispatcher struct {
	creds         serviceCredentials
	client        S3Putter
	encoder       *zstd.Encoder
	env           dispatch.Env
	defaultBucket string
	clock         types.Clock
	newID         func() string
}

func newS3Factory(deps Deps) dispatch.Factory {
	return func(_ context.Context, env dispatch.Env) (dispatch.Dispatcher, error) {
		if deps.S3 == nil {
			return nil, errMissingDep(ServiceS3, "an S3 client")
		}
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("aws-s3 output: create zstd encoder: %w", err)
		}
		return &s3Dispatcher{
			creds:         credsFor(deps, ServiceS3),
			client:        deps.S3,
			encoder:       enc,
			env:           env,
			defaultBucket: deps.ArchiveBucket,
			clock:         deps.Clock,
			newID:         deps.NewID,
		}, nil
	}
}

func (d *s3Dispatcher) Dispatch(ctx context.Context, descriptor, ruleName string, a *alert.Alert) error {
	bucket, err := d.bucket(ctx, descriptor)
	if err != nil {
		return err
	}

	body, err := a.MarshalJSON()
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode alert", err)
	}

	key := d.ObjectKey(ruleName)
	_, err = d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(d.encoder.EncodeAll(body, nil)),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("zstd"),
		Metadata: map[string]string{
			"rule-name": ruleName,
		},
	}, inRegion(d.env.Region, func(o *s3.Options, r string) { o.Region = r })...)
	if err != nil {
		return fmt.Errorf("s3: failed to archive alert to s3://%s/%s: %w", bucket, key, err)
	}

	loggerFor(ctx, d.env.Logger).Info("alert archived",
		"bucket", bucket,
		"key", key,
	)
	return nil
}

func (d *s3Dispatcher) bucket(ctx context.Context, descriptor string) (string, error) {
	if b := resource(d.env, ServiceS3, descriptor); b != "" {
		return b, nil
	}

	if d.creds.store != nil {
		var creds s3Credentials
		err := d.creds.load(ctx, descriptor, &creds)
		switch {
		case err == nil:
			return creds.Bucket, nil
		case types.CodeOf(err) != types.ErrCodeCredentialsMissing:
			return "", err
		}
	}

	if d.defaultBucket != "" {
		return d.defaultBucket, nil
	}
	return "", types.NewAppError(types.ErrCodeCredentialsMissing,
		fmt.Sprintf("no bucket configured for %s:%s", ServiceS3, descriptor), nil)
}

// ObjectKey returns the key an alert for ruleName is stored under:
// alerts/dt=<yyyy-mm-dd-hh>/<rule>_<id>.json.zst, partitioned by UTC hour.
func (d *s3Dispatcher) ObjectKey(ruleName string) string {
	rule := strings.Map(func(r rune) rune {
		if r == '/' || r == ' ' {
			return '_'
		}
		return r
	}, ruleName)
	return fmt.Sprintf("alerts/dt=%s/%s_%s.json.zst",
		d.clock.Now().UTC().Format("2006-01-02-15"), rule, d.newID())
}

var _ dispatch.Dispatcher = (*s3Dispatcher)(nil)
