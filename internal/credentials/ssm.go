package credentials

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"alertprocessor/internal/types"
)

// SSMGetParameterAPI is the subset of the SSM client used by SSMStore.
type SSMGetParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type cachedParam struct {
	raw     []byte
	expires time.Time
}

// SSMStore reads credentials from SecureString parameters at
// <prefix>/<service>/<descriptor>. Documents are cached for ttl across
// invocations of a warm container; a zero ttl disables caching.
type SSMStore struct {
	client SSMGetParameterAPI
	prefix string
	ttl    time.Duration
	clock  types.Clock

	mu    sync.Mutex
	cache map[string]cachedParam
}

// NewSSMStore creates an SSMStore. A nil clock uses types.RealClock.
func NewSSMStore(client SSMGetParameterAPI, prefix string, ttl time.Duration, clock types.Clock) *SSMStore {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &SSMStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		clock:  clock,
		cache:  make(map[string]cachedParam),
	}
}

// ParameterName returns the parameter path holding the credentials of
// service and descriptor.
func (s *SSMStore) ParameterName(service, descriptor string) string {
	return path.Join(s.prefix, service, descriptor)
}

// Load implements Store.
func (s *SSMStore) Load(ctx context.Context, service, descriptor string, dst any) error {
	name := s.ParameterName(service, descriptor)

	raw, err := s.fetch(ctx, name)
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return missing(service, descriptor, err)
		}
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("failed to read credentials parameter %s", name), err)
	}
	return decode(service, descriptor, raw, dst)
}

func (s *SSMStore) fetch(ctx context.Context, name string) ([]byte, error) {
	now := s.clock.Now()

	s.mu.Lock()
	if c, ok := s.cache[name]; ok && now.Before(c.expires) {
		s.mu.Unlock()
		return c.raw, nil
	}
	s.mu.Unlock()

	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String("parameter has no value")}
	}

	raw := []byte(*out.Parameter.Value)
	if s.ttl > 0 {
		s.mu.Lock()
		s.cache[name] = cachedParam{raw: raw, expires: now.Add(s.ttl)}
		s.mu.Unlock()
	}
	return raw, nil
}

var _ Store = (*SSMStore)(nil)
