package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertprocessor/internal/types"
)

type webhookCreds struct {
	URL    string             `json:"url" validate:"required,url"`
	Secret types.SecretString `json:"secret"`
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type mockSSM struct {
	params map[string]string
	err    error
	calls  []string
}

func (m *mockSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	m.calls = append(m.calls, aws.ToString(in.Name))
	if m.err != nil {
		return nil, m.err
	}
	if !aws.ToBool(in.WithDecryption) {
		return nil, errors.New("expected decryption")
	}
	v, ok := m.params[aws.ToString(in.Name)]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found")}
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Name: in.Name, Value: aws.String(v)}}, nil
}

func TestSSMStore_Load(t *testing.T) {
	client := &mockSSM{params: map[string]string{
		"/alertprocessor/outputs/webhook/soc": `{"url":"https://hooks.example.com/soc","secret":"whsec_1"}`,
	}}
	store := NewSSMStore(client, "/alertprocessor/outputs", 0, nil)

	var creds webhookCreds
	require.NoError(t, store.Load(context.Background(), "webhook", "soc", &creds))

	assert.Equal(t, "https://hooks.example.com/soc", creds.URL)
	assert.Equal(t, "whsec_1", creds.Secret.Unmask())
	assert.Equal(t, []string{"/alertprocessor/outputs/webhook/soc"}, client.calls)
}

func TestSSMStore_Errors(t *testing.T) {
	tests := []struct {
		name   string
		client *mockSSM
		want   types.ErrorCode
	}{
		{
			name:   "missing parameter",
			client: &mockSSM{},
			want:   types.ErrCodeCredentialsMissing,
		},
		{
			name: "not json",
			client: &mockSSM{params: map[string]string{
				"/p/webhook/soc": "https://hooks.example.com/soc",
			}},
			want: types.ErrCodeCredentialsInvalid,
		},
		{
			name: "fails validation",
			client: &mockSSM{params: map[string]string{
				"/p/webhook/soc": `{"secret":"whsec_1"}`,
			}},
			want: types.ErrCodeCredentialsInvalid,
		},
		{
			name:   "ssm unavailable",
			client: &mockSSM{err: errors.New("throttled")},
			want:   types.ErrCodeUpstreamUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewSSMStore(tt.client, "/p", time.Minute, nil)

			var creds webhookCreds
			err := store.Load(context.Background(), "webhook", "soc", &creds)
			require.Error(t, err)
			assert.Equal(t, tt.want, types.CodeOf(err))
		})
	}
}

func TestSSMStore_CachesUntilExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	client := &mockSSM{params: map[string]string{
		"/p/webhook/soc": `{"url":"https://hooks.example.com/soc"}`,
	}}
	store := NewSSMStore(client, "/p", 5*time.Minute, clock)

	var creds webhookCreds
	require.NoError(t, store.Load(context.Background(), "webhook", "soc", &creds))
	clock.now = clock.now.Add(4 * time.Minute)
	require.NoError(t, store.Load(context.Background(), "webhook", "soc", &creds))
	assert.Len(t, client.calls, 1)

	clock.now = clock.now.Add(2 * time.Minute)
	require.NoError(t, store.Load(context.Background(), "webhook", "soc", &creds))
	assert.Len(t, client.calls, 2)
}

func TestSSMStore_DoesNotCacheMisses(t *testing.T) {
	client := &mockSSM{params: map[string]string{}}
	store := NewSSMStore(client, "/p", time.Hour, nil)

	var creds webhookCreds
	require.Error(t, store.Load(context.Background(), "webhook", "soc", &creds))

	client.params["/p/webhook/soc"] = `{"url":"https://hooks.example.com/soc"}`
	require.NoError(t, store.Load(context.Background(), "webhook", "soc", &creds))
	assert.Len(t, client.calls, 2)
}

func TestSSMStore_ParameterName(t *testing.T) {
	store := NewSSMStore(&mockSSM{}, "/alertprocessor/outputs/", 0, nil)
	assert.Equal(t, "/alertprocessor/outputs/aws-s3/archive", store.ParameterName("aws-s3", "archive"))
}

func TestEnvStore(t *testing.T) {
	env := map[string]string{
		"OUTPUT_CREDENTIALS_AWS_SQS_SECURITY_QUEUE": `{"url":"https://sqs.example.com/q"}`,
		"OUTPUT_CREDENTIALS_WEBHOOK_EMPTY":          "",
	}
	store := NewEnvStore(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	var creds webhookCreds
	require.NoError(t, store.Load(context.Background(), "aws-sqs", "security.queue", &creds))
	assert.Equal(t, "https://sqs.example.com/q", creds.URL)

	err := store.Load(context.Background(), "webhook", "empty", &creds)
	assert.Equal(t, types.ErrCodeCredentialsMissing, types.CodeOf(err))

	err = store.Load(context.Background(), "webhook", "unset", &creds)
	assert.Equal(t, types.ErrCodeCredentialsMissing, types.CodeOf(err))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "OUTPUT_CREDENTIALS_AWS_LAMBDA_MY_FUNC_PROD", EnvKey("aws-lambda", "my-func.prod"))
	assert.Equal(t, "OUTPUT_CREDENTIALS_SLACK_SOC", EnvKey("slack", "soc"))
}

func TestStaticStore(t *testing.T) {
	store := StaticStore{"slack:soc": `{"url":"https://hooks.slack.com/services/T/B/X"}`}

	var creds webhookCreds
	require.NoError(t, store.Load(context.Background(), "slack", "soc", &creds))
	assert.Equal(t, "https://hooks.slack.com/services/T/B/X", creds.URL)

	err := store.Load(context.Background(), "slack", "other", &creds)
	assert.Equal(t, types.ErrCodeCredentialsMissing, types.CodeOf(err))
}
