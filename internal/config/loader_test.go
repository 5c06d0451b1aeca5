package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSecretProvider is a configurable SecretProvider for SSM resolution tests.
type testSecretProvider struct {
	values     map[string]string
	err        error
	calledWith []string
}

func (p *testSecretProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	p.calledWith = append(p.calledWith, keys...)
	if p.err != nil {
		return nil, p.err
	}
	result := make(map[string]string)
	for _, k := range keys {
		if v, ok := p.values[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}

// testDeps uses the real environment but routes writes through t.Setenv so
// they are undone after the test, and skips .env loading.
func testDeps(t *testing.T) loaderDeps {
	t.Helper()
	deps := defaultDeps()
	deps.dotenv = func() error { return nil }
	deps.setEnv = func(k, v string) error {
		t.Setenv(k, v)
		return nil
	}
	return deps
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "local")

	cfg, err := loadWithDeps(context.Background(), nil, testDeps(t))
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.UseStubs())
	assert.Equal(t, "conf/outputs.json", cfg.Routing.OutputsPath)
	assert.Equal(t, 4, cfg.Routing.MaxConcurrency)
	assert.Equal(t, "ssm", cfg.Credentials.Source)
	assert.Equal(t, "/alertprocessor/outputs", cfg.Credentials.Prefix)
	assert.Equal(t, 5*time.Minute, cfg.Credentials.CacheTTL)
	assert.Equal(t, "AlertProcessor", cfg.Observability.MetricNamespace)
	assert.True(t, cfg.Observability.EnableMetrics)
	assert.Equal(t, 10*time.Second, cfg.Webhook.DefaultTimeout)
	assert.Equal(t, 3, cfg.Webhook.MaxRedirects)
	assert.True(t, cfg.Webhook.SigningSecret.IsZero())
	assert.Equal(t, "dev", cfg.Build.Version)
	assert.Equal(t, time.UTC, time.Local)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OUTPUTS_CONFIG_PATH", "/var/task/conf/outputs.yaml")
	t.Setenv("MAX_CONCURRENCY", "1")
	t.Setenv("ARCHIVE_BUCKET", "corp-alert-archive")
	t.Setenv("WEBHOOK_SIGNING_SECRET", "whsec_local")

	cfg, err := loadWithDeps(context.Background(), nil, testDeps(t))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/var/task/conf/outputs.yaml", cfg.Routing.OutputsPath)
	assert.Equal(t, 1, cfg.Routing.MaxConcurrency)
	assert.Equal(t, "corp-alert-archive", cfg.Archive.Bucket)
	assert.Equal(t, "whsec_local", cfg.Webhook.SigningSecret.Unmask())
	assert.Equal(t, "***REDACTED***", cfg.Webhook.SigningSecret.String())
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want ConfigErrorType
	}{
		{"unknown environment", "APP_ENV", "qa", ErrValidation},
		{"bad log level", "LOG_LEVEL", "verbose", ErrValidation},
		{"zero concurrency", "MAX_CONCURRENCY", "0", ErrValidation},
		{"unknown credentials source", "CREDENTIALS_SOURCE", "vault", ErrValidation},
		{"relative credentials prefix", "CREDENTIALS_PREFIX", "outputs", ErrValidation},
		{"bad sender", "EMAIL_FROM_ADDRESS", "not-an-email", ErrValidation},
		{"non numeric concurrency", "MAX_CONCURRENCY", "many", ErrParsing},
		{"bad duration", "WEBHOOK_TIMEOUT", "soon", ErrParsing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_ENV", "local")
			t.Setenv(tt.key, tt.val)

			_, err := loadWithDeps(context.Background(), nil, testDeps(t))
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.want, cfgErr.Type)
		})
	}
}

func TestLoad_ResolvesSSMParams(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("WEBHOOK_SIGNING_SECRET_SSM_PARAM", "/prod/alertprocessor/webhook/secret")
	provider := &testSecretProvider{values: map[string]string{
		"/prod/alertprocessor/webhook/secret": "whsec_from_ssm",
	}}

	cfg, err := loadWithDeps(context.Background(), provider, testDeps(t))
	require.NoError(t, err)

	assert.Equal(t, "whsec_from_ssm", cfg.Webhook.SigningSecret.Unmask())
	assert.Equal(t, []string{"/prod/alertprocessor/webhook/secret"}, provider.calledWith)
	assert.False(t, cfg.UseStubs())
}

func TestLoad_EnvWinsOverSSM(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("WEBHOOK_SIGNING_SECRET", "direct")
	t.Setenv("WEBHOOK_SIGNING_SECRET_SSM_PARAM", "/prod/alertprocessor/webhook/secret")
	provider := &testSecretProvider{}

	cfg, err := loadWithDeps(context.Background(), provider, testDeps(t))
	require.NoError(t, err)

	assert.Equal(t, "direct", cfg.Webhook.SigningSecret.Unmask())
	assert.Empty(t, provider.calledWith)
}

func TestLoad_LocalSkipsSSM(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("WEBHOOK_SIGNING_SECRET_SSM_PARAM", "/prod/alertprocessor/webhook/secret")
	provider := &testSecretProvider{}

	_, err := loadWithDeps(context.Background(), provider, testDeps(t))
	require.NoError(t, err)
	assert.Empty(t, provider.calledWith)
}

func TestLoad_SSMFailures(t *testing.T) {
	tests := []struct {
		name     string
		provider SecretProvider
		contains string
	}{
		{"no provider", nil, "WEBHOOK_SIGNING_SECRET"},
		{"provider error", &testSecretProvider{err: errors.New("throttled")}, "failed to resolve 1 SSM parameters"},
		{"parameter missing", &testSecretProvider{}, "not found for: WEBHOOK_SIGNING_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_ENV", "prod")
			t.Setenv("WEBHOOK_SIGNING_SECRET_SSM_PARAM", "/prod/alertprocessor/webhook/secret")

			_, err := loadWithDeps(context.Background(), tt.provider, testDeps(t))
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, ErrSSMResolution, cfgErr.Type)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}
