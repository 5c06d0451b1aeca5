package outputs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertprocessor/internal/credentials"
	"alertprocessor/internal/routing"
	"alertprocessor/internal/types"
)

func webhookDeps(srv *captureServer, creds string) Deps {
	deps := testDeps(credentials.StaticStore{"webhook:soc": creds})
	deps.WebhookHTTP = testHTTPClient(srv.Server)
	return deps
}

func TestWebhookDispatch_Signed(t *testing.T) {
	srv := newCaptureServer(t)
	deps := webhookDeps(srv, `{"url":"`+srv.URL+`/hook","secret":"whsec_soc"}`)

	d := newDispatcher(t, deps, ServiceWebhook, testEnv(routing.Config{}))
	require.NoError(t, d.Dispatch(context.Background(), "soc", "root_console_login", testAlert(t)))

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/hook", reqs[0].Path)

	sig := reqs[0].Header.Get(SignatureHeader)
	require.NotEmpty(t, sig)
	assert.True(t, VerifySignature(reqs[0].Body, sig, SigningKeys{Current: "whsec_soc"}))

	body := decodeJSON(t, reqs[0].Body)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", body["id"])
	assert.Equal(t, "webhook:soc", body["output"])
	assert.Equal(t, "root_console_login", body["rule_name"])
	assert.Equal(t, testNow.Format(time.RFC3339), body["sent_at"])
	assert.Contains(t, body["alert"], "record")
}

func TestWebhookDispatch_DefaultSecret(t *testing.T) {
	srv := newCaptureServer(t)
	deps := webhookDeps(srv, `{"url":"`+srv.URL+`"}`)
	deps.WebhookSecret = types.SecretString("whsec_default")

	d := newDispatcher(t, deps, ServiceWebhook, testEnv(routing.Config{}))
	require.NoError(t, d.Dispatch(context.Background(), "soc", "r", testAlert(t)))

	req := srv.Requests()[0]
	assert.True(t, VerifySignature(req.Body, req.Header.Get(SignatureHeader), SigningKeys{Current: "whsec_default"}))
}

func TestWebhookDispatch_Unsigned(t *testing.T) {
	srv := newCaptureServer(t)
	deps := webhookDeps(srv, `{"url":"`+srv.URL+`"}`)

	d := newDispatcher(t, deps, ServiceWebhook, testEnv(routing.Config{}))
	require.NoError(t, d.Dispatch(context.Background(), "soc", "r", testAlert(t)))
	assert.Empty(t, srv.Requests()[0].Header.Get(SignatureHeader))
}

func TestWebhookDispatch_RotationWindow(t *testing.T) {
	srv := newCaptureServer(t)
	deps := webhookDeps(srv, `{"url":"`+srv.URL+`","secret":"new","previous_secret":"old",`+
		`"previous_secret_expires_at":"2026-10-20T00:00:00Z"}`)

	d := newDispatcher(t, deps, ServiceWebhook, testEnv(routing.Config{}))
	require.NoError(t, d.Dispatch(context.Background(), "soc", "r", testAlert(t)))

	req := srv.Requests()[0]
	sig := req.Header.Get(SignatureHeader)
	assert.Contains(t, sig, "v1_old=")
	assert.True(t, VerifySignature(req.Body, sig, SigningKeys{Current: "new"}))
}

func TestWebhookDispatch_BlockedURL(t *testing.T) {
	srv := newCaptureServer(t)
	deps := webhookDeps(srv, `{"url":"`+srv.URL+`"}`)
	deps.ValidateURL = func(string) error { return errors.New("blocked") }

	d := newDispatcher(t, deps, ServiceWebhook, testEnv(routing.Config{}))
	err := d.Dispatch(context.Background(), "soc", "r", testAlert(t))

	assert.Equal(t, types.ErrCodeCredentialsInvalid, types.CodeOf(err))
	assert.Empty(t, srv.Requests())
}
