package outputs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"alertprocessor/internal/alert"
	"alertprocessor/internal/credentials"
	"alertprocessor/internal/dispatch"
	"alertprocessor/internal/external"
	"alertprocessor/internal/routing"
	"alertprocessor/internal/types"
)

const testAlertJSON = `{
	"record": {"user": "root", "eventName": "ConsoleLogin", "sourceIPAddress": "203.0.113.7"},
	"metadata": {
		"rule_name": "root_console_login",
		"rule_description": "Root account signed in to the console",
		"log": "cloudtrail:events",
		"outputs": ["slack:soc", "pagerduty:oncall"],
		"type": "json",
		"source": {"service": "s3", "entity": "corp-cloudtrail"}
	}
}`

var testNow = time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func testAlert(t *testing.T) *alert.Alert {
	t.Helper()
	a, err := alert.Decode([]byte(testAlertJSON))
	require.NoError(t, err)
	return a.Canonical()
}

func testEnv(cfg routing.Config) dispatch.Env {
	return dispatch.Env{
		Region:       "eu-west-1",
		FunctionName: "alert_processor",
		Routing:      cfg,
		Logger:       types.NopLogger{},
	}
}

func testDeps(store credentials.Store) Deps {
	return Deps{
		Credentials: store,
		Clock:       fixedClock{now: testNow},
		NewID:       func() string { return "11111111-2222-3333-4444-555555555555" },
	}.withDefaults()
}

func testHTTPClient(srv *httptest.Server) *external.BaseClient {
	return external.NewBaseClient(srv.Client(), "test",
		external.WithRetryPolicy(external.RetryPolicy{MaxRetries: 0}),
		external.WithSleepFunc(func(context.Context, time.Duration) error { return nil }),
	)
}

// capturedRequest is one request seen by a captureServer.
type capturedRequest struct {
	Path   string
	Header http.Header
	Body   []byte
}

// captureServer records requests and answers each with the next response in
// replies (the last one repeats).
type captureServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []capturedRequest
}

type reply struct {
	status int
	body   string
}

func newCaptureServer(t *testing.T, replies ...reply) *captureServer {
	t.Helper()
	if len(replies) == 0 {
		replies = []reply{{status: http.StatusOK, body: "ok"}}
	}
	cs := &captureServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cs.mu.Lock()
		n := len(cs.requests)
		cs.requests = append(cs.requests, capturedRequest{Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
		cs.mu.Unlock()

		rep := replies[min(n, len(replies)-1)]
		w.WriteHeader(rep.status)
		_, _ = io.WriteString(w, rep.body)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *captureServer) Requests() []capturedRequest {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]capturedRequest(nil), cs.requests...)
}

func decodeJSON(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

// newDispatcher builds the dispatcher for service through the registry, the
// way the processor does.
func newDispatcher(t *testing.T, deps Deps, service string, env dispatch.Env) dispatch.Dispatcher {
	t.Helper()
	reg := dispatch.NewRegistry(nil)
	Register(reg, deps)
	d, ok := reg.NewCache(env).Get(context.Background(), service)
	require.True(t, ok, "dispatcher for %s unavailable", service)
	return d
}
