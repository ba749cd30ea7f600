package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"

	"github.com/warpdl/mogwai/common"
)

func newTestHTTP(t *testing.T, env *testEnv) string {
	t.Helper()
	srv := httptest.NewServer(env.srv.Router())
	t.Cleanup(srv.Close)
	return srv.URL
}

func dialWS(t *testing.T, url, token string) (*cws.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(url, "http") + "/jsonrpc/ws"
	opts := &cws.DialOptions{}
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
	}
	return cws.Dial(ctx, wsURL, opts)
}

func TestWebSocketEndpoint_AuthRequired(t *testing.T) {
	env := newTestEnv(t, 0)
	url := newTestHTTP(t, env)

	for _, token := range []string{"", "wrong-token"} {
		_, resp, err := dialWS(t, url, token)
		if err == nil {
			t.Fatalf("token %q: expected error for unauthorized WebSocket connection", token)
		}
		if resp != nil && resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("token %q: expected 401, got %d", token, resp.StatusCode)
		}
	}
}

// TestWebSocketEndpoint_Session tests that a WebSocket client is a full
// peer: it can schedule, and its entries go away when it disconnects.
func TestWebSocketEndpoint_Session(t *testing.T) {
	env := newTestEnv(t, 0)
	url := newTestHTTP(t, env)

	conn, _, err := dialWS(t, url, "test-secret")
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cli := jrpc2.NewClient(&wsChannel{conn: conn, ctx: ctx}, nil)

	var version common.VersionResult
	if err := cli.CallResult(ctx, common.MethodGetVersion, nil, &version); err != nil {
		t.Fatalf("system.getVersion: %v", err)
	}
	if version.Version != "1.2.3" {
		t.Fatalf("version = %+v", version)
	}

	var res common.ScheduleResult
	if err := cli.CallResult(ctx, common.MethodSchedule, &common.ScheduleParams{}, &res); err != nil {
		t.Fatalf("scheduler.schedule: %v", err)
	}
	env.eventually(t, func() bool { return env.sched.Len() == 1 })

	cli.Close()
	env.eventually(t, func() bool { return env.sched.Len() == 0 })
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, 0)
	env.openGate(t)
	url := newTestHTTP(t, env)

	resp, err := http.Get(url + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "mogwai_downloads_allowed 1") {
		t.Fatalf("metrics missing gate state:\n%s", body)
	}
}
