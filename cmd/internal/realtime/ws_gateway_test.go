package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	v1 "rsvp/shared/contracts/rsvpfeed/v1"

	"github.com/coder/websocket"
)

const testAdminKey = "feed-admin-key-0123456789abcdef"

type staticKey string

func (k staticKey) Check(key string) bool { return key != "" && key == string(k) }

func testGatewayConfig() GatewayConfig {
	cfg := DefaultGatewayConfig()
	cfg.OriginRequired = false
	return cfg
}

func startWSTestServer(t *testing.T, gw *WSGateway) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/ws/rsvp", gw)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func dialWS(t *testing.T, baseHTTPURL, origin, bearer string, subprotocols ...string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(baseHTTPURL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws/rsvp"

	h := http.Header{}
	if origin != "" {
		h.Set("Origin", origin)
	}
	if bearer != "" {
		h.Set("Authorization", "Bearer "+bearer)
	}
	if len(subprotocols) == 0 {
		subprotocols = []string{v1.Subprotocol}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: subprotocols,
		HTTPHeader:   h,
	})
}

func expectHandshakeStatus(t *testing.T, resp *http.Response, err error, want int) {
	t.Helper()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != want {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected %d, got status=%d err=%v", want, status, err)
	}
}

func waitForSubscribers(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for h.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers, have %d", n, h.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSGateway_StreamsPublishedEvents(t *testing.T) {
	t.Parallel()

	hub := NewHub(testLogger())
	gw := NewWSGateway(testLogger(), hub, staticKey(testAdminKey), testGatewayConfig())
	ts := startWSTestServer(t, gw)

	conn, resp, err := dialWS(t, ts.URL, "", testAdminKey)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

	if conn.Subprotocol() != v1.Subprotocol {
		t.Fatalf("subprotocol=%q", conn.Subprotocol())
	}

	waitForSubscribers(t, hub, 1)

	if err := Emit(context.Background(), hub, v1.TypeTokenIssued, v1.TokenIssuedPayload{
		TokenID: "tok", GuestID: 42, EventID: 7, TokenType: "rsvp", ExpiresAt: time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, b, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var env v1.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := env.Validate(); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}
	if env.Type != v1.TypeTokenIssued {
		t.Fatalf("type=%q", env.Type)
	}
	var p v1.TokenIssuedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.GuestID != 42 || p.TokenID != "tok" {
		t.Fatalf("payload mismatch: %+v", p)
	}
}

func TestWSGateway_UnsubscribesOnClose(t *testing.T) {
	t.Parallel()

	hub := NewHub(testLogger())
	gw := NewWSGateway(testLogger(), hub, staticKey(testAdminKey), testGatewayConfig())
	ts := startWSTestServer(t, gw)

	conn, resp, err := dialWS(t, ts.URL, "", testAdminKey)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	waitForSubscribers(t, hub, 1)

	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	waitForSubscribers(t, hub, 0)
}

func TestWSGateway_RejectsMissingOrWrongKey(t *testing.T) {
	t.Parallel()

	gw := NewWSGateway(testLogger(), nil, staticKey(testAdminKey), testGatewayConfig())
	ts := startWSTestServer(t, gw)

	_, resp, err := dialWS(t, ts.URL, "", "")
	expectHandshakeStatus(t, resp, err, http.StatusUnauthorized)

	_, resp, err = dialWS(t, ts.URL, "", "wrong-key")
	expectHandshakeStatus(t, resp, err, http.StatusUnauthorized)
}

func TestWSGateway_AdminNotConfigured(t *testing.T) {
	t.Parallel()

	gw := NewWSGateway(testLogger(), nil, nil, testGatewayConfig())
	ts := startWSTestServer(t, gw)

	_, resp, err := dialWS(t, ts.URL, "", testAdminKey)
	expectHandshakeStatus(t, resp, err, http.StatusServiceUnavailable)
}

func TestWSGateway_OriginPolicy(t *testing.T) {
	t.Parallel()

	cfg := DefaultGatewayConfig()
	cfg.AllowedOrigins = []string{"http://localhost:3000"}
	gw := NewWSGateway(testLogger(), nil, staticKey(testAdminKey), cfg)
	ts := startWSTestServer(t, gw)

	// Missing origin is rejected when required.
	_, resp, err := dialWS(t, ts.URL, "", testAdminKey)
	expectHandshakeStatus(t, resp, err, http.StatusForbidden)

	_, resp, err = dialWS(t, ts.URL, "https://evil.example", testAdminKey)
	expectHandshakeStatus(t, resp, err, http.StatusForbidden)

	conn, resp, err := dialWS(t, ts.URL, "http://localhost:3000", testAdminKey)
	if err != nil {
		t.Fatalf("expected allowed origin to connect: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func TestWSGateway_RequiresSubprotocol(t *testing.T) {
	t.Parallel()

	gw := NewWSGateway(testLogger(), nil, staticKey(testAdminKey), testGatewayConfig())
	ts := startWSTestServer(t, gw)

	conn, resp, err := dialWS(t, ts.URL, "", testAdminKey, "other.v1")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		// Handshake refused outright is also acceptable.
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err = conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusProtocolError {
		t.Fatalf("expected protocol error close, got %v (err=%v)", got, err)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                "",
		"Bearer":          "",
		"Bearer abc":      "abc",
		"bearer  abc ":    "abc",
		"Basic dXNlcjpw":  "",
		"BEARER key-1234": "key-1234",
	}
	for header, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/ws/rsvp", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if got := bearerToken(r); got != want {
			t.Fatalf("bearerToken(%q)=%q want %q", header, got, want)
		}
	}
}

func TestLoadGatewayConfigFromEnv(t *testing.T) {
	t.Setenv("RSVP_WS_ORIGIN_REQUIRED", "false")
	t.Setenv("RSVP_WS_ALLOWED_ORIGINS", "https://admin.example.com, http://localhost:5173")
	t.Setenv("RSVP_WS_HEARTBEAT_INTERVAL", "10s")
	t.Setenv("RSVP_WS_SEND_QUEUE", "not-a-number")

	cfg := LoadGatewayConfigFromEnv()
	if cfg.OriginRequired {
		t.Fatalf("expected origin not required")
	}
	if strings.Join(cfg.AllowedOrigins, "|") != "https://admin.example.com|http://localhost:5173" {
		t.Fatalf("allowed origins=%v", cfg.AllowedOrigins)
	}
	if cfg.HeartbeatEvery != 10*time.Second {
		t.Fatalf("heartbeat=%v", cfg.HeartbeatEvery)
	}
	if cfg.SendQueueSize != wsDefaultSendQueueSize {
		t.Fatalf("invalid send queue must fall back, got %d", cfg.SendQueueSize)
	}

	patterns := deriveOriginPatternsFromAllowedOrigins(cfg.AllowedOrigins)
	if strings.Join(patterns, ",") != "admin.example.com,localhost,localhost:5173" {
		t.Fatalf("patterns=%v", patterns)
	}
}
