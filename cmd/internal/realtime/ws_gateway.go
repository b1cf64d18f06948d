package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	v1 "rsvp/shared/contracts/rsvpfeed/v1"

	"github.com/coder/websocket"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second

	wsMaxPingFailures = 3

	// Origin is required by default and only localhost is allowed.
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Authorizer checks the operator key presented on the feed handshake.
type Authorizer interface {
	Check(key string) bool
}

// GatewayConfig controls the feed gateway.
type GatewayConfig struct {
	DevInsecure    bool
	OriginRequired bool
	AllowedOrigins []string

	WriteTimeout  time.Duration
	SendQueueSize int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration
}

// DefaultGatewayConfig returns secure defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:   wsDefaultOriginRequired,
		AllowedOrigins:   splitCSV(wsDefaultAllowedOrigins),
		WriteTimeout:     wsDefaultWriteTimeout,
		SendQueueSize:    wsDefaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
	}
}

// LoadGatewayConfigFromEnv overlays RSVP_WS_* variables on the defaults.
// Invalid values fall back to defaults.
func LoadGatewayConfigFromEnv() GatewayConfig {
	c := DefaultGatewayConfig()

	// InsecureSkipVerify is a dev-only knob. It is not an origin policy.
	c.DevInsecure = envBoolWS("RSVP_WS_DEV_INSECURE", false)
	c.OriginRequired = envBoolWS("RSVP_WS_ORIGIN_REQUIRED", c.OriginRequired)
	if raw := strings.TrimSpace(os.Getenv("RSVP_WS_ALLOWED_ORIGINS")); raw != "" {
		c.AllowedOrigins = splitCSV(raw)
	}
	c.WriteTimeout = envDurationWS("RSVP_WS_WRITE_TIMEOUT", c.WriteTimeout)
	c.SendQueueSize = envIntWS("RSVP_WS_SEND_QUEUE", c.SendQueueSize)
	c.HeartbeatEvery = envDurationWS("RSVP_WS_HEARTBEAT_INTERVAL", c.HeartbeatEvery)
	c.HeartbeatTimeout = envDurationWS("RSVP_WS_HEARTBEAT_TIMEOUT", c.HeartbeatTimeout)
	return c
}

// WSGateway is the WebSocket entrypoint for the admin activity feed.
//
// It enforces operator auth, origin policy, subprotocol selection and
// heartbeats, then streams Hub envelopes to the subscriber.
type WSGateway struct {
	log  *slog.Logger
	hub  *Hub
	auth Authorizer
	cfg  GatewayConfig

	// Derived for websocket.Accept origin checks.
	originPatterns []string
}

// NewWSGateway constructs a gateway. A nil auth rejects every handshake with 503.
func NewWSGateway(log *slog.Logger, hub *Hub, auth Authorizer, cfg GatewayConfig) *WSGateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if hub == nil {
		hub = NewHub(log)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = wsDefaultWriteTimeout
	}
	if cfg.SendQueueSize < wsMinSendQueueSize {
		cfg.SendQueueSize = wsMinSendQueueSize
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = heartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = heartbeatTimeout
	}

	return &WSGateway{
		log:  log,
		hub:  hub,
		auth: auth,
		cfg:  cfg,
		// websocket.Accept enforces its own origin policy for cross-origin
		// requests; derive its patterns from the allowlist so both layers agree.
		originPatterns: deriveOriginPatternsFromAllowedOrigins(cfg.AllowedOrigins),
	}
}

// Hub returns the local fan-out hub.
func (g *WSGateway) Hub() *Hub { return g.hub }

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an authorized request and streams feed envelopes until
// the peer leaves or the heartbeat fails.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeWSError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if g.auth == nil {
		writeWSError(w, http.StatusServiceUnavailable, "admin_not_configured", "admin access is not configured")
		return
	}
	if !g.auth.Check(bearerToken(r)) {
		g.log.Info("ws.reject.auth", "remote", r.RemoteAddr)
		writeWSError(w, http.StatusUnauthorized, "unauthorized", "invalid admin key")
		return
	}
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		writeWSError(w, http.StatusForbidden, "forbidden_origin", "origin not allowed")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	clientID, err := NewEnvelopeID(time.Now().UTC())
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "id failed")
		return
	}
	client := NewClient(clientID, g.cfg.SendQueueSize)

	// The feed is read-only: CloseRead drains control frames (pongs, close)
	// and cancels ctx if the peer sends a data frame or disconnects.
	ctx := conn.CloseRead(r.Context())

	g.hub.Register(client)
	defer g.hub.Unregister(client.ID)

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		if !g.heartbeat(ctx, conn, client) {
			_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
		}
	}()
	defer func() { <-heartbeatDone }()
	defer client.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case env := <-client.Send:
			if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
				g.log.Info("ws.write.fail", "client_id", client.ID, "close_status", websocket.CloseStatus(err), "err", err)
				return
			}
		}
	}
}

// heartbeat pings until ctx ends. It reports false after repeated failures.
func (g *WSGateway) heartbeat(ctx context.Context, conn *websocket.Conn, client *Client) bool {
	t := time.NewTicker(g.cfg.HeartbeatEvery)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return true
		case <-client.Done():
			return true
		case <-t.C:
			hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
			err := conn.Ping(hbCtx)
			hbCancel()

			if err != nil {
				failures++
				g.log.Info("ws.ping.fail", "client_id", client.ID, "failures", failures, "err", err)
				if failures >= wsMaxPingFailures {
					client.Close()
					return false
				}
				continue
			}
			failures = 0
		}
	}
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func writeWSError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// originHostPort returns the lowercased host[:port] of an origin.
func originHostPort(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(u.Host))
	}
	return strings.ToLower(s)
}

// deriveOriginPatternsFromAllowedOrigins returns the sorted, de-duplicated
// hosts of the allowlist for websocket.AcceptOptions.OriginPatterns. Both the
// bare host and host:port are emitted so either matching form is accepted.
func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed)*2)
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
		if hp := originHostPort(a); hp != "" && hp != h {
			seen[hp] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
