// Package main provides a CI-friendly smoke test for the RSVP API and admin feed.
//
// It validates:
//   - feed handshake + subprotocol selection
//   - token issue -> token_issued on the feed
//   - resolve -> token_resolved with usage_count
//   - revoke -> resolve rejected with INVALID_TOKEN
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "rsvp/shared/contracts/rsvpfeed/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

type feedClient struct {
	conn  *websocket.Conn
	inbox chan v1.Envelope
	errCh chan error
}

type issuedToken struct {
	Token   string `json:"token"`
	TokenID string `json:"token_id"`
	URL     string `json:"url"`
}

func main() {
	var (
		baseURL = flag.String("base", "http://127.0.0.1:8080", "Server base URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send on the feed handshake")
		key     = flag.String("key", os.Getenv("RSVP_ADMIN_KEY"), "Operator key (defaults to $RSVP_ADMIN_KEY)")
		guestID = flag.Int64("guest", 1, "Guest id to issue for")
		eventID = flag.Int64("event", 1, "Event id to issue for")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := validateBaseURL(*baseURL)
	if err != nil {
		fatalf("invalid -base: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}
	if strings.TrimSpace(*key) == "" {
		fatalf("missing operator key: pass -key or set RSVP_ADMIN_KEY")
	}

	root := context.Background()
	httpc := &http.Client{Timeout: *timeout}

	feed := mustConnect(root, wsURL(base), *origin, *key, *timeout)
	defer closeWS(feed.conn)
	if *verbose {
		fmt.Printf("feed connected origin=%q\n", *origin)
	}

	var tok issuedToken
	mustPost(httpc, base, "/rsvp/tokens", *key, map[string]any{
		"guest_id":         *guestID,
		"event_id":         *eventID,
		"guest_email":      "smoke@example.com",
		"guest_first_name": "Smoke",
		"guest_last_name":  "Test",
		"expires_in":       "1h",
	}, http.StatusCreated, &tok)
	if tok.Token == "" || tok.TokenID == "" || !strings.HasSuffix(tok.URL, "/rsvp/"+tok.Token) {
		fatalf("issue: unexpected response %+v", tok)
	}

	env := feed.mustReadUntilType(root, v1.TypeTokenIssued, *timeout)
	var issued v1.TokenIssuedPayload
	mustUnmarshal(env.Payload, &issued, "token_issued")
	if issued.TokenID != tok.TokenID || issued.GuestID != *guestID {
		fatalf("token_issued mismatch: got=%+v want token_id=%s", issued, tok.TokenID)
	}
	if *verbose {
		fmt.Printf("issued token_id=%s\n", tok.TokenID)
	}

	var resolved struct {
		Valid      bool `json:"valid"`
		UsageCount int  `json:"usage_count"`
	}
	mustPost(httpc, base, "/rsvp/resolve", "", map[string]string{"token": tok.Token}, http.StatusOK, &resolved)
	if !resolved.Valid || resolved.UsageCount != 1 {
		fatalf("resolve: unexpected response %+v", resolved)
	}

	env = feed.mustReadUntilType(root, v1.TypeTokenResolved, *timeout)
	var rp v1.TokenResolvedPayload
	mustUnmarshal(env.Payload, &rp, "token_resolved")
	if !rp.Valid || rp.TokenID != tok.TokenID || rp.UsageCount != 1 {
		fatalf("token_resolved mismatch: %+v", rp)
	}

	mustPost(httpc, base, "/rsvp/tokens/revoke", *key, map[string]string{"token_id": tok.TokenID}, http.StatusNoContent, nil)

	var rejected struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	mustPost(httpc, base, "/rsvp/resolve", "", map[string]string{"token": tok.Token}, http.StatusUnauthorized, &rejected)
	if rejected.Error.Code != "INVALID_TOKEN" {
		fatalf("revoked resolve: code=%q want INVALID_TOKEN", rejected.Error.Code)
	}

	env = feed.mustReadUntilType(root, v1.TypeTokenResolved, *timeout)
	rp = v1.TokenResolvedPayload{}
	mustUnmarshal(env.Payload, &rp, "token_resolved")
	if rp.Valid || rp.Code != "INVALID_TOKEN" {
		fatalf("revoked token_resolved mismatch: %+v", rp)
	}

	fmt.Printf("OK: token_id=%s guest_id=%d event_id=%d\n", tok.TokenID, *guestID, *eventID)
}

func validateBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(raw), "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func wsURL(base *url.URL) string {
	u := *base
	u.Scheme = "ws"
	if base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = "/ws/rsvp"
	return u.String()
}

func mustConnect(parent context.Context, wsURL, origin, key string, stepTimeout time.Duration) *feedClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+key)
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		fatalf("connect feed: status=%d err=%v", status, err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &feedClient{
		conn:  conn,
		inbox: make(chan v1.Envelope, 64),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *feedClient) startReadLoop() {
	go func() {
		defer close(c.inbox)
		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}
			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if err := env.Validate(); err != nil {
				c.fail(fmt.Errorf("bad envelope: %w", err))
				return
			}
			select {
			case c.inbox <- env:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *feedClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

func (c *feedClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q: %v", wantType, ctx.Err())
		case err := <-c.errCh:
			fatalf("feed error while waiting for %q: %v", wantType, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("feed closed while waiting for %q", wantType)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error: code=%q msg=%q", ep.Code, ep.Message)
			}
			// Other instances or operators may be active; skip unrelated events.
		}
	}
}

func mustPost(c *http.Client, base *url.URL, path, key string, body any, wantStatus int, out any) {
	b, err := json.Marshal(body)
	if err != nil {
		fatalf("marshal %s body: %v", path, err)
	}
	req, err := http.NewRequest(http.MethodPost, base.String()+path, bytes.NewReader(b))
	if err != nil {
		fatalf("build %s request: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.Do(req)
	if err != nil {
		fatalf("POST %s: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		fatalf("read %s response: %v", path, err)
	}
	if resp.StatusCode != wantStatus {
		fatalf("POST %s: status=%d want=%d body=%s", path, resp.StatusCode, wantStatus, raw)
	}
	if out != nil {
		mustUnmarshal(raw, out, path)
	}
}

func mustUnmarshal(data []byte, v any, what string) {
	if err := json.Unmarshal(data, v); err != nil {
		fatalf("unmarshal %s: %v", what, err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
