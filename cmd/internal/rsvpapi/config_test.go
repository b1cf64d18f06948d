package rsvpapi

import (
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("RSVP_PUBLIC_BASE_URL", "https://rsvp.example.com")
	t.Setenv("RSVP_BATCH_MAX", "50")
	t.Setenv("RSVP_ACCESS_CODE_RATE", "-3")
	t.Setenv("RSVP_ACCESS_CODE_WINDOW", "30s")
	t.Setenv("RSVP_TRUST_PROXY", "true")
	t.Setenv("RSVP_REQUIRE_TRACKING", "yes-please")
	t.Setenv("RSVP_ADMIN_KEY_HASH", "  $argon2id$x  ")

	cfg := LoadConfigFromEnv()

	if cfg.PublicBaseURL != "https://rsvp.example.com" {
		t.Fatalf("base url=%q", cfg.PublicBaseURL)
	}
	if cfg.BatchMax != 50 {
		t.Fatalf("batch max=%d", cfg.BatchMax)
	}
	if cfg.AccessCodeRate != defaultAccessCodeRate {
		t.Fatalf("invalid rate must fall back, got %d", cfg.AccessCodeRate)
	}
	if cfg.AccessCodeWindow != 30*time.Second {
		t.Fatalf("window=%v", cfg.AccessCodeWindow)
	}
	if !cfg.TrustProxy {
		t.Fatalf("expected trust proxy")
	}
	if cfg.RequireTracking {
		t.Fatalf("unparseable bool must fall back to false")
	}
	if cfg.AdminKeyHash != "$argon2id$x" {
		t.Fatalf("admin hash=%q", cfg.AdminKeyHash)
	}
	if cfg.MaxBodyBytes != defaultMaxBodyBytes {
		t.Fatalf("max body=%d", cfg.MaxBodyBytes)
	}
}

func TestKeyedRateLimiter(t *testing.T) {
	t.Parallel()

	l := NewKeyedRateLimiter(2, 10*time.Second)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if ok, _ := l.Allow("a", now); !ok {
		t.Fatalf("first attempt must pass")
	}
	if ok, _ := l.Allow("a", now.Add(4*time.Second)); !ok {
		t.Fatalf("second attempt must pass")
	}
	ok, retry := l.Allow("a", now.Add(5*time.Second))
	if ok {
		t.Fatalf("third attempt must be limited")
	}
	if retry != 5*time.Second {
		t.Fatalf("retry=%v want 5s", retry)
	}

	// Keys are independent.
	if ok, _ := l.Allow("b", now.Add(5*time.Second)); !ok {
		t.Fatalf("other key must pass")
	}

	// The oldest event leaves the window.
	if ok, _ := l.Allow("a", now.Add(10*time.Second+time.Millisecond)); !ok {
		t.Fatalf("attempt after window must pass")
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("POST", "/rsvp/access-codes/verify", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := clientIP(r, false).String(); got != "10.0.0.1" {
		t.Fatalf("untrusted proxy: got %s", got)
	}
	if got := clientIP(r, true).String(); got != "203.0.113.7" {
		t.Fatalf("trusted proxy: got %s", got)
	}

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-IP", "198.51.100.2")
	if got := clientIP(r, true).String(); got != "198.51.100.2" {
		t.Fatalf("x-real-ip: got %s", got)
	}

	r.RemoteAddr = "garbage"
	if ip := clientIP(r, false); ip != nil || rateKey(ip) != "unknown" {
		t.Fatalf("expected unknown key, got %v", ip)
	}
}

func TestLimiterKey_Pseudonymizes(t *testing.T) {
	t.Parallel()

	h := &Handler{ipKey: []byte("limiter-test-key")}
	a := h.limiterKey(net.ParseIP("203.0.113.7"))
	b := h.limiterKey(net.ParseIP("203.0.113.8"))

	if len(a) != 64 || a == b {
		t.Fatalf("expected distinct 64-char keys, got %q and %q", a, b)
	}
	if strings.Contains(a, "203.0.113.7") {
		t.Fatalf("key must not contain the raw address")
	}
	if a != h.limiterKey(net.ParseIP("203.0.113.7")) {
		t.Fatalf("key must be stable for the same address")
	}
}
