package tracking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"rsvp/cmd/internal/rsvptoken"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *MemoryStore, *clock) {
	t.Helper()

	clk := &clock{now: time.Now().UTC()}
	cfg := rsvptoken.DefaultConfig()
	cfg.Secret = "tracking-test-secret-0123456789abcdef"
	m, err := rsvptoken.NewManager(cfg, rsvptoken.WithClock(clk.Now))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	st := NewMemoryStore()
	svc, err := NewService(m, st, append([]ServiceOption{WithServiceClock(clk.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, st, clk
}

func guest(id int64) rsvptoken.Guest {
	return rsvptoken.Guest{GuestID: id, EventID: 7, Email: "guest@example.com", FirstName: "Grace", LastName: "Hopper"}
}

func TestNewService_RequiresDeps(t *testing.T) {
	t.Parallel()

	if _, err := NewService(nil, NewMemoryStore()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestService_IssuePersistsRecord(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t)
	ctx := context.Background()

	issued, rec, err := svc.Issue(ctx, guest(42), rsvptoken.Options{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if rec.TokenID != issued.TokenID || !rsvptoken.VerifyTokenIntegrity(issued.Token, rec.TokenHash) {
		t.Fatalf("record does not match issued token: %+v", rec)
	}

	stored, err := st.Get(ctx, issued.TokenID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.IsUsed || stored.UsageCount != 0 {
		t.Fatalf("fresh record must be unused: %+v", stored)
	}
}

func TestService_IssueSubevent(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t)
	ctx := context.Background()

	g := guest(42)
	sub := int64(9)
	g.SubeventID = &sub

	issued, _, err := svc.Issue(ctx, g, rsvptoken.Options{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	res := svc.Manager().ValidateRSVPToken(issued.Token)
	if !res.Valid || res.Payload.TokenType != rsvptoken.TokenTypeSubeventRSVP {
		t.Fatalf("expected valid subevent token, got %+v", res)
	}
	stored, _ := st.Get(ctx, issued.TokenID)
	if stored.SubeventID == nil || *stored.SubeventID != 9 {
		t.Fatalf("expected subevent 9 on record, got %v", stored.SubeventID)
	}
}

func TestService_IssueRejectsInvalidGuest(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t)
	if _, _, err := svc.Issue(context.Background(), rsvptoken.Guest{EventID: 7}, rsvptoken.Options{}); !errors.Is(err, rsvptoken.ErrInvalidGuest) {
		t.Fatalf("expected ErrInvalidGuest, got %v", err)
	}
	if st.Len() != 0 {
		t.Fatalf("nothing should be persisted on failure")
	}
}

func TestService_ResolveCountsUsage(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()

	issued, _, err := svc.Issue(ctx, guest(42), rsvptoken.Options{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for want := 1; want <= 3; want++ {
		r, err := svc.Resolve(ctx, issued.Token)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if !r.Result.Valid || r.Record == nil {
			t.Fatalf("expected valid resolution with record: %+v", r)
		}
		if !r.Record.IsUsed || r.Record.UsageCount != want {
			t.Fatalf("usage_count=%d want %d", r.Record.UsageCount, want)
		}
	}
}

func TestService_ResolveExpired(t *testing.T) {
	t.Parallel()

	svc, _, clk := newTestService(t)
	ctx := context.Background()

	issued, _, err := svc.Issue(ctx, guest(42), rsvptoken.Options{ExpiresIn: "1h"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clk.Advance(2 * time.Hour)

	r, err := svc.Resolve(ctx, issued.Token)
	if !errors.Is(err, rsvptoken.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if r.Result.Code != rsvptoken.CodeTokenExpired {
		t.Fatalf("code=%q", r.Result.Code)
	}
}

func TestService_ResolveRevoked(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t)
	ctx := context.Background()

	issued, _, err := svc.Issue(ctx, guest(42), rsvptoken.Options{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.Revoke(ctx, issued.TokenID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	r, err := svc.Resolve(ctx, issued.Token)
	if !errors.Is(err, rsvptoken.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if r.Result.Error != "Token revoked" {
		t.Fatalf("unexpected message %q", r.Result.Error)
	}
	rec, _ := st.Get(ctx, issued.TokenID)
	if rec.UsageCount != 0 {
		t.Fatalf("revoked resolve must not count usage")
	}

	if err := svc.Revoke(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ResolveIntegrityMismatch(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t)
	ctx := context.Background()

	g := guest(42)
	issued, err := svc.Manager().GenerateRSVPToken(g, rsvptoken.Options{})
	if err != nil {
		t.Fatalf("GenerateRSVPToken: %v", err)
	}
	rec := svc.Manager().BuildTrackingRecord(issued, g)
	rec.TokenHash = strings.Repeat("0", 64)
	if err := st.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	r, err := svc.Resolve(ctx, issued.Token)
	if !errors.Is(err, rsvptoken.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if r.Result.Error != "Token integrity check failed" {
		t.Fatalf("unexpected message %q", r.Result.Error)
	}
}

func TestService_ResolveUntracked(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	lenient, _, _ := newTestService(t)
	issued, err := lenient.Manager().GenerateRSVPToken(guest(42), rsvptoken.Options{})
	if err != nil {
		t.Fatalf("GenerateRSVPToken: %v", err)
	}
	r, err := lenient.Resolve(ctx, issued.Token)
	if err != nil || !r.Result.Valid || r.Record != nil {
		t.Fatalf("expected valid untracked resolution, got %+v err=%v", r, err)
	}

	strict, _, _ := newTestService(t, WithRequireRecord(true))
	issued, err = strict.Manager().GenerateRSVPToken(guest(42), rsvptoken.Options{})
	if err != nil {
		t.Fatalf("GenerateRSVPToken: %v", err)
	}
	r, err = strict.Resolve(ctx, issued.Token)
	if !errors.Is(err, rsvptoken.ErrInvalidToken) || r.Result.Error != "Token not recognized" {
		t.Fatalf("expected not recognized, got %+v err=%v", r, err)
	}
}

func TestService_ResolveGarbage(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	r, err := svc.Resolve(context.Background(), "not-a-token")
	if err == nil || r.Result.Valid {
		t.Fatalf("expected failure for garbage token")
	}
	if r.Result.Code != rsvptoken.CodeInvalidToken {
		t.Fatalf("code=%q want INVALID_TOKEN", r.Result.Code)
	}
}

func TestService_IssueBatch(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t)
	ctx := context.Background()

	guests := []rsvptoken.Guest{guest(1), guest(2), guest(3)}
	items, err := svc.IssueBatch(ctx, guests, rsvptoken.Options{})
	if err != nil {
		t.Fatalf("IssueBatch: %v", err)
	}
	if len(items) != 3 || st.Len() != 3 {
		t.Fatalf("items=%d stored=%d want 3/3", len(items), st.Len())
	}
	for i, it := range items {
		if it.GuestID != guests[i].GuestID {
			t.Fatalf("order not preserved at %d", i)
		}
		if _, err := st.Get(ctx, it.TokenID); err != nil {
			t.Fatalf("missing record for item %d: %v", i, err)
		}
	}

	_, err = svc.IssueBatch(ctx, []rsvptoken.Guest{guest(4), {GuestID: 0, EventID: 7}}, rsvptoken.Options{})
	var be rsvptoken.BatchError
	if !errors.As(err, &be) || be.Index != 1 {
		t.Fatalf("expected BatchError at index 1, got %v", err)
	}
	if st.Len() != 3 {
		t.Fatalf("generation failure must not persist anything, stored=%d", st.Len())
	}
}
