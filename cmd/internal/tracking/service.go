package tracking

import (
	"context"
	"errors"
	"time"

	"rsvp/cmd/internal/rsvptoken"
)

// Service couples token issuance with tracking persistence.
type Service struct {
	manager       *rsvptoken.Manager
	store         Store
	requireRecord bool
	now           func() time.Time
}

// ServiceOption configures Service.
type ServiceOption func(*Service)

// WithRequireRecord makes Resolve reject signed tokens that have no tracking
// record (for example tokens minted by another deployment sharing the secret).
func WithRequireRecord(v bool) ServiceOption {
	return func(s *Service) { s.requireRecord = v }
}

// WithServiceClock overrides the clock used for usage and revocation stamps.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service.
func NewService(m *rsvptoken.Manager, st Store, opts ...ServiceOption) (*Service, error) {
	if m == nil || st == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{
		manager: m,
		store:   st,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s, nil
}

// Manager exposes the underlying token manager for stateless operations.
func (s *Service) Manager() *rsvptoken.Manager { return s.manager }

// Issue mints a token for g and persists its tracking record.
// A non-nil g.SubeventID mints a sub-event token.
func (s *Service) Issue(ctx context.Context, g rsvptoken.Guest, opts rsvptoken.Options) (rsvptoken.Issued, rsvptoken.TrackingRecord, error) {
	var (
		issued rsvptoken.Issued
		err    error
	)
	if g.SubeventID != nil {
		issued, err = s.manager.GenerateSubeventRSVPToken(g, *g.SubeventID, opts)
	} else {
		issued, err = s.manager.GenerateRSVPToken(g, opts)
	}
	if err != nil {
		return rsvptoken.Issued{}, rsvptoken.TrackingRecord{}, err
	}

	rec := s.manager.BuildTrackingRecord(issued, g)
	if err := s.store.Create(ctx, rec); err != nil {
		return rsvptoken.Issued{}, rsvptoken.TrackingRecord{}, err
	}
	return issued, rec, nil
}

// IssueBatch mints event-level tokens for guests and persists each record in
// input order. It fails fast; records persisted before the failure remain and
// simply never get handed out.
func (s *Service) IssueBatch(ctx context.Context, guests []rsvptoken.Guest, opts rsvptoken.Options) ([]rsvptoken.BatchItem, error) {
	items, err := s.manager.GenerateBatchRSVPTokens(guests, opts)
	if err != nil {
		return nil, err
	}

	for i, item := range items {
		g := guests[i]
		g.SubeventID = nil
		if err := s.store.Create(ctx, s.manager.BuildTrackingRecord(item.Issued, g)); err != nil {
			return nil, rsvptoken.BatchError{Index: i, GuestID: g.GuestID, Err: err}
		}
	}
	return items, nil
}

// Resolution is the outcome of Resolve.
// Record is nil when the token validated but has no tracking record.
type Resolution struct {
	Result rsvptoken.Result
	Record *Record
}

// Resolve validates a guest-presented token and records its use.
//
// Validation failures return a Resolution carrying the failed Result together
// with Result.Err(). Storage failures return a plain error.
func (s *Service) Resolve(ctx context.Context, tokenStr string) (Resolution, error) {
	res := s.manager.ValidateRSVPToken(tokenStr)
	if !res.Valid {
		return Resolution{Result: res}, res.Err()
	}

	rec, err := s.store.Get(ctx, res.Payload.TokenID)
	switch {
	case errors.Is(err, ErrNotFound):
		if s.requireRecord {
			return rejected("Token not recognized")
		}
		return Resolution{Result: res}, nil
	case err != nil:
		return Resolution{}, err
	}

	if !rsvptoken.VerifyTokenIntegrity(tokenStr, rec.TokenHash) {
		return rejected("Token integrity check failed")
	}
	if rec.Revoked() {
		return rejected("Token revoked")
	}

	used, err := s.store.MarkUsed(ctx, rec.TokenID, s.now())
	switch {
	case errors.Is(err, ErrRevoked):
		return rejected("Token revoked")
	case errors.Is(err, ErrNotFound):
		// Evicted between Get and MarkUsed.
		if s.requireRecord {
			return rejected("Token not recognized")
		}
		return Resolution{Result: res}, nil
	case err != nil:
		return Resolution{}, err
	}
	return Resolution{Result: res, Record: &used}, nil
}

// Revoke marks tokenID revoked so later resolves fail with INVALID_TOKEN.
func (s *Service) Revoke(ctx context.Context, tokenID string) error {
	return s.store.Revoke(ctx, tokenID, s.now())
}

func rejected(msg string) (Resolution, error) {
	res := rsvptoken.Result{Code: rsvptoken.CodeInvalidToken, Error: msg}
	return Resolution{Result: res}, res.Err()
}
