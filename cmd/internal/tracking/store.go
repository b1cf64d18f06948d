package tracking

import (
	"context"
	"strings"
	"time"

	"rsvp/cmd/internal/rsvptoken"
)

// Record is a stored tracking record plus its lifecycle timestamps.
type Record struct {
	rsvptoken.TrackingRecord
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Revoked reports whether an operator revoked the token.
func (r Record) Revoked() bool { return r.RevokedAt != nil }

// Store is the persistence boundary for tracking records.
type Store interface {
	// Create inserts a fresh record. Duplicate token ids return ErrConflict.
	Create(ctx context.Context, rec rsvptoken.TrackingRecord) error
	// Get returns ErrNotFound for unknown token ids.
	Get(ctx context.Context, tokenID string) (Record, error)
	// MarkUsed sets is_used, increments usage_count and stamps last_used_at.
	// Revoked records return ErrRevoked and are left untouched.
	MarkUsed(ctx context.Context, tokenID string, now time.Time) (Record, error)
	// Revoke stamps revoked_at. Revoking twice keeps the first timestamp.
	Revoke(ctx context.Context, tokenID string, now time.Time) error
}

func validRecord(rec rsvptoken.TrackingRecord) bool {
	if strings.TrimSpace(rec.TokenID) == "" || strings.TrimSpace(rec.TokenHash) == "" {
		return false
	}
	if rec.GuestID <= 0 || rec.EventID <= 0 {
		return false
	}
	if rec.SubeventID != nil && *rec.SubeventID <= 0 {
		return false
	}
	return !rec.ExpiresAt.IsZero()
}

func cloneRecord(r Record) Record {
	if r.SubeventID != nil {
		v := *r.SubeventID
		r.SubeventID = &v
	}
	if r.LastUsedAt != nil {
		v := *r.LastUsedAt
		r.LastUsedAt = &v
	}
	if r.RevokedAt != nil {
		v := *r.RevokedAt
		r.RevokedAt = &v
	}
	return r
}
