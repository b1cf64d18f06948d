package tracking

import (
	"context"
	"strings"
	"sync"
	"time"

	"rsvp/cmd/internal/rsvptoken"

	"github.com/patrickmn/go-cache"
)

const (
	memCleanupInterval = 10 * time.Minute
	memMinTTL          = time.Second
)

// MemoryStore is a dev-only fallback when DB is not configured.
// Entries are evicted once their token expires; an expired token can never
// validate, so its record has nothing left to guard.
type MemoryStore struct {
	mu    sync.Mutex
	items *cache.Cache
	now   func() time.Time
}

// NewMemoryStore constructs an in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: cache.New(cache.NoExpiration, memCleanupInterval),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Len reports how many unexpired records are held.
func (s *MemoryStore) Len() int { return s.items.ItemCount() }

// Create inserts a record with a TTL matching the token's expiry.
func (s *MemoryStore) Create(ctx context.Context, rec rsvptoken.TrackingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validRecord(rec) {
		return ErrInvalidInput
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl < memMinTTL {
		ttl = memMinTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.items.Add(rec.TokenID, cloneRecord(Record{TrackingRecord: rec}), ttl); err != nil {
		return ErrConflict
	}
	return nil
}

// Get returns a copy of the stored record.
func (s *MemoryStore) Get(ctx context.Context, tokenID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return Record{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.items.Get(tokenID)
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(v.(Record)), nil
}

// MarkUsed increments usage on a non-revoked record.
func (s *MemoryStore) MarkUsed(ctx context.Context, tokenID string, now time.Time) (Record, error) {
	if now.IsZero() {
		now = s.now()
	}
	var out Record
	err := s.update(ctx, tokenID, func(r *Record) error {
		if r.RevokedAt != nil {
			return ErrRevoked
		}
		used := now
		r.IsUsed = true
		r.UsageCount++
		r.LastUsedAt = &used
		out = cloneRecord(*r)
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

// Revoke stamps revoked_at once.
func (s *MemoryStore) Revoke(ctx context.Context, tokenID string, now time.Time) error {
	if now.IsZero() {
		now = s.now()
	}
	return s.update(ctx, tokenID, func(r *Record) error {
		if r.RevokedAt == nil {
			at := now
			r.RevokedAt = &at
		}
		return nil
	})
}

// update runs a read-modify-write under the store lock, keeping the entry's
// original expiration.
func (s *MemoryStore) update(ctx context.Context, tokenID string, fn func(*Record) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, exp, ok := s.items.GetWithExpiration(tokenID)
	if !ok {
		return ErrNotFound
	}
	rec := cloneRecord(v.(Record))
	if err := fn(&rec); err != nil {
		return err
	}

	ttl := cache.NoExpiration
	if !exp.IsZero() {
		ttl = time.Until(exp)
		if ttl <= 0 {
			return ErrNotFound
		}
	}
	return s.items.Replace(tokenID, rec, ttl)
}
