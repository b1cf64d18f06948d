package rsvptoken

import (
	"time"

	"rsvp/cmd/security/token"
)

// TrackingRecord is the persistence-bound summary of one issuance.
// It is derived from Issued and never mutated here; IsUsed and UsageCount
// transitions belong to the storing layer.
type TrackingRecord struct {
	TokenID    string    `json:"token_id"`
	GuestID    int64     `json:"guest_id"`
	EventID    int64     `json:"event_id"`
	SubeventID *int64    `json:"subevent_id"`
	TokenHash  string    `json:"token_hash"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	IsUsed     bool      `json:"is_used"`
	UsageCount int       `json:"usage_count"`
}

// BuildTrackingRecord derives the tracking record for a freshly issued token.
// The hash covers the full signed token string, not just its payload.
func (m *Manager) BuildTrackingRecord(issued Issued, g Guest) TrackingRecord {
	var sub *int64
	if g.SubeventID != nil {
		v := *g.SubeventID
		sub = &v
	}
	return TrackingRecord{
		TokenID:    issued.TokenID,
		GuestID:    g.GuestID,
		EventID:    g.EventID,
		SubeventID: sub,
		TokenHash:  token.HashSHA256Hex(issued.Token),
		ExpiresAt:  issued.ExpiresAt,
		CreatedAt:  m.now(),
		IsUsed:     false,
		UsageCount: 0,
	}
}

// VerifyTokenIntegrity reports whether tokenStr still hashes to expectedHash.
func VerifyTokenIntegrity(tokenStr, expectedHash string) bool {
	return token.VerifySHA256Hex(tokenStr, expectedHash)
}
