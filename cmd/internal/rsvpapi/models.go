package rsvpapi

import (
	"time"

	"rsvp/cmd/internal/rsvptoken"
)

type guestRequest struct {
	GuestID        int64  `json:"guest_id"`
	EventID        int64  `json:"event_id"`
	SubeventID     *int64 `json:"subevent_id,omitempty"`
	GuestEmail     string `json:"guest_email"`
	GuestFirstName string `json:"guest_first_name,omitempty"`
	GuestLastName  string `json:"guest_last_name,omitempty"`
}

type tokenCreateRequest struct {
	guestRequest
	ExpiresIn string `json:"expires_in,omitempty"`
	Purpose   string `json:"purpose,omitempty"`
}

type tokenBatchRequest struct {
	Guests    []guestRequest `json:"guests"`
	ExpiresIn string         `json:"expires_in,omitempty"`
	Purpose   string         `json:"purpose,omitempty"`
}

type tokenRevokeRequest struct {
	TokenID string `json:"token_id"`
}

type resolveRequest struct {
	Token string `json:"token"`
}

type accessCodeRequest struct {
	GuestID int64 `json:"guest_id"`
	EventID int64 `json:"event_id"`
}

type accessCodeVerifyRequest struct {
	Code    string `json:"code"`
	GuestID int64  `json:"guest_id"`
	EventID int64  `json:"event_id"`
}

type integrityRequest struct {
	Token        string `json:"token"`
	ExpectedHash string `json:"expected_hash"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
	URL       string    `json:"url"`
}

type batchItemResponse struct {
	GuestID    int64     `json:"guest_id"`
	GuestEmail string    `json:"guest_email"`
	GuestName  string    `json:"guest_name"`
	Token      string    `json:"token"`
	TokenID    string    `json:"token_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	URL        string    `json:"url"`
}

type batchResponse struct {
	Items []batchItemResponse `json:"items"`
}

type payloadResponse struct {
	GuestID    int64     `json:"guest_id"`
	EventID    int64     `json:"event_id"`
	SubeventID *int64    `json:"subevent_id,omitempty"`
	Email      string    `json:"email"`
	TokenID    string    `json:"token_id"`
	TokenType  string    `json:"token_type"`
	Purpose    string    `json:"purpose,omitempty"`
	IssuedAt   int64     `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type resolveResponse struct {
	Valid      bool            `json:"valid"`
	Payload    payloadResponse `json:"payload"`
	UsageCount int             `json:"usage_count"`
}

type accessCodeResponse struct {
	Code string `json:"code"`
}

type validResponse struct {
	Valid bool `json:"valid"`
}

func (g guestRequest) toGuest() rsvptoken.Guest {
	return rsvptoken.Guest{
		GuestID:    g.GuestID,
		EventID:    g.EventID,
		SubeventID: g.SubeventID,
		Email:      g.GuestEmail,
		FirstName:  g.GuestFirstName,
		LastName:   g.GuestLastName,
	}
}

func toPayloadResponse(c *rsvptoken.Claims) payloadResponse {
	out := payloadResponse{
		GuestID:    c.GuestID,
		EventID:    c.EventID,
		SubeventID: c.SubeventID,
		Email:      c.Email,
		TokenID:    c.TokenID,
		TokenType:  string(c.TokenType),
		Purpose:    c.Purpose,
		IssuedAt:   c.IssuedAtMS,
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return out
}
