// Package v1 defines the RSVP activity feed protocol v1 contract.
//
// The feed is server -> client only. It is shared between the server and
// admin dashboards to keep the wire format authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the WebSocket subprotocol clients must offer.
const Subprotocol = "rsvp.feed.v1"

// Type constants (wire-stable).
const (
	// TypeTokenIssued announces a minted token (single or batch item).
	TypeTokenIssued = "token_issued"
	// TypeTokenResolved announces a guest presenting a token, valid or not.
	TypeTokenResolved = "token_resolved"
	// TypeAccessCodeChecked announces an access code verification attempt.
	TypeAccessCodeChecked = "access_code_checked"
	// TypeError is a generic error envelope.
	TypeError = "error"
)

var allowedTypes = map[string]struct{}{
	TypeTokenIssued:       {},
	TypeTokenResolved:     {},
	TypeAccessCodeChecked: {},
	TypeError:             {},
}

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// Validate enforces structural rules shared by every envelope.
func (e Envelope) Validate() error {
	if e.V != Version {
		return fmt.Errorf("invalid protocol version: got=%q want=%q", e.V, Version)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing type")
	}
	if _, ok := allowedTypes[e.Type]; !ok {
		return fmt.Errorf("unsupported type: %s", e.Type)
	}
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("missing id")
	}
	if e.TS.IsZero() {
		return errors.New("missing ts")
	}
	if len(e.Payload) == 0 {
		return errors.New("missing payload")
	}
	return nil
}

// NewEnvelope marshals payload into a validated envelope.
func NewEnvelope(typ, id string, ts time.Time, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{V: Version, Type: typ, ID: id, TS: ts.UTC(), Payload: raw}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// TokenIssuedPayload is the payload of TypeTokenIssued.
// It never carries the token itself.
type TokenIssuedPayload struct {
	TokenID    string    `json:"token_id"`
	GuestID    int64     `json:"guest_id"`
	EventID    int64     `json:"event_id"`
	SubeventID *int64    `json:"subevent_id,omitempty"`
	TokenType  string    `json:"token_type"`
	ExpiresAt  time.Time `json:"expires_at"`
	Batch      bool      `json:"batch,omitempty"`
}

// TokenResolvedPayload is the payload of TypeTokenResolved.
// Identity fields are zero when the token failed before its claims were trusted.
type TokenResolvedPayload struct {
	Valid      bool   `json:"valid"`
	Code       string `json:"code,omitempty"`
	TokenID    string `json:"token_id,omitempty"`
	GuestID    int64  `json:"guest_id,omitempty"`
	EventID    int64  `json:"event_id,omitempty"`
	UsageCount int    `json:"usage_count,omitempty"`
}

// AccessCodeCheckedPayload is the payload of TypeAccessCodeChecked.
type AccessCodeCheckedPayload struct {
	GuestID     int64 `json:"guest_id"`
	EventID     int64 `json:"event_id"`
	Valid       bool  `json:"valid"`
	RateLimited bool  `json:"rate_limited,omitempty"`
}

// ErrorPayload is the payload of TypeError.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
