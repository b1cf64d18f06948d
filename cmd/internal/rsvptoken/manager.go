package rsvptoken

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIDBytes = 16

// TokenType discriminates event-level from sub-event-level tokens.
type TokenType string

const (
	TokenTypeRSVP         TokenType = "rsvp"
	TokenTypeSubeventRSVP TokenType = "subevent_rsvp"
)

const (
	PurposeEventRSVP    = "event_rsvp"
	PurposeSubeventRSVP = "subevent_rsvp"
)

// Guest is the identity a token is minted for.
type Guest struct {
	GuestID    int64
	EventID    int64
	SubeventID *int64
	Email      string
	FirstName  string
	LastName   string
}

// Name returns the display name used in batch results.
func (g Guest) Name() string {
	return g.FirstName + " " + g.LastName
}

// Options tunes a single issuance. Zero values fall back to defaults.
type Options struct {
	ExpiresIn string
	Purpose   string
}

// Claims is the signed payload of an RSVP token.
type Claims struct {
	GuestID    int64     `json:"guest_id"`
	EventID    int64     `json:"event_id"`
	SubeventID *int64    `json:"subevent_id,omitempty"`
	Email      string    `json:"email"`
	TokenID    string    `json:"token_id"`
	TokenType  TokenType `json:"token_type"`
	IssuedAtMS int64     `json:"issued_at"`
	Purpose    string    `json:"purpose"`

	jwt.RegisteredClaims
}

// Issued is the result of a single token generation.
// ExpiresAt is computed from the duration string, not read back from the token.
type Issued struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

// Manager issues and validates RSVP credentials.
type Manager struct {
	secret           []byte
	issuer           string
	audience         string
	defaultExpiresIn string

	now    func() time.Time
	random io.Reader
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock (tests, replay tooling).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRandom overrides the randomness source used for token ids.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) {
		if r != nil {
			m.random = r
		}
	}
}

// NewManager builds a Manager from a validated Config.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.DefaultExpiresIn == "" {
		cfg.DefaultExpiresIn = DefaultExpiresIn
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		secret:           []byte(cfg.Secret),
		issuer:           cfg.Issuer,
		audience:         cfg.Audience,
		defaultExpiresIn: cfg.DefaultExpiresIn,
		now:              time.Now,
		random:           rand.Reader,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(m)
	}
	return m, nil
}

// GenerateRSVPToken mints an event-level token for g.
func (m *Manager) GenerateRSVPToken(g Guest, opts Options) (Issued, error) {
	if g.GuestID <= 0 || g.EventID <= 0 {
		return Issued{}, ErrInvalidGuest
	}
	return m.issue(Claims{
		GuestID:   g.GuestID,
		EventID:   g.EventID,
		Email:     g.Email,
		TokenType: TokenTypeRSVP,
		Purpose:   purposeOr(opts.Purpose, PurposeEventRSVP),
	}, opts.ExpiresIn)
}

// GenerateSubeventRSVPToken mints a token scoped to one sub-event of g's event.
func (m *Manager) GenerateSubeventRSVPToken(g Guest, subeventID int64, opts Options) (Issued, error) {
	if g.GuestID <= 0 || g.EventID <= 0 || subeventID <= 0 {
		return Issued{}, ErrInvalidGuest
	}
	sub := subeventID
	return m.issue(Claims{
		GuestID:    g.GuestID,
		EventID:    g.EventID,
		SubeventID: &sub,
		Email:      g.Email,
		TokenType:  TokenTypeSubeventRSVP,
		Purpose:    purposeOr(opts.Purpose, PurposeSubeventRSVP),
	}, opts.ExpiresIn)
}

func (m *Manager) issue(c Claims, expiresIn string) (Issued, error) {
	if expiresIn == "" {
		expiresIn = m.defaultExpiresIn
	}
	ttl, ok := lookupExpiry(expiresIn)
	if !ok {
		return Issued{}, fmt.Errorf("%w: %q", ErrInvalidExpiry, expiresIn)
	}

	tokenID, err := m.newTokenID()
	if err != nil {
		return Issued{}, err
	}

	now := m.now()
	exp := now.Add(ttl)

	c.TokenID = tokenID
	c.IssuedAtMS = now.UnixMilli()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Audience:  jwt.ClaimStrings{m.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("sign rsvp token: %w", err)
	}

	return Issued{
		Token:     signed,
		TokenID:   tokenID,
		ExpiresAt: exp,
	}, nil
}

// newTokenID returns 128 random bits, hex-encoded. It is never derived from
// guest or event data so re-issued tokens stay unlinkable.
func (m *Manager) newTokenID() (string, error) {
	b := make([]byte, tokenIDBytes)
	if _, err := io.ReadFull(m.random, b); err != nil {
		return "", fmt.Errorf("token id entropy: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func purposeOr(p, def string) string {
	if strings.TrimSpace(p) == "" {
		return def
	}
	return p
}
