package rsvptoken

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Result is the outcome of ValidateRSVPToken.
// Exactly one of (Valid && Payload != nil) or (Code != "") holds.
type Result struct {
	Payload *Claims
	Valid   bool
	Code    Code
	Error   string
}

// Err returns nil for a valid result, otherwise a ValidationError.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return ValidationError{Code: r.Code, Msg: r.Error}
}

func failure(code Code, msg string) Result {
	return Result{Code: code, Error: msg}
}

// ValidateRSVPToken verifies an untrusted, guest-supplied token.
//
// It never panics and never returns a Go error: every failure is a typed Result.
func (m *Manager) ValidateRSVPToken(tokenStr string) (res Result) {
	defer func() {
		if recover() != nil {
			res = failure(CodeValidationError, "Token validation failed")
		}
	}()

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithTimeFunc(m.now),
		jwt.WithStrictDecoding(),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return classifyParseErr(err)
	}

	// Re-check expiry against the wall clock even though the parser already did.
	if claims.ExpiresAt != nil && !m.now().Before(claims.ExpiresAt.Time) {
		return failure(CodeTokenExpired, "Token expired")
	}

	if field := missingField(claims); field != "" {
		return failure(CodeInvalidToken, "Missing required field: "+field)
	}

	return Result{Payload: &claims, Valid: true}
}

func classifyParseErr(err error) Result {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return failure(CodeTokenExpired, "Token expired")
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience):
		return failure(CodeInvalidToken, "Invalid token")
	default:
		return failure(CodeValidationError, "Token validation failed")
	}
}

// missingField returns the first mandatory claim that is absent or zero.
func missingField(c Claims) string {
	switch {
	case c.GuestID == 0:
		return "guest_id"
	case c.EventID == 0:
		return "event_id"
	case c.Email == "":
		return "email"
	case c.TokenID == "":
		return "token_id"
	case c.TokenType == "":
		return "token_type"
	default:
		return ""
	}
}
