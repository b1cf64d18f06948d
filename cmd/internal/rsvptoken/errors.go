package rsvptoken

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid rsvp token config")

	// ErrInsecureSecret is returned when the built-in default secret is used outside development.
	ErrInsecureSecret = errors.New("insecure rsvp token secret")

	// ErrInvalidGuest is returned when a guest is missing its guest, event or sub-event id.
	ErrInvalidGuest = errors.New("invalid guest")

	// ErrInvalidExpiry is returned when an expiresIn value does not match <n><s|m|h|d>.
	ErrInvalidExpiry = errors.New("invalid expiry")

	// Validation outcome kinds, reachable via Result.Err and errors.Is.
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
	ErrValidation   = errors.New("token validation failed")
)

// Code is the stable, user-facing-mappable validation outcome.
type Code string

const (
	CodeTokenExpired    Code = "TOKEN_EXPIRED"
	CodeInvalidToken    Code = "INVALID_TOKEN"
	CodeValidationError Code = "VALIDATION_ERROR"
)

// ValidationError is the error form of a failed Result.
type ValidationError struct {
	Code Code
	Msg  string
}

func (e ValidationError) Error() string {
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e ValidationError) Unwrap() error {
	switch e.Code {
	case CodeTokenExpired:
		return ErrTokenExpired
	case CodeInvalidToken:
		return ErrInvalidToken
	default:
		return ErrValidation
	}
}

// BatchError reports the first guest that failed during batch generation.
type BatchError struct {
	Index   int
	GuestID int64
	Err     error
}

func (e BatchError) Error() string {
	return fmt.Sprintf("batch guest %d (guest_id=%d): %v", e.Index, e.GuestID, e.Err)
}

func (e BatchError) Unwrap() error { return e.Err }
