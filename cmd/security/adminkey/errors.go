package adminkey

import "errors"

// Public, stable errors for callers.
var (
	ErrKeyTooShort = errors.New("admin key too short")
	ErrInvalidHash = errors.New("invalid admin key hash")
	ErrParams      = errors.New("invalid argon2id params")
)
