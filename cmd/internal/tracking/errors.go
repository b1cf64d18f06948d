package tracking

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("tracking record not found")
	ErrConflict     = errors.New("tracking record already exists")
	ErrRevoked      = errors.New("tracking record revoked")
)
