package adminkey

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Version = 19 // argon2.Version is 0x13 (19)

// Hash hashes key with Argon2id and returns the encoded form.
func Hash(key string, p Params) (string, error) {
	if len(key) < MinKeyLength {
		return "", ErrKeyTooShort
	}
	if err := p.validate(); err != nil {
		return "", err
	}

	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	sum := argon2.IDKey([]byte(key), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		p.MemoryKiB,
		p.Iterations,
		p.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(sum),
	), nil
}

// Verify reports whether key matches encoded.
// Returns (false, ErrInvalidHash) for malformed or out-of-bounds hashes.
func Verify(encoded, key string) (bool, error) {
	p, salt, want, err := decode(encoded)
	if err != nil {
		return false, err
	}
	if !withinBounds(p, DefaultParams()) {
		return false, ErrInvalidHash
	}

	got := argon2.IDKey(
		[]byte(key),
		salt,
		p.Iterations,
		p.MemoryKiB,
		p.Parallelism,
		uint32(len(want)), // #nosec G115 -- bounded by withinBounds.
	)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// Verifier checks presented keys against one configured hash.
// A nil or empty Verifier rejects everything.
type Verifier struct {
	encoded string
}

// NewVerifier validates encoded eagerly so misconfiguration fails at startup.
func NewVerifier(encoded string) (*Verifier, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrInvalidHash
	}
	p, _, _, err := decode(encoded)
	if err != nil {
		return nil, err
	}
	if !withinBounds(p, DefaultParams()) {
		return nil, ErrInvalidHash
	}
	return &Verifier{encoded: encoded}, nil
}

// Check reports whether key is the configured admin key.
func (v *Verifier) Check(key string) bool {
	if v == nil || v.encoded == "" || key == "" {
		return false
	}
	ok, err := Verify(v.encoded, key)
	return err == nil && ok
}

// decode parses $argon2id$v=19$m=..,t=..,p=..$<salt>$<hash>.
func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return Params{}, nil, nil, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Params{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	sum, err := b64.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}

	return Params{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),        // #nosec G115 -- checked <= 255 above.
		SaltLength:  uint32(len(salt)), // #nosec G115 -- base64 segment of a bounded string.
		KeyLength:   uint32(len(sum)),  // #nosec G115 -- base64 segment of a bounded string.
	}, salt, sum, nil
}
