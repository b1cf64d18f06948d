package adminkey

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// MinKeyLength is the minimum accepted plain key length in bytes.
const MinKeyLength = 24

// Params controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns a baseline sized for per-request verification of admin
// traffic (19 MiB, t=2, p=1).
func DefaultParams() Params {
	return Params{
		MemoryKiB:   19 * 1024,
		Iterations:  2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// ParamsFromEnv loads hashing params.
//
// Env surface:
//   - RSVP_ADMIN_ARGON2_MEMORY_KIB
//   - RSVP_ADMIN_ARGON2_ITERATIONS
//   - RSVP_ADMIN_ARGON2_PARALLELISM
func ParamsFromEnv() (Params, error) {
	p := DefaultParams()

	if v, ok := os.LookupEnv("RSVP_ADMIN_ARGON2_MEMORY_KIB"); ok {
		u, err := atou32(v, 8*1024, 1024*1024)
		if err != nil {
			return Params{}, fmt.Errorf("RSVP_ADMIN_ARGON2_MEMORY_KIB: %w", err)
		}
		p.MemoryKiB = u
	}

	if v, ok := os.LookupEnv("RSVP_ADMIN_ARGON2_ITERATIONS"); ok {
		u, err := atou32(v, 1, 20)
		if err != nil {
			return Params{}, fmt.Errorf("RSVP_ADMIN_ARGON2_ITERATIONS: %w", err)
		}
		p.Iterations = u
	}

	if v, ok := os.LookupEnv("RSVP_ADMIN_ARGON2_PARALLELISM"); ok {
		u, err := atou32(v, 1, math.MaxUint8)
		if err != nil {
			return Params{}, fmt.Errorf("RSVP_ADMIN_ARGON2_PARALLELISM: %w", err)
		}
		p.Parallelism = uint8(u) // #nosec G115 -- bounded by atou32 above.
	}

	return p, nil
}

func (p Params) validate() error {
	if p.MemoryKiB == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return ErrParams
	}
	if p.SaltLength < 8 || p.SaltLength > 64 {
		return ErrParams
	}
	if p.KeyLength < 16 || p.KeyLength > 128 {
		return ErrParams
	}
	return nil
}

// withinBounds rejects decoded params wildly above the local defaults so an
// attacker-supplied hash string cannot force pathological work.
func withinBounds(got, limits Params) bool {
	if got.MemoryKiB > limits.MemoryKiB*4 {
		return false
	}
	if got.Iterations > limits.Iterations*4 {
		return false
	}
	if got.Parallelism > limits.Parallelism*4 {
		return false
	}
	if got.SaltLength < 8 || got.SaltLength > 64 {
		return false
	}
	if got.KeyLength < 16 || got.KeyLength > 128 {
		return false
	}
	return true
}

func atou32(s string, minVal, maxVal uint32) (uint32, error) {
	s = strings.TrimSpace(s)
	u64, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}

	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}
