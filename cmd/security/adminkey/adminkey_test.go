package adminkey

import (
	"errors"
	"strings"
	"testing"
)

// fastParams keeps tests quick while exercising the real code paths.
func fastParams() Params {
	p := DefaultParams()
	p.MemoryKiB = 8 * 1024
	p.Iterations = 1
	return p
}

const testKey = "operator-key-0123456789abcdef"

func TestHashAndVerify_OK(t *testing.T) {
	t.Parallel()

	enc, err := Hash(testKey, fastParams())
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(enc, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding: %q", enc)
	}

	ok, err := Verify(enc, testKey)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}
}

func TestVerify_WrongKey(t *testing.T) {
	t.Parallel()

	enc, err := Hash(testKey, fastParams())
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	ok, err := Verify(enc, testKey+"x")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestHash_SaltsDiffer(t *testing.T) {
	t.Parallel()

	a, err := Hash(testKey, fastParams())
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := Hash(testKey, fastParams())
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct encodings for distinct salts")
	}
}

func TestHash_RejectsShortKey(t *testing.T) {
	t.Parallel()

	if _, err := Hash("short", fastParams()); !errors.Is(err, ErrKeyTooShort) {
		t.Fatalf("expected ErrKeyTooShort, got %v", err)
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	t.Parallel()

	cases := []string{
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaGhhc2hoYXNoaGFzaA",
		// Memory far above local bounds.
		"$argon2id$v=19$m=4194304,t=1,p=1$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaA",
	}

	for _, enc := range cases {
		ok, err := Verify(enc, testKey)
		if !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("%q: expected ErrInvalidHash, got %v", enc, err)
		}
		if ok {
			t.Fatalf("%q: expected false", enc)
		}
	}
}

func TestVerifier(t *testing.T) {
	t.Parallel()

	enc, err := Hash(testKey, fastParams())
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	v, err := NewVerifier(enc)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if !v.Check(testKey) {
		t.Fatalf("expected configured key to pass")
	}
	if v.Check("") || v.Check("nope") {
		t.Fatalf("expected other keys to fail")
	}

	var nilVerifier *Verifier
	if nilVerifier.Check(testKey) {
		t.Fatalf("nil verifier must reject")
	}

	if _, err := NewVerifier("  "); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash for empty hash, got %v", err)
	}
}

func TestParamsFromEnv(t *testing.T) {
	t.Setenv("RSVP_ADMIN_ARGON2_MEMORY_KIB", "16384")
	t.Setenv("RSVP_ADMIN_ARGON2_ITERATIONS", "3")
	t.Setenv("RSVP_ADMIN_ARGON2_PARALLELISM", "2")

	p, err := ParamsFromEnv()
	if err != nil {
		t.Fatalf("ParamsFromEnv: %v", err)
	}
	if p.MemoryKiB != 16384 || p.Iterations != 3 || p.Parallelism != 2 {
		t.Fatalf("unexpected params: %+v", p)
	}

	t.Setenv("RSVP_ADMIN_ARGON2_ITERATIONS", "0")
	if _, err := ParamsFromEnv(); err == nil {
		t.Fatalf("expected error for zero iterations")
	}
}
