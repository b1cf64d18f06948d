package token

import (
	"strings"
	"testing"
)

func TestHashSHA256Hex_KnownVector(t *testing.T) {
	t.Parallel()

	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashSHA256Hex("abc"); got != want {
		t.Fatalf("HashSHA256Hex(abc)=%q want=%q", got, want)
	}
}

func TestHashHMACSHA256Hex_KeyMatters(t *testing.T) {
	t.Parallel()

	a := HashHMACSHA256Hex("203.0.113.7", []byte("key-one"))
	b := HashHMACSHA256Hex("203.0.113.7", []byte("key-two"))
	if len(a) != 64 || len(b) != 64 {
		t.Fatalf("expected 64-char digests, got %d and %d", len(a), len(b))
	}
	if a == b {
		t.Fatalf("expected different digests for different keys")
	}
	if a != HashHMACSHA256Hex("203.0.113.7", []byte("key-one")) {
		t.Fatalf("expected a stable digest")
	}
}

func TestEqualHex(t *testing.T) {
	t.Parallel()

	h := HashSHA256Hex("token")
	cases := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "same", a: h, b: h, want: true},
		{name: "upper", a: h, b: strings.ToUpper(h), want: true},
		{name: "different", a: h, b: HashSHA256Hex("token2"), want: false},
		{name: "truncated", a: h, b: h[:10], want: false},
		{name: "empty", a: "", b: "", want: false},
	}

	for _, tc := range cases {
		if got := EqualHex(tc.a, tc.b); got != tc.want {
			t.Fatalf("%s: EqualHex=%v want=%v", tc.name, got, tc.want)
		}
	}
}

func TestVerifySHA256Hex(t *testing.T) {
	t.Parallel()

	if !VerifySHA256Hex("abc", HashSHA256Hex("abc")) {
		t.Fatalf("expected match")
	}
	if VerifySHA256Hex("abc", HashSHA256Hex("abcx")) {
		t.Fatalf("expected mismatch")
	}
}
