package rsvptoken

import (
	"testing"
	"time"
)

func TestParseExpiry(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Duration
	}{
		{in: "30d", want: 30 * 24 * time.Hour},
		{in: "24h", want: 24 * time.Hour},
		{in: "60m", want: 60 * time.Minute},
		{in: "1s", want: time.Second},
		{in: "", want: 30 * 24 * time.Hour},
		{in: "2w", want: 30 * 24 * time.Hour},
		{in: "1.5h", want: 30 * 24 * time.Hour},
		{in: "h", want: 30 * 24 * time.Hour},
		{in: " 5m", want: 30 * 24 * time.Hour},
		{in: "99999999999999d", want: 30 * 24 * time.Hour},
	}

	for _, tc := range cases {
		if got := ParseExpiry(tc.in); got != tc.want {
			t.Fatalf("ParseExpiry(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}
