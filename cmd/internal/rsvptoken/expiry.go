package rsvptoken

import (
	"regexp"
	"strconv"
	"time"
)

const defaultLifetime = 30 * 24 * time.Hour

var expiryPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

var expiryUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseExpiry converts strings like "30d", "24h", "60m" or "45s" into a duration.
// Anything else yields the 30-day default.
func ParseExpiry(expiry string) time.Duration {
	if d, ok := lookupExpiry(expiry); ok {
		return d
	}
	return defaultLifetime
}

func lookupExpiry(expiry string) (time.Duration, bool) {
	m := expiryPattern.FindStringSubmatch(expiry)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	unit := expiryUnits[m[2]]
	// Guard against overflow for absurd values like "99999999999d".
	if n > int64((1<<63-1)/unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}
