package rsvpapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPublicBaseURL    = "http://localhost:3000"
	defaultMaxBodyBytes     = 1 << 20 // 1 MiB
	defaultBatchMax         = 500
	defaultAccessCodeRate   = 10
	defaultAccessCodeWindow = time.Minute
)

// Config controls RSVP API behavior and security defaults.
type Config struct {
	// PublicBaseURL is the guest-facing frontend origin used to build RSVP links.
	PublicBaseURL string
	MaxBodyBytes  int64
	BatchMax      int

	// Access code verification is brute-forceable (10^6 space); it is limited per client IP.
	AccessCodeRate   int
	AccessCodeWindow time.Duration
	TrustProxy       bool

	// AdminKeyHash is the argon2id hash of the operator key. Empty disables admin routes.
	AdminKeyHash string

	// RequireTracking rejects signed tokens that have no tracking record.
	RequireTracking bool
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		PublicBaseURL:    envString("RSVP_PUBLIC_BASE_URL", defaultPublicBaseURL),
		MaxBodyBytes:     envInt64("RSVP_MAX_BODY_BYTES", defaultMaxBodyBytes),
		BatchMax:         envInt("RSVP_BATCH_MAX", defaultBatchMax),
		AccessCodeRate:   envInt("RSVP_ACCESS_CODE_RATE", defaultAccessCodeRate),
		AccessCodeWindow: envDuration("RSVP_ACCESS_CODE_WINDOW", defaultAccessCodeWindow),
		TrustProxy:       envBool("RSVP_TRUST_PROXY", false),
		AdminKeyHash:     strings.TrimSpace(os.Getenv("RSVP_ADMIN_KEY_HASH")),
		RequireTracking:  envBool("RSVP_REQUIRE_TRACKING", false),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.PublicBaseURL) == "" {
		c.PublicBaseURL = defaultPublicBaseURL
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.BatchMax <= 0 {
		c.BatchMax = defaultBatchMax
	}
	if c.AccessCodeRate <= 0 {
		c.AccessCodeRate = defaultAccessCodeRate
	}
	if c.AccessCodeWindow <= 0 {
		c.AccessCodeWindow = defaultAccessCodeWindow
	}
	return c
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
