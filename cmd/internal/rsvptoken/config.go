package rsvptoken

import (
	"os"
	"strings"
)

const (
	DefaultIssuer    = "rsvp-system"
	DefaultAudience  = "guest"
	DefaultExpiresIn = "30d"

	// InsecureDefaultSecret is the historical fallback secret. It is accepted only
	// in development environments; see Config.Validate.
	// #nosec G101 -- well-known placeholder, rejected outside development.
	InsecureDefaultSecret = "your-rsvp-secret-key"

	EnvDevelopment = "development"
)

// Config is the immutable, process-wide configuration of a Manager.
//
// Rotating Secret invalidates every unexpired token issued with the previous value.
type Config struct {
	// Secret is the HS256 signing key.
	Secret string

	// DefaultExpiresIn is used when Options.ExpiresIn is empty ("30d").
	DefaultExpiresIn string

	// Issuer and Audience are written on issue and enforced on every validation.
	Issuer   string
	Audience string

	// Environment gates the insecure default secret ("development" allows it).
	Environment string
}

// DefaultConfig returns the built-in defaults without a secret.
func DefaultConfig() Config {
	return Config{
		DefaultExpiresIn: DefaultExpiresIn,
		Issuer:           DefaultIssuer,
		Audience:         DefaultAudience,
		Environment:      EnvDevelopment,
	}
}

// LoadConfigFromEnv loads the token configuration.
//
// Env surface:
//   - RSVP_JWT_SECRET (falls back to JWT_SECRET)
//   - RSVP_TOKEN_TTL (e.g. "30d", "24h")
//   - RSVP_TOKEN_ISSUER, RSVP_TOKEN_AUDIENCE
//   - RSVP_ENV (default "development")
//
// When no secret is configured, InsecureDefaultSecret is used in development and
// ErrInsecureSecret is returned anywhere else.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("RSVP_ENV")); v != "" {
		cfg.Environment = v
	}
	if v := strings.TrimSpace(os.Getenv("RSVP_TOKEN_TTL")); v != "" {
		cfg.DefaultExpiresIn = v
	}
	if v := strings.TrimSpace(os.Getenv("RSVP_TOKEN_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := strings.TrimSpace(os.Getenv("RSVP_TOKEN_AUDIENCE")); v != "" {
		cfg.Audience = v
	}

	cfg.Secret = strings.TrimSpace(os.Getenv("RSVP_JWT_SECRET"))
	if cfg.Secret == "" {
		cfg.Secret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	}
	if cfg.Secret == "" {
		cfg.Secret = InsecureDefaultSecret
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the configured environment is a development one.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "", EnvDevelopment, "dev", "local", "test":
		return true
	default:
		return false
	}
}

// UsesInsecureDefault reports whether Secret is the built-in placeholder.
func (c Config) UsesInsecureDefault() bool {
	return c.Secret == InsecureDefaultSecret
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if c.Secret == "" {
		return ErrConfig
	}
	if c.UsesInsecureDefault() && !c.IsDevelopment() {
		return ErrInsecureSecret
	}
	if strings.TrimSpace(c.Issuer) == "" || strings.TrimSpace(c.Audience) == "" {
		return ErrConfig
	}
	if _, ok := lookupExpiry(c.DefaultExpiresIn); !ok {
		return ErrConfig
	}
	return nil
}
