package app

import (
	"errors"
	"fmt"

	"rsvp/cmd/internal/realtime"
	"rsvp/cmd/internal/rsvpapi"
	"rsvp/cmd/internal/rsvptoken"
)

// ValidateSecurityConfig enforces the service's security policy at startup.
//
// Fail-fast: a production process never starts with the placeholder signing
// secret or with dev-only websocket knobs.
func ValidateSecurityConfig(cfg Config, tok rsvptoken.Config, api rsvpapi.Config, ws realtime.GatewayConfig) error {
	if err := tok.Validate(); err != nil {
		if errors.Is(err, rsvptoken.ErrInsecureSecret) {
			return fmt.Errorf("security policy: RSVP_ENV=%q requires RSVP_JWT_SECRET: %w", tok.Environment, err)
		}
		return fmt.Errorf("security policy: %w", err)
	}

	if cfg.RequireAdminKey && api.AdminKeyHash == "" {
		return errors.New("security policy: RSVP_REQUIRE_ADMIN_KEY=true but RSVP_ADMIN_KEY_HASH is missing")
	}

	if !tok.IsDevelopment() && ws.DevInsecure {
		return errors.New("security policy: RSVP_WS_DEV_INSECURE is not allowed outside development")
	}

	return nil
}
