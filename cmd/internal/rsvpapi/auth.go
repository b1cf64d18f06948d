package rsvpapi

import (
	"net/http"
	"strings"
)

// AdminAuthorizer checks an operator key. *adminkey.Verifier satisfies it.
type AdminAuthorizer interface {
	Check(key string) bool
}

// requireAdmin writes the failure response and reports false when the request
// does not carry a valid operator key.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if h.admin == nil {
		writeError(w, http.StatusServiceUnavailable, "admin_not_configured", "admin access is not configured")
		return false
	}
	key := bearerToken(r)
	if key == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if !h.admin.Check(key) {
		h.log.Info("rsvp.admin.reject", "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid admin key")
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
