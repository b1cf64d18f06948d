// Package tracking persists RSVP token issuance records and owns their
// lifecycle: usage counting on resolve and operator revocation.
//
// The rsvptoken package derives records but never mutates them; every
// transition (is_used, usage_count, last_used_at, revoked_at) happens here.
package tracking
