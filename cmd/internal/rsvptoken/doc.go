// Package rsvptoken mints and validates guest RSVP credentials.
//
// Two credential tiers exist:
//   - RSVP tokens: HS256 JWTs (iss "rsvp-system", aud "guest") carrying the guest,
//     event and optional sub-event identity plus a random per-issuance token_id.
//   - Access codes: 6-digit codes derived from guest, event and the current UTC day,
//     used as a secondary out-of-band channel for phone/SMS confirmation. They are
//     intentionally weak (1e6 space, no secret) and must never be the sole factor.
//
// The Manager is stateless apart from immutable configuration and is safe for
// concurrent use. It performs no I/O and never logs; persistence of tracking
// records and logging of failures belong to callers.
package rsvptoken
