// Package token provides token hashing primitives for the RSVP service.
//
// It is the single source of truth for how bearer tokens are hashed before
// they are stored or compared:
//   - HashSHA256Hex is the tracking-record hash (stable 64-char hex).
//   - HashHMACSHA256Hex keys in-memory maps by client address without storing it.
//   - EqualHex compares digests in constant time.
package token
