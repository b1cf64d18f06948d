// Package adminkey hashes and verifies the operator API key that guards the
// RSVP admin endpoints and the activity feed.
//
// Keys are hashed with Argon2id into a PHC-like string:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// Only the encoded hash is configured on the server (RSVP_ADMIN_KEY_HASH); the
// plain key lives with operators. Encoded hashes are treated as untrusted input
// during Verify and rejected when their parameters exceed sane bounds.
package adminkey
