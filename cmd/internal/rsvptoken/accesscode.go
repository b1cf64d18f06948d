package rsvptoken

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
)

const accessCodeModulus = 1_000_000

// GenerateAccessCode derives the 6-digit phone/SMS code for a guest and event.
//
// The code is a function of (guestID, eventID, UTC calendar day) only: it changes
// at UTC midnight and does not depend on the signing secret. It is a weak,
// secondary credential by construction.
func (m *Manager) GenerateAccessCode(guestID, eventID int64) string {
	day := m.now().UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d-%d-%s", guestID, eventID, day)))
	prefix := hex.EncodeToString(sum[:4])

	n, _ := strconv.ParseUint(prefix, 16, 32)
	return fmt.Sprintf("%06d", n%accessCodeModulus)
}

// ValidateAccessCode reports whether code matches today's code for the guest and event.
func (m *Manager) ValidateAccessCode(code string, guestID, eventID int64) bool {
	want := m.GenerateAccessCode(guestID, eventID)
	return subtle.ConstantTimeCompare([]byte(code), []byte(want)) == 1
}
