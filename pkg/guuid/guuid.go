// Package guuid generates a random session correlation id, used only in
// log fields — it never appears on the wire, which is
// frozen at the 20-byte header spec §6 defines.
package guuid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GUUID is a 16-byte session correlation id.
type GUUID [16]byte

// New generates a new GUUID using crypto/rand for high entropy.
func New() (GUUID, error) {
	var g GUUID
	_, err := rand.Read(g[:])
	if err != nil {
		return GUUID{}, fmt.Errorf("failed to generate GUUID: %w", err)
	}
	return g, nil
}

// String returns the hex representation of the GUUID.
func (g GUUID) String() string {
	return hex.EncodeToString(g[:])
}
