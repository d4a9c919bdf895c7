// Package session generates the two credentials that identify a pyproxy
// session on the wire: a 16-byte session identifier and a 32-byte stream
// token, each rendered as lowercase hex (spec §3 "Session", "Stream token").
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"pyproxy/wire"
)

// NewID generates a fresh session identifier and its lowercase-hex rendering.
func NewID() (id [wire.SessionIDLength]byte, hexID string, err error) {
	if _, err = rand.Read(id[:]); err != nil {
		return id, "", fmt.Errorf("session: failed to generate session id: %w", err)
	}
	return id, hex.EncodeToString(id[:]), nil
}

// NewStreamToken generates a fresh stream token and its lowercase-hex rendering.
func NewStreamToken() (tok [wire.StreamTokenLength]byte, hexTok string, err error) {
	if _, err = rand.Read(tok[:]); err != nil {
		return tok, "", fmt.Errorf("session: failed to generate stream token: %w", err)
	}
	return tok, hex.EncodeToString(tok[:]), nil
}

// ValidHex reports whether s decodes to exactly n bytes of hex — used to
// sanity-check session identifiers and stream tokens read off the wire.
func ValidHex(s string, n int) bool {
	b, err := hex.DecodeString(s)
	return err == nil && len(b) == n
}
