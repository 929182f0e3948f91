package util

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateSessionID returns a random 16-char hex id for login sessions and
// ad-watch sessions.
func GenerateSessionID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
