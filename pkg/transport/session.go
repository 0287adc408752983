package transport

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const sessionIDPrefix = "pm_session_"

// GenerateSessionID returns a cryptographically random session identifier.
// Session IDs tag every envelope on the channel, so they must be unguessable
// by other frames sharing the page.
func GenerateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}
	return sessionIDPrefix + hex.EncodeToString(b), nil
}

// ValidSessionID reports whether id has the shape produced by
// GenerateSessionID.
func ValidSessionID(id string) bool {
	if !strings.HasPrefix(id, sessionIDPrefix) {
		return false
	}
	suffix := id[len(sessionIDPrefix):]
	if len(suffix) != 64 {
		return false
	}
	_, err := hex.DecodeString(suffix)
	return err == nil
}
