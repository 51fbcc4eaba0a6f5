// Package ids generates the short identifiers used for subagents and cron
// jobs. Full UUIDs (google/uuid) remain in use for run and trace ids.
package ids

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns an 8-character lowercase hex id.
func New() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand only fails when the platform entropy source is broken.
		panic("ids: entropy source unavailable: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
