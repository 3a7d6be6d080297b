package sim

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// EventsDigest returns a stable hex digest of an event log. Two runs with
// equal logs have equal digests; it is stored alongside run records so a
// replay can be checked without keeping the full log.
func EventsDigest(events []Event) string {
	var b strings.Builder
	for _, ev := range events {
		b.WriteString(ev.canonical())
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
