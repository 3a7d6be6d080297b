// Package fairness implements the commit/reveal seed scheme.
//
// The server draws a secret before a run, publishes its sha256 commitment,
// and only reveals the secret once the run is finalized. The simulation seed
// is derived from the secret, a player-supplied value, and the run id, so
// neither side can steer the outcome alone.
package fairness

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// SecretBytes is the number of random bytes in a server secret.
const SecretBytes = 32

// fieldSep separates the fields of a combined seed. Occurrences inside a
// field are escaped, so distinct triples never produce the same seed.
const fieldSep = ":"

var fieldEscaper = strings.NewReplacer(`\`, `\\`, fieldSep, `\`+fieldSep)

// Pair is a freshly generated secret with its public commitment.
type Pair struct {
	Secret     string
	Commitment string
}

// GenerateSecret returns SecretBytes of crypto/rand output, hex-encoded.
func GenerateSecret() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("fairness: cannot read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Commit returns the hex sha256 digest of the secret.
// It is safe to publish before the run starts.
func Commit(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// NewPair generates a secret and its commitment in one step.
func NewPair() (Pair, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return Pair{}, err
	}
	return Pair{Secret: secret, Commitment: Commit(secret)}, nil
}

// VerifyReveal reports whether a revealed secret matches a published commitment.
func VerifyReveal(secret, commitment string) bool {
	got := Commit(secret)
	want := strings.ToLower(strings.TrimSpace(commitment))
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// Combine derives the simulation seed from the secret, the player value and
// the run id. The result is order-sensitive and pure.
func Combine(secret, playerValue, runID string) string {
	return strings.Join([]string{
		fieldEscaper.Replace(secret),
		fieldEscaper.Replace(playerValue),
		fieldEscaper.Replace(runID),
	}, fieldSep)
}
