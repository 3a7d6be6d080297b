package replay

import (
	"encoding/json"
	"fmt"

	"github.com/vovakirdan/runstake/internal/fairness"
	"github.com/vovakirdan/runstake/internal/sim"
)

// Receipt is the settlement payload handed to an external signer once a
// run is finalized. Anyone holding it can check the reveal against the
// commitment and rebuild the seed.
type Receipt struct {
	RunID            string             `json:"runId"`
	Commitment       string             `json:"commitment"`
	Secret           string             `json:"secret"`
	PlayerSeed       string             `json:"playerSeed"`
	InitialLedger    string             `json:"initialLedger"`
	FinalLedger      string             `json:"finalLedger"`
	Reason           sim.TerminalReason `json:"reason"`
	Ticks            uint64             `json:"ticks"`
	EventsDigest     string             `json:"eventsDigest"`
	RulesFingerprint string             `json:"rulesFingerprint"`
}

// Seed rebuilds the simulation seed from the revealed parts.
func (r Receipt) Seed() string {
	return fairness.Combine(r.Secret, r.PlayerSeed, r.RunID)
}

// CheckReveal reports whether the revealed secret matches the commitment.
func (r Receipt) CheckReveal() error {
	if !fairness.VerifyReveal(r.Secret, r.Commitment) {
		return fmt.Errorf("replay: receipt %s: secret does not match commitment", r.RunID)
	}
	return nil
}

// Payload returns the JSON bytes a signer signs.
func (r Receipt) Payload() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("replay: encode receipt: %w", err)
	}
	return b, nil
}
