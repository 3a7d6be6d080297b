// Package replay re-derives a run from its seed, parameters and input log
// and compares the recomputed outcome with what the driving party claimed.
// The recomputation is authoritative: a disagreement is reported as a
// mismatch, never trusted.
package replay

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/vovakirdan/runstake/internal/config"
	"github.com/vovakirdan/runstake/internal/sim"
)

// Claim is what the live session reported for a finished run.
// Empty fingerprint or digest fields are not compared.
type Claim struct {
	Ledger            string
	Reason            sim.TerminalReason
	ConfigFingerprint string
	EventsDigest      string
}

// Request carries everything needed to replay one run.
type Request struct {
	RunID         string
	Seed          string
	Params        sim.Params
	InitialLedger *big.Int
	RunCount      int
	Inputs        []sim.Input
	Config        config.RunnerConfig
	Claim         Claim

	// Options are passed through to the engine after WithConfig.
	Options []sim.Option
}

// Outcome is the recomputed result of a replay.
type Outcome struct {
	Ledger            string
	Reason            sim.TerminalReason
	Ticks             uint64
	Events            []sim.Event
	EventsDigest      string
	ConfigFingerprint string

	// Rejected counts logged inputs the engine refused or never reached.
	// A log recorded by a live engine has none.
	Rejected int

	// CeilingReached is set when the run was still going at the tick ceiling.
	CeilingReached bool
}

// Result pairs an Outcome with the comparison against the claim.
type Result struct {
	RunID      string
	Outcome    Outcome
	Match      bool
	Mismatches []string
}

// NormalizeInputs returns the inputs stable-sorted by tick, keeping
// submission order within a tick.
func NormalizeInputs(inputs []sim.Input) []sim.Input {
	out := append([]sim.Input(nil), inputs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out
}

// Replay runs a fresh engine over the normalized input log until it is
// terminal or the config's tick ceiling is reached. Inputs tagged for the
// engine's current tick are applied before each advance. It errors only
// when the engine cannot be built.
func Replay(req Request) (Outcome, error) {
	cfg := req.Config
	if cfg.TickRate == 0 {
		cfg = config.DefaultRunnerConfig()
	}
	opts := append([]sim.Option{sim.WithConfig(cfg)}, req.Options...)

	e, err := sim.New(req.Seed, req.Params, req.InitialLedger, req.RunCount, opts...)
	if err != nil {
		return Outcome{}, fmt.Errorf("replay: build engine: %w", err)
	}

	inputs := NormalizeInputs(req.Inputs)
	ceiling := uint64(cfg.Limits.MaxReplayTicks)
	rejected := 0
	next := 0

	for {
		for next < len(inputs) && inputs[next].Tick <= e.Tick() {
			in := inputs[next]
			next++
			if in.Tick < e.Tick() || !apply(e, in) {
				rejected++
			}
		}
		if e.Over() || e.Tick() >= ceiling {
			break
		}
		e.Advance()
	}
	rejected += len(inputs) - next

	events := e.Events()
	return Outcome{
		Ledger:            e.Ledger().String(),
		Reason:            e.Reason(),
		Ticks:             e.Tick(),
		Events:            events,
		EventsDigest:      sim.EventsDigest(events),
		ConfigFingerprint: config.Fingerprint(cfg),
		Rejected:          rejected,
		CeilingReached:    !e.Over(),
	}, nil
}

// apply reports whether the engine accepted the input.
func apply(e *sim.Engine, in sim.Input) bool {
	switch in.Kind {
	case sim.InputJump, sim.InputSlide:
		return e.ProcessInput(in.Kind, in.Tick)
	case sim.InputForfeit:
		if e.Over() {
			return false
		}
	}
	return e.Apply(in) == nil
}

// Verify replays the request and compares the outcome with its claim.
func Verify(req Request) (Result, error) {
	out, err := Replay(req)
	if err != nil {
		return Result{RunID: req.RunID}, err
	}

	res := Result{RunID: req.RunID, Outcome: out}
	res.Mismatches = compare(req.Claim, out)
	res.Match = len(res.Mismatches) == 0
	return res, nil
}

func compare(claim Claim, out Outcome) []string {
	var diffs []string

	claimed, ok := new(big.Int).SetString(claim.Ledger, 10)
	switch {
	case !ok:
		diffs = append(diffs, fmt.Sprintf("ledger: claim %q is not an integer", claim.Ledger))
	case claimed.String() != out.Ledger:
		diffs = append(diffs, fmt.Sprintf("ledger: claimed %s, recomputed %s", claimed, out.Ledger))
	}

	if claim.Reason != out.Reason {
		diffs = append(diffs, fmt.Sprintf("reason: claimed %s, recomputed %s", claim.Reason, out.Reason))
	}
	if claim.ConfigFingerprint != "" && claim.ConfigFingerprint != out.ConfigFingerprint {
		diffs = append(diffs, "config: rules fingerprint differs")
	}
	if claim.EventsDigest != "" && claim.EventsDigest != out.EventsDigest {
		diffs = append(diffs, "events: digest differs")
	}
	if out.Rejected > 0 {
		diffs = append(diffs, fmt.Sprintf("inputs: %d logged inputs were not accepted", out.Rejected))
	}
	return diffs
}
