package sim

import "errors"

var (
	// ErrInvalidParams is returned when run parameters are out of range.
	ErrInvalidParams = errors.New("sim: invalid run parameters")

	// ErrInvalidLedger is returned for a nil or negative initial ledger.
	ErrInvalidLedger = errors.New("sim: initial ledger must be a non-negative integer")

	// ErrNotInCheckpointWindow is returned by ExitSafe and Pause outside a
	// checkpoint window. State is left untouched.
	ErrNotInCheckpointWindow = errors.New("sim: not inside a checkpoint window")

	// ErrRunOver is returned by terminal transitions on a finished run.
	ErrRunOver = errors.New("sim: run is over")

	// ErrNotPaused is returned by Resume unless the run ended with a pause.
	ErrNotPaused = errors.New("sim: run is not paused")

	// ErrInputTick is returned by Apply when an input is tagged for a tick
	// other than the engine's current tick.
	ErrInputTick = errors.New("sim: input tick does not match current tick")

	// ErrUnknownInput is returned by Apply for an unrecognised input kind.
	ErrUnknownInput = errors.New("sim: unknown input kind")

	// ErrMalformedSnapshot is returned by Restore when the snapshot cannot
	// be decoded or violates a state invariant.
	ErrMalformedSnapshot = errors.New("sim: malformed snapshot")
)
