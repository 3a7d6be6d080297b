// Package session drives live runs: it owns the authoritative tick loop
// for each engine, queues player input, streams state to an attached
// handle and settles runs through a RunStore.
package session

import "github.com/vovakirdan/runstake/internal/sim"

// Event is sent from a run to its attached handle.
type Event interface {
	sessionEvent()
}

// StateEvent carries the state after a tick, or the current state on attach.
type StateEvent struct {
	RunID string
	View  sim.StateView
}

func (StateEvent) sessionEvent() {}

// RejectedEvent is sent when an input could not be applied, such as an
// exit requested outside a checkpoint window.
type RejectedEvent struct {
	RunID   string
	Kind    sim.InputKind
	Message string
}

func (RejectedEvent) sessionEvent() {}

// EndedEvent is sent once when the run reaches a terminal state.
type EndedEvent struct {
	RunID   string
	Outcome Outcome
}

func (EndedEvent) sessionEvent() {}

// SettledEvent is sent after the run has been persisted. Receipt fields
// are only populated for finalized runs.
type SettledEvent struct {
	RunID   string
	Settled Settlement
}

func (SettledEvent) sessionEvent() {}

// Outcome is the result of a run leaving the tick loop.
type Outcome struct {
	RunID        string             `json:"runId"`
	Ledger       string             `json:"ledger"`
	Reason       sim.TerminalReason `json:"reason"`
	Ticks        uint64             `json:"ticks"`
	Inputs       []sim.Input        `json:"inputs"`
	EventsDigest string             `json:"eventsDigest"`
	Snapshot     string             `json:"snapshot,omitempty"` // set when Reason is pause
}
