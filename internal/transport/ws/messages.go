package ws

import (
	"github.com/vovakirdan/runstake/internal/replay"
	"github.com/vovakirdan/runstake/internal/session"
	"github.com/vovakirdan/runstake/internal/sim"
)

// Client message types.
const (
	TypeStart  = "start"
	TypeResume = "resume"
	TypeInput  = "input"
)

// Server message types.
const (
	TypeStarted  = "started"
	TypeState    = "state"
	TypeRejected = "rejected"
	TypeEnded    = "ended"
	TypeSettled  = "settled"
	TypeError    = "error"
)

// ClientMessage is anything a client sends. Fields are used per Type.
type ClientMessage struct {
	Type       string        `json:"type"`
	User       string        `json:"user,omitempty"`
	PlayerSeed string        `json:"playerSeed,omitempty"`
	Stake      string        `json:"stake,omitempty"` // display amount, e.g. "10.5"
	Params     *sim.Params   `json:"params,omitempty"`
	RunID      string        `json:"runId,omitempty"`
	Kind       sim.InputKind `json:"kind,omitempty"`
}

// ServerMessage is anything the server sends. Fields are set per Type.
type ServerMessage struct {
	Type       string             `json:"type"`
	RunID      string             `json:"runId,omitempty"`
	Commitment string             `json:"commitment,omitempty"`
	RunCount   int                `json:"runCount,omitempty"`
	State      *sim.StateView     `json:"state,omitempty"`
	Kind       sim.InputKind      `json:"kind,omitempty"`
	Message    string             `json:"message,omitempty"`
	Outcome    *session.Outcome   `json:"outcome,omitempty"`
	Paused     bool               `json:"paused,omitempty"`
	Receipt    *replay.Receipt    `json:"receipt,omitempty"`
	Reason     sim.TerminalReason `json:"reason,omitempty"`
}

// fromEvent converts a session event to its wire form.
func fromEvent(evt session.Event) (ServerMessage, bool) {
	switch e := evt.(type) {
	case session.StateEvent:
		view := e.View
		return ServerMessage{Type: TypeState, RunID: e.RunID, State: &view}, true
	case session.RejectedEvent:
		return ServerMessage{Type: TypeRejected, RunID: e.RunID, Kind: e.Kind, Message: e.Message}, true
	case session.EndedEvent:
		out := e.Outcome
		out.Snapshot = ""
		return ServerMessage{Type: TypeEnded, RunID: e.RunID, Outcome: &out, Reason: out.Reason}, true
	case session.SettledEvent:
		msg := ServerMessage{Type: TypeSettled, RunID: e.RunID, Paused: e.Settled.Paused}
		if !e.Settled.Paused {
			receipt := e.Settled.Receipt
			msg.Receipt = &receipt
		}
		return msg, true
	}
	return ServerMessage{}, false
}
