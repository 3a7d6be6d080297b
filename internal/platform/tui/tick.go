// Package tui provides the Bubble Tea front end for runs: the lobby,
// the live run view, the run history and the SSH server that hosts them.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/runstake/internal/session"
)

// EventMsg carries one session event into the Bubble Tea loop.
type EventMsg struct {
	Event session.Event
}

// handleClosedMsg is sent when the handle is closed and no more events follow.
type handleClosedMsg struct{}

// waitForEvent returns a command that blocks on the next session event.
// The run's tick loop paces the UI; there is no separate frame timer.
func waitForEvent(h *session.ChannelSession) tea.Cmd {
	return func() tea.Msg {
		select {
		case evt := <-h.Events():
			return EventMsg{Event: evt}
		case <-h.Done():
			return handleClosedMsg{}
		}
	}
}
