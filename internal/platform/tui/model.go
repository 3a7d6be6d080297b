package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/runstake/internal/config"
	"github.com/vovakirdan/runstake/internal/core"
	"github.com/vovakirdan/runstake/internal/money"
	"github.com/vovakirdan/runstake/internal/session"
	"github.com/vovakirdan/runstake/internal/sim"
)

// InputSender queues engine inputs. *session.Run implements it.
type InputSender interface {
	SendInput(kind sim.InputKind)
}

// Model is the Bubble Tea model for one live run. It renders the state
// the run loop pushes through its handle and forwards key presses as inputs.
type Model struct {
	run        InputSender
	handle     *session.ChannelSession
	screen     *core.Screen
	cfg        config.RunnerConfig
	commitment string
	keyMapper  *KeyMapper
	inputFrame core.InputFrame

	view     sim.StateView
	notice   string
	outcome  *session.Outcome
	settled  *session.Settlement
	leaving  bool // quit requested; leave once settled
	quitting bool
	back     bool
}

// NewModel creates the run view for a started or resumed run.
func NewModel(run InputSender, h *session.ChannelSession, cfg config.RunnerConfig, commitment string, width, height int) Model {
	return Model{
		run:        run,
		handle:     h,
		screen:     core.NewScreen(width, height),
		cfg:        cfg,
		commitment: commitment,
		keyMapper:  NewKeyMapper(),
		inputFrame: core.NewInputFrame(),
	}
}

// Init starts listening for run events.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.handle)
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.screen.Resize(msg.Width, msg.Height)
		return m, nil

	case EventMsg:
		return m.handleEvent(msg.Event)

	case handleClosedMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// handleKey buffers actions in the input frame until the next state push.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.outcome != nil {
		action := m.keyMapper.MapKeyToMenuAction(msg)
		switch {
		case action == MenuActionQuit:
			m.quitting = true
			return m, tea.Quit
		case m.settled != nil && (action == MenuActionSelect || action == MenuActionBack):
			m.back = true
			return m, tea.Quit
		}
		return m, nil
	}

	if m.keyMapper.MapKeyToFrame(msg, &m.inputFrame) {
		// Leaving mid-run forfeits; the view stays up until settlement.
		m.leaving = true
		m.run.SendInput(sim.InputForfeit)
		m.inputFrame.Clear()
	}
	return m, nil
}

func (m Model) handleEvent(evt session.Event) (tea.Model, tea.Cmd) {
	switch e := evt.(type) {
	case session.StateEvent:
		m.view = e.View
		m.flushInputs()

	case session.RejectedEvent:
		m.notice = fmt.Sprintf("%s rejected: %s", e.Kind, e.Message)

	case session.EndedEvent:
		out := e.Outcome
		m.outcome = &out
		m.view.Over = true
		m.view.Reason = out.Reason
		m.view.Ledger = out.Ledger

	case session.SettledEvent:
		s := e.Settled
		m.settled = &s
		if m.leaving {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, waitForEvent(m.handle)
}

// flushInputs sends buffered actions in their fixed order.
func (m *Model) flushInputs() {
	for _, a := range m.inputFrame.Ordered() {
		if kind, ok := InputFor(a); ok {
			m.run.SendInput(kind)
		}
	}
	m.inputFrame.Clear()
}

// View renders the current state to a string for display.
func (m Model) View() string {
	if m.quitting || m.back {
		return ""
	}
	if m.outcome != nil {
		return m.outcomeView()
	}

	DrawRun(m.screen, m.cfg, m.view)
	if m.notice != "" && m.screen.Height() > 2 {
		m.screen.DrawTextColored(0, m.screen.Height()-2, " "+m.notice, core.ColorNotice)
	}
	return RenderScreen(m.screen)
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func (m Model) outcomeView() string {
	width := m.screen.Width()
	out := m.outcome

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(centerText(reasonTitle(out.Reason), width)))
	b.WriteString("\n\n")

	line := func(label, value string) {
		b.WriteString(centerText(labelStyle.Render(label+": ")+value, width))
		b.WriteString("\n")
	}
	line("Run", out.RunID)
	line("Ledger", money.FormatMicrosString(out.Ledger, 2))
	line("Ticks", fmt.Sprintf("%d", out.Ticks))
	commitment := m.commitment
	if m.settled != nil && !m.settled.Paused {
		commitment = m.settled.Receipt.Commitment
	}
	if commitment != "" {
		line("Commitment", commitment)
	}

	switch {
	case m.settled == nil:
		b.WriteString("\n")
		b.WriteString(centerText(dimStyle.Render("Settling..."), width))
	case m.settled.Paused:
		b.WriteString("\n")
		b.WriteString(centerText("Run paused. Resume it from the lobby.", width))
	default:
		line("Secret", m.settled.Receipt.Secret)
		line("Events", m.settled.Receipt.EventsDigest)
	}

	b.WriteString("\n\n")
	b.WriteString(centerText(dimStyle.Render("Enter: Back  |  Q: Quit"), width))
	return b.String()
}

func reasonTitle(r sim.TerminalReason) string {
	switch r {
	case sim.ReasonSafe:
		return "CASHED OUT"
	case sim.ReasonPause:
		return "PAUSED"
	case sim.ReasonForfeit:
		return "FORFEITED"
	case sim.ReasonLoss:
		return "BUSTED"
	}
	return "RUN OVER"
}

// Outcome returns the run's outcome once it has ended.
func (m Model) Outcome() *session.Outcome {
	return m.outcome
}

// Settled returns the settlement once persisted.
func (m Model) Settled() *session.Settlement {
	return m.settled
}

// IsQuitting returns true if the user asked to leave entirely.
func (m Model) IsQuitting() bool {
	return m.quitting
}

// BackToMenu returns true if the user asked to return to the lobby.
func (m Model) BackToMenu() bool {
	return m.back
}

// centerText centers text within given width.
func centerText(text string, width int) string {
	w := lipgloss.Width(text)
	if w >= width {
		return text
	}
	return strings.Repeat(" ", (width-w)/2) + text
}

// Play runs the run view as a standalone program until the run settles
// or the user leaves. The run must already be attached to h.
func Play(run InputSender, h *session.ChannelSession, cfg config.RunnerConfig, commitment string, rc core.RuntimeConfig) (*session.Settlement, error) {
	p := tea.NewProgram(
		NewModel(run, h, cfg, commitment, rc.ScreenW, rc.ScreenH),
		tea.WithAltScreen(),
	)

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m, ok := final.(Model)
	if !ok {
		return nil, nil
	}
	return m.Settled(), nil
}
