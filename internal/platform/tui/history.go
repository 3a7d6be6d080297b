package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/runstake/internal/money"
	"github.com/vovakirdan/runstake/internal/replay"
	"github.com/vovakirdan/runstake/internal/storage"
)

// History layout constants
const (
	maxHistory    = 100 // Max runs to load
	tableMinWidth = 60
)

// Verifier replays a stored run. *session.Manager implements it.
type Verifier interface {
	Verify(id string) (replay.Result, error)
}

// HistoryKeyMap defines the key bindings for the run history.
type HistoryKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Verify key.Binding
	Back   key.Binding
	Quit   key.Binding
}

// ShortHelp returns key bindings for the short help view.
func (k HistoryKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Verify, k.Back}
}

// FullHelp returns key bindings for the full help view.
func (k HistoryKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Verify},
		{k.Back, k.Quit},
	}
}

// DefaultHistoryKeyMap returns default key bindings.
func DefaultHistoryKeyMap() HistoryKeyMap {
	return HistoryKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("up/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("down/j", "scroll down"),
		),
		Verify: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "verify run"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc", "b"),
			key.WithHelp("esc/b", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// HistoryModel lists a user's runs and can re-verify finalized ones.
type HistoryModel struct {
	store     RunLister
	verifier  Verifier
	user      string
	runs      []storage.RunRecord
	table     table.Model
	help      help.Model
	keys      HistoryKeyMap
	status    string
	width     int
	height    int
	quitting  bool
	goingBack bool
}

// NewHistoryModel creates a history view for user. verifier may be nil.
func NewHistoryModel(store RunLister, verifier Verifier, user string, width, height int) HistoryModel {
	m := HistoryModel{
		store:    store,
		verifier: verifier,
		user:     user,
		help:     help.New(),
		keys:     DefaultHistoryKeyMap(),
		width:    width,
		height:   height,
	}
	m.table = m.createTable()
	m.loadRuns()
	return m
}

// createTable creates a new table with appropriate columns.
func (m *HistoryModel) createTable() table.Model {
	columns := []table.Column{
		{Title: "Run", Width: 10},
		{Title: "#", Width: 4},
		{Title: "Stake", Width: 10},
		{Title: "Final", Width: 10},
		{Title: "Result", Width: 8},
		{Title: "OK", Width: 3},
		{Title: "Date", Width: 12},
	}

	// Give spare width to the run id column
	if spare := m.width - 4 - tableMinWidth; spare > 0 {
		columns[0].Width += min(spare, 26)
	}

	height := m.height - 8 // Leave room for header, help, and margins
	if height < 3 {
		height = 3
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return t
}

func (m *HistoryModel) loadRuns() {
	if m.store == nil {
		m.runs = nil
		m.updateTableRows()
		return
	}

	runs, err := m.store.RecentRuns(m.user, maxHistory)
	if err != nil {
		m.runs = nil
		m.status = "cannot load runs: " + err.Error()
	} else {
		m.runs = runs
	}
	m.updateTableRows()
}

// updateTableRows updates the table with the loaded runs.
func (m *HistoryModel) updateTableRows() {
	idWidth := m.table.Columns()[0].Width
	rows := make([]table.Row, len(m.runs))
	for i, r := range m.runs {
		id := r.ID
		if len(id) > idWidth {
			id = id[:idWidth]
		}
		final := "-"
		if r.FinalLedger != "" {
			final = money.FormatMicrosString(r.FinalLedger, 2)
		}
		verified := ""
		if r.Verified {
			verified = "yes"
		}
		rows[i] = table.Row{
			id,
			fmt.Sprintf("%d", r.RunCount),
			money.FormatMicrosString(r.InitialLedger, 2),
			final,
			string(r.Reason),
			verified,
			r.CreatedAt.Format("Jan 02 15:04"),
		}
	}
	m.table.SetRows(rows)
}

// Init initializes the history model.
func (m HistoryModel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the history view.
func (m HistoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Back):
			m.goingBack = true
			return m, nil

		case key.Matches(msg, m.keys.Verify):
			m.verifySelected()
			return m, nil

		case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
			m.table, cmd = m.table.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table = m.createTable()
		m.updateTableRows()
		m.help.Width = msg.Width
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *HistoryModel) verifySelected() {
	if m.verifier == nil || len(m.runs) == 0 {
		return
	}
	rec := m.runs[m.table.Cursor()]
	if !rec.Finalized() {
		m.status = "run is not finalized yet"
		return
	}

	res, err := m.verifier.Verify(rec.ID)
	switch {
	case err != nil:
		m.status = "verify failed: " + err.Error()
	case res.Match:
		m.status = fmt.Sprintf("run %s verified: replay matches", rec.ID)
	default:
		m.status = fmt.Sprintf("run %s MISMATCH: %s", rec.ID, strings.Join(res.Mismatches, "; "))
	}
	m.loadRuns()
}

// View renders the run history.
func (m HistoryModel) View() string {
	if m.quitting || m.goingBack {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.MarginBottom(1).Render(centerText("RUN HISTORY - "+m.user, m.width)))
	b.WriteString("\n\n")

	tableStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	b.WriteString(centerText(tableStyle.Render(m.renderTableContent()), m.width))
	b.WriteString("\n")

	if m.status != "" {
		b.WriteString(centerText(m.status, m.width))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.help.View(m.keys)))
	return b.String()
}

// renderTableContent renders the table or empty message.
func (m HistoryModel) renderTableContent() string {
	if len(m.runs) == 0 {
		emptyStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true).
			Padding(2, 4)
		return emptyStyle.Render("No runs recorded yet.\nStart a run from the lobby!")
	}
	return m.table.View()
}

// Status returns the last verification message.
func (m HistoryModel) Status() string {
	return m.status
}

// IsGoingBack returns true if user wants to go back to the lobby.
func (m HistoryModel) IsGoingBack() bool {
	return m.goingBack
}

// IsQuitting returns true if user wants to quit entirely.
func (m HistoryModel) IsQuitting() bool {
	return m.quitting
}
