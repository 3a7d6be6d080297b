package tui

import (
	"fmt"
	"math/big"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/runstake/internal/config"
	"github.com/vovakirdan/runstake/internal/core"
	"github.com/vovakirdan/runstake/internal/money"
	"github.com/vovakirdan/runstake/internal/sim"
	"github.com/vovakirdan/runstake/internal/storage"
)

// RunLister reads a user's runs. *storage.Store implements it.
type RunLister interface {
	RecentRuns(user string, limit int) ([]storage.RunRecord, error)
	UserStats(user string) (*storage.UserStats, error)
}

// MenuChoice is what the user picked in the lobby.
type MenuChoice int

const (
	ChoiceNone MenuChoice = iota
	ChoiceStart
	ChoiceResume
	ChoiceHistory
)

// Lobby rows. Setting rows take left/right; the rest are actions.
const (
	rowStake = iota
	rowDifficulty
	rowCurve
	rowStart
	rowResume
	rowHistory
)

const difficultyStep = 5

var curveModes = []config.CurveMode{config.CurveStatic, config.CurveProportional, config.CurveDisproportional}

// MenuModel is the lobby: run settings, start, resume and history.
type MenuModel struct {
	store     RunLister
	user      string
	keyMapper *KeyMapper
	width     int
	height    int

	cursor   int
	stake    int64 // whole units
	params   sim.Params
	resumeID string // most recent paused run, if any
	stats    *storage.UserStats
	loadErr  string
	choice   MenuChoice
	quitting bool
}

// NewMenuModel creates a lobby for user with the given default params.
func NewMenuModel(store RunLister, user string, params sim.Params, stake int64, width, height int) MenuModel {
	m := MenuModel{
		store:     store,
		user:      user,
		keyMapper: NewKeyMapper(),
		width:     width,
		height:    height,
		cursor:    rowStart,
		stake:     stake,
		params:    params,
	}
	m.load()
	return m
}

func (m *MenuModel) load() {
	if m.store == nil {
		return
	}
	runs, err := m.store.RecentRuns(m.user, 20)
	if err != nil {
		m.loadErr = err.Error()
		return
	}
	for _, r := range runs {
		if r.Reason == sim.ReasonPause && !r.Finalized() {
			m.resumeID = r.ID
			break
		}
	}
	if stats, err := m.store.UserStats(m.user); err == nil {
		m.stats = stats
	}
}

// Init initializes the menu model.
func (m MenuModel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the menu.
func (m MenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}
	return m, nil
}

// handleKey processes keyboard input for menu navigation.
func (m MenuModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.keyMapper.MapKeyToMenuAction(msg) {
	case MenuActionQuit:
		m.quitting = true
		return m, tea.Quit

	case MenuActionUp:
		m.cursor = m.step(-1)

	case MenuActionDown:
		m.cursor = m.step(1)

	case MenuActionLeft:
		m.adjust(-1)

	case MenuActionRight:
		m.adjust(1)

	case MenuActionHistory:
		m.choice = ChoiceHistory

	case MenuActionSelect:
		switch m.cursor {
		case rowStart:
			m.choice = ChoiceStart
		case rowResume:
			m.choice = ChoiceResume
		case rowHistory:
			m.choice = ChoiceHistory
		}
	}
	return m, nil
}

// step moves the cursor, skipping the resume row when nothing is paused.
func (m MenuModel) step(dir int) int {
	next := m.cursor + dir
	if next == rowResume && m.resumeID == "" {
		next += dir
	}
	if next < rowStake || next > rowHistory {
		return m.cursor
	}
	return next
}

func (m *MenuModel) adjust(dir int) {
	switch m.cursor {
	case rowStake:
		if m.stake+int64(dir) >= 1 {
			m.stake += int64(dir)
		}
	case rowDifficulty:
		m.params.Difficulty = core.Clamp(m.params.Difficulty+difficultyStep*dir, 0, 100)
	case rowCurve:
		i := 0
		for j, c := range curveModes {
			if c == m.params.Curve {
				i = j
			}
		}
		m.params.Curve = curveModes[(i+dir+len(curveModes))%len(curveModes)]
	}
}

// View renders the menu.
func (m MenuModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(centerText("  R U N S T A K E  ", m.width)))
	b.WriteString("\n\n")
	b.WriteString(centerText(fmt.Sprintf("Signed in as %s", m.user), m.width))
	b.WriteString("\n")
	if m.stats != nil {
		net := money.Format(m.stats.Net, 2)
		if m.stats.Net.Sign() > 0 {
			net = "+" + net
		}
		summary := fmt.Sprintf("Runs %d  |  Safe %d  |  Busted %d  |  Net %s", m.stats.Runs, m.stats.Safe, m.stats.Losses, net)
		b.WriteString(centerText(dimStyle.Render(summary), m.width))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	rows := []string{
		fmt.Sprintf("Stake:      < %d >", m.stake),
		fmt.Sprintf("Difficulty: < %d >", m.params.Difficulty),
		fmt.Sprintf("Curve:      < %s >", m.params.Curve),
		"Start run",
		"Resume paused run",
		"Run history",
	}
	for i, row := range rows {
		if i == rowResume && m.resumeID == "" {
			continue
		}
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		b.WriteString(centerText(cursor+row, m.width))
		b.WriteString("\n")
	}

	if m.loadErr != "" {
		b.WriteString("\n")
		b.WriteString(centerText(dimStyle.Render("history unavailable: "+m.loadErr), m.width))
	}

	b.WriteString("\n")
	controls := "Up/Down: Navigate  |  Left/Right: Adjust  |  Enter: Select  |  Tab: History  |  Q: Quit"
	b.WriteString(centerText(dimStyle.Render(controls), m.width))
	b.WriteString("\n")
	return b.String()
}

// Choice returns what the user picked, or ChoiceNone.
func (m MenuModel) Choice() MenuChoice {
	return m.choice
}

// IsQuitting returns true if user requested to quit.
func (m MenuModel) IsQuitting() bool {
	return m.quitting
}

// Params returns the run parameters as configured.
func (m MenuModel) Params() sim.Params {
	return m.params
}

// Stake returns the configured stake in micro-units.
func (m MenuModel) Stake() *big.Int {
	micros := new(big.Int).Exp(big.NewInt(10), big.NewInt(money.Scale), nil)
	return micros.Mul(micros, big.NewInt(m.stake))
}

// ResumeID returns the paused run offered for resumption.
func (m MenuModel) ResumeID() string {
	return m.resumeID
}
