package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/google/uuid"

	"github.com/vovakirdan/runstake/internal/config"
	"github.com/vovakirdan/runstake/internal/core"
	"github.com/vovakirdan/runstake/internal/session"
	"github.com/vovakirdan/runstake/internal/sim"
)

// Runs starts, resumes and verifies runs. *session.Manager implements it.
type Runs interface {
	Start(req session.StartRequest, h session.Handle) (*session.Started, error)
	Resume(id, user string, h session.Handle) (*session.Run, error)
	Verifier
}

// SSHServerConfig holds configuration for the SSH server.
type SSHServerConfig struct {
	// Address is the host:port to listen on (e.g., ":23234").
	Address string

	// HostKeyPath is the path to the host key file.
	// If empty, a key will be auto-generated at ~/.runstake/host_key.
	HostKeyPath string

	// IdleTimeout is how long to wait before closing idle connections.
	IdleTimeout time.Duration

	// Runner is the tuning the run view draws with.
	Runner config.RunnerConfig

	// DefaultParams and DefaultStake seed the lobby settings.
	DefaultParams sim.Params
	DefaultStake  int64
}

// DefaultSSHServerConfig returns a config with sensible defaults.
func DefaultSSHServerConfig() SSHServerConfig {
	return SSHServerConfig{
		Address:     ":23234",
		IdleTimeout: 30 * time.Minute,
		Runner:      config.DefaultRunnerConfig(),
		DefaultParams: sim.Params{
			Difficulty: 30,
			PercentMin: 5,
			PercentMax: 25,
			Curve:      config.CurveProportional,
		},
		DefaultStake: 10,
	}
}

// SSHServer wraps a Wish SSH server that hosts one lobby per session.
type SSHServer struct {
	config SSHServerConfig
	server *ssh.Server
	runs   Runs
	store  RunLister
	logger *log.Logger
}

// NewSSHServer creates a new SSH server with the given configuration.
func NewSSHServer(cfg SSHServerConfig, runs Runs, store RunLister, logger *log.Logger) (*SSHServer, error) {
	srv := &SSHServer{
		config: cfg,
		runs:   runs,
		store:  store,
		logger: logger.WithPrefix("ssh"),
	}

	// Resolve host key path
	hostKeyPath := cfg.HostKeyPath
	if hostKeyPath == "" {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return nil, fmt.Errorf("cannot get home directory: %w", homeErr)
		}
		hostKeyPath = filepath.Join(home, ".runstake", "host_key")
	}

	// Ensure host key directory exists
	if mkdirErr := os.MkdirAll(filepath.Dir(hostKeyPath), 0o700); mkdirErr != nil {
		return nil, fmt.Errorf("cannot create host key directory: %w", mkdirErr)
	}

	server, err := wish.NewServer(
		wish.WithAddress(cfg.Address),
		wish.WithHostKeyPath(hostKeyPath),
		wish.WithIdleTimeout(cfg.IdleTimeout),
		wish.WithMiddleware(
			bubbletea.Middleware(srv.teaHandler),
			srv.loggingMiddleware,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot create SSH server: %w", err)
	}

	srv.server = server
	return srv, nil
}

// teaHandler creates a Bubble Tea program for each SSH session.
func (s *SSHServer) teaHandler(sshSession ssh.Session) (tea.Model, []tea.ProgramOption) {
	pty, _, ok := sshSession.Pty()
	if !ok {
		s.logger.Warn("no PTY requested", "user", sshSession.User())
		return nil, nil
	}

	rc := core.RuntimeConfig{
		ScreenW:  pty.Window.Width,
		ScreenH:  pty.Window.Height,
		TickRate: s.config.Runner.TickRate,
	}

	link := &handleLink{}
	go func() {
		// A dropped connection detaches the run and starts its grace period.
		<-sshSession.Context().Done()
		link.set(nil)
	}()

	model := NewSessionModel(s.runs, s.store, s.config, rc, sshSession.User(), link)
	return model, []tea.ProgramOption{
		tea.WithAltScreen(),
	}
}

// loggingMiddleware logs SSH session events.
func (s *SSHServer) loggingMiddleware(next ssh.Handler) ssh.Handler {
	return func(sshSession ssh.Session) {
		s.logger.Info("session started",
			"user", sshSession.User(),
			"remote", sshSession.RemoteAddr().String(),
		)
		next(sshSession)
		s.logger.Info("session ended",
			"user", sshSession.User(),
			"remote", sshSession.RemoteAddr().String(),
		)
	}
}

// ListenAndServe serves until Shutdown is called.
func (s *SSHServer) ListenAndServe() error {
	s.logger.Info("starting SSH server", "address", s.config.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *SSHServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Addr returns the server's listen address string.
func (s *SSHServer) Addr() string {
	return s.config.Address
}

// handleLink tracks the handle of the run a session is playing so it can be
// closed when the connection drops. Setting a new handle closes the old one.
type handleLink struct {
	mu     sync.Mutex
	handle *session.ChannelSession
}

func (l *handleLink) set(h *session.ChannelSession) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle != nil && l.handle != h {
		l.handle.Close()
	}
	l.handle = h
}

type sessionView int

const (
	viewLobby sessionView = iota
	viewRun
	viewHistory
)

// SessionModel manages the full flow of one SSH session: lobby -> run ->
// lobby, and lobby -> history -> lobby.
type SessionModel struct {
	runs     Runs
	store    RunLister
	config   SSHServerConfig
	rc       core.RuntimeConfig
	username string
	link     *handleLink

	view     sessionView
	menu     MenuModel
	run      *Model
	history  *HistoryModel
	notice   string
	quitting bool
}

// NewSessionModel creates a new session model.
func NewSessionModel(runs Runs, store RunLister, cfg SSHServerConfig, rc core.RuntimeConfig, username string, link *handleLink) SessionModel {
	if link == nil {
		link = &handleLink{}
	}
	return SessionModel{
		runs:     runs,
		store:    store,
		config:   cfg,
		rc:       rc,
		username: username,
		link:     link,
		menu:     NewMenuModel(store, username, cfg.DefaultParams, cfg.DefaultStake, rc.ScreenW, rc.ScreenH),
	}
}

// Init initializes the session.
func (m SessionModel) Init() tea.Cmd {
	return m.menu.Init()
}

// Update handles messages for the session.
func (m SessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if wsm, ok := msg.(tea.WindowSizeMsg); ok {
		m.rc.ScreenW = wsm.Width
		m.rc.ScreenH = wsm.Height
	}

	switch m.view {
	case viewRun:
		return m.updateRun(msg)
	case viewHistory:
		return m.updateHistory(msg)
	}
	return m.updateMenu(msg)
}

func (m SessionModel) updateMenu(msg tea.Msg) (tea.Model, tea.Cmd) {
	newMenu, cmd := m.menu.Update(msg)
	if menuModel, ok := newMenu.(MenuModel); ok {
		m.menu = menuModel
	}

	if m.menu.IsQuitting() {
		m.quitting = true
		return m, tea.Quit
	}

	switch m.menu.Choice() {
	case ChoiceStart:
		return m.startRun()
	case ChoiceResume:
		return m.resumeRun(m.menu.ResumeID())
	case ChoiceHistory:
		h := NewHistoryModel(m.store, m.runs, m.username, m.rc.ScreenW, m.rc.ScreenH)
		m.history = &h
		m.view = viewHistory
		return m, h.Init()
	}
	return m, cmd
}

func (m SessionModel) startRun() (tea.Model, tea.Cmd) {
	h := session.NewChannelSession(uuid.NewString(), 256)
	started, err := m.runs.Start(session.StartRequest{
		User:       m.username,
		PlayerSeed: uuid.NewString(),
		Params:     m.menu.Params(),
		Stake:      m.menu.Stake(),
	}, h)
	if err != nil {
		h.Close()
		return m.backToLobby("cannot start run: " + err.Error())
	}
	return m.enterRun(started.Run, h, started.Commitment)
}

func (m SessionModel) resumeRun(id string) (tea.Model, tea.Cmd) {
	h := session.NewChannelSession(uuid.NewString(), 256)
	run, err := m.runs.Resume(id, m.username, h)
	if err != nil {
		h.Close()
		return m.backToLobby("cannot resume run: " + err.Error())
	}
	return m.enterRun(run, h, "")
}

func (m SessionModel) enterRun(run InputSender, h *session.ChannelSession, commitment string) (tea.Model, tea.Cmd) {
	m.link.set(h)
	rm := NewModel(run, h, m.config.Runner, commitment, m.rc.ScreenW, m.rc.ScreenH)
	m.run = &rm
	m.view = viewRun
	return m, rm.Init()
}

func (m SessionModel) backToLobby(notice string) (tea.Model, tea.Cmd) {
	m.link.set(nil)
	m.run = nil
	m.history = nil
	m.notice = notice
	m.view = viewLobby
	m.menu = NewMenuModel(m.store, m.username, m.menu.Params(), m.menu.stake, m.rc.ScreenW, m.rc.ScreenH)
	return m, m.menu.Init()
}

func (m SessionModel) updateRun(msg tea.Msg) (tea.Model, tea.Cmd) {
	newModel, cmd := m.run.Update(msg)
	if rm, ok := newModel.(Model); ok {
		m.run = &rm
	}

	if m.run.BackToMenu() {
		return m.backToLobby("")
	}
	if m.run.IsQuitting() {
		m.link.set(nil)
		m.quitting = true
		return m, tea.Quit
	}
	return m, cmd
}

func (m SessionModel) updateHistory(msg tea.Msg) (tea.Model, tea.Cmd) {
	newModel, cmd := m.history.Update(msg)
	if hm, ok := newModel.(HistoryModel); ok {
		m.history = &hm
	}

	if m.history.IsGoingBack() {
		return m.backToLobby("")
	}
	if m.history.IsQuitting() {
		m.quitting = true
		return m, tea.Quit
	}
	return m, cmd
}

// View renders the current view.
func (m SessionModel) View() string {
	if m.quitting {
		return ""
	}

	switch m.view {
	case viewRun:
		return m.run.View()
	case viewHistory:
		return m.history.View()
	}

	out := m.menu.View()
	if m.notice != "" {
		out += "\n" + centerText(m.notice, m.rc.ScreenW)
	}
	return out
}
