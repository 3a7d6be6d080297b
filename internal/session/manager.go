package session

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/vovakirdan/runstake/internal/config"
	"github.com/vovakirdan/runstake/internal/fairness"
	"github.com/vovakirdan/runstake/internal/replay"
	"github.com/vovakirdan/runstake/internal/sim"
	"github.com/vovakirdan/runstake/internal/storage"
)

var (
	// ErrRunNotFound is returned for an unknown or inactive run.
	ErrRunNotFound = errors.New("session: run not found")

	// ErrNotResumable is returned when a run is not paused or belongs to another user.
	ErrNotResumable = errors.New("session: run cannot be resumed")

	// ErrRulesChanged is returned when a run was recorded under different tuning.
	ErrRulesChanged = errors.New("session: runner config changed since run was created")
)

// RunStore persists runs. *storage.Store implements it.
type RunStore interface {
	NextRunCount(user string) (int, error)
	CreateRun(rec storage.RunRecord) (string, error)
	SavePause(id, snapshot, ledger string, inputs []sim.Input) error
	MarkResumed(id string) error
	FinalizeRun(id string, fin storage.Finalization) error
	MarkVerified(id string, verified bool) error
	RunByID(id string) (*storage.RunRecord, error)
	SealedSecret(id string) (string, error)
}

var _ RunStore = (*storage.Store)(nil)

// Settlement is what the manager persisted when a run left its loop.
type Settlement struct {
	Outcome Outcome
	Paused  bool
	Receipt replay.Receipt // zero while paused
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Config config.RunnerConfig
	Clock  quartz.Clock
	Logger *log.Logger
	Grace  time.Duration

	// OnSettled is called after each run is persisted.
	OnSettled func(Settlement)
}

// StartRequest describes a new run.
type StartRequest struct {
	User       string
	PlayerSeed string
	Params     sim.Params
	Stake      *big.Int // micro-units
}

// Started is returned by Start. The commitment is published to the
// player before the first tick.
type Started struct {
	Run        *Run
	RunID      string
	RunCount   int
	Commitment string
}

type active struct {
	run        *Run
	user       string
	secret     string
	commitment string
	playerSeed string
	initial    string
}

// Manager creates, resumes and settles runs.
type Manager struct {
	store       RunStore
	cfg         config.RunnerConfig
	fingerprint string
	clock       quartz.Clock
	logger      *log.Logger
	grace       time.Duration
	onSettled   func(Settlement)

	mu   sync.Mutex
	runs map[string]*active
}

// NewManager creates a manager backed by store.
func NewManager(store RunStore, opts ManagerOptions) *Manager {
	if opts.Config.TickRate == 0 {
		opts.Config = config.DefaultRunnerConfig()
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &Manager{
		store:       store,
		cfg:         opts.Config,
		fingerprint: config.Fingerprint(opts.Config),
		clock:       opts.Clock,
		logger:      opts.Logger.WithPrefix("session"),
		grace:       opts.Grace,
		onSettled:   opts.OnSettled,
		runs:        make(map[string]*active),
	}
}

// Config returns the runner config every run of this manager uses.
func (m *Manager) Config() config.RunnerConfig {
	return m.cfg
}

// Start commits to a fresh secret, builds the engine from the combined
// seed, records the run and starts its loop attached to h.
func (m *Manager) Start(req StartRequest, h Handle) (*Started, error) {
	if req.Stake == nil || req.Stake.Sign() <= 0 {
		return nil, fmt.Errorf("session: stake must be positive")
	}

	runCount, err := m.store.NextRunCount(req.User)
	if err != nil {
		return nil, err
	}
	pair, err := fairness.NewPair()
	if err != nil {
		return nil, err
	}

	id := storage.NewRunID()
	seed := fairness.Combine(pair.Secret, req.PlayerSeed, id)
	engine, err := sim.New(seed, req.Params, req.Stake, runCount, sim.WithConfig(m.cfg))
	if err != nil {
		return nil, err
	}

	a := &active{
		user:       req.User,
		secret:     pair.Secret,
		commitment: pair.Commitment,
		playerSeed: req.PlayerSeed,
		initial:    req.Stake.String(),
	}
	if err := m.reserve(id, a); err != nil {
		return nil, err
	}

	_, err = m.store.CreateRun(storage.RunRecord{
		ID:               id,
		User:             req.User,
		RunCount:         runCount,
		Commitment:       pair.Commitment,
		Secret:           pair.Secret,
		PlayerSeed:       req.PlayerSeed,
		Params:           req.Params,
		RulesFingerprint: m.fingerprint,
		InitialLedger:    req.Stake.String(),
	})
	if err != nil {
		m.release(id)
		return nil, err
	}

	run := m.launch(engine, h, a, id)

	m.logger.Info("run created", "run", id, "user", req.User, "count", runCount,
		"incentive", engine.Incentive(), "commitment", pair.Commitment)

	return &Started{
		Run:        run,
		RunID:      id,
		RunCount:   runCount,
		Commitment: pair.Commitment,
	}, nil
}

// Resume restores a paused run from its stored snapshot and restarts its loop.
func (m *Manager) Resume(id, user string, h Handle) (*Run, error) {
	rec, err := m.store.RunByID(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRunNotFound
	}
	if rec.User != user || rec.Reason != sim.ReasonPause || rec.Snapshot == "" || rec.Finalized() {
		return nil, ErrNotResumable
	}
	if rec.RulesFingerprint != m.fingerprint {
		return nil, ErrRulesChanged
	}

	secret, err := m.store.SealedSecret(id)
	if err != nil {
		return nil, err
	}
	seed := fairness.Combine(secret, rec.PlayerSeed, id)
	engine, err := sim.Restore(rec.Snapshot, seed, rec.Params, rec.RunCount, sim.WithConfig(m.cfg))
	if err != nil {
		return nil, err
	}
	if err := engine.Resume(); err != nil {
		return nil, err
	}

	a := &active{
		user:       user,
		secret:     secret,
		commitment: rec.Commitment,
		playerSeed: rec.PlayerSeed,
		initial:    rec.InitialLedger,
	}
	if err := m.reserve(id, a); err != nil {
		return nil, err
	}
	// Only one caller can move the stored run out of pause.
	if err := m.store.MarkResumed(id); err != nil {
		m.release(id)
		if errors.Is(err, storage.ErrRunNotPaused) || errors.Is(err, storage.ErrRunFinalized) {
			return nil, ErrNotResumable
		}
		return nil, err
	}

	run := m.launch(engine, h, a, id)
	m.logger.Info("run resumed", "run", id, "tick", engine.Tick())
	return run, nil
}

// reserve claims id for a run about to launch. A run id has at most one
// live engine.
func (m *Manager) reserve(id string, a *active) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[id]; ok {
		return ErrNotResumable
	}
	m.runs[id] = a
	return nil
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.runs, id)
	m.mu.Unlock()
}

// launch starts the loop of a reserved run.
func (m *Manager) launch(engine *sim.Engine, h Handle, a *active, id string) *Run {
	run := NewRun(id, engine, h, RunOptions{
		Clock:  m.clock,
		Logger: m.logger,
		Grace:  m.grace,
	})

	m.mu.Lock()
	a.run = run
	m.mu.Unlock()

	go run.Run(func(out Outcome) {
		m.settle(a, out)
	})
	return run
}

// settle persists a run that left its loop.
func (m *Manager) settle(a *active, out Outcome) {
	m.mu.Lock()
	delete(m.runs, out.RunID)
	m.mu.Unlock()

	s := Settlement{Outcome: out, Paused: out.Reason == sim.ReasonPause}
	logger := m.logger.With("run", out.RunID, "reason", out.Reason, "ledger", out.Ledger)

	if s.Paused {
		if err := m.store.SavePause(out.RunID, out.Snapshot, out.Ledger, out.Inputs); err != nil {
			logger.Error("cannot save paused run", "error", err)
			return
		}
		logger.Info("run paused")
	} else {
		err := m.store.FinalizeRun(out.RunID, storage.Finalization{
			FinalLedger:  out.Ledger,
			Reason:       out.Reason,
			Inputs:       out.Inputs,
			EventsDigest: out.EventsDigest,
		})
		if err != nil {
			logger.Error("cannot finalize run", "error", err)
			return
		}
		s.Receipt = replay.Receipt{
			RunID:            out.RunID,
			Commitment:       a.commitment,
			Secret:           a.secret,
			PlayerSeed:       a.playerSeed,
			InitialLedger:    a.initial,
			FinalLedger:      out.Ledger,
			Reason:           out.Reason,
			Ticks:            out.Ticks,
			EventsDigest:     out.EventsDigest,
			RulesFingerprint: m.fingerprint,
		}
		logger.Info("run finalized", "ticks", out.Ticks)
	}

	if h := a.run.Handle(); h != nil {
		h.Send(SettledEvent{RunID: out.RunID, Settled: s})
	}
	if m.onSettled != nil {
		m.onSettled(s)
	}
}

// Get returns an active run.
func (m *Manager) Get(id string) *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.runs[id]; ok && a.run != nil {
		return a.run
	}
	return nil
}

// Owner returns the user of an active run.
func (m *Manager) Owner(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.runs[id]
	if !ok {
		return "", false
	}
	return a.user, true
}

// Active returns the number of runs currently in their loop.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// Shutdown forfeits every active run, as an expired grace period would,
// and waits until each one is settled.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	runs := make([]*Run, 0, len(m.runs))
	for _, a := range m.runs {
		if a.run != nil {
			runs = append(runs, a.run)
		}
	}
	m.mu.Unlock()

	for _, r := range runs {
		r.Forfeit()
	}
	for _, r := range runs {
		<-r.Done()
	}
	if len(runs) > 0 {
		m.logger.Warn("forfeited active runs on shutdown", "count", len(runs))
	}
}

// RequestFor builds a replay request for a finalized run record.
func RequestFor(rec *storage.RunRecord, cfg config.RunnerConfig) (replay.Request, error) {
	if !rec.Finalized() {
		return replay.Request{}, fmt.Errorf("session: run %s is not finalized", rec.ID)
	}
	initial, ok := new(big.Int).SetString(rec.InitialLedger, 10)
	if !ok {
		return replay.Request{}, fmt.Errorf("session: run %s has bad initial ledger %q", rec.ID, rec.InitialLedger)
	}
	return replay.Request{
		RunID:         rec.ID,
		Seed:          fairness.Combine(rec.Secret, rec.PlayerSeed, rec.ID),
		Params:        rec.Params,
		InitialLedger: initial,
		RunCount:      rec.RunCount,
		Inputs:        rec.Inputs,
		Config:        cfg,
		Claim: replay.Claim{
			Ledger:            rec.FinalLedger,
			Reason:            rec.Reason,
			ConfigFingerprint: rec.RulesFingerprint,
			EventsDigest:      rec.EventsDigest,
		},
	}, nil
}

// Verify replays a finalized run and records the result.
func (m *Manager) Verify(id string) (replay.Result, error) {
	rec, err := m.store.RunByID(id)
	if err != nil {
		return replay.Result{}, err
	}
	if rec == nil {
		return replay.Result{}, ErrRunNotFound
	}
	req, err := RequestFor(rec, m.cfg)
	if err != nil {
		return replay.Result{}, err
	}
	if !fairness.VerifyReveal(rec.Secret, rec.Commitment) {
		return replay.Result{RunID: id, Mismatches: []string{"secret does not match commitment"}}, nil
	}
	res, err := replay.Verify(req)
	if err != nil {
		return res, err
	}
	if err := m.store.MarkVerified(id, res.Match); err != nil {
		return res, err
	}
	m.logger.Info("run verified", "run", id, "match", res.Match, "mismatches", len(res.Mismatches))
	return res, nil
}
