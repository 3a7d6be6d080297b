// Package sim implements the deterministic endless-runner simulation that
// settles a staked ledger. Given the same seed, parameters, run counter,
// config and ordered inputs, an Engine produces bit-identical state and
// event logs on every machine, which is what makes replay verification work.
package sim

import (
	"fmt"
	"math/big"

	"github.com/vovakirdan/runstake/internal/config"
	"github.com/vovakirdan/runstake/internal/rng"
)

// basisPoints is the denominator for magnitudes: 10000 bp = 100%.
const basisPoints = 10000

// Source is the random stream an Engine draws from. *rng.Source satisfies it.
type Source interface {
	Next() float64
	Index() uint64
	SeekForward(target uint64) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig overrides the default runner config.
func WithConfig(cfg config.RunnerConfig) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithSource replaces the seeded source. Used by tests to script draws.
func WithSource(src Source) Option {
	return func(e *Engine) { e.src = src }
}

// WithIncentivePolicy replaces DefaultIncentivePolicy.
func WithIncentivePolicy(p IncentivePolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// Engine owns one run's state. It is not safe for concurrent use; the
// session layer serializes access.
type Engine struct {
	cfg       config.RunnerConfig
	params    Params
	runCount  int
	policy    IncentivePolicy
	incentive bool
	src       Source

	state         State
	initialLedger *big.Int

	lastObstacleSpawn uint64
	lastRewardSpawn   uint64
	nextEntityID      uint64

	events []Event
	inputs []Input

	tuning tuning
}

// tuning holds values derived once from config and params.
type tuning struct {
	dt             float64
	obstacleLambda float64
	rewardLambda   float64
	biasExponent   float64

	obstacleGapTicks   uint64
	rewardGapTicks     uint64
	slideTicks         int
	slideCooldownTicks int
	checkpointInterval uint64
	checkpointWindow   int
}

// New creates an Engine for a fresh run.
func New(seed string, params Params, initialLedger *big.Int, runCount int, opts ...Option) (*Engine, error) {
	e, err := build(seed, params, initialLedger, runCount, opts)
	if err != nil {
		return nil, err
	}
	e.state = State{
		Bankroll:    new(big.Int).Set(initialLedger),
		ScrollSpeed: e.cfg.Speed.At(0),
		Reason:      ReasonNone,
		RNGIndex:    e.src.Index(),
	}
	return e, nil
}

// build validates inputs and derives tuning without touching state.
func build(seed string, params Params, initialLedger *big.Int, runCount int, opts []Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if initialLedger == nil || initialLedger.Sign() < 0 {
		return nil, ErrInvalidLedger
	}

	e := &Engine{
		cfg:           config.DefaultRunnerConfig(),
		params:        params,
		runCount:      runCount,
		policy:        DefaultIncentivePolicy,
		initialLedger: new(big.Int).Set(initialLedger),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	if e.src == nil {
		e.src = rng.New(seed)
	}
	e.incentive = e.policy(runCount)
	e.tuning = deriveTuning(e.cfg, params, e.incentive)
	return e, nil
}

func deriveTuning(cfg config.RunnerConfig, p Params, incentive bool) tuning {
	d := p.normalizedDifficulty()
	t := tuning{
		dt:                 1 / float64(cfg.TickRate),
		obstacleLambda:     cfg.Obstacles.Rate.Lambda(p.Curve, d),
		rewardLambda:       cfg.Rewards.Rate.Lambda(p.Curve, d),
		biasExponent:       cfg.Bias.Exponent(p.Curve, d),
		obstacleGapTicks:   uint64(cfg.Ticks(cfg.Obstacles.MinGap)),
		rewardGapTicks:     uint64(cfg.Ticks(cfg.Rewards.MinGap)),
		slideTicks:         cfg.Ticks(cfg.Physics.SlideDuration),
		slideCooldownTicks: cfg.Ticks(cfg.Physics.SlideCooldown),
		checkpointInterval: uint64(cfg.Ticks(cfg.Checkpoint.Interval)),
		checkpointWindow:   cfg.Ticks(cfg.Checkpoint.Window),
	}
	if incentive {
		t.obstacleLambda = float64(t.obstacleLambda * cfg.Incentive.ObstacleRate)
		t.rewardLambda = float64(t.rewardLambda * cfg.Incentive.RewardRate)
		t.biasExponent = float64(t.biasExponent * cfg.Incentive.BiasDiscount)
	}
	return t
}

// Advance runs one simulation tick and returns the resulting view.
// On a terminal run it changes nothing.
func (e *Engine) Advance() StateView {
	s := &e.state
	if s.Over {
		return e.StateView()
	}

	s.Tick++
	e.integrate()

	if !s.InCheckpointWindow {
		e.spawn()
	}

	e.scroll()
	e.collide()

	if !s.Over {
		e.despawn()
		e.updateCheckpoint()
	}

	s.RNGIndex = e.src.Index()
	return e.StateView()
}

// ProcessInput applies a jump or slide tagged for the current tick.
// It reports whether the input changed state; stale, future and
// physically impossible inputs are ignored.
func (e *Engine) ProcessInput(kind InputKind, atTick uint64) bool {
	s := &e.state
	if s.Over || atTick != s.Tick {
		return false
	}

	switch kind {
	case InputJump:
		if !e.jump() {
			return false
		}
	case InputSlide:
		if !e.slide() {
			return false
		}
	default:
		return false
	}
	e.inputs = append(e.inputs, Input{Tick: s.Tick, Kind: kind})
	return true
}

// ExitSafe cashes out at the current ledger. Valid only inside a checkpoint window.
func (e *Engine) ExitSafe() error {
	return e.leaveAtCheckpoint(ReasonSafe, InputExit)
}

// Pause suspends the run at a checkpoint. The run is terminal until Resume.
func (e *Engine) Pause() error {
	return e.leaveAtCheckpoint(ReasonPause, InputPause)
}

func (e *Engine) leaveAtCheckpoint(reason TerminalReason, kind InputKind) error {
	s := &e.state
	if s.Over {
		return ErrRunOver
	}
	if !s.InCheckpointWindow {
		return ErrNotInCheckpointWindow
	}

	ledger := s.Bankroll.String()
	s.Over = true
	s.Reason = reason
	s.InCheckpointWindow = false
	s.CheckpointTicks = 0

	if reason == ReasonPause {
		e.events = append(e.events, CheckpointPauseEvent{Tick: s.Tick, Ledger: ledger})
	} else {
		e.events = append(e.events, CheckpointExitEvent{Tick: s.Tick, Ledger: ledger})
	}
	e.inputs = append(e.inputs, Input{Tick: s.Tick, Kind: kind})
	return nil
}

// Resume continues a paused run from the tick it was paused on.
func (e *Engine) Resume() error {
	s := &e.state
	if !s.Over || s.Reason != ReasonPause {
		return ErrNotPaused
	}
	s.Over = false
	s.Reason = ReasonNone
	e.events = append(e.events, ResumeEvent{Tick: s.Tick, Ledger: s.Bankroll.String()})
	e.inputs = append(e.inputs, Input{Tick: s.Tick, Kind: InputResume})
	return nil
}

// Forfeit abandons the run and zeroes the ledger. It never fails and does
// nothing once the run is over.
func (e *Engine) Forfeit() {
	s := &e.state
	if s.Over {
		return
	}
	before := s.Bankroll.String()
	s.Bankroll.SetInt64(0)
	s.Over = true
	s.Reason = ReasonForfeit
	s.InCheckpointWindow = false
	s.CheckpointTicks = 0
	e.events = append(e.events, ForfeitEvent{Tick: s.Tick, Before: before})
	e.inputs = append(e.inputs, Input{Tick: s.Tick, Kind: InputForfeit})
}

// Apply dispatches a logged input. Jump and slide follow ProcessInput and
// never error; the terminal signals return their transition errors.
func (e *Engine) Apply(in Input) error {
	if in.Tick != e.state.Tick {
		return fmt.Errorf("%w: input for tick %d at tick %d", ErrInputTick, in.Tick, e.state.Tick)
	}
	switch in.Kind {
	case InputJump, InputSlide:
		e.ProcessInput(in.Kind, in.Tick)
		return nil
	case InputExit:
		return e.ExitSafe()
	case InputPause:
		return e.Pause()
	case InputResume:
		return e.Resume()
	case InputForfeit:
		e.Forfeit()
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownInput, in.Kind)
}

// StateView returns a copy of the current state.
func (e *Engine) StateView() StateView {
	s := e.state.clone()
	return StateView{
		Tick:               s.Tick,
		Elapsed:            float64(s.Tick) / float64(e.cfg.TickRate),
		PlayerY:            s.PlayerY,
		PlayerVY:           s.PlayerVY,
		Airborne:           s.Airborne,
		Sliding:            s.Sliding,
		SlideCooldown:      s.SlideCooldown,
		Ledger:             s.Bankroll.String(),
		ScrollSpeed:        s.ScrollSpeed,
		CheckpointIndex:    s.CheckpointIndex,
		InCheckpointWindow: s.InCheckpointWindow,
		CheckpointTicks:    s.CheckpointTicks,
		Obstacles:          s.Obstacles,
		Rewards:            s.Rewards,
		RNGIndex:           s.RNGIndex,
		Over:               s.Over,
		Reason:             s.Reason,
	}
}

// Events returns a copy of the event log.
func (e *Engine) Events() []Event {
	return append([]Event(nil), e.events...)
}

// Inputs returns a copy of the applied input log.
func (e *Engine) Inputs() []Input {
	return append([]Input(nil), e.inputs...)
}

// Ledger returns a copy of the current bankroll in micro-units.
func (e *Engine) Ledger() *big.Int {
	return new(big.Int).Set(e.state.Bankroll)
}

// InitialLedger returns a copy of the starting bankroll.
func (e *Engine) InitialLedger() *big.Int {
	return new(big.Int).Set(e.initialLedger)
}

// Tick returns the current tick.
func (e *Engine) Tick() uint64 { return e.state.Tick }

// Over reports whether the run is in a terminal state.
func (e *Engine) Over() bool { return e.state.Over }

// Reason returns the terminal reason, or ReasonNone while running.
func (e *Engine) Reason() TerminalReason { return e.state.Reason }

// Incentive reports whether this run got incentive tuning.
func (e *Engine) Incentive() bool { return e.incentive }

// Config returns the runner config in use.
func (e *Engine) Config() config.RunnerConfig { return e.cfg }

// Params returns the run parameters.
func (e *Engine) Params() Params { return e.params }
