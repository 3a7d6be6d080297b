package sim

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/runstake/internal/config"
	"github.com/vovakirdan/runstake/internal/rng"
)

// scriptedSource replays fixed draws, then repeats fallback forever.
type scriptedSource struct {
	values   []float64
	fallback float64
	index    uint64
}

func (s *scriptedSource) Next() float64 {
	v := s.fallback
	if s.index < uint64(len(s.values)) {
		v = s.values[s.index]
	}
	s.index++
	return v
}

func (s *scriptedSource) Index() uint64 { return s.index }

func (s *scriptedSource) SeekForward(target uint64) error {
	if target < s.index {
		return rng.ErrSeekBackward
	}
	s.index = target
	return nil
}

// neverSpawn fails every Bernoulli draw.
func neverSpawn() *scriptedSource { return &scriptedSource{fallback: 0.999999} }

var staticParams = Params{Difficulty: 0, PercentMin: 1, PercentMax: 5, Curve: config.CurveStatic}

func newTestEngine(t *testing.T, ledger int64, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithSource(neverSpawn())}, opts...)
	e, err := New("abc", staticParams, big.NewInt(ledger), 2, opts...)
	require.NoError(t, err)
	return e
}

func advanceTo(e *Engine, tick uint64) StateView {
	view := e.StateView()
	for e.Tick() < tick && !e.Over() {
		view = e.Advance()
	}
	return view
}

func TestQuietRunReachesFirstCheckpoint(t *testing.T) {
	params := Params{Difficulty: 0, PercentMin: 5, PercentMax: 25, Curve: config.CurveStatic}
	e, err := New("abc", params, big.NewInt(10_000_000), 2, WithSource(neverSpawn()))
	require.NoError(t, err)
	require.False(t, e.Incentive())

	view := advanceTo(e, 3600)

	assert.Equal(t, uint64(3600), view.Tick)
	assert.Equal(t, "10000000", view.Ledger)
	assert.Equal(t, 1, view.CheckpointIndex)
	assert.True(t, view.InCheckpointWindow)
	assert.False(t, view.Over)
	assert.Equal(t, ReasonNone, view.Reason)
	assert.InDelta(t, 60.0, view.Elapsed, 1e-9)

	events := e.Events()
	require.Len(t, events, 1)
	cp, ok := events[0].(CheckpointReachedEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(3600), cp.Tick)
	assert.Equal(t, 1, cp.Index)
	assert.InDelta(t, 420*1.08, cp.ScrollSpeed, 1e-9)
}

func TestCheckpointWindowLength(t *testing.T) {
	e := newTestEngine(t, 1_000)
	window := uint64(e.tuning.checkpointWindow)
	require.Equal(t, uint64(300), window)

	assert.False(t, advanceTo(e, 3599).InCheckpointWindow)
	assert.True(t, advanceTo(e, 3600).InCheckpointWindow)
	assert.True(t, advanceTo(e, 3600+window-1).InCheckpointWindow)
	assert.False(t, advanceTo(e, 3600+window).InCheckpointWindow)

	view := advanceTo(e, 7200)
	assert.Equal(t, 2, view.CheckpointIndex)
	assert.True(t, view.InCheckpointWindow)
}

func TestObstacleHitSettlesLedger(t *testing.T) {
	e := newTestEngine(t, 10_000_000)
	e.state.Obstacles = []Obstacle{{ID: 1, X: 80, Y: 0, W: 36, H: 48, Kind: ObstacleGround, MagnitudeBp: 500}}

	view := e.Advance()

	assert.Equal(t, "9500000", view.Ledger)
	assert.False(t, view.Over)
	require.Len(t, e.Events(), 1)
	assert.Equal(t, ObstacleHitEvent{
		Tick:        1,
		ObstacleID:  1,
		MagnitudeBp: 500,
		Before:      "10000000",
		After:       "9500000",
	}, e.Events()[0])

	// Consumed obstacles never settle twice.
	view = e.Advance()
	assert.Equal(t, "9500000", view.Ledger)
	assert.Len(t, e.Events(), 1)
}

func TestRewardCollectedGrowsLedger(t *testing.T) {
	e := newTestEngine(t, 10_000_000)
	e.state.Rewards = []Reward{{ID: 7, X: 80, Y: 0, W: 28, H: 28, MagnitudeBp: 1000}}

	view := e.Advance()

	assert.Equal(t, "11000000", view.Ledger)
	require.Len(t, e.Events(), 1)
	ev, ok := e.Events()[0].(RewardCollectedEvent)
	require.True(t, ok)
	assert.Equal(t, "10000000", ev.Before)
	assert.Equal(t, "11000000", ev.After)
}

func TestSettlementFloors(t *testing.T) {
	e := newTestEngine(t, 999)
	e.state.Obstacles = []Obstacle{{ID: 1, X: 80, W: 36, H: 48, Kind: ObstacleGround, MagnitudeBp: 333}}

	view := e.Advance()

	// floor(999 * 9667 / 10000) = 965
	assert.Equal(t, "965", view.Ledger)
}

func TestLedgerReachingZeroIsLoss(t *testing.T) {
	e := newTestEngine(t, 1)
	e.state.Obstacles = []Obstacle{
		{ID: 1, X: 80, W: 36, H: 48, Kind: ObstacleGround, MagnitudeBp: 500},
		{ID: 2, X: 90, W: 36, H: 48, Kind: ObstacleGround, MagnitudeBp: 500},
	}
	e.state.Rewards = []Reward{{ID: 3, X: 80, W: 28, H: 28, MagnitudeBp: 1000}}

	view := e.Advance()

	assert.True(t, view.Over)
	assert.Equal(t, ReasonLoss, view.Reason)
	assert.Equal(t, "0", view.Ledger)

	events := e.Events()
	require.Len(t, events, 2)
	assert.Equal(t, KindObstacleHit, events[0].Kind())
	assert.Equal(t, LossEvent{Tick: 1}, events[1])

	// Terminal runs are absorbing.
	assert.Equal(t, uint64(1), e.Advance().Tick)
	e.Forfeit()
	assert.Equal(t, ReasonLoss, e.Reason())
}

func TestFullMagnitudeObstacleIsLoss(t *testing.T) {
	e := newTestEngine(t, 10_000_000)
	e.state.Obstacles = []Obstacle{{ID: 1, X: 80, W: 36, H: 48, Kind: ObstacleGround, MagnitudeBp: 10000}}

	view := e.Advance()
	assert.Equal(t, ReasonLoss, view.Reason)
	assert.Equal(t, "0", view.Ledger)
}

func TestSlideAvoidsOverhead(t *testing.T) {
	e := newTestEngine(t, 10_000_000)
	e.state.Obstacles = []Obstacle{{ID: 1, X: 80, Y: 44, W: 60, H: 40, Kind: ObstacleOverhead, MagnitudeBp: 500}}

	require.True(t, e.ProcessInput(InputSlide, 0))
	view := e.Advance()

	assert.True(t, view.Sliding)
	assert.Equal(t, "10000000", view.Ledger)
	assert.Empty(t, e.Events())
}

func TestExitSafeOutsideWindow(t *testing.T) {
	e := newTestEngine(t, 10_000_000)
	advanceTo(e, 100)

	before, err := e.Snapshot()
	require.NoError(t, err)

	assert.ErrorIs(t, e.ExitSafe(), ErrNotInCheckpointWindow)
	assert.ErrorIs(t, e.Pause(), ErrNotInCheckpointWindow)

	after, err := e.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.False(t, e.Over())
}

func TestExitSafeInsideWindow(t *testing.T) {
	e := newTestEngine(t, 10_000_000)
	advanceTo(e, 3600)

	require.NoError(t, e.ExitSafe())

	view := e.StateView()
	assert.True(t, view.Over)
	assert.Equal(t, ReasonSafe, view.Reason)
	assert.False(t, view.InCheckpointWindow)
	assert.Equal(t, "10000000", view.Ledger)
	assert.Equal(t, CheckpointExitEvent{Tick: 3600, Ledger: "10000000"}, e.Events()[len(e.Events())-1])
	assert.Equal(t, []Input{{Tick: 3600, Kind: InputExit}}, e.Inputs())

	assert.ErrorIs(t, e.ExitSafe(), ErrRunOver)
	assert.Equal(t, uint64(3600), e.Advance().Tick)

	e.Forfeit()
	assert.Equal(t, "10000000", e.StateView().Ledger)
}

func TestPauseAndResume(t *testing.T) {
	e := newTestEngine(t, 10_000_000)
	advanceTo(e, 3610)

	assert.ErrorIs(t, e.Resume(), ErrNotPaused)
	require.NoError(t, e.Pause())
	assert.Equal(t, ReasonPause, e.Reason())
	assert.Equal(t, uint64(3610), e.Advance().Tick)

	require.NoError(t, e.Resume())
	assert.False(t, e.Over())
	assert.Equal(t, uint64(3611), e.Advance().Tick)
	assert.Equal(t, []Input{{Tick: 3610, Kind: InputPause}, {Tick: 3610, Kind: InputResume}}, e.Inputs())
}

func TestForfeit(t *testing.T) {
	e := newTestEngine(t, 10_000_000)
	advanceTo(e, 10)

	e.Forfeit()

	view := e.StateView()
	assert.True(t, view.Over)
	assert.Equal(t, ReasonForfeit, view.Reason)
	assert.Equal(t, "0", view.Ledger)
	assert.Equal(t, []Event{ForfeitEvent{Tick: 10, Before: "10000000"}}, e.Events())

	e.Forfeit()
	assert.Len(t, e.Events(), 1)
}

func TestJumpPhysics(t *testing.T) {
	e := newTestEngine(t, 100)

	assert.False(t, e.ProcessInput(InputJump, 5), "future tick must be ignored")
	require.True(t, e.ProcessInput(InputJump, 0))
	assert.False(t, e.ProcessInput(InputJump, 0), "no double jump")
	assert.False(t, e.ProcessInput(InputSlide, 0), "no slide mid-air")

	view := e.Advance()
	assert.True(t, view.Airborne)
	assert.Greater(t, view.PlayerY, 0.0)

	for i := 0; i < 120 && e.StateView().Airborne; i++ {
		e.Advance()
	}
	view = e.StateView()
	assert.False(t, view.Airborne)
	assert.Equal(t, 0.0, view.PlayerY)
	assert.Equal(t, []Input{{Tick: 0, Kind: InputJump}}, e.Inputs())
}

func TestSlideCooldown(t *testing.T) {
	e := newTestEngine(t, 100)
	require.True(t, e.ProcessInput(InputSlide, 0))

	advanceTo(e, 30)
	assert.False(t, e.StateView().Sliding)
	assert.False(t, e.ProcessInput(InputSlide, 30), "still cooling down")

	advanceTo(e, 54)
	assert.True(t, e.ProcessInput(InputSlide, 54))
}

func TestApply(t *testing.T) {
	e := newTestEngine(t, 100)

	assert.ErrorIs(t, e.Apply(Input{Tick: 3, Kind: InputJump}), ErrInputTick)
	assert.ErrorIs(t, e.Apply(Input{Tick: 0, Kind: "dance"}), ErrUnknownInput)
	assert.ErrorIs(t, e.Apply(Input{Tick: 0, Kind: InputExit}), ErrNotInCheckpointWindow)
	require.NoError(t, e.Apply(Input{Tick: 0, Kind: InputJump}))
	assert.True(t, e.StateView().Airborne)
	require.NoError(t, e.Apply(Input{Tick: 0, Kind: InputForfeit}))
	assert.Equal(t, ReasonForfeit, e.Reason())
}

func TestSpawnDraws(t *testing.T) {
	// Every draw returns 0: each Bernoulli succeeds, obstacles are overhead
	// and magnitudes land on the low end of the range.
	src := &scriptedSource{fallback: 0}
	e, err := New("abc", staticParams, big.NewInt(1_000_000), 2, WithSource(src))
	require.NoError(t, err)

	gap := e.tuning.obstacleGapTicks
	require.Equal(t, uint64(54), gap)

	view := advanceTo(e, gap-1)
	assert.Empty(t, view.Obstacles)
	assert.Equal(t, uint64(0), view.RNGIndex, "gated ticks never draw")

	view = e.Advance()
	require.Len(t, view.Obstacles, 1)
	o := view.Obstacles[0]
	assert.Equal(t, ObstacleOverhead, o.Kind)
	assert.Equal(t, int64(100), o.MagnitudeBp)
	assert.InDelta(t, 1000-7, o.X, 1e-9)
	assert.Equal(t, uint64(3), view.RNGIndex)
}

func TestSpawnSuppressedInCheckpointWindow(t *testing.T) {
	e := newTestEngine(t, 1_000)
	advanceTo(e, 3600)
	src := e.src.(*scriptedSource)
	src.fallback = 0

	for i := 0; i < 100; i++ {
		e.Advance()
	}
	assert.Empty(t, e.StateView().Obstacles)
	assert.Empty(t, e.StateView().Rewards)
}

func TestBasisPointMapping(t *testing.T) {
	e := newTestEngine(t, 1)
	e.params = Params{PercentMin: 2.5, PercentMax: 7.5, Curve: config.CurveStatic}

	assert.Equal(t, int64(250), e.toBasisPoints(0))
	assert.Equal(t, int64(750), e.toBasisPoints(1))
	assert.Equal(t, int64(500), e.toBasisPoints(0.5))
}

func TestObstacleMagnitudeBiasedHigh(t *testing.T) {
	params := Params{Difficulty: 100, PercentMin: 0, PercentMax: 100, Curve: config.CurveProportional}
	e, err := New("bias", params, big.NewInt(1), 2)
	require.NoError(t, err)

	var obstacles, rewards int64
	const n = 2000
	for i := 0; i < n; i++ {
		obstacles += e.obstacleMagnitude()
		rewards += e.rewardMagnitude()
	}
	assert.Greater(t, obstacles/n, int64(5000))
	assert.Less(t, rewards/n, int64(5000))
}

func TestIncentiveTuning(t *testing.T) {
	e1, err := New("abc", staticParams, big.NewInt(1), 1)
	require.NoError(t, err)
	e2, err := New("abc", staticParams, big.NewInt(1), 2)
	require.NoError(t, err)

	assert.True(t, e1.Incentive())
	assert.False(t, e2.Incentive())
	assert.Less(t, e1.tuning.obstacleLambda, e2.tuning.obstacleLambda)
	assert.Greater(t, e1.tuning.rewardLambda, e2.tuning.rewardLambda)

	never := func(int) bool { return false }
	e3, err := New("abc", staticParams, big.NewInt(1), 1, WithIncentivePolicy(never))
	require.NoError(t, err)
	assert.False(t, e3.Incentive())
}

func TestDefaultIncentivePolicy(t *testing.T) {
	favored := map[int]bool{1: true, 5: true}
	for n := 7; n <= 70; n += 7 {
		favored[n] = true
	}
	for n := 0; n <= 70; n++ {
		assert.Equal(t, favored[n], DefaultIncentivePolicy(n), "run %d", n)
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		ledger *big.Int
		err    error
	}{
		{"difficulty high", Params{Difficulty: 101, PercentMin: 1, PercentMax: 2, Curve: config.CurveStatic}, big.NewInt(1), ErrInvalidParams},
		{"range inverted", Params{PercentMin: 5, PercentMax: 1, Curve: config.CurveStatic}, big.NewInt(1), ErrInvalidParams},
		{"range equal", Params{PercentMin: 5, PercentMax: 5, Curve: config.CurveStatic}, big.NewInt(1), ErrInvalidParams},
		{"range over 100", Params{PercentMin: 5, PercentMax: 101, Curve: config.CurveStatic}, big.NewInt(1), ErrInvalidParams},
		{"bad curve", Params{PercentMin: 1, PercentMax: 2, Curve: "zigzag"}, big.NewInt(1), ErrInvalidParams},
		{"nil ledger", staticParams, nil, ErrInvalidLedger},
		{"negative ledger", staticParams, big.NewInt(-1), ErrInvalidLedger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("abc", tt.params, tt.ledger, 1)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestLedgerNeverNegative(t *testing.T) {
	params := Params{Difficulty: 100, PercentMin: 50, PercentMax: 100, Curve: config.CurveDisproportional}
	e, err := New("harsh", params, big.NewInt(5_000_000), 2)
	require.NoError(t, err)

	for i := 0; i < 30_000 && !e.Over(); i++ {
		view := e.Advance()
		require.GreaterOrEqual(t, e.Ledger().Sign(), 0, "tick %d", view.Tick)
		if view.InCheckpointWindow {
			e.Advance()
		}
	}
	if e.Over() {
		assert.Equal(t, ReasonLoss, e.Reason())
		assert.Equal(t, "0", e.StateView().Ledger)
	}
}
