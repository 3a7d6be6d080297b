package session

import (
	"context"
	"io"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/runstake/internal/config"
	"github.com/vovakirdan/runstake/internal/fairness"
	"github.com/vovakirdan/runstake/internal/sim"
	"github.com/vovakirdan/runstake/internal/storage"
)

type managerHarness struct {
	t       *testing.T
	ctx     context.Context
	clock   *quartz.Mock
	store   *storage.Store
	mgr     *Manager
	settled chan Settlement
}

func newManagerHarness(t *testing.T, cfg config.RunnerConfig) *managerHarness {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	mh := &managerHarness{
		t:       t,
		ctx:     ctx,
		clock:   quartz.NewMock(t),
		store:   store,
		settled: make(chan Settlement, 4),
	}
	mh.mgr = NewManager(store, ManagerOptions{
		Config:    cfg,
		Clock:     mh.clock,
		Logger:    log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel}),
		OnSettled: func(s Settlement) { mh.settled <- s },
	})
	t.Cleanup(mh.mgr.Shutdown)
	return mh
}

func (mh *managerHarness) tick(r *Run, h *ChannelSession) sim.StateView {
	mh.t.Helper()
	mh.clock.Advance(r.TickInterval()).MustWait(mh.ctx)
	for {
		if s, ok := nextEvent(mh.t, h).(StateEvent); ok {
			return s.View
		}
	}
}

func (mh *managerHarness) waitSettled() Settlement {
	mh.t.Helper()
	select {
	case s := <-mh.settled:
		return s
	case <-time.After(2 * time.Second):
		mh.t.Fatal("timed out waiting for settlement")
		return Settlement{}
	}
}

func startReq(user string) StartRequest {
	return StartRequest{User: user, PlayerSeed: "player-seed", Params: testParams, Stake: big.NewInt(10_000_000)}
}

func TestManagerStartAndForfeit(t *testing.T) {
	mh := newManagerHarness(t, config.DefaultRunnerConfig())
	h := NewChannelSession("s1", 256)

	started, err := mh.mgr.Start(startReq("alice"), h)
	require.NoError(t, err)
	assert.Equal(t, 1, started.RunCount)
	assert.Len(t, started.Commitment, 64)
	assert.Equal(t, 1, mh.mgr.Active())

	owner, ok := mh.mgr.Owner(started.RunID)
	require.True(t, ok)
	assert.Equal(t, "alice", owner)

	rec, err := mh.store.RunByID(started.RunID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Empty(t, rec.Secret)
	assert.Equal(t, started.Commitment, rec.Commitment)

	for i := 0; i < 20; i++ {
		mh.tick(started.Run, h)
	}
	started.Run.SendInput(sim.InputForfeit)
	mh.clock.Advance(started.Run.TickInterval()).MustWait(mh.ctx)

	s := mh.waitSettled()
	assert.False(t, s.Paused)
	assert.Equal(t, sim.ReasonForfeit, s.Outcome.Reason)
	require.NoError(t, s.Receipt.CheckReveal())
	assert.Equal(t, "10000000", s.Receipt.InitialLedger)
	assert.Equal(t, "0", s.Receipt.FinalLedger)

	rec, err = mh.store.RunByID(started.RunID)
	require.NoError(t, err)
	assert.True(t, rec.Finalized())
	assert.Equal(t, s.Receipt.Secret, rec.Secret)
	assert.Equal(t, s.Outcome.EventsDigest, rec.EventsDigest)
	assert.Nil(t, mh.mgr.Get(started.RunID))

	res, err := mh.mgr.Verify(started.RunID)
	require.NoError(t, err)
	assert.True(t, res.Match, "mismatches: %v", res.Mismatches)

	rec, _ = mh.store.RunByID(started.RunID)
	assert.True(t, rec.Verified)
}

func TestManagerPauseAndResume(t *testing.T) {
	mh := newManagerHarness(t, shortCheckpoints())
	h := NewChannelSession("s1", 256)

	started, err := mh.mgr.Start(startReq("bob"), h)
	require.NoError(t, err)

	var view sim.StateView
	for i := 0; i < 60; i++ {
		view = mh.tick(started.Run, h)
	}
	require.True(t, view.InCheckpointWindow)
	started.Run.SendInput(sim.InputPause)
	mh.clock.Advance(started.Run.TickInterval()).MustWait(mh.ctx)

	s := mh.waitSettled()
	require.True(t, s.Paused)
	assert.Empty(t, s.Receipt.Secret)
	<-started.Run.Done()

	rec, err := mh.store.RunByID(started.RunID)
	require.NoError(t, err)
	assert.Equal(t, sim.ReasonPause, rec.Reason)
	assert.False(t, rec.Finalized())

	_, err = mh.mgr.Resume(started.RunID, "mallory", h)
	assert.ErrorIs(t, err, ErrNotResumable)

	h2 := NewChannelSession("s2", 256)
	run, err := mh.mgr.Resume(started.RunID, "bob", h2)
	require.NoError(t, err)

	for i := 0; i < 60; i++ {
		view = mh.tick(run, h2)
	}
	require.Equal(t, uint64(120), view.Tick)
	require.True(t, view.InCheckpointWindow)
	run.SendInput(sim.InputExit)
	mh.clock.Advance(run.TickInterval()).MustWait(mh.ctx)

	s = mh.waitSettled()
	assert.Equal(t, sim.ReasonSafe, s.Outcome.Reason)
	assert.Equal(t, fairness.Commit(s.Receipt.Secret), s.Receipt.Commitment)

	res, err := mh.mgr.Verify(started.RunID)
	require.NoError(t, err)
	assert.True(t, res.Match, "mismatches: %v", res.Mismatches)
}

// barrierStore holds every RunByID caller until all expected callers
// have read the record.
type barrierStore struct {
	*storage.Store
	arrived sync.WaitGroup
}

func (b *barrierStore) RunByID(id string) (*storage.RunRecord, error) {
	rec, err := b.Store.RunByID(id)
	b.arrived.Done()
	b.arrived.Wait()
	return rec, err
}

// pauseRun starts a run for user and pauses it at the first checkpoint.
func (mh *managerHarness) pauseRun(user string) string {
	mh.t.Helper()
	h := NewChannelSession("pause-"+user, 256)
	started, err := mh.mgr.Start(startReq(user), h)
	require.NoError(mh.t, err)

	for i := 0; i < 60; i++ {
		mh.tick(started.Run, h)
	}
	started.Run.SendInput(sim.InputPause)
	mh.clock.Advance(started.Run.TickInterval()).MustWait(mh.ctx)
	require.True(mh.t, mh.waitSettled().Paused)
	<-started.Run.Done()
	return started.RunID
}

func TestManagerConcurrentResume(t *testing.T) {
	tests := []struct {
		name     string
		separate bool
	}{
		{"same manager", false},
		{"separate managers", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mh := newManagerHarness(t, shortCheckpoints())
			id := mh.pauseRun("bob")

			store := &barrierStore{Store: mh.store}
			store.arrived.Add(2)
			newMgr := func() *Manager {
				m := NewManager(store, ManagerOptions{Config: shortCheckpoints(), Clock: mh.clock})
				t.Cleanup(m.Shutdown)
				return m
			}
			first := newMgr()
			managers := []*Manager{first, first}
			if tt.separate {
				managers[1] = newMgr()
			}

			var wg sync.WaitGroup
			errs := make([]error, len(managers))
			for i, m := range managers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = m.Resume(id, "bob", NewChannelSession("resume", 256))
				}()
			}
			wg.Wait()

			successes := 0
			for _, err := range errs {
				if err == nil {
					successes++
				} else {
					assert.ErrorIs(t, err, ErrNotResumable)
				}
			}
			assert.Equal(t, 1, successes)

			live := first.Active()
			if tt.separate {
				live += managers[1].Active()
			}
			assert.Equal(t, 1, live)
		})
	}
}

func TestManagerShutdownForfeitsActiveRuns(t *testing.T) {
	mh := newManagerHarness(t, config.DefaultRunnerConfig())
	h := NewChannelSession("s1", 256)

	started, err := mh.mgr.Start(startReq("carol"), h)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		mh.tick(started.Run, h)
	}

	mh.mgr.Shutdown()
	assert.Zero(t, mh.mgr.Active())

	s := mh.waitSettled()
	assert.Equal(t, sim.ReasonForfeit, s.Outcome.Reason)
	assert.Equal(t, uint64(10), s.Outcome.Ticks)

	rec, err := mh.store.RunByID(started.RunID)
	require.NoError(t, err)
	assert.True(t, rec.Finalized())
	assert.Equal(t, sim.ReasonForfeit, rec.Reason)
	assert.Equal(t, "0", rec.FinalLedger)

	res, err := mh.mgr.Verify(started.RunID)
	require.NoError(t, err)
	assert.True(t, res.Match, "mismatches: %v", res.Mismatches)
}

func TestManagerRejectsBadStart(t *testing.T) {
	mh := newManagerHarness(t, config.DefaultRunnerConfig())

	req := startReq("alice")
	req.Stake = big.NewInt(0)
	_, err := mh.mgr.Start(req, NewChannelSession("s", 1))
	assert.Error(t, err)

	req = startReq("alice")
	req.Params.PercentMin = 50
	req.Params.PercentMax = 10
	_, err = mh.mgr.Start(req, NewChannelSession("s", 1))
	assert.ErrorIs(t, err, sim.ErrInvalidParams)
	assert.Zero(t, mh.mgr.Active())
}

func TestManagerVerifyUnknownRun(t *testing.T) {
	mh := newManagerHarness(t, config.DefaultRunnerConfig())
	_, err := mh.mgr.Verify("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
