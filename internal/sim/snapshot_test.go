package sim

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/runstake/internal/config"
)

var busyParams = Params{Difficulty: 60, PercentMin: 1, PercentMax: 8, Curve: config.CurveProportional}

// drive advances both engines with the same scripted input pattern.
func drive(e *Engine, ticks int) {
	for i := 0; i < ticks && !e.Over(); i++ {
		switch tick := e.Tick(); {
		case tick%45 == 0:
			e.ProcessInput(InputJump, tick)
		case tick%70 == 10:
			e.ProcessInput(InputSlide, tick)
		}
		e.Advance()
	}
}

func TestDeterminism(t *testing.T) {
	a, err := New("det-seed", busyParams, big.NewInt(50_000_000), 3)
	require.NoError(t, err)
	b, err := New("det-seed", busyParams, big.NewInt(50_000_000), 3)
	require.NoError(t, err)

	drive(a, 12_000)
	drive(b, 12_000)

	assert.Equal(t, a.StateView(), b.StateView())
	assert.Equal(t, a.Events(), b.Events())
	assert.Equal(t, a.Inputs(), b.Inputs())
	assert.Equal(t, EventsDigest(a.Events()), EventsDigest(b.Events()))
	assert.NotEmpty(t, a.Events())
}

func TestDifferentSeedsDiverge(t *testing.T) {
	a, err := New("seed-one", busyParams, big.NewInt(50_000_000), 3)
	require.NoError(t, err)
	b, err := New("seed-two", busyParams, big.NewInt(50_000_000), 3)
	require.NoError(t, err)

	drive(a, 5_000)
	drive(b, 5_000)

	assert.NotEqual(t, a.StateView(), b.StateView())
}

func TestRestoreContinuesIdentically(t *testing.T) {
	original, err := New("resume", busyParams, big.NewInt(50_000_000), 3)
	require.NoError(t, err)
	drive(original, 2_500)
	require.False(t, original.Over())

	snap, err := original.Snapshot()
	require.NoError(t, err)

	restored, err := Restore(snap, "resume", busyParams, 3)
	require.NoError(t, err)
	assert.Equal(t, original.StateView(), restored.StateView())
	assert.Equal(t, original.Events(), restored.Events())
	assert.Equal(t, original.InitialLedger(), restored.InitialLedger())

	drive(original, 6_000)
	drive(restored, 6_000)

	assert.Equal(t, original.StateView(), restored.StateView())
	assert.Equal(t, EventsDigest(original.Events()), EventsDigest(restored.Events()))
	assert.Equal(t, original.Inputs(), restored.Inputs())
}

func TestRestorePausedRun(t *testing.T) {
	e := newTestEngine(t, 10_000_000)
	advanceTo(e, 3605)
	require.NoError(t, e.Pause())

	snap, err := e.Snapshot()
	require.NoError(t, err)

	restored, err := Restore(snap, "abc", staticParams, 2, WithSource(neverSpawn()))
	require.NoError(t, err)
	assert.Equal(t, ReasonPause, restored.Reason())

	require.NoError(t, restored.Resume())
	assert.Equal(t, uint64(3606), restored.Advance().Tick)
}

func TestRestoreMalformed(t *testing.T) {
	e := newTestEngine(t, 10_000_000)
	e.Advance()
	good, err := e.Snapshot()
	require.NoError(t, err)

	tests := []struct {
		name string
		snap string
	}{
		{"empty", ""},
		{"garbage", "not a snapshot"},
		{"wrong version", strings.Replace(good, `"version":1`, `"version":9`, 1)},
		{"unknown field", strings.Replace(good, `"version":1`, `"version":1,"extra":true`, 1)},
		{"negative bankroll", strings.Replace(good, `"bankroll":"10000000"`, `"bankroll":"-5"`, 1)},
		{"bankroll not a number", strings.Replace(good, `"bankroll":"10000000"`, `"bankroll":"ten"`, 1)},
		{"unknown reason", strings.Replace(good, `"reason":"none"`, `"reason":"bored"`, 1)},
		{"over without reason", strings.Replace(good, `"over":false`, `"over":true`, 1)},
		{"trailing data", good + "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Restore(tt.snap, "abc", staticParams, 2)
			assert.ErrorIs(t, err, ErrMalformedSnapshot)
		})
	}
}

// editSnapshot decodes snap, applies edit and encodes it again.
func editSnapshot(t *testing.T, snap string, edit func(*snapshotDoc)) string {
	t.Helper()
	var doc snapshotDoc
	require.NoError(t, json.Unmarshal([]byte(snap), &doc))
	edit(&doc)
	out, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(out)
}

func TestRestoreBoundsRNGIndex(t *testing.T) {
	e, err := New("bounds", busyParams, big.NewInt(50_000_000), 3)
	require.NoError(t, err)
	drive(e, 600)
	snap, err := e.Snapshot()
	require.NoError(t, err)

	tick := e.Tick()
	atLimit := editSnapshot(t, snap, func(d *snapshotDoc) { d.State.RNGIndex = (tick + 1) * maxDrawsPerTick })
	_, err = Restore(atLimit, "bounds", busyParams, 3)
	require.NoError(t, err)

	huge := editSnapshot(t, snap, func(d *snapshotDoc) { d.State.RNGIndex = 1 << 62 })
	_, err = Restore(huge, "bounds", busyParams, 3)
	assert.ErrorIs(t, err, ErrMalformedSnapshot)
}

func TestRestoreChecksEntityIDs(t *testing.T) {
	e, err := New("entities", busyParams, big.NewInt(50_000_000), 3)
	require.NoError(t, err)
	for i := 0; i < 20_000 && len(e.state.Obstacles)+len(e.state.Rewards) < 2 && !e.Over(); i++ {
		e.Advance()
	}
	require.GreaterOrEqual(t, len(e.state.Obstacles)+len(e.state.Rewards), 2)
	snap, err := e.Snapshot()
	require.NoError(t, err)

	_, err = Restore(snap, "entities", busyParams, 3)
	require.NoError(t, err)

	stale := editSnapshot(t, snap, func(d *snapshotDoc) { d.NextEntityID = 0 })
	_, err = Restore(stale, "entities", busyParams, 3)
	assert.ErrorIs(t, err, ErrMalformedSnapshot)

	dup := editSnapshot(t, snap, func(d *snapshotDoc) {
		d.State.Obstacles = append(d.State.Obstacles, d.State.Obstacles...)
		d.State.Rewards = append(d.State.Rewards, d.State.Rewards...)
	})
	_, err = Restore(dup, "entities", busyParams, 3)
	assert.ErrorIs(t, err, ErrMalformedSnapshot)
}

func TestRestoreUnknownEventKind(t *testing.T) {
	e := newTestEngine(t, 10_000_000)
	e.Forfeit()
	snap, err := e.Snapshot()
	require.NoError(t, err)

	bad := strings.Replace(snap, `"kind":"forfeit"`, `"kind":"teleport"`, 1)
	_, err = Restore(bad, "abc", staticParams, 2)
	assert.ErrorIs(t, err, ErrMalformedSnapshot)
}

func TestSnapshotKeepsLedgerAsString(t *testing.T) {
	e := newTestEngine(t, 10_000_000)
	snap, err := e.Snapshot()
	require.NoError(t, err)
	assert.Contains(t, snap, `"bankroll":"10000000"`)
	assert.Contains(t, snap, `"initialLedger":"10000000"`)
}

func TestEventsDigest(t *testing.T) {
	a := []Event{CheckpointReachedEvent{Tick: 3600, Index: 1, ScrollSpeed: 453.6, Ledger: "10"}}
	b := []Event{CheckpointReachedEvent{Tick: 3600, Index: 1, ScrollSpeed: 453.6, Ledger: "11"}}

	assert.Equal(t, EventsDigest(a), EventsDigest(a))
	assert.NotEqual(t, EventsDigest(a), EventsDigest(b))
	assert.NotEqual(t, EventsDigest(nil), EventsDigest(a))
	assert.Len(t, EventsDigest(nil), 64)
}
