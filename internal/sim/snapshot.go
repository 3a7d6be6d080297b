package sim

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// snapshotVersion is bumped whenever the snapshot layout changes.
const snapshotVersion = 1

type snapshotDoc struct {
	Version           int             `json:"version"`
	InitialLedger     string          `json:"initialLedger"`
	State             stateDoc        `json:"state"`
	LastObstacleSpawn uint64          `json:"lastObstacleSpawn"`
	LastRewardSpawn   uint64          `json:"lastRewardSpawn"`
	NextEntityID      uint64          `json:"nextEntityId"`
	Events            []eventEnvelope `json:"events"`
	Inputs            []Input         `json:"inputs"`
}

type stateDoc struct {
	Tick               uint64         `json:"tick"`
	PlayerY            float64        `json:"playerY"`
	PlayerVY           float64        `json:"playerVY"`
	Airborne           bool           `json:"airborne"`
	Sliding            bool           `json:"sliding"`
	SlideTicks         int            `json:"slideTicks"`
	SlideCooldown      int            `json:"slideCooldown"`
	Bankroll           string         `json:"bankroll"`
	ScrollSpeed        float64        `json:"scrollSpeed"`
	CheckpointIndex    int            `json:"checkpointIndex"`
	InCheckpointWindow bool           `json:"inCheckpointWindow"`
	CheckpointTicks    int            `json:"checkpointTicks"`
	Obstacles          []Obstacle     `json:"obstacles"`
	Rewards            []Reward       `json:"rewards"`
	RNGIndex           uint64         `json:"rngIndex"`
	Over               bool           `json:"over"`
	Reason             TerminalReason `json:"reason"`
}

type eventEnvelope struct {
	Kind EventKind       `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Snapshot serializes everything needed to continue the run later.
// The result is opaque; pass it to Restore with the same seed and params.
func (e *Engine) Snapshot() (string, error) {
	s := e.state
	doc := snapshotDoc{
		Version:       snapshotVersion,
		InitialLedger: e.initialLedger.String(),
		State: stateDoc{
			Tick:               s.Tick,
			PlayerY:            s.PlayerY,
			PlayerVY:           s.PlayerVY,
			Airborne:           s.Airborne,
			Sliding:            s.Sliding,
			SlideTicks:         s.SlideTicks,
			SlideCooldown:      s.SlideCooldown,
			Bankroll:           s.Bankroll.String(),
			ScrollSpeed:        s.ScrollSpeed,
			CheckpointIndex:    s.CheckpointIndex,
			InCheckpointWindow: s.InCheckpointWindow,
			CheckpointTicks:    s.CheckpointTicks,
			Obstacles:          s.Obstacles,
			Rewards:            s.Rewards,
			RNGIndex:           s.RNGIndex,
			Over:               s.Over,
			Reason:             s.Reason,
		},
		LastObstacleSpawn: e.lastObstacleSpawn,
		LastRewardSpawn:   e.lastRewardSpawn,
		NextEntityID:      e.nextEntityID,
		Inputs:            e.inputs,
	}

	for _, ev := range e.events {
		data, err := json.Marshal(ev)
		if err != nil {
			return "", fmt.Errorf("sim: encode %s event: %w", ev.Kind(), err)
		}
		doc.Events = append(doc.Events, eventEnvelope{Kind: ev.Kind(), Data: data})
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("sim: encode snapshot: %w", err)
	}
	return string(out), nil
}

// Restore rebuilds an Engine from a snapshot. The random source is
// recreated from seed and moved forward to the saved draw index before
// state is overlaid, so the next Advance draws exactly what the original
// engine would have.
func Restore(snapshot, seed string, params Params, runCount int, opts ...Option) (*Engine, error) {
	dec := json.NewDecoder(strings.NewReader(snapshot))
	dec.DisallowUnknownFields()

	var doc snapshotDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformedSnapshot)
	}
	if doc.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedSnapshot, doc.Version)
	}

	initial, ok := parseLedger(doc.InitialLedger)
	if !ok {
		return nil, fmt.Errorf("%w: bad initial ledger %q", ErrMalformedSnapshot, doc.InitialLedger)
	}
	bankroll, ok := parseLedger(doc.State.Bankroll)
	if !ok {
		return nil, fmt.Errorf("%w: bad bankroll %q", ErrMalformedSnapshot, doc.State.Bankroll)
	}
	if err := checkStateDoc(doc.State); err != nil {
		return nil, err
	}
	if err := checkEntityIDs(doc.State, doc.NextEntityID); err != nil {
		return nil, err
	}

	events, err := decodeEvents(doc.Events)
	if err != nil {
		return nil, err
	}
	for _, in := range doc.Inputs {
		if !in.Kind.Valid() || in.Tick > doc.State.Tick {
			return nil, fmt.Errorf("%w: bad input %+v", ErrMalformedSnapshot, in)
		}
	}

	e, err := build(seed, params, initial, runCount, opts)
	if err != nil {
		return nil, err
	}
	if err := e.src.SeekForward(doc.State.RNGIndex); err != nil {
		return nil, fmt.Errorf("sim: restore source: %w", err)
	}

	st := doc.State
	e.state = State{
		Tick:               st.Tick,
		PlayerY:            st.PlayerY,
		PlayerVY:           st.PlayerVY,
		Airborne:           st.Airborne,
		Sliding:            st.Sliding,
		SlideTicks:         st.SlideTicks,
		SlideCooldown:      st.SlideCooldown,
		Bankroll:           bankroll,
		ScrollSpeed:        st.ScrollSpeed,
		CheckpointIndex:    st.CheckpointIndex,
		InCheckpointWindow: st.InCheckpointWindow,
		CheckpointTicks:    st.CheckpointTicks,
		Obstacles:          st.Obstacles,
		Rewards:            st.Rewards,
		RNGIndex:           st.RNGIndex,
		Over:               st.Over,
		Reason:             st.Reason,
	}
	e.lastObstacleSpawn = doc.LastObstacleSpawn
	e.lastRewardSpawn = doc.LastRewardSpawn
	e.nextEntityID = doc.NextEntityID
	e.events = events
	e.inputs = doc.Inputs
	return e, nil
}

func parseLedger(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

func checkStateDoc(st stateDoc) error {
	switch {
	case !st.Reason.valid():
		return fmt.Errorf("%w: unknown reason %q", ErrMalformedSnapshot, st.Reason)
	case st.Over == (st.Reason == ReasonNone):
		return fmt.Errorf("%w: over=%v with reason %q", ErrMalformedSnapshot, st.Over, st.Reason)
	case st.Over && st.InCheckpointWindow:
		return fmt.Errorf("%w: terminal run with open checkpoint window", ErrMalformedSnapshot)
	case st.SlideTicks < 0 || st.SlideCooldown < 0 || st.CheckpointTicks < 0 || st.CheckpointIndex < 0:
		return fmt.Errorf("%w: negative counter", ErrMalformedSnapshot)
	case st.ScrollSpeed <= 0:
		return fmt.Errorf("%w: scroll speed %v", ErrMalformedSnapshot, st.ScrollSpeed)
	case st.RNGIndex > 0 && (st.RNGIndex-1)/maxDrawsPerTick > st.Tick:
		return fmt.Errorf("%w: rng index %d beyond tick %d", ErrMalformedSnapshot, st.RNGIndex, st.Tick)
	}
	for _, o := range st.Obstacles {
		if o.MagnitudeBp < 0 || o.MagnitudeBp > basisPoints {
			return fmt.Errorf("%w: obstacle %d magnitude %d", ErrMalformedSnapshot, o.ID, o.MagnitudeBp)
		}
		if o.Kind != ObstacleGround && o.Kind != ObstacleOverhead {
			return fmt.Errorf("%w: obstacle %d kind %q", ErrMalformedSnapshot, o.ID, o.Kind)
		}
	}
	for _, r := range st.Rewards {
		if r.MagnitudeBp < 0 || r.MagnitudeBp > basisPoints {
			return fmt.Errorf("%w: reward %d magnitude %d", ErrMalformedSnapshot, r.ID, r.MagnitudeBp)
		}
	}
	return nil
}

// checkEntityIDs requires unique entity ids that the next spawn cannot reuse.
func checkEntityIDs(st stateDoc, next uint64) error {
	seen := make(map[uint64]bool, len(st.Obstacles)+len(st.Rewards))
	check := func(id uint64) error {
		if id > next || seen[id] {
			return fmt.Errorf("%w: entity id %d (next %d)", ErrMalformedSnapshot, id, next)
		}
		seen[id] = true
		return nil
	}
	for _, o := range st.Obstacles {
		if err := check(o.ID); err != nil {
			return err
		}
	}
	for _, r := range st.Rewards {
		if err := check(r.ID); err != nil {
			return err
		}
	}
	return nil
}

func decodeEvents(envs []eventEnvelope) ([]Event, error) {
	events := make([]Event, 0, len(envs))
	for _, env := range envs {
		ev, err := decodeEvent(env)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeEvent(env eventEnvelope) (Event, error) {
	var ev Event
	var err error
	switch env.Kind {
	case KindObstacleHit:
		var v ObstacleHitEvent
		err = json.Unmarshal(env.Data, &v)
		ev = v
	case KindRewardCollected:
		var v RewardCollectedEvent
		err = json.Unmarshal(env.Data, &v)
		ev = v
	case KindCheckpointReached:
		var v CheckpointReachedEvent
		err = json.Unmarshal(env.Data, &v)
		ev = v
	case KindCheckpointExit:
		var v CheckpointExitEvent
		err = json.Unmarshal(env.Data, &v)
		ev = v
	case KindCheckpointPause:
		var v CheckpointPauseEvent
		err = json.Unmarshal(env.Data, &v)
		ev = v
	case KindResume:
		var v ResumeEvent
		err = json.Unmarshal(env.Data, &v)
		ev = v
	case KindForfeit:
		var v ForfeitEvent
		err = json.Unmarshal(env.Data, &v)
		ev = v
	case KindLoss:
		var v LossEvent
		err = json.Unmarshal(env.Data, &v)
		ev = v
	default:
		return nil, fmt.Errorf("%w: unknown event kind %q", ErrMalformedSnapshot, env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s event: %v", ErrMalformedSnapshot, env.Kind, err)
	}
	return ev, nil
}
