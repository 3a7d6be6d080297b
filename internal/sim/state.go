package sim

import "math/big"

// TerminalReason records why a run ended.
type TerminalReason string

const (
	ReasonNone    TerminalReason = "none"
	ReasonSafe    TerminalReason = "safe"
	ReasonPause   TerminalReason = "pause"
	ReasonForfeit TerminalReason = "forfeit"
	ReasonLoss    TerminalReason = "loss"
)

// valid reports whether r is one of the known reasons.
func (r TerminalReason) valid() bool {
	switch r {
	case ReasonNone, ReasonSafe, ReasonPause, ReasonForfeit, ReasonLoss:
		return true
	}
	return false
}

// ObstacleKind distinguishes obstacles the player must jump from ones it must slide under.
type ObstacleKind string

const (
	ObstacleGround   ObstacleKind = "ground"
	ObstacleOverhead ObstacleKind = "overhead"
)

// Obstacle is a hazard that takes a share of the ledger on contact.
type Obstacle struct {
	ID          uint64       `json:"id"`
	X           float64      `json:"x"`
	Y           float64      `json:"y"`
	W           float64      `json:"w"`
	H           float64      `json:"h"`
	Kind        ObstacleKind `json:"kind"`
	MagnitudeBp int64        `json:"magnitudeBp"`
	Consumed    bool         `json:"consumed"`
}

// Reward is a pickup that grows the ledger on contact.
type Reward struct {
	ID          uint64  `json:"id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	W           float64 `json:"w"`
	H           float64 `json:"h"`
	MagnitudeBp int64   `json:"magnitudeBp"`
	Collected   bool    `json:"collected"`
}

// State is the mutable simulation state owned by an Engine.
// Elapsed time is never stored; it is always Tick / tick rate.
type State struct {
	Tick uint64

	PlayerY       float64
	PlayerVY      float64
	Airborne      bool
	Sliding       bool
	SlideTicks    int // remaining ticks of the current slide
	SlideCooldown int // ticks until another slide may start

	Bankroll    *big.Int // micro-units, never negative
	ScrollSpeed float64

	CheckpointIndex    int
	InCheckpointWindow bool
	CheckpointTicks    int // remaining ticks of the open window

	Obstacles []Obstacle
	Rewards   []Reward

	RNGIndex uint64

	Over   bool
	Reason TerminalReason
}

// StateView is a read-only copy of State for transport and rendering.
type StateView struct {
	Tick               uint64         `json:"tick"`
	Elapsed            float64        `json:"elapsed"`
	PlayerY            float64        `json:"playerY"`
	PlayerVY           float64        `json:"playerVY"`
	Airborne           bool           `json:"airborne"`
	Sliding            bool           `json:"sliding"`
	SlideCooldown      int            `json:"slideCooldown"`
	Ledger             string         `json:"ledger"`
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

// clone returns a deep copy of the state.
func (s State) clone() State {
	c := s
	c.Bankroll = new(big.Int).Set(s.Bankroll)
	c.Obstacles = append([]Obstacle(nil), s.Obstacles...)
	c.Rewards = append([]Reward(nil), s.Rewards...)
	return c
}
