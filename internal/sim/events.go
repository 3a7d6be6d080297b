package sim

import (
	"fmt"
	"strconv"
)

// EventKind names an event variant. It is also the snapshot envelope tag.
type EventKind string

const (
	KindObstacleHit       EventKind = "obstacle_hit"
	KindRewardCollected   EventKind = "reward_collected"
	KindCheckpointReached EventKind = "checkpoint_reached"
	KindCheckpointExit    EventKind = "checkpoint_exit"
	KindCheckpointPause   EventKind = "checkpoint_pause"
	KindResume            EventKind = "resume"
	KindForfeit           EventKind = "forfeit"
	KindLoss              EventKind = "loss"
)

// Event is an entry in a run's append-only event log.
// Ledger values are decimal strings of integer micro-units.
type Event interface {
	Kind() EventKind
	EventTick() uint64
	canonical() string
}

// ObstacleHitEvent is logged when the player touches an unconsumed obstacle.
type ObstacleHitEvent struct {
	Tick        uint64 `json:"tick"`
	ObstacleID  uint64 `json:"obstacleId"`
	MagnitudeBp int64  `json:"magnitudeBp"`
	Before      string `json:"before"`
	After       string `json:"after"`
}

func (ObstacleHitEvent) Kind() EventKind     { return KindObstacleHit }
func (e ObstacleHitEvent) EventTick() uint64 { return e.Tick }
func (e ObstacleHitEvent) canonical() string {
	return fmt.Sprintf("%s|%d|%d|%d|%s|%s", KindObstacleHit, e.Tick, e.ObstacleID, e.MagnitudeBp, e.Before, e.After)
}

// RewardCollectedEvent is logged when the player touches an uncollected reward.
type RewardCollectedEvent struct {
	Tick        uint64 `json:"tick"`
	RewardID    uint64 `json:"rewardId"`
	MagnitudeBp int64  `json:"magnitudeBp"`
	Before      string `json:"before"`
	After       string `json:"after"`
}

func (RewardCollectedEvent) Kind() EventKind     { return KindRewardCollected }
func (e RewardCollectedEvent) EventTick() uint64 { return e.Tick }
func (e RewardCollectedEvent) canonical() string {
	return fmt.Sprintf("%s|%d|%d|%d|%s|%s", KindRewardCollected, e.Tick, e.RewardID, e.MagnitudeBp, e.Before, e.After)
}

// CheckpointReachedEvent is logged when a checkpoint boundary is crossed.
type CheckpointReachedEvent struct {
	Tick        uint64  `json:"tick"`
	Index       int     `json:"index"`
	ScrollSpeed float64 `json:"scrollSpeed"`
	Ledger      string  `json:"ledger"`
}

func (CheckpointReachedEvent) Kind() EventKind     { return KindCheckpointReached }
func (e CheckpointReachedEvent) EventTick() uint64 { return e.Tick }
func (e CheckpointReachedEvent) canonical() string {
	return fmt.Sprintf("%s|%d|%d|%s|%s", KindCheckpointReached, e.Tick, e.Index,
		strconv.FormatFloat(e.ScrollSpeed, 'g', -1, 64), e.Ledger)
}

// CheckpointExitEvent is logged on a safe exit.
type CheckpointExitEvent struct {
	Tick   uint64 `json:"tick"`
	Ledger string `json:"ledger"`
}

func (CheckpointExitEvent) Kind() EventKind     { return KindCheckpointExit }
func (e CheckpointExitEvent) EventTick() uint64 { return e.Tick }
func (e CheckpointExitEvent) canonical() string {
	return fmt.Sprintf("%s|%d|%s", KindCheckpointExit, e.Tick, e.Ledger)
}

// CheckpointPauseEvent is logged when the run is paused at a checkpoint.
type CheckpointPauseEvent struct {
	Tick   uint64 `json:"tick"`
	Ledger string `json:"ledger"`
}

func (CheckpointPauseEvent) Kind() EventKind     { return KindCheckpointPause }
func (e CheckpointPauseEvent) EventTick() uint64 { return e.Tick }
func (e CheckpointPauseEvent) canonical() string {
	return fmt.Sprintf("%s|%d|%s", KindCheckpointPause, e.Tick, e.Ledger)
}

// ResumeEvent is logged when a paused run continues.
type ResumeEvent struct {
	Tick   uint64 `json:"tick"`
	Ledger string `json:"ledger"`
}

func (ResumeEvent) Kind() EventKind     { return KindResume }
func (e ResumeEvent) EventTick() uint64 { return e.Tick }
func (e ResumeEvent) canonical() string {
	return fmt.Sprintf("%s|%d|%s", KindResume, e.Tick, e.Ledger)
}

// ForfeitEvent is logged when the run is abandoned.
type ForfeitEvent struct {
	Tick   uint64 `json:"tick"`
	Before string `json:"before"`
}

func (ForfeitEvent) Kind() EventKind     { return KindForfeit }
func (e ForfeitEvent) EventTick() uint64 { return e.Tick }
func (e ForfeitEvent) canonical() string {
	return fmt.Sprintf("%s|%d|%s", KindForfeit, e.Tick, e.Before)
}

// LossEvent is logged when the ledger reaches zero.
type LossEvent struct {
	Tick uint64 `json:"tick"`
}

func (LossEvent) Kind() EventKind     { return KindLoss }
func (e LossEvent) EventTick() uint64 { return e.Tick }
func (e LossEvent) canonical() string {
	return fmt.Sprintf("%s|%d", KindLoss, e.Tick)
}
