// Package config provides YAML-based runner configuration loading and the
// difficulty curves that scale spawn rates, magnitude bias and scroll speed.
package config

import "fmt"

// RunnerConfig contains every tuning constant the simulation engine reads.
// Distances are in world units, times in seconds, rates in events per second.
type RunnerConfig struct {
	TickRate   int              `yaml:"tick_rate"`
	Physics    PhysicsConfig    `yaml:"physics"`
	Player     PlayerConfig     `yaml:"player"`
	Obstacles  ObstacleConfig   `yaml:"obstacles"`
	Rewards    RewardConfig     `yaml:"rewards"`
	Spawn      SpawnConfig      `yaml:"spawn"`
	Speed      SpeedConfig      `yaml:"speed"`
	Bias       BiasConfig       `yaml:"bias"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Incentive  IncentiveConfig  `yaml:"incentive"`
	Limits     LimitsConfig     `yaml:"limits"`
}

// PhysicsConfig defines vertical movement parameters.
type PhysicsConfig struct {
	Gravity       float64 `yaml:"gravity"`        // Acceleration while airborne (negative = down)
	JumpVelocity  float64 `yaml:"jump_velocity"`  // Initial upward velocity of a jump
	SlideDuration float64 `yaml:"slide_duration"` // How long a slide lasts
	SlideCooldown float64 `yaml:"slide_cooldown"` // Time from slide start until the next slide is allowed
}

// PlayerConfig defines the player's hitbox.
type PlayerConfig struct {
	X           float64 `yaml:"x"`
	Width       float64 `yaml:"width"`
	Height      float64 `yaml:"height"`
	SlideHeight float64 `yaml:"slide_height"`
}

// BoxConfig is an entity hitbox; Y is the bottom edge above ground level.
type BoxConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	Y      float64 `yaml:"y"`
}

// RateConfig is a Poisson rate that scales with difficulty.
// Lambda = Base * (1 + Scale * curve(difficulty)).
type RateConfig struct {
	Base  float64 `yaml:"base"`
	Scale float64 `yaml:"scale"`
}

// ObstacleConfig defines obstacle shapes and spawning.
type ObstacleConfig struct {
	Ground         BoxConfig  `yaml:"ground"`
	Overhead       BoxConfig  `yaml:"overhead"`
	OverheadChance float64    `yaml:"overhead_chance"`
	MinGap         float64    `yaml:"min_gap"`
	Rate           RateConfig `yaml:"rate"`
}

// RewardConfig defines reward shape and spawning.
type RewardConfig struct {
	Box    BoxConfig  `yaml:"box"`
	MinGap float64    `yaml:"min_gap"`
	Rate   RateConfig `yaml:"rate"`
}

// SpawnConfig defines where entities appear and disappear.
type SpawnConfig struct {
	X         float64 `yaml:"x"`          // Left edge of a freshly spawned entity
	DespawnX  float64 `yaml:"despawn_x"`  // Entities whose right edge passes this are dropped
	LaneWidth float64 `yaml:"lane_width"` // Entities within this distance of X occupy the spawn lane
}

// SpeedConfig defines scroll speed progression per checkpoint.
type SpeedConfig struct {
	Base              float64 `yaml:"base"`
	StepPerCheckpoint float64 `yaml:"step_per_checkpoint"` // Fractional increase per checkpoint reached
	Max               float64 `yaml:"max"`
}

// BiasConfig defines the magnitude bias exponent range.
type BiasConfig struct {
	Static float64 `yaml:"static"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

// CheckpointConfig defines checkpoint cadence.
type CheckpointConfig struct {
	Interval float64 `yaml:"interval"`
	Window   float64 `yaml:"window"`
}

// IncentiveConfig holds the multipliers applied on incentive runs.
type IncentiveConfig struct {
	ObstacleRate float64 `yaml:"obstacle_rate"`
	RewardRate   float64 `yaml:"reward_rate"`
	BiasDiscount float64 `yaml:"bias_discount"`
}

// LimitsConfig bounds replay work.
type LimitsConfig struct {
	MaxReplayTicks int `yaml:"max_replay_ticks"`
}

// Validate reports the first structural problem in the config.
func (c RunnerConfig) Validate() error {
	switch {
	case c.TickRate <= 0:
		return fmt.Errorf("config: tick_rate must be positive, got %d", c.TickRate)
	case c.Physics.Gravity >= 0:
		return fmt.Errorf("config: physics.gravity must be negative, got %v", c.Physics.Gravity)
	case c.Physics.JumpVelocity <= 0:
		return fmt.Errorf("config: physics.jump_velocity must be positive, got %v", c.Physics.JumpVelocity)
	case c.Player.Width <= 0 || c.Player.Height <= 0:
		return fmt.Errorf("config: player box must have positive size")
	case c.Player.SlideHeight <= 0 || c.Player.SlideHeight >= c.Player.Height:
		return fmt.Errorf("config: player.slide_height must be in (0, height)")
	case c.Obstacles.OverheadChance < 0 || c.Obstacles.OverheadChance > 1:
		return fmt.Errorf("config: obstacles.overhead_chance must be in [0, 1]")
	case c.Spawn.DespawnX >= c.Spawn.X:
		return fmt.Errorf("config: spawn.despawn_x must be left of spawn.x")
	case c.Speed.Base <= 0 || c.Speed.Max < c.Speed.Base:
		return fmt.Errorf("config: speed.base must be positive and not above speed.max")
	case c.Checkpoint.Interval <= 0 || c.Checkpoint.Window <= 0:
		return fmt.Errorf("config: checkpoint interval and window must be positive")
	case c.Checkpoint.Window >= c.Checkpoint.Interval:
		return fmt.Errorf("config: checkpoint.window must be shorter than checkpoint.interval")
	case c.Limits.MaxReplayTicks <= 0:
		return fmt.Errorf("config: limits.max_replay_ticks must be positive")
	}
	return nil
}

// Ticks converts a duration in seconds to whole ticks, never less than one.
func (c RunnerConfig) Ticks(seconds float64) int {
	n := int(roundHalfUp(seconds * float64(c.TickRate)))
	if n < 1 {
		return 1
	}
	return n
}
