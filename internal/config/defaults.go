package config

import (
	_ "embed"
)

//go:embed defaults/runner.yaml
var defaultRunnerYAML []byte

// DefaultRunnerConfig returns the built-in runner configuration.
// It mirrors defaults/runner.yaml and is used when the embedded file cannot be parsed.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		TickRate: 60,
		Physics: PhysicsConfig{
			Gravity:       -2600,
			JumpVelocity:  820,
			SlideDuration: 0.5,
			SlideCooldown: 0.9,
		},
		Player: PlayerConfig{
			X:           80,
			Width:       40,
			Height:      60,
			SlideHeight: 30,
		},
		Obstacles: ObstacleConfig{
			Ground:         BoxConfig{Width: 36, Height: 48, Y: 0},
			Overhead:       BoxConfig{Width: 60, Height: 40, Y: 44},
			OverheadChance: 0.4,
			MinGap:         0.9,
			Rate:           RateConfig{Base: 0.9, Scale: 0.8},
		},
		Rewards: RewardConfig{
			Box:    BoxConfig{Width: 28, Height: 28, Y: 70},
			MinGap: 1.2,
			Rate:   RateConfig{Base: 0.5, Scale: -0.4},
		},
		Spawn: SpawnConfig{
			X:         1000,
			DespawnX:  -200,
			LaneWidth: 180,
		},
		Speed: SpeedConfig{
			Base:              420,
			StepPerCheckpoint: 0.08,
			Max:               900,
		},
		Bias: BiasConfig{
			Static: 1.5,
			Min:    1.0,
			Max:    2.5,
		},
		Checkpoint: CheckpointConfig{
			Interval: 60,
			Window:   5,
		},
		Incentive: IncentiveConfig{
			ObstacleRate: 0.85,
			RewardRate:   1.15,
			BiasDiscount: 0.8,
		},
		Limits: LimitsConfig{
			MaxReplayTicks: 216000, // one hour at 60 ticks per second
		},
	}
}

// DefaultYAML returns the embedded default YAML.
func DefaultYAML() []byte {
	return defaultRunnerYAML
}
