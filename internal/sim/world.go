package sim

import (
	"math"
	"math/big"
)

// maxDrawsPerTick bounds source draws in one spawn pass: obstacle gate,
// kind and magnitude, then reward gate and magnitude.
const maxDrawsPerTick = 5

// spawn runs the obstacle then reward spawn decisions for this tick.
// A Bernoulli draw is only taken once the gap and lane gates pass, so the
// number of draws per tick depends only on state.
func (e *Engine) spawn() {
	s := &e.state
	spawnX := e.cfg.Spawn.X

	if s.Tick-e.lastObstacleSpawn >= e.tuning.obstacleGapTicks && !e.rewardInLane() {
		if e.bernoulli(e.tuning.obstacleLambda) {
			box := e.cfg.Obstacles.Ground
			kind := ObstacleGround
			if e.src.Next() < e.cfg.Obstacles.OverheadChance {
				box = e.cfg.Obstacles.Overhead
				kind = ObstacleOverhead
			}
			e.nextEntityID++
			s.Obstacles = append(s.Obstacles, Obstacle{
				ID:          e.nextEntityID,
				X:           spawnX,
				Y:           box.Y,
				W:           box.Width,
				H:           box.Height,
				Kind:        kind,
				MagnitudeBp: e.obstacleMagnitude(),
			})
			e.lastObstacleSpawn = s.Tick
		}
	}

	if s.Tick-e.lastRewardSpawn >= e.tuning.rewardGapTicks && !e.obstacleInLane() {
		if e.bernoulli(e.tuning.rewardLambda) {
			box := e.cfg.Rewards.Box
			e.nextEntityID++
			s.Rewards = append(s.Rewards, Reward{
				ID:          e.nextEntityID,
				X:           spawnX,
				Y:           box.Y,
				W:           box.Width,
				H:           box.Height,
				MagnitudeBp: e.rewardMagnitude(),
			})
			e.lastRewardSpawn = s.Tick
		}
	}
}

// bernoulli draws once and succeeds with probability lambda per second.
func (e *Engine) bernoulli(lambda float64) bool {
	p := lambda / float64(e.cfg.TickRate)
	return e.src.Next() < p
}

func (e *Engine) laneStart() float64 {
	return e.cfg.Spawn.X - e.cfg.Spawn.LaneWidth
}

func (e *Engine) rewardInLane() bool {
	lane := e.laneStart()
	for _, r := range e.state.Rewards {
		if r.X+r.W > lane {
			return true
		}
	}
	return false
}

func (e *Engine) obstacleInLane() bool {
	lane := e.laneStart()
	for _, o := range e.state.Obstacles {
		if o.X+o.W > lane {
			return true
		}
	}
	return false
}

// obstacleMagnitude biases toward the high end of the range: 1-(1-u)^a.
func (e *Engine) obstacleMagnitude() int64 {
	u := e.src.Next()
	t := 1 - math.Pow(1-u, e.tuning.biasExponent)
	return e.toBasisPoints(t)
}

// rewardMagnitude biases toward the low end of the range: u^a.
func (e *Engine) rewardMagnitude() int64 {
	u := e.src.Next()
	t := math.Pow(u, e.tuning.biasExponent)
	return e.toBasisPoints(t)
}

// toBasisPoints maps t in [0, 1] into the run's percent range and rounds to bp.
func (e *Engine) toBasisPoints(t float64) int64 {
	lo, hi := e.params.PercentMin, e.params.PercentMax
	pct := lo + float64((hi-lo)*t)
	bp := int64(math.Floor(float64(pct*100) + 0.5))
	switch {
	case bp < 0:
		return 0
	case bp > basisPoints:
		return basisPoints
	}
	return bp
}

// scroll moves every entity left by one tick of scroll distance.
func (e *Engine) scroll() {
	s := &e.state
	dx := float64(s.ScrollSpeed * e.tuning.dt)
	for i := range s.Obstacles {
		s.Obstacles[i].X -= dx
	}
	for i := range s.Rewards {
		s.Rewards[i].X -= dx
	}
}

// collide settles obstacle hits then reward pickups. A loss ends
// collision processing for the tick.
func (e *Engine) collide() {
	s := &e.state
	player := e.playerBox()

	for i := range s.Obstacles {
		o := &s.Obstacles[i]
		if o.Consumed || !player.Overlaps(o.box()) {
			continue
		}
		o.Consumed = true
		before := s.Bankroll.String()
		applyBasisPoints(s.Bankroll, basisPoints-o.MagnitudeBp)
		e.events = append(e.events, ObstacleHitEvent{
			Tick:        s.Tick,
			ObstacleID:  o.ID,
			MagnitudeBp: o.MagnitudeBp,
			Before:      before,
			After:       s.Bankroll.String(),
		})
		if s.Bankroll.Sign() <= 0 {
			s.Bankroll.SetInt64(0)
			s.Over = true
			s.Reason = ReasonLoss
			s.InCheckpointWindow = false
			s.CheckpointTicks = 0
			e.events = append(e.events, LossEvent{Tick: s.Tick})
			return
		}
	}

	for i := range s.Rewards {
		r := &s.Rewards[i]
		if r.Collected || !player.Overlaps(r.box()) {
			continue
		}
		r.Collected = true
		before := s.Bankroll.String()
		applyBasisPoints(s.Bankroll, basisPoints+r.MagnitudeBp)
		e.events = append(e.events, RewardCollectedEvent{
			Tick:        s.Tick,
			RewardID:    r.ID,
			MagnitudeBp: r.MagnitudeBp,
			Before:      before,
			After:       s.Bankroll.String(),
		})
	}
}

// applyBasisPoints sets v = floor(v * factor / 10000) in place.
func applyBasisPoints(v *big.Int, factor int64) {
	v.Mul(v, big.NewInt(factor))
	v.Div(v, big.NewInt(basisPoints))
}

// despawn drops entities whose right edge has passed the despawn line.
func (e *Engine) despawn() {
	s := &e.state
	limit := e.cfg.Spawn.DespawnX

	obstacles := s.Obstacles[:0]
	for _, o := range s.Obstacles {
		if o.X+o.W >= limit {
			obstacles = append(obstacles, o)
		}
	}
	s.Obstacles = obstacles

	rewards := s.Rewards[:0]
	for _, r := range s.Rewards {
		if r.X+r.W >= limit {
			rewards = append(rewards, r)
		}
	}
	s.Rewards = rewards
}

// updateCheckpoint opens a window when a checkpoint boundary is crossed
// and counts an open window down on later ticks.
func (e *Engine) updateCheckpoint() {
	s := &e.state
	idx := int(s.Tick / e.tuning.checkpointInterval)

	if idx > s.CheckpointIndex {
		s.CheckpointIndex = idx
		s.ScrollSpeed = e.cfg.Speed.At(idx)
		s.InCheckpointWindow = true
		s.CheckpointTicks = e.tuning.checkpointWindow
		e.events = append(e.events, CheckpointReachedEvent{
			Tick:        s.Tick,
			Index:       idx,
			ScrollSpeed: s.ScrollSpeed,
			Ledger:      s.Bankroll.String(),
		})
		return
	}

	if s.InCheckpointWindow {
		s.CheckpointTicks--
		if s.CheckpointTicks <= 0 {
			s.CheckpointTicks = 0
			s.InCheckpointWindow = false
		}
	}
}
