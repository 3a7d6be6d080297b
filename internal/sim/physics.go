package sim

import "github.com/vovakirdan/runstake/internal/core"

// jump starts a jump from the ground. Not allowed mid-air or mid-slide.
func (e *Engine) jump() bool {
	s := &e.state
	if s.Airborne || s.Sliding {
		return false
	}
	s.PlayerVY = e.cfg.Physics.JumpVelocity
	s.Airborne = true
	return true
}

// slide starts a slide if grounded and off cooldown.
func (e *Engine) slide() bool {
	s := &e.state
	if s.Airborne || s.Sliding || s.SlideCooldown > 0 {
		return false
	}
	s.Sliding = true
	s.SlideTicks = e.tuning.slideTicks
	s.SlideCooldown = e.tuning.slideCooldownTicks
	return true
}

// integrate applies gravity and counts down slide timers.
func (e *Engine) integrate() {
	s := &e.state
	dt := e.tuning.dt

	if s.Airborne {
		s.PlayerVY = s.PlayerVY + float64(e.cfg.Physics.Gravity*dt)
		s.PlayerY = s.PlayerY + float64(s.PlayerVY*dt)
		if s.PlayerY <= 0 {
			s.PlayerY = 0
			s.PlayerVY = 0
			s.Airborne = false
		}
	}

	if s.Sliding {
		s.SlideTicks--
		if s.SlideTicks <= 0 {
			s.SlideTicks = 0
			s.Sliding = false
		}
	}
	if s.SlideCooldown > 0 {
		s.SlideCooldown--
	}
}

// playerBox is the player's hitbox; sliding lowers its height.
func (e *Engine) playerBox() core.Box {
	h := e.cfg.Player.Height
	if e.state.Sliding {
		h = e.cfg.Player.SlideHeight
	}
	return core.Box{X: e.cfg.Player.X, Y: e.state.PlayerY, W: e.cfg.Player.Width, H: h}
}

func (o Obstacle) box() core.Box { return core.Box{X: o.X, Y: o.Y, W: o.W, H: o.H} }
func (r Reward) box() core.Box   { return core.Box{X: r.X, Y: r.Y, W: r.W, H: r.H} }
