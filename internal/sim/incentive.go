package sim

// IncentivePolicy decides from the player's run counter whether a run gets
// the slightly more favorable spawn and magnitude tuning.
type IncentivePolicy func(runCount int) bool

// DefaultIncentivePolicy favors the first run, the fifth run, and every
// seventh run after that (7, 14, 21, ...).
func DefaultIncentivePolicy(runCount int) bool {
	switch {
	case runCount == 1, runCount == 5:
		return true
	case runCount > 5 && runCount%7 == 0:
		return true
	}
	return false
}
