package sim

import (
	"fmt"

	"github.com/vovakirdan/runstake/internal/config"
)

// Params are the per-run parameters supplied at creation and never mutated.
type Params struct {
	Difficulty int              `json:"difficulty"` // 0..100
	PercentMin float64          `json:"percentMin"` // 0..100, below PercentMax
	PercentMax float64          `json:"percentMax"` // 0..100
	Curve      config.CurveMode `json:"curve"`
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	switch {
	case p.Difficulty < 0 || p.Difficulty > 100:
		return fmt.Errorf("%w: difficulty %d outside [0, 100]", ErrInvalidParams, p.Difficulty)
	case p.PercentMin < 0 || p.PercentMax > 100:
		return fmt.Errorf("%w: percent range [%v, %v] outside [0, 100]", ErrInvalidParams, p.PercentMin, p.PercentMax)
	case p.PercentMin >= p.PercentMax:
		return fmt.Errorf("%w: percentMin %v must be below percentMax %v", ErrInvalidParams, p.PercentMin, p.PercentMax)
	}
	if _, err := config.ParseCurveMode(string(p.Curve)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// normalizedDifficulty maps Difficulty to [0, 1].
func (p Params) normalizedDifficulty() float64 {
	return float64(p.Difficulty) / 100
}
