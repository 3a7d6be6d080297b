package config

import (
	"fmt"
	"math"
)

// CurveMode selects how difficulty scales spawn rates and magnitude bias.
type CurveMode string

const (
	CurveStatic          CurveMode = "static"
	CurveProportional    CurveMode = "proportional"
	CurveDisproportional CurveMode = "disproportional"
)

// ParseCurveMode validates a curve mode name.
func ParseCurveMode(s string) (CurveMode, error) {
	switch m := CurveMode(s); m {
	case CurveStatic, CurveProportional, CurveDisproportional:
		return m, nil
	}
	return "", fmt.Errorf("config: unknown curve mode %q", s)
}

// Curve maps normalised difficulty d in [0, 1] to a scaling factor:
// 0 for static, d for proportional, d squared for disproportional.
//
// Explicit float64 conversions around products in this file stop the
// compiler from fusing multiply-add, which is not bit-identical across
// architectures.
func Curve(mode CurveMode, d float64) float64 {
	d = clampF(d, 0, 1)
	switch mode {
	case CurveProportional:
		return d
	case CurveDisproportional:
		return float64(d * d)
	default:
		return 0
	}
}

// Lambda returns the rate in events per second for a curve mode and difficulty.
func (r RateConfig) Lambda(mode CurveMode, d float64) float64 {
	scaled := float64(r.Scale * Curve(mode, d))
	lambda := float64(r.Base * (1 + scaled))
	if lambda < 0 {
		return 0
	}
	return lambda
}

// Exponent returns the magnitude bias exponent for a curve mode and difficulty.
func (b BiasConfig) Exponent(mode CurveMode, d float64) float64 {
	if mode == CurveStatic {
		return b.Static
	}
	return b.Min + float64((b.Max-b.Min)*Curve(mode, d))
}

// At returns the scroll speed after reaching the given checkpoint index.
func (s SpeedConfig) At(checkpoint int) float64 {
	speed := float64(s.Base * (1 + float64(s.StepPerCheckpoint*float64(checkpoint))))
	return math.Min(speed, s.Max)
}

// roundHalfUp rounds to the nearest integer with halves away from zero for positives.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}

// clampF restricts a float64 to [min, max].
func clampF(val, min, max float64) float64 {
	return math.Max(min, math.Min(max, val))
}
