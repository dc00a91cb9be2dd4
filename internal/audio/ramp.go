package audio

import "strings"

// Curve maps fade progress in [0,1] onto gain progress in [0,1].
type Curve func(t float64) float64

// Linear is the identity curve, clamped to [0,1].
func Linear(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t
}

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// CurveByName resolves a configured curve name. Unknown names fall back to linear.
func CurveByName(name string) Curve {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "smooth", "smoothstep":
		return Smoothstep
	default:
		return Linear
	}
}

// RampGain returns the gain after step of steps when moving from -> to.
// The last step lands exactly on to; the result is clamped to [0,1].
func RampGain(from, to float64, step, steps int, curve Curve) float64 {
	if curve == nil {
		curve = Linear
	}
	if steps <= 0 || step >= steps {
		return ClampGain(to)
	}
	if step <= 0 {
		return ClampGain(from)
	}
	progress := curve(float64(step) / float64(steps))
	return ClampGain(from + (to-from)*progress)
}

// ClampGain limits a gain value to [0,1].
func ClampGain(g float64) float64 {
	if g < 0 {
		return 0
	}
	if g > 1 {
		return 1
	}
	return g
}
