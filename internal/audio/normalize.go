package audio

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Normalize scales a copy of x so its peak magnitude is 1. Silent input is returned unscaled.
func Normalize(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	if len(out) == 0 {
		return out
	}
	peak := floats.Norm(out, math.Inf(1))
	if peak == 0 || math.IsNaN(peak) || math.IsInf(peak, 0) {
		return out
	}
	floats.Scale(1/peak, out)
	return out
}
