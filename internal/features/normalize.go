package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// Epsilon keeps z-scoring finite on constant windows.
	Epsilon = 1e-8
	// amin is the power floor before taking logs.
	amin = 1e-10
)

// PowerToDB converts power values in place to decibels relative to their maximum,
// clipping everything more than topDB below the peak. topDB <= 0 disables clipping.
func PowerToDB(x []float64, topDB float64) {
	if len(x) == 0 {
		return
	}
	ref := math.Max(amin, floats.Max(x))
	refDB := 10 * math.Log10(ref)
	for i, v := range x {
		x[i] = 10*math.Log10(math.Max(amin, v)) - refDB
	}
	if topDB > 0 {
		floor := floats.Max(x) - topDB
		for i, v := range x {
			if v < floor {
				x[i] = floor
			}
		}
	}
}

// ZScore subtracts the mean and divides by (population stddev + Epsilon), in place.
func ZScore(x []float64) {
	if len(x) == 0 {
		return
	}
	mean, std := stat.PopMeanStdDev(x, nil)
	floats.AddConst(-mean, x)
	floats.Scale(1/(std+Epsilon), x)
}

// NormalizeWindow applies the per-window transform the classifier was trained on:
// log-power relative to the window peak, then z-scoring.
func NormalizeWindow(power []float64, topDB float64) {
	PowerToDB(power, topDB)
	ZScore(power)
}
