package controller

import "math"

// Defaults used for the dashboard gauge scale before any throughput has
// been observed.
const (
	DefaultMaxDownMbps = 250
	DefaultMaxUpMbps   = 50
)

// gaugeSteps are the "nice" upper bounds a gauge can be scaled to.
var gaugeSteps = []float64{
	25, 50, 100, 150, 200, 250, 300, 400, 500,
	750, 1000, 1500, 2000, 2500, 5000, 10000,
}

// gaugeBucket picks the smallest step that covers v, or def when v is
// zero, negative or not finite.
func gaugeBucket(v, def float64) float64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	for _, s := range gaugeSteps {
		if s >= v {
			return s
		}
	}
	return gaugeSteps[len(gaugeSteps)-1]
}
