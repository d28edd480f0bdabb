package telemetry

import (
	"math"
	"time"
)

const mpsToKmh = 3.6

// Sample is one speed reading. It only lives long enough to be folded into
// the active session.
type Sample struct {
	SpeedKmh int       `json:"speedKmh"`
	At       time.Time `json:"at"`
}

// SpeedKmh converts a raw sensor speed to whole km/h. Noise (NaN, Inf,
// negative) reads as standing still.
func SpeedKmh(speedMps float64) int {
	if math.IsNaN(speedMps) || math.IsInf(speedMps, 0) || speedMps < 0 {
		return 0
	}
	kmh := math.Round(speedMps * mpsToKmh)
	if kmh > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(kmh)
}

func NewSample(speedMps float64, at time.Time) Sample {
	return Sample{SpeedKmh: SpeedKmh(speedMps), At: at}
}
