package trip

import "math"

const MaxScore = 255

const (
	durationCeilingMinutes = 180
	incidentCeiling        = 10
	averageSpeedCeilingKmh = 60
	maxSpeedCeilingKmh     = 100

	durationWeight     = 0.25
	incidentWeight     = 0.35
	averageSpeedWeight = 0.25
	maxSpeedWeight     = 0.15
)

// Score maps a trip to [0,255]; higher is safer.
func Score(s Summary) int {
	// Each product is converted explicitly so it is rounded on its own and
	// never fused into a multiply-add.
	risk := float64(normalize(s.TripDurationMinutes, durationCeilingMinutes)*durationWeight) +
		float64(normalize(s.IncidentCount, incidentCeiling)*incidentWeight) +
		float64(normalize(s.AverageSpeedKmh, averageSpeedCeilingKmh)*averageSpeedWeight) +
		float64(normalize(s.MaxSpeedKmh, maxSpeedCeilingKmh)*maxSpeedWeight)

	return clampScore(MaxScore - int(math.Round(risk*MaxScore)))
}

// NextScore folds tripScore into a running mean over tripCount earlier trips.
func NextScore(current, tripCount, tripScore int) int {
	total := float64(current*tripCount + tripScore)
	return clampScore(int(math.Round(total / float64(tripCount+1))))
}

func normalize(value, ceiling int) float64 {
	return math.Min(float64(value)/float64(ceiling), 1)
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
