package trip

import "time"

// Summary is produced once per trip by the telemetry analyzer (or uploaded by
// a client that analyzes on-device).
type Summary struct {
	TripDurationMinutes int `json:"tripDuration"`
	IncidentCount       int `json:"incidentCount"`
	AverageSpeedKmh     int `json:"averageSpeed"`
	MaxSpeedKmh         int `json:"maxSpeed"`
}

type Record struct {
	ID        int64 `json:"tripID"`
	UserID    int64 `json:"userID"`
	TripScore int   `json:"tripScore"`
	Summary
	CreatedAt time.Time `json:"createdAt"`
}

// Result is the user's cumulative state after a trip was folded in.
type Result struct {
	Score     int    `json:"score"`
	TripCount int    `json:"tripCount"`
	Trip      Record `json:"trip"`
}

type TripScored struct {
	EventID    string    `json:"event_id"`
	UserID     int64     `json:"user_id"`
	TripID     int64     `json:"trip_id"`
	TripScore  int       `json:"trip_score"`
	Score      int       `json:"score"`
	TripCount  int       `json:"trip_count"`
	OccurredAt time.Time `json:"occurred_at"`
}
