package tracking

import (
	"time"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/telemetry"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/trip"
)

// Fix is one location report from the device. Timestamp is unix millis; zero
// means "now". Coordinates are optional and only feed the distance total.
type Fix struct {
	SpeedMps  float64  `json:"speed"`
	Timestamp int64    `json:"timestamp"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type Status struct {
	Active     bool                `json:"active"`
	SessionID  string              `json:"sessionID,omitempty"`
	Trip       *telemetry.Snapshot `json:"trip,omitempty"`
	FixCount   int                 `json:"fixCount"`
	DistanceKm float64             `json:"distanceKm"`
}

type FixResult struct {
	Accepted      int                      `json:"accepted"`
	IncidentCount int                      `json:"incidentCount"`
	Notifications []telemetry.Notification `json:"notifications"`
	AutoStopped   bool                     `json:"autoStopped"`
	Summary       *trip.Summary            `json:"summary,omitempty"`
}

// Message is what the driver's websocket receives.
type Message struct {
	Type         string                  `json:"type"`
	SessionID    string                  `json:"sessionID"`
	Notification *telemetry.Notification `json:"notification,omitempty"`
	Result       *trip.Result            `json:"result,omitempty"`
	SentAt       time.Time               `json:"sentAt"`
}

const (
	messageNotification = "notification"
	messageTripScored   = "trip_scored"
)
