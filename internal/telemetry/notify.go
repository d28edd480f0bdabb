package telemetry

import (
	"context"
	"time"
)

type Kind string

const (
	KindHarshBraking      Kind = "harsh_braking"
	KindRapidAcceleration Kind = "rapid_acceleration"
	KindOverspeedStarted  Kind = "overspeed_started"
	KindOverspeedOngoing  Kind = "overspeed_ongoing"
	KindSpeedNormalized   Kind = "speed_normalized"
	KindTrackingPaused    Kind = "tracking_paused"
)

type Notification struct {
	Kind  Kind      `json:"kind"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	At    time.Time `json:"at"`
}

// Notifier delivers notifications to the driver. Delivery is best effort;
// errors are logged by the analyzer and otherwise ignored.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

var messages = map[Kind][2]string{
	KindHarshBraking:      {"Harsh Braking", "Sudden stop detected!"},
	KindRapidAcceleration: {"Rapid Acceleration", "Incident detected: Rapid acceleration"},
	KindOverspeedStarted:  {"Overspeeding", "You are exceeding the speed limit!"},
	KindOverspeedOngoing:  {"Overspeeding", "You are still exceeding the speed limit!"},
	KindSpeedNormalized:   {"Speed Normalized", "You are back within the speed limit."},
	KindTrackingPaused:    {"Tracking Paused", "No movement detected, your trip was ended automatically."},
}

func newNotification(kind Kind, at time.Time) Notification {
	msg := messages[kind]
	return Notification{Kind: kind, Title: msg[0], Body: msg[1], At: at}
}
