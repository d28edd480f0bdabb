package telemetry

import (
	"math"
	"time"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/config"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/trip"
)

// activeSession holds everything derived from the samples of one trip. A nil
// *activeSession on the Analyzer is the idle state.
type activeSession struct {
	startedAt      time.Time
	sampleCount    int
	runningAverage float64
	maxSpeed       int
	incidentCount  int
	previous       *Sample
	overspeed      *overspeedWindow
	idle           idleWindow
}

type overspeedWindow struct {
	startedAt      time.Time
	lastCreditedAt time.Time
}

type idleWindow struct {
	lastMovementAt time.Time
	autoStopFired  bool
}

func newSession(at time.Time) *activeSession {
	return &activeSession{
		startedAt: at,
		idle:      idleWindow{lastMovementAt: at},
	}
}

// fold updates the running statistics. Zero readings are not part of the average.
func (s *activeSession) fold(sample Sample) {
	if sample.SpeedKmh == 0 {
		return
	}
	s.sampleCount++
	s.runningAverage = (s.runningAverage*float64(s.sampleCount-1) + float64(sample.SpeedKmh)) / float64(s.sampleCount)
	if sample.SpeedKmh > s.maxSpeed {
		s.maxSpeed = sample.SpeedKmh
	}
}

func (s *activeSession) detectIncidents(sample Sample, cfg config.TelemetryConfig) []Notification {
	if s.previous == nil {
		s.previous = &Sample{SpeedKmh: sample.SpeedKmh, At: sample.At}
		return nil
	}

	var out []Notification
	deltaSeconds := sample.At.Sub(s.previous.At).Seconds()
	if deltaSeconds > 0 {
		acceleration := (float64(sample.SpeedKmh-s.previous.SpeedKmh) / mpsToKmh) / deltaSeconds
		if acceleration < -cfg.HarshBrakingMps2 {
			s.incidentCount++
			out = append(out, newNotification(KindHarshBraking, sample.At))
		}
		if acceleration > cfg.RapidAccelerationMps2 {
			s.incidentCount++
			out = append(out, newNotification(KindRapidAcceleration, sample.At))
		}
	}

	if sample.SpeedKmh > cfg.MaxAllowedSpeedKmh {
		switch {
		case s.overspeed == nil:
			s.overspeed = &overspeedWindow{startedAt: sample.At, lastCreditedAt: sample.At}
			s.incidentCount++
			out = append(out, newNotification(KindOverspeedStarted, sample.At))
		case sample.At.Sub(s.overspeed.lastCreditedAt) >= cfg.OverspeedRecredit:
			s.overspeed.lastCreditedAt = sample.At
			s.incidentCount++
			out = append(out, newNotification(KindOverspeedOngoing, sample.At))
		}
	} else if s.overspeed != nil {
		s.overspeed = nil
		out = append(out, newNotification(KindSpeedNormalized, sample.At))
	}

	s.previous = &Sample{SpeedKmh: sample.SpeedKmh, At: sample.At}
	return out
}

// checkIdle reports whether this sample ends the current idle period by
// timing out. It fires at most once per idle period.
func (s *activeSession) checkIdle(sample Sample, cfg config.TelemetryConfig) bool {
	if sample.SpeedKmh > cfg.IdleSpeedKmh {
		s.idle = idleWindow{lastMovementAt: sample.At}
		return false
	}
	if s.idle.autoStopFired || sample.At.Sub(s.idle.lastMovementAt) < cfg.IdleTimeout {
		return false
	}
	s.idle.autoStopFired = true
	return true
}

func (s *activeSession) summary(at time.Time, speedFloorKmh int) trip.Summary {
	minutes := int(math.Round(at.Sub(s.startedAt).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return trip.Summary{
		TripDurationMinutes: minutes,
		IncidentCount:       s.incidentCount,
		AverageSpeedKmh:     floorSpeed(int(math.Round(s.runningAverage)), speedFloorKmh),
		MaxSpeedKmh:         floorSpeed(s.maxSpeed, speedFloorKmh),
	}
}

func floorSpeed(kmh, floor int) int {
	if kmh <= floor {
		return 1
	}
	return kmh
}
