package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/config"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/logging"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/trip"

	"go.uber.org/zap"
)

var (
	ErrAlreadyActive = errors.New("trip already active")
	ErrNotActive     = errors.New("no active trip")
)

// Outcome describes what a single sample changed.
type Outcome struct {
	Notifications []Notification `json:"notifications"`
	IncidentCount int            `json:"incidentCount"`
	AutoStopped   bool           `json:"autoStopped"`
	Summary       *trip.Summary  `json:"summary,omitempty"`
}

type Snapshot struct {
	StartedAt       time.Time `json:"startedAt"`
	SampleCount     int       `json:"sampleCount"`
	AverageSpeedKmh float64   `json:"averageSpeedKmh"`
	MaxSpeedKmh     int       `json:"maxSpeedKmh"`
	IncidentCount   int       `json:"incidentCount"`
	Overspeeding    bool      `json:"overspeeding"`
	LastMovementAt  time.Time `json:"lastMovementAt"`
}

// Analyzer follows one driver's trip. Calls are serialized; samples must be
// handed in arrival order.
type Analyzer struct {
	mu        sync.Mutex
	cfg       config.TelemetryConfig
	session   *activeSession
	notifier  Notifier
	onTripEnd func(trip.Summary)
	logger    *zap.Logger
}

func NewAnalyzer(cfg config.TelemetryConfig, notifier Notifier, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		cfg:      withDefaults(cfg),
		notifier: notifier,
		logger:   logging.OrNop(logger),
	}
}

// OnTripEnd registers the callback run when idle detection ends a trip. It is
// invoked outside the analyzer lock, after notifications are delivered.
func (a *Analyzer) OnTripEnd(fn func(trip.Summary)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onTripEnd = fn
}

func (a *Analyzer) Start(at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil {
		return ErrAlreadyActive
	}
	a.session = newSession(at)
	return nil
}

func (a *Analyzer) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session != nil
}

func (a *Analyzer) Process(ctx context.Context, sample Sample) (Outcome, error) {
	a.mu.Lock()
	s := a.session
	if s == nil {
		a.mu.Unlock()
		return Outcome{}, ErrNotActive
	}
	if sample.SpeedKmh < 0 {
		sample.SpeedKmh = 0
	}

	s.fold(sample)
	out := Outcome{Notifications: s.detectIncidents(sample, a.cfg)}
	if s.checkIdle(sample, a.cfg) {
		out.Notifications = append(out.Notifications, newNotification(KindTrackingPaused, sample.At))
		summary := s.summary(sample.At, a.cfg.SpeedFloorKmh)
		out.AutoStopped = true
		out.Summary = &summary
		a.session = nil
	}
	out.IncidentCount = s.incidentCount
	onTripEnd := a.onTripEnd
	a.mu.Unlock()

	a.deliver(ctx, out.Notifications)
	if out.AutoStopped {
		a.logger.Info("trip auto-stopped",
			zap.Int("trip_duration", out.Summary.TripDurationMinutes),
			zap.Int("incident_count", out.Summary.IncidentCount),
		)
		if onTripEnd != nil {
			onTripEnd(*out.Summary)
		}
	}
	return out, nil
}

// Stop finalizes the active trip and returns to idle.
func (a *Analyzer) Stop(at time.Time) (trip.Summary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return trip.Summary{}, ErrNotActive
	}
	summary := a.session.summary(at, a.cfg.SpeedFloorKmh)
	a.session = nil
	return summary, nil
}

func (a *Analyzer) Snapshot() (Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.session
	if s == nil {
		return Snapshot{}, false
	}
	return Snapshot{
		StartedAt:       s.startedAt,
		SampleCount:     s.sampleCount,
		AverageSpeedKmh: s.runningAverage,
		MaxSpeedKmh:     s.maxSpeed,
		IncidentCount:   s.incidentCount,
		Overspeeding:    s.overspeed != nil,
		LastMovementAt:  s.idle.lastMovementAt,
	}, true
}

func (a *Analyzer) deliver(ctx context.Context, notes []Notification) {
	if a.notifier == nil {
		return
	}
	for _, n := range notes {
		if err := a.notifier.Notify(ctx, n); err != nil {
			a.logger.Warn("notification delivery failed", zap.String("kind", string(n.Kind)), zap.Error(err))
		}
	}
}

func withDefaults(cfg config.TelemetryConfig) config.TelemetryConfig {
	if cfg.MaxAllowedSpeedKmh <= 0 {
		cfg.MaxAllowedSpeedKmh = 110
	}
	if cfg.OverspeedRecredit <= 0 {
		cfg.OverspeedRecredit = 10 * time.Minute
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 15 * time.Minute
	}
	if cfg.IdleSpeedKmh <= 0 {
		cfg.IdleSpeedKmh = 2
	}
	if cfg.SpeedFloorKmh <= 0 {
		cfg.SpeedFloorKmh = 5
	}
	if cfg.HarshBrakingMps2 <= 0 {
		cfg.HarshBrakingMps2 = 3
	}
	if cfg.RapidAccelerationMps2 <= 0 {
		cfg.RapidAccelerationMps2 = 3
	}
	return cfg
}
