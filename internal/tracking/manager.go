package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/config"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/logging"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/shared/geo"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/telemetry"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/trip"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const submitTimeout = 10 * time.Second

var (
	ErrAlreadyTracking = errors.New("trip already being tracked")
	ErrNotTracking     = errors.New("no trip being tracked")
)

// Submitter scores a finished trip.
type Submitter interface {
	SubmitTrip(ctx context.Context, userID int64, summary trip.Summary) (trip.Result, error)
}

// Broadcaster pushes a payload to every connection of a user.
type Broadcaster interface {
	Broadcast(userID int64, payload []byte)
}

type session struct {
	id       string
	userID   int64
	analyzer *telemetry.Analyzer

	mu         sync.Mutex
	fixCount   int
	distanceKm float64
	lastLat    *float64
	lastLng    *float64

	// device clock minus server clock, fixed by the first timestamped fix
	clockOffset time.Duration
	clockSynced bool
}

// Manager keeps one analyzer per driver with an active trip.
type Manager struct {
	cfg    config.TelemetryConfig
	trips  Submitter
	hub    Broadcaster
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[int64]*session
	closing  bool
	uploads  sync.WaitGroup
}

func NewManager(cfg config.TelemetryConfig, trips Submitter, hub Broadcaster, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		trips:    trips,
		hub:      hub,
		logger:   logging.OrNop(logger),
		now:      time.Now,
		sessions: map[int64]*session{},
	}
}

func (m *Manager) Start(userID int64) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[userID]; ok {
		return Status{}, ErrAlreadyTracking
	}

	s := &session{id: uuid.NewString(), userID: userID}
	s.analyzer = telemetry.NewAnalyzer(m.cfg, m.notifier(s), logging.WithUser(m.logger, userID))
	s.analyzer.OnTripEnd(func(summary trip.Summary) { m.autoStopped(s, summary) })
	if err := s.analyzer.Start(m.now()); err != nil {
		return Status{}, err
	}
	m.sessions[userID] = s

	m.logger.Info("tracking started", zap.Int64("user_id", userID), zap.String("session_id", s.id))
	return s.status(), nil
}

// AddFixes feeds fixes in order. Fixes after an auto-stop are dropped.
func (m *Manager) AddFixes(ctx context.Context, userID int64, fixes []Fix) (FixResult, error) {
	s, ok := m.session(userID)
	if !ok {
		return FixResult{}, ErrNotTracking
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := FixResult{Notifications: []telemetry.Notification{}}
	for _, f := range fixes {
		out, err := s.analyzer.Process(ctx, telemetry.NewSample(f.SpeedMps, m.sampleTime(s, f)))
		if err != nil {
			// lost a race with Stop
			if res.Accepted == 0 {
				return FixResult{}, ErrNotTracking
			}
			break
		}
		res.Accepted++
		s.fixCount++
		s.addDistance(f)
		res.IncidentCount = out.IncidentCount
		res.Notifications = append(res.Notifications, out.Notifications...)
		if out.AutoStopped {
			res.AutoStopped = true
			res.Summary = out.Summary
			break
		}
	}
	return res, nil
}

// Stop ends the trip and scores it before returning.
func (m *Manager) Stop(ctx context.Context, userID int64) (trip.Result, error) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()
	if !ok {
		return trip.Result{}, ErrNotTracking
	}

	s.mu.Lock()
	summary, err := s.analyzer.Stop(m.now())
	s.mu.Unlock()
	if err != nil {
		return trip.Result{}, ErrNotTracking
	}

	m.logger.Info("tracking stopped", zap.Int64("user_id", userID), zap.String("session_id", s.id))
	return m.trips.SubmitTrip(ctx, userID, summary)
}

func (m *Manager) Status(userID int64) Status {
	s, ok := m.session(userID)
	if !ok {
		return Status{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status()
}

// Wait blocks until auto-stopped trips have been submitted. Trips that
// auto-stop after Wait is called are submitted before AddFixes returns.
func (m *Manager) Wait() {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()
	m.uploads.Wait()
}

func (m *Manager) session(userID int64) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

func (m *Manager) autoStopped(s *session, summary trip.Summary) {
	m.mu.Lock()
	if m.sessions[s.userID] == s {
		delete(m.sessions, s.userID)
	}
	closing := m.closing
	if !closing {
		m.uploads.Add(1)
	}
	m.mu.Unlock()

	log := m.logger.With(zap.Int64("user_id", s.userID), zap.String("session_id", s.id))
	log.Info("tracking auto-stopped")

	if closing {
		m.upload(s, summary, log)
		return
	}
	go func() {
		defer m.uploads.Done()
		m.upload(s, summary, log)
	}()
}

func (m *Manager) upload(s *session, summary trip.Summary, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("auto-stopped trip upload panicked", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	result, err := m.trips.SubmitTrip(ctx, s.userID, summary)
	if err != nil {
		log.Error("auto-stopped trip not scored", zap.Error(err))
		return
	}
	m.push(s, Message{Type: messageTripScored, SessionID: s.id, Result: &result})
}

func (m *Manager) notifier(s *session) telemetry.Notifier {
	return telemetry.NotifierFunc(func(_ context.Context, n telemetry.Notification) error {
		return m.push(s, Message{Type: messageNotification, SessionID: s.id, Notification: &n})
	})
}

func (m *Manager) push(s *session, msg Message) error {
	if m.hub == nil {
		return nil
	}
	msg.SentAt = m.now().UTC()
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	m.hub.Broadcast(s.userID, payload)
	return nil
}

// sampleTime places a fix on the server clock the trip started on. Device
// timestamps keep their spacing but are shifted by the offset seen on the
// session's first timestamped fix. Callers hold s.mu.
func (m *Manager) sampleTime(s *session, f Fix) time.Time {
	now := m.now()
	if f.Timestamp <= 0 {
		return now
	}
	device := time.UnixMilli(f.Timestamp)
	if !s.clockSynced {
		s.clockOffset = device.Sub(now)
		s.clockSynced = true
	}
	return device.Add(-s.clockOffset)
}

func (s *session) addDistance(f Fix) {
	if f.Latitude == nil || f.Longitude == nil {
		return
	}
	if s.lastLat != nil && s.lastLng != nil {
		s.distanceKm += geo.HaversineKm(*s.lastLat, *s.lastLng, *f.Latitude, *f.Longitude)
	}
	s.lastLat, s.lastLng = f.Latitude, f.Longitude
}

func (s *session) status() Status {
	st := Status{Active: true, SessionID: s.id, FixCount: s.fixCount, DistanceKm: s.distanceKm}
	if snap, ok := s.analyzer.Snapshot(); ok {
		st.Trip = &snap
	}
	return st
}
