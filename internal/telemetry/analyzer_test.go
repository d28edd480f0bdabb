package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/config"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/trip"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return r.err
}

func (r *recordingNotifier) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n.Kind)
	}
	return out
}

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func defaultCfg() config.TelemetryConfig {
	return config.TelemetryConfig{
		MaxAllowedSpeedKmh:    110,
		OverspeedRecredit:     10 * time.Minute,
		IdleTimeout:           15 * time.Minute,
		IdleSpeedKmh:          2,
		SpeedFloorKmh:         5,
		HarshBrakingMps2:      3,
		RapidAccelerationMps2: 3,
	}
}

func startedAnalyzer(t *testing.T, notifier Notifier) *Analyzer {
	t.Helper()
	a := NewAnalyzer(defaultCfg(), notifier, nil)
	require.NoError(t, a.Start(t0))
	return a
}

func feed(t *testing.T, a *Analyzer, kmh int, offset time.Duration) Outcome {
	t.Helper()
	out, err := a.Process(context.Background(), Sample{SpeedKmh: kmh, At: t0.Add(offset)})
	require.NoError(t, err)
	return out
}

func TestConstantSpeedConverges(t *testing.T) {
	a := startedAnalyzer(t, nil)
	for i := 0; i < 200; i++ {
		feed(t, a, 57, time.Duration(i)*time.Second)
	}
	snap, ok := a.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 57.0, snap.AverageSpeedKmh)
	assert.Equal(t, 57, snap.MaxSpeedKmh)
	assert.Equal(t, 200, snap.SampleCount)
	assert.Zero(t, snap.IncidentCount)
}

func TestZeroSamplesAreNotAveraged(t *testing.T) {
	a := startedAnalyzer(t, nil)
	feed(t, a, 40, 0)
	feed(t, a, 40, 20*time.Second)
	feed(t, a, 0, 40*time.Second)
	feed(t, a, 0, 60*time.Second)
	feed(t, a, 10, 80*time.Second)

	snap, _ := a.Snapshot()
	assert.Equal(t, 3, snap.SampleCount)
	assert.Equal(t, 30.0, snap.AverageSpeedKmh)
	assert.Equal(t, 40, snap.MaxSpeedKmh)
}

func TestHarshBrakingFiresOnce(t *testing.T) {
	n := &recordingNotifier{}
	a := startedAnalyzer(t, n)

	out := feed(t, a, 100, 0)
	assert.Empty(t, out.Notifications)

	out = feed(t, a, 80, time.Second)
	require.Len(t, out.Notifications, 1)
	assert.Equal(t, KindHarshBraking, out.Notifications[0].Kind)
	assert.Equal(t, "Harsh Braking", out.Notifications[0].Title)
	assert.Equal(t, "Sudden stop detected!", out.Notifications[0].Body)
	assert.Equal(t, 1, out.IncidentCount)

	out = feed(t, a, 80, 2*time.Second)
	assert.Empty(t, out.Notifications)
	assert.Equal(t, 1, out.IncidentCount)

	assert.Equal(t, []Kind{KindHarshBraking}, n.kinds())
}

func TestRapidAcceleration(t *testing.T) {
	a := startedAnalyzer(t, nil)
	feed(t, a, 0, 0)
	out := feed(t, a, 20, time.Second)
	require.Len(t, out.Notifications, 1)
	assert.Equal(t, KindRapidAcceleration, out.Notifications[0].Kind)
	assert.Equal(t, 1, out.IncidentCount)

	// 20 km/h over 10s is 0.56 m/s^2
	out = feed(t, a, 40, 11*time.Second)
	assert.Empty(t, out.Notifications)
}

func TestAccelerationBelowThreshold(t *testing.T) {
	// 10 km/h in 1s is about 2.78 m/s^2
	a := startedAnalyzer(t, nil)
	feed(t, a, 0, 0)
	out := feed(t, a, 10, time.Second)
	assert.Empty(t, out.Notifications)
	out = feed(t, a, 0, 2*time.Second)
	assert.Empty(t, out.Notifications)
}

func TestNonPositiveDeltaSkipsAcceleration(t *testing.T) {
	a := startedAnalyzer(t, nil)
	feed(t, a, 100, 10*time.Second)

	out := feed(t, a, 20, 10*time.Second)
	assert.Empty(t, out.Notifications)

	out = feed(t, a, 90, 5*time.Second)
	assert.Empty(t, out.Notifications)
	assert.Zero(t, out.IncidentCount)

	snap, _ := a.Snapshot()
	assert.Equal(t, 100, snap.MaxSpeedKmh)
	assert.Equal(t, 3, snap.SampleCount)
}

func TestSustainedOverspeedRecredits(t *testing.T) {
	n := &recordingNotifier{}
	a := startedAnalyzer(t, n)

	feed(t, a, 120, 0) // seeds only
	out := feed(t, a, 120, time.Second)
	assert.Equal(t, 1, out.IncidentCount)

	out = feed(t, a, 121, 5*time.Minute)
	assert.Empty(t, out.Notifications)
	assert.Equal(t, 1, out.IncidentCount)

	out = feed(t, a, 122, 10*time.Minute+time.Second)
	assert.Equal(t, 2, out.IncidentCount)

	out = feed(t, a, 122, 20*time.Minute)
	assert.Equal(t, 2, out.IncidentCount)

	out = feed(t, a, 120, 20*time.Minute+time.Second)
	assert.Equal(t, 3, out.IncidentCount)

	out = feed(t, a, 110, 20*time.Minute+time.Minute)
	assert.Equal(t, 3, out.IncidentCount)

	assert.Equal(t, []Kind{
		KindOverspeedStarted,
		KindOverspeedOngoing,
		KindOverspeedOngoing,
		KindSpeedNormalized,
	}, n.kinds())

	// a new window after normalizing credits immediately
	out = feed(t, a, 115, 22*time.Minute)
	assert.Equal(t, 4, out.IncidentCount)
}

func TestIdleAutoStopFiresOnce(t *testing.T) {
	n := &recordingNotifier{}
	a := startedAnalyzer(t, n)

	var ended []trip.Summary
	a.OnTripEnd(func(s trip.Summary) { ended = append(ended, s) })

	feed(t, a, 30, 0)
	feed(t, a, 30, time.Minute)
	feed(t, a, 0, 2*time.Minute)
	out := feed(t, a, 1, 10*time.Minute)
	assert.False(t, out.AutoStopped)

	out = feed(t, a, 0, 16*time.Minute)
	require.True(t, out.AutoStopped)
	require.NotNil(t, out.Summary)
	assert.Equal(t, trip.Summary{TripDurationMinutes: 16, IncidentCount: 0, AverageSpeedKmh: 20, MaxSpeedKmh: 30}, *out.Summary)
	assert.False(t, a.Active())

	require.Len(t, ended, 1)
	assert.Equal(t, *out.Summary, ended[0])
	assert.Contains(t, n.kinds(), KindTrackingPaused)

	_, err := a.Process(context.Background(), Sample{SpeedKmh: 0, At: t0.Add(17 * time.Minute)})
	assert.ErrorIs(t, err, ErrNotActive)
	require.Len(t, ended, 1)
}

func TestMovementResetsIdleTimer(t *testing.T) {
	a := startedAnalyzer(t, nil)
	feed(t, a, 0, 0)
	feed(t, a, 50, 10*time.Minute)
	out := feed(t, a, 0, 20*time.Minute)
	assert.False(t, out.AutoStopped)
	out = feed(t, a, 0, 25*time.Minute)
	assert.True(t, out.AutoStopped)
}

func TestIdleFromStartWithoutSamplesMoving(t *testing.T) {
	a := startedAnalyzer(t, nil)
	out := feed(t, a, 0, 15*time.Minute)
	require.True(t, out.AutoStopped)
	assert.Equal(t, trip.Summary{TripDurationMinutes: 15, IncidentCount: 0, AverageSpeedKmh: 1, MaxSpeedKmh: 1}, *out.Summary)
}

func TestStopFinalizesWithClamps(t *testing.T) {
	a := startedAnalyzer(t, nil)
	feed(t, a, 4, 0)
	feed(t, a, 3, 5*time.Second)

	summary, err := a.Stop(t0.Add(20 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, trip.Summary{TripDurationMinutes: 1, IncidentCount: 0, AverageSpeedKmh: 1, MaxSpeedKmh: 1}, summary)
	assert.NoError(t, trip.Validate(summary, 1))
	assert.False(t, a.Active())

	_, err = a.Stop(t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestStopRoundsAverageAndDuration(t *testing.T) {
	a := startedAnalyzer(t, nil)
	feed(t, a, 50, 0)
	feed(t, a, 51, 30*time.Second)

	summary, err := a.Stop(t0.Add(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TripDurationMinutes)
	assert.Equal(t, 51, summary.AverageSpeedKmh)
	assert.Equal(t, 51, summary.MaxSpeedKmh)
}

func TestStartWhileActive(t *testing.T) {
	a := startedAnalyzer(t, nil)
	feed(t, a, 40, 0)
	assert.ErrorIs(t, a.Start(t0.Add(time.Minute)), ErrAlreadyActive)

	snap, _ := a.Snapshot()
	assert.Equal(t, t0, snap.StartedAt)
	assert.Equal(t, 1, snap.SampleCount)
}

func TestProcessWhileIdle(t *testing.T) {
	a := NewAnalyzer(config.TelemetryConfig{}, nil, nil)
	_, err := a.Process(context.Background(), Sample{SpeedKmh: 10, At: t0})
	assert.ErrorIs(t, err, ErrNotActive)
	_, ok := a.Snapshot()
	assert.False(t, ok)
}

func TestNotifierFailureDoesNotAffectStatistics(t *testing.T) {
	n := &recordingNotifier{err: errors.New("push unavailable")}
	a := startedAnalyzer(t, n)

	feed(t, a, 100, 0)
	out := feed(t, a, 60, time.Second)
	assert.Equal(t, 1, out.IncidentCount)
	assert.Len(t, n.kinds(), 1)

	snap, _ := a.Snapshot()
	assert.Equal(t, 80.0, snap.AverageSpeedKmh)
}

func TestNoisySamplesNeverFail(t *testing.T) {
	a := startedAnalyzer(t, nil)
	for i, mps := range []float64{10, -1, 11, 12} {
		_, err := a.Process(context.Background(), NewSample(mps, t0.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	out, err := a.Process(context.Background(), Sample{SpeedKmh: -7, At: t0.Add(5 * time.Minute)})
	require.NoError(t, err)
	assert.Zero(t, out.IncidentCount)

	snap, _ := a.Snapshot()
	assert.Equal(t, 43, snap.MaxSpeedKmh)
}

func TestDefaultsFillZeroConfig(t *testing.T) {
	a := NewAnalyzer(config.TelemetryConfig{}, nil, nil)
	assert.Equal(t, defaultCfg(), a.cfg)
}
