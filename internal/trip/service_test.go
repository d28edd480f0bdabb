package trip

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []TripScored
	err    error
}

func (p *recordingPublisher) PublishTripScored(_ context.Context, event TripScored) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func expectSubmit(mock pgxmock.PgxPoolIface, userID int64, score, tripCount any, updated, count int, summary Summary, tripScore int) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT score, trip_count\s+FROM user_scores`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"score", "trip_count"}).AddRow(score, tripCount))
	mock.ExpectExec(`UPDATE user_scores`).
		WithArgs(userID, updated, count).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO trips`).
		WithArgs(userID, tripScore, summary.TripDurationMinutes, summary.IncidentCount, summary.AverageSpeedKmh, summary.MaxSpeedKmh).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), time.Now()))
	mock.ExpectCommit()
}

func TestSubmitTripFirstAndSecondTrip(t *testing.T) {
	mock := newMock(t)
	pub := &recordingPublisher{}
	svc := NewService(mock, pub, nil, nil)

	first := Summary{TripDurationMinutes: 60, IncidentCount: 4, AverageSpeedKmh: 50, MaxSpeedKmh: 80}
	second := Summary{TripDurationMinutes: 90, IncidentCount: 2, AverageSpeedKmh: 43, MaxSpeedKmh: 55}

	expectSubmit(mock, 1, nil, int64(0), 114, 1, first, 114)
	expectSubmit(mock, 1, int64(114), int64(1), 127, 2, second, 139)

	res, err := svc.SubmitTrip(context.Background(), 1, first)
	require.NoError(t, err)
	assert.Equal(t, 114, res.Score)
	assert.Equal(t, 1, res.TripCount)
	assert.Equal(t, 114, res.Trip.TripScore)
	assert.Equal(t, int64(11), res.Trip.ID)

	res, err = svc.SubmitTrip(context.Background(), 1, second)
	require.NoError(t, err)
	assert.Equal(t, 127, res.Score)
	assert.Equal(t, 2, res.TripCount)

	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, pub.events, 2)
	assert.Equal(t, 127, pub.events[1].Score)
	assert.NotEmpty(t, pub.events[1].EventID)
}

func TestSubmitTripMissingTripCountResetsScore(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, nil, nil)

	summary := Summary{TripDurationMinutes: 60, IncidentCount: 4, AverageSpeedKmh: 50, MaxSpeedKmh: 80}
	// stored score 200 is discarded because trip_count is NULL
	expectSubmit(mock, 3, int64(200), nil, 114, 1, summary, 114)

	res, err := svc.SubmitTrip(context.Background(), 3, summary)
	require.NoError(t, err)
	assert.Equal(t, 114, res.Score)
	assert.Equal(t, 1, res.TripCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitTripMissingScoreKeepsTripCount(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, nil, nil)

	summary := Summary{TripDurationMinutes: 60, IncidentCount: 4, AverageSpeedKmh: 50, MaxSpeedKmh: 80}
	// three earlier trips weigh in at 0: round(114/4) = 29
	expectSubmit(mock, 4, nil, int64(3), 29, 4, summary, 114)

	res, err := svc.SubmitTrip(context.Background(), 4, summary)
	require.NoError(t, err)
	assert.Equal(t, 29, res.Score)
	assert.Equal(t, 4, res.TripCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitTripNegativeTripCountTreatedAsMissing(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, nil, nil)

	summary := Summary{TripDurationMinutes: 90, IncidentCount: 2, AverageSpeedKmh: 43, MaxSpeedKmh: 55}
	expectSubmit(mock, 3, int64(10), int64(-2), 139, 1, summary, 139)

	res, err := svc.SubmitTrip(context.Background(), 3, summary)
	require.NoError(t, err)
	assert.Equal(t, 139, res.Score)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitTripUnknownUser(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, nil, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT score, trip_count`).
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := svc.SubmitTrip(context.Background(), 9, Summary{TripDurationMinutes: 1, AverageSpeedKmh: 10, MaxSpeedKmh: 10})
	assert.ErrorIs(t, err, ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitTripStorageFailureRollsBack(t *testing.T) {
	mock := newMock(t)
	pub := &recordingPublisher{}
	svc := NewService(mock, pub, nil, nil)

	summary := Summary{TripDurationMinutes: 1, AverageSpeedKmh: 10, MaxSpeedKmh: 10}
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT score, trip_count`).
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"score", "trip_count"}).AddRow(int64(100), int64(4)))
	mock.ExpectExec(`UPDATE user_scores`).
		WithArgs(int64(2), pgxmock.AnyArg(), 5).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := svc.SubmitTrip(context.Background(), 2, summary)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Empty(t, pub.events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitTripBeginFailure(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, nil, nil)

	mock.ExpectBegin().WillReturnError(errors.New("pool closed"))

	_, err := svc.SubmitTrip(context.Background(), 2, Summary{TripDurationMinutes: 1, AverageSpeedKmh: 10, MaxSpeedKmh: 10})
	assert.ErrorIs(t, err, ErrStorage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitTripInvalidInputSkipsStorage(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, nil, nil)

	_, err := svc.SubmitTrip(context.Background(), 0, Summary{TripDurationMinutes: 1, AverageSpeedKmh: 10, MaxSpeedKmh: 10})
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = svc.SubmitTrip(context.Background(), 1, Summary{TripDurationMinutes: 1, AverageSpeedKmh: 10, MaxSpeedKmh: 5})
	assert.ErrorIs(t, err, ErrInvalidParameters)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitTripPublishFailureDoesNotFail(t *testing.T) {
	mock := newMock(t)
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewService(mock, pub, nil, nil)

	summary := Summary{TripDurationMinutes: 60, IncidentCount: 4, AverageSpeedKmh: 50, MaxSpeedKmh: 80}
	expectSubmit(mock, 1, nil, int64(0), 114, 1, summary, 114)

	_, err := svc.SubmitTrip(context.Background(), 1, summary)
	require.NoError(t, err)
	assert.Len(t, pub.events, 1)
}

type recordingInvalidator struct {
	calls int
	err   error
}

func (r *recordingInvalidator) Invalidate(context.Context) error {
	r.calls++
	return r.err
}

func TestSubmitTripInvalidatesRankingAfterCommit(t *testing.T) {
	mock := newMock(t)
	inv := &recordingInvalidator{}
	svc := NewService(mock, nil, inv, nil)

	summary := Summary{TripDurationMinutes: 60, IncidentCount: 4, AverageSpeedKmh: 50, MaxSpeedKmh: 80}
	expectSubmit(mock, 1, nil, int64(0), 114, 1, summary, 114)
	_, err := svc.SubmitTrip(context.Background(), 1, summary)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.calls)

	mock.ExpectBegin().WillReturnError(errors.New("pool closed"))
	_, err = svc.SubmitTrip(context.Background(), 1, summary)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, 1, inv.calls, "failed submissions leave the cache alone")

	inv.err = errors.New("redis down")
	expectSubmit(mock, 1, int64(114), int64(1), 114, 2, summary, 114)
	_, err = svc.SubmitTrip(context.Background(), 1, summary)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceWithoutDatabase(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)

	_, err := svc.SubmitTrip(context.Background(), 1, Summary{TripDurationMinutes: 1, AverageSpeedKmh: 10, MaxSpeedKmh: 10})
	assert.ErrorIs(t, err, ErrStorage)

	_, err = svc.Trips(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestTrips(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil, nil, nil)

	now := time.Now()
	mock.ExpectQuery(`SELECT id, user_id, trip_score`).
		WithArgs(int64(1), defaultHistoryLimit).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "trip_score", "trip_duration", "incident_count", "average_speed", "max_speed", "created_at"}).
			AddRow(int64(2), int64(1), 139, 90, 2, 43, 55, now).
			AddRow(int64(1), int64(1), 114, 60, 4, 50, 80, now.Add(-time.Hour)))

	trips, err := svc.Trips(context.Background(), 1, 500)
	require.NoError(t, err)
	require.Len(t, trips, 2)
	assert.Equal(t, 139, trips[0].TripScore)
	assert.Equal(t, 55, trips[0].MaxSpeedKmh)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = svc.Trips(context.Background(), 0, 10)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}
