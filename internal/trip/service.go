package trip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/db"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/logging"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 50

// EventPublisher receives a TripScored event after the score update commits.
type EventPublisher interface {
	PublishTripScored(ctx context.Context, event TripScored) error
}

// Invalidator drops derived data that a new score makes stale.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Service struct {
	db      db.Querier
	events  EventPublisher
	ranking Invalidator
	logger  *zap.Logger
}

func NewService(db db.Querier, events EventPublisher, ranking Invalidator, logger *zap.Logger) *Service {
	return &Service{db: db, events: events, ranking: ranking, logger: logging.OrNop(logger)}
}

// SubmitTrip scores a trip and folds it into the user's cumulative score. The
// score row is locked for the whole read-modify-write, and the score update
// and trip insert commit together or not at all.
func (s *Service) SubmitTrip(ctx context.Context, userID int64, summary Summary) (Result, error) {
	if err := Validate(summary, userID); err != nil {
		return Result{}, err
	}
	tripScore := Score(summary)
	if s.db == nil {
		return Result{}, fmt.Errorf("%w: no database", ErrStorage)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: begin: %w", ErrStorage, err)
	}

	result, err := s.applyTrip(ctx, tx, userID, summary, tripScore)
	if err != nil {
		_ = tx.Rollback(ctx)
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("%w: commit: %w", ErrStorage, err)
	}

	s.logger.Info("trip scored",
		zap.Int64("user_id", userID),
		zap.Int64("trip_id", result.Trip.ID),
		zap.Int("trip_score", tripScore),
		zap.Int("score", result.Score),
		zap.Int("trip_count", result.TripCount),
	)
	if s.ranking != nil {
		if err := s.ranking.Invalidate(ctx); err != nil {
			s.logger.Warn("ranking cache not invalidated", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	s.publish(ctx, result)
	return result, nil
}

func (s *Service) applyTrip(ctx context.Context, tx pgx.Tx, userID int64, summary Summary, tripScore int) (Result, error) {
	var score, tripCount pgtype.Int4
	err := tx.QueryRow(ctx, `
		SELECT score, trip_count
		FROM user_scores WHERE user_id=$1
		FOR UPDATE
	`, userID).Scan(&score, &tripCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return Result{}, ErrUserNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: read user score: %w", ErrStorage, err)
	}

	current, count := s.baseline(userID, score, tripCount)
	updated := NextScore(current, count, tripScore)

	_, err = tx.Exec(ctx, `
		UPDATE user_scores
		SET score=$2, trip_count=$3
		WHERE user_id=$1
	`, userID, updated, count+1)
	if err != nil {
		return Result{}, fmt.Errorf("%w: update user score: %w", ErrStorage, err)
	}

	record := Record{UserID: userID, TripScore: tripScore, Summary: summary}
	err = tx.QueryRow(ctx, `
		INSERT INTO trips (user_id, trip_score, trip_duration, incident_count, average_speed, max_speed)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at
	`, userID, tripScore, summary.TripDurationMinutes, summary.IncidentCount, summary.AverageSpeedKmh, summary.MaxSpeedKmh).
		Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return Result{}, fmt.Errorf("%w: insert trip: %w", ErrStorage, err)
	}

	return Result{Score: updated, TripCount: count + 1, Trip: record}, nil
}

// baseline recovers from a corrupted row instead of failing: a missing
// trip_count makes the weighting basis untrustworthy, so any prior score is
// discarded with it. A missing score alone is a user who was never scored.
func (s *Service) baseline(userID int64, score, tripCount pgtype.Int4) (current, count int) {
	if !tripCount.Valid || tripCount.Int32 < 0 {
		if score.Valid {
			s.logger.Warn("trip_count missing, resetting cumulative score",
				zap.Int64("user_id", userID),
				zap.Int32("discarded_score", score.Int32),
			)
		}
		return 0, 0
	}
	if !score.Valid {
		return 0, int(tripCount.Int32)
	}
	return int(score.Int32), int(tripCount.Int32)
}

func (s *Service) publish(ctx context.Context, result Result) {
	if s.events == nil {
		return
	}
	event := TripScored{
		EventID:    uuid.NewString(),
		UserID:     result.Trip.UserID,
		TripID:     result.Trip.ID,
		TripScore:  result.Trip.TripScore,
		Score:      result.Score,
		TripCount:  result.TripCount,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.events.PublishTripScored(ctx, event); err != nil {
		s.logger.Error("failed to publish trip scored event",
			zap.Error(err),
			zap.Int64("user_id", event.UserID),
			zap.Int64("trip_id", event.TripID),
		)
	}
}

// Trips lists a user's trips, newest first.
func (s *Service) Trips(ctx context.Context, userID int64, limit int) ([]Record, error) {
	if userID <= 0 {
		return nil, ErrInvalidParameters
	}
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	if s.db == nil {
		return nil, fmt.Errorf("%w: no database", ErrStorage)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, trip_score, trip_duration, incident_count, average_speed, max_speed, created_at
		FROM trips WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list trips: %w", ErrStorage, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.UserID, &r.TripScore, &r.TripDurationMinutes, &r.IncidentCount, &r.AverageSpeedKmh, &r.MaxSpeedKmh, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan trip: %w", ErrStorage, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list trips: %w", ErrStorage, err)
	}
	return records, nil
}
