package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/db"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/logging"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

var (
	ErrInvalidUserID = errors.New("invalid user id")
	ErrNotFound      = errors.New("user not found")
	ErrStorage       = errors.New("storage failure")
)

// Invalidator is told when a deletion may have moved the population score bounds.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Service struct {
	db      db.Querier
	ranking Invalidator
	logger  *zap.Logger
}

func NewService(db db.Querier, ranking Invalidator, logger *zap.Logger) *Service {
	return &Service{db: db, ranking: ranking, logger: logging.OrNop(logger)}
}

func (s *Service) Details(ctx context.Context, userID int64) (Details, error) {
	if userID <= 0 {
		return Details{}, ErrInvalidUserID
	}

	d := Details{UserID: userID}
	var score, tripCount pgtype.Int4
	err := s.db.QueryRow(ctx, `
		SELECT u.username, s.score, s.trip_count
		FROM users u
		JOIN user_scores s ON s.user_id = u.id
		WHERE u.id=$1
	`, userID).Scan(&d.Username, &score, &tripCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return Details{}, ErrNotFound
	}
	if err != nil {
		return Details{}, fmt.Errorf("%w: read user: %w", ErrStorage, err)
	}
	d.Score = intPtr(score)
	d.TripCount = intPtr(tripCount)
	return d, nil
}

// Delete removes the user with its trips and score row in one transaction.
func (s *Service) Delete(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return ErrInvalidUserID
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrStorage, err)
	}
	for _, stmt := range []string{
		`DELETE FROM trips WHERE user_id=$1`,
		`DELETE FROM user_scores WHERE user_id=$1`,
	} {
		if _, err := tx.Exec(ctx, stmt, userID); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%w: delete user data: %w", ErrStorage, err)
		}
	}
	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id=$1`, userID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("%w: delete user: %w", ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		return ErrNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrStorage, err)
	}

	s.logger.Info("user deleted", zap.Int64("user_id", userID))
	if s.ranking != nil {
		if err := s.ranking.Invalidate(ctx); err != nil {
			s.logger.Warn("ranking cache invalidation failed", zap.Error(err))
		}
	}
	return nil
}

func intPtr(v pgtype.Int4) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int32)
	return &n
}
