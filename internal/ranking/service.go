package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/db"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/logging"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const boundsKey = "ranking:bounds"

const (
	MessageComputed  = "comparativeScore computed"
	MessageNoSpread  = "No other scores to compare to"
	fullScore        = 100.0
	defaultBoundsTTL = 30 * time.Second
)

var (
	ErrInvalidUserID          = errors.New("invalid user id")
	ErrUserNotFound           = errors.New("user not found")
	ErrInsufficientPopulation = errors.New("population scores unavailable")
	ErrStorage                = errors.New("storage failure")
)

type Result struct {
	ComparativeScore float64 `json:"comparativeScore"`
	Message          string  `json:"-"`
}

// Bounds are the lowest and highest score among scored users.
type Bounds struct {
	Min int `redis:"min"`
	Max int `redis:"max"`
}

type Service struct {
	db     db.Querier
	redis  *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

// NewService builds a ranker. A nil redis client disables the bounds cache.
func NewService(db db.Querier, redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = defaultBoundsTTL
	}
	return &Service{db: db, redis: redisClient, ttl: ttl, logger: logging.OrNop(logger)}
}

// Compare places the user's score on a 0-100 scale between the population's
// lowest and highest score.
func (s *Service) Compare(ctx context.Context, userID int64) (Result, error) {
	if userID <= 0 {
		return Result{}, ErrInvalidUserID
	}

	var score pgtype.Int4
	err := s.db.QueryRow(ctx, `SELECT score FROM user_scores WHERE user_id=$1`, userID).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return Result{}, ErrUserNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: read user score: %w", ErrStorage, err)
	}
	if !score.Valid {
		return Result{}, ErrInsufficientPopulation
	}

	bounds, err := s.Bounds(ctx)
	if err != nil {
		return Result{}, err
	}
	if u := int(score.Int32); u < bounds.Min || u > bounds.Max {
		// cached bounds predate this score
		if bounds, err = s.refresh(ctx); err != nil {
			return Result{}, err
		}
	}
	if bounds.Max == bounds.Min {
		return Result{ComparativeScore: fullScore, Message: MessageNoSpread}, nil
	}
	return Result{
		ComparativeScore: percentile(int(score.Int32), bounds),
		Message:          MessageComputed,
	}, nil
}

// Bounds returns the population bounds, from cache when possible. Concurrent
// misses share one query.
func (s *Service) Bounds(ctx context.Context) (Bounds, error) {
	if b, ok := s.cachedBounds(ctx); ok {
		return b, nil
	}
	return s.refresh(ctx)
}

// refresh reads the bounds from the database and caches them. The shared load
// is detached from the caller's cancellation so one aborted request cannot fail
// the others waiting on it.
func (s *Service) refresh(ctx context.Context) (Bounds, error) {
	v, err, _ := s.group.Do(boundsKey, func() (interface{}, error) {
		loadCtx := context.WithoutCancel(ctx)
		b, err := s.loadBounds(loadCtx)
		if err != nil {
			return Bounds{}, err
		}
		s.storeBounds(loadCtx, b)
		return b, nil
	})
	if err != nil {
		return Bounds{}, err
	}
	return v.(Bounds), nil
}

// Invalidate drops the cached bounds so the next read hits the database.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, boundsKey).Err()
}

func (s *Service) loadBounds(ctx context.Context) (Bounds, error) {
	var lo, hi pgtype.Int4
	err := s.db.QueryRow(ctx, `
		SELECT MIN(score), MAX(score)
		FROM user_scores WHERE score IS NOT NULL
	`).Scan(&lo, &hi)
	if err != nil {
		return Bounds{}, fmt.Errorf("%w: read score bounds: %w", ErrStorage, err)
	}
	if !lo.Valid || !hi.Valid {
		return Bounds{}, ErrInsufficientPopulation
	}
	return Bounds{Min: int(lo.Int32), Max: int(hi.Int32)}, nil
}

func (s *Service) cachedBounds(ctx context.Context) (Bounds, bool) {
	if s.redis == nil {
		return Bounds{}, false
	}
	res := s.redis.HGetAll(ctx, boundsKey)
	if err := res.Err(); err != nil {
		s.logger.Warn("ranking cache read failed", zap.Error(err))
		return Bounds{}, false
	}
	if len(res.Val()) == 0 {
		return Bounds{}, false
	}
	var b Bounds
	if err := res.Scan(&b); err != nil {
		s.logger.Warn("ranking cache entry unreadable", zap.Error(err))
		return Bounds{}, false
	}
	return b, true
}

func (s *Service) storeBounds(ctx context.Context, b Bounds) {
	if s.redis == nil {
		return
	}
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, boundsKey, "min", b.Min, "max", b.Max)
		pipe.Expire(ctx, boundsKey, s.ttl)
		return nil
	})
	if err != nil {
		s.logger.Warn("ranking cache write failed", zap.Error(err))
	}
}

// percentile is clamped because bounds read just before a concurrent update
// may lag it.
func percentile(score int, b Bounds) float64 {
	p := float64(score-b.Min) / float64(b.Max-b.Min) * 100
	p = math.Max(0, math.Min(fullScore, p))
	return math.Round(p*100) / 100
}
