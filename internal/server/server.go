package server

import (
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/auth"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/config"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/db"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/logging"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/ranking"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/shared/httpx"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/stream"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/tracking"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/trip"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/user"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the external resources the server runs on. Any of them may be nil.
type Deps struct {
	DB     db.Querier
	Redis  *redis.Client
	Events trip.EventPublisher
	Logger *zap.Logger
}

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	Stream   *stream.Hub
	Trips    *trip.Service
	Ranking  *ranking.Service
	Tracking *tracking.Manager

	deps Deps
}

func NewServer(cfg config.Config, deps Deps) *Server {
	deps.Logger = logging.OrNop(deps.Logger)

	app := fiber.New(fiber.Config{
		ErrorHandler: httpx.ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))

	hub := stream.NewHub(deps.Redis, deps.Logger)
	ranker := ranking.NewService(deps.DB, deps.Redis, cfg.RankingCacheTTL, deps.Logger)
	trips := trip.NewService(deps.DB, deps.Events, ranker, deps.Logger)

	s := &Server{
		App:      app,
		Cfg:      cfg,
		Stream:   hub,
		Trips:    trips,
		Ranking:  ranker,
		Tracking: tracking.NewManager(cfg.Telemetry, trips, hub, deps.Logger),
		deps:     deps,
	}

	registerRoutes(s)
	return s
}

// Close waits for in-flight trip submissions and stops the stream relay.
func (s *Server) Close() {
	s.Tracking.Wait()
	s.Stream.Close()
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return httpx.Respond(c, fiber.StatusOK, "ok", fiber.Map{"service": s.Cfg.ServiceName})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.deps.DB))
	user.RegisterRoutes(s.App.Group("/users"), user.NewService(s.deps.DB, s.Ranking, s.deps.Logger), jwtMiddleware)
	trip.RegisterRoutes(s.App, s.Trips, jwtMiddleware)
	ranking.RegisterRoutes(s.App, s.Ranking, jwtMiddleware)
	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracking, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, jwtMiddleware)
}
