package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/config"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/db"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/logging"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/mq"
	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

// Resources are the connections Run owns once it is called. Nil fields are
// features that stay disabled.
type Resources struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	Broker   *mq.Connection
	Logger   *zap.Logger
}

type mainDeps struct {
	loadConfig      func() config.Config
	newLogger       func(service, level, format string) (*zap.Logger, error)
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) (*redis.Client, error)
	connectBroker   func(url string, logger *zap.Logger) (*mq.Connection, error)
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, Resources, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		newLogger:       logging.NewLogger,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		connectBroker:   mq.Dial,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()

	logger, err := deps.newLogger(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		logger = zap.NewNop()
	}
	defer func() { _ = logger.Sync() }()

	res := Resources{Logger: logger}

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		logger.Error("postgres connection failed", zap.Error(err))
	} else {
		res.Postgres = pg
		if cfg.AutoMigrate {
			if err := db.Migrate(context.Background(), pg); err != nil {
				logger.Error("schema migration failed", zap.Error(err))
			}
		}
	}

	rdb, err := deps.connectRedis(cfg)
	if err != nil {
		logger.Warn("redis unavailable, running without cache and relay", zap.Error(err))
	} else {
		res.Redis = rdb
	}

	if cfg.RabbitMQ.URL != "" {
		conn, err := deps.connectBroker(cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable, events disabled", zap.Error(err))
		} else {
			res.Broker = conn
		}
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, res, signals, nil); err != nil {
		logger.Error("server exited with error", zap.Error(err))
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and, when a broker is connected, the fix
// consumer. It returns after a termination signal, context cancellation or
// the first failure of either, once everything has been shut down.
func Run(ctx context.Context, cfg config.Config, res Resources, signals <-chan os.Signal, listen ListenFunc) error {
	logger := logging.OrNop(res.Logger)

	deps := server.Deps{Redis: res.Redis, Logger: logger}
	if res.Postgres != nil {
		deps.DB = res.Postgres
	}

	var publisher *mq.Publisher
	if res.Broker != nil {
		p, err := mq.NewPublisher(res.Broker, cfg.RabbitMQ.EventsExchange, cfg.RabbitMQ.EventsRoutingKey, logger)
		if err != nil {
			logger.Warn("event publisher disabled", zap.Error(err))
		} else {
			publisher = p
			deps.Events = p
		}
	}

	srv := server.NewServer(cfg, deps)

	var consumer *mq.Consumer
	if res.Broker != nil {
		c, err := mq.NewConsumer(res.Broker, cfg.RabbitMQ.FixesQueue, cfg.RabbitMQ.PrefetchCount, srv.Tracking.HandleMessage, logger)
		if err != nil {
			logger.Warn("fix consumer disabled", zap.Error(err))
		} else {
			consumer = c
		}
	}

	if listen == nil {
		listen = defaultListen
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	listenErr := make(chan error, 1)
	g.Go(func() error {
		err := listen(srv.App, cfg.ServerPort)
		listenErr <- err
		return err
	})
	if consumer != nil {
		g.Go(func() error { return consumer.Run(gctx) })
	}

	var runErr error
	select {
	case <-signals:
	case <-ctx.Done():
	case runErr = <-listenErr:
	case <-gctx.Done():
	}
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	srv.Close()

	if consumer != nil {
		_ = consumer.Close()
	}
	if publisher != nil {
		_ = publisher.Close()
	}
	if res.Broker != nil {
		_ = res.Broker.Close()
	}
	if res.Postgres != nil {
		res.Postgres.Close()
	}
	if res.Redis != nil {
		_ = res.Redis.Close()
	}
	return runErr
}
