package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/legacy-migrator/internal/server"
	"github.com/iota-uz/legacy-migrator/modules/migration"
	"github.com/iota-uz/legacy-migrator/modules/migration/services"
	"github.com/iota-uz/legacy-migrator/pkg/application"
	"github.com/iota-uz/legacy-migrator/pkg/authz"
	"github.com/iota-uz/legacy-migrator/pkg/configuration"
	"github.com/iota-uz/legacy-migrator/pkg/eventbus"
	"github.com/iota-uz/legacy-migrator/pkg/logging"
	"github.com/iota-uz/legacy-migrator/pkg/metrics"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	defer conf.Unload()
	logger := conf.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set up OpenTelemetry if enabled
	if conf.OpenTelemetry.Enabled {
		tracingCleanup := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
		defer tracingCleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	connectCtx, cancel := context.WithTimeout(ctx, time.Second*5)
	pool, err := pgxpool.New(connectCtx, conf.Database.Opts)
	cancel()
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	var redisClient redis.UniversalClient
	if conf.RedisURL != "" {
		opts, err := redis.ParseURL(conf.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		defer func() { _ = client.Close() }()
		redisClient = client
	}

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	module := migration.NewModule(&migration.ModuleOptions{
		Config: conf,
		Authz:  authz.Use(),
		Redis:  redisClient,
	})
	if err := module.Register(app); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path, nil))
	}

	sessions := app.Service(services.SessionService{}).(*services.SessionService)
	go pruneSessions(ctx, sessions, conf.Migration.SessionTTL, logger)

	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Redis:         redisClient,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := serverInstance.Start(ctx, conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

// pruneSessions drops idle sessions until ctx is done.
func pruneSessions(ctx context.Context, sessions *services.SessionService, ttl time.Duration, logger *logrus.Logger) {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Prune(ttl); n > 0 {
				logger.WithFields(logrus.Fields{
					"component": "migration.sessions",
					"pruned":    n,
				}).Info("pruned idle sessions")
			}
		}
	}
}
