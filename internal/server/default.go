package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/iota-uz/legacy-migrator/pkg/application"
	"github.com/iota-uz/legacy-migrator/pkg/configuration"
	"github.com/iota-uz/legacy-migrator/pkg/middleware"
	"github.com/iota-uz/legacy-migrator/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	// Redis backs the rate limiter when RATE_LIMIT_STORAGE=redis.
	Redis redis.UniversalClient
}

func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application
	conf := options.Configuration

	// Core middleware stack with tracing capabilities
	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, middleware.DefaultLoggerOptions()), // This now creates the root span for each request
	}

	if conf.RateLimit.Enabled {
		var store limiter.Store
		switch conf.RateLimit.Storage {
		case "redis":
			if options.Redis == nil {
				options.Logger.Warn("RATE_LIMIT_STORAGE=redis without REDIS_URL, falling back to memory")
				store = middleware.NewMemoryStore()
				break
			}
			var err error
			store, err = middleware.NewRedisStore(options.Redis)
			if err != nil {
				options.Logger.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
				store = middleware.NewMemoryStore()
			}
		default:
			store = middleware.NewMemoryStore()
		}

		middlewares = append(middlewares,
			middleware.TracedMiddleware("rateLimit"),
			middleware.RateLimit(middleware.RateLimitConfig{
				RequestsPerPeriod: conf.RateLimit.GlobalRPS,
				Store:             store,
			}),
		)
	}

	app.RegisterMiddleware(middlewares...)

	serverInstance := server.NewHTTPServer(
		app,
		server.JSONError(http.StatusNotFound, "NOT_FOUND", "route not found"),
		server.JSONError(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed"),
		server.WithCORS(conf.AllowedOrigins()),
		server.WithShutdownTimeout(conf.ShutdownTimeout),
	)
	return serverInstance, nil
}
