package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"streamq/internal/config"
	"streamq/internal/constants"
	"streamq/internal/handlers"
	"streamq/internal/logger"
	"streamq/internal/ops"
	"streamq/internal/queue"
	"streamq/pkg/bootstrap"
	"streamq/pkg/health"
	"streamq/pkg/metrics"
	"streamq/pkg/middleware"
	"streamq/pkg/migrations"
	"streamq/pkg/ratelimit"
	"streamq/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	postgres    *sql.DB
	tracer      *tracing.TracerProvider
	groups      *queue.GroupManager
	poison      *queue.PoisonRouter
	processor   *queue.Processor
	server      *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetProcessName("processor-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tracer, err := tracing.Init(a.Config.Tracing, "processor-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracer = tracer

	if err := a.InitStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	a.postgres = db

	if a.postgres != nil && a.Config.Postgres.RunMigrations {
		if err := migrations.RunPostgres(a.postgres, a.Config.Postgres.MigrationsPath); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
		a.Logger.InfowCtx(ctx, "database migrations applied",
			"path", a.Config.Postgres.MigrationsPath)
	}

	a.initQueueComponents()

	metrics.RegisterProducerMetrics()
	metrics.RegisterProcessorMetrics()
	metrics.RegisterOpsMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initHTTPServer(); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initQueueComponents() {
	a.groups = queue.NewGroupManager(a.Store, a.Config.Queue.GroupName, a.Logger)
	a.poison = queue.NewPoisonRouter(a.Store, a.Config.Queue.MaxRetries, a.Logger)

	registry := queue.NewRegistry()

	notifications := handlers.NewNotificationHandlers(handlers.NewLogMailer(a.Logger), a.Logger)
	var entityPort handlers.PersistencePort
	if a.postgres != nil {
		entityPort = handlers.NewPostgresPersistence(a.postgres)
	}

	for _, queueName := range a.Config.Queue.Names {
		switch queueName {
		case "notifications":
			notifications.Register(registry, queueName)
		default:
			if entityPort != nil {
				entities := handlers.NewEntityHandlers(entityPort, a.Logger)
				entities.Register(registry, queueName)
			}
		}
	}

	a.processor = queue.NewProcessor(a.Store, registry, a.groups, a.poison, queue.ProcessorConfig{
		Queues:          a.Config.Queue.Names,
		GroupName:       a.groups.Group(),
		ReadCount:       int64(a.Config.Processor.ReadCount),
		ReadBlock:       a.Config.Processor.ReadBlock,
		ReclaimInterval: a.Config.Processor.ReclaimInterval,
		ReclaimIdleTime: a.Config.Processor.ReclaimIdleTime,
		ReconnectDelay:  a.Config.Processor.ReconnectDelay,
		ReconnectTries:  constants.ReconnectRetries,
	}, a.Logger)
}

func (a *App) initHTTPServer() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))
	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("processor-service"))
	}

	if a.Config.Ops.RateLimit.Enabled {
		rlConfig := ratelimit.DefaultConfig()
		if a.Config.Ops.RateLimit.RPS > 0 {
			rlConfig.RPS = a.Config.Ops.RateLimit.RPS
		}
		if a.Config.Ops.RateLimit.Burst > 0 {
			rlConfig.Burst = a.Config.Ops.RateLimit.Burst
		}
		router.Use(ratelimit.RateLimitMiddleware(rlConfig))
	}

	healthRegistry := health.NewCheckerRegistry()
	if a.Redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.Redis))
	}
	if a.postgres != nil {
		healthRegistry.Register(health.NewPostgreSQLChecker(a.postgres))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, gin.H{
			"status":    h.Status,
			"timestamp": h.Timestamp.Format(time.RFC3339),
			"checks":    h.Checks,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	opsHandler := ops.NewHandler(a.poison, a.groups, a.Logger)
	opsHandler.RegisterRoutes(router)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.processor.Run(gCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("Shutting down processor service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.postgres != nil {
			if err := a.postgres.Close(); err != nil {
				errs = append(errs, fmt.Errorf("postgres close error: %w", err))
			}
		}

		if a.tracer != nil {
			if err := a.tracer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown error: %w", err))
			}
		}

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
