package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"streamq/internal/config"
	"streamq/internal/logger"
	"streamq/internal/queue"
)

type Base struct {
	Config *config.Config
	Logger logger.Logger
	Redis  *redis.Client
	Store  queue.Store
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitStore connects to Redis and installs the stream store, wrapped in a
// circuit breaker when one is configured.
func (b *Base) InitStore(ctx context.Context) error {
	connector := NewDatabaseConnector(b.Config, b.Logger)

	client, err := connector.InitRedis(ctx)
	if err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}

	b.Redis = client
	b.Store = queue.NewCircuitBreakerStore(queue.NewRedisStore(client), b.Config.CircuitBreaker)
	return nil
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close error: %w", err))
		}
	}

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
