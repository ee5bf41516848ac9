package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateRedis(cfg.Redis); err != nil {
		errors = append(errors, err)
	}

	if err := validateQueue(cfg.Queue); err != nil {
		errors = append(errors, err)
	}

	if err := validateProducer(cfg.Producer); err != nil {
		errors = append(errors, err)
	}

	if err := validateProcessor(cfg.Processor); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "redis.host",
			Message: "redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateQueue(cfg QueueConfig) error {
	if len(cfg.Names) == 0 {
		return &ValidationError{
			Field:   "queue.names",
			Message: "at least one queue name is required",
		}
	}

	for _, name := range cfg.Names {
		if strings.TrimSpace(name) == "" {
			return &ValidationError{
				Field:   "queue.names",
				Message: "queue names must be non-empty",
			}
		}
		if strings.Contains(name, ":") {
			return &ValidationError{
				Field:   "queue.names",
				Message: fmt.Sprintf("queue name %q must not contain ':'", name),
			}
		}
	}

	if cfg.MaxRetries < 0 {
		return &ValidationError{
			Field:   "queue.max_retries",
			Message: fmt.Sprintf("max retries must not be negative, got %d", cfg.MaxRetries),
		}
	}

	return nil
}

func validateProducer(cfg ProducerConfig) error {
	if cfg.BatchSize < 0 {
		return &ValidationError{
			Field:   "producer.batch_size",
			Message: fmt.Sprintf("batch size must not be negative, got %d", cfg.BatchSize),
		}
	}

	return nil
}

func validateProcessor(cfg ProcessorConfig) error {
	if cfg.ReadCount < 0 {
		return &ValidationError{
			Field:   "processor.read_count",
			Message: fmt.Sprintf("read count must not be negative, got %d", cfg.ReadCount),
		}
	}

	if cfg.ReclaimIdleTime < 0 {
		return &ValidationError{
			Field:   "processor.reclaim_idle_time",
			Message: "reclaim idle time must not be negative",
		}
	}

	return nil
}
