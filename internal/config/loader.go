package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"streamq/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	applyDefaults(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func bindEnvVariables() {
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.username", "REDIS_USERNAME")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("postgres.host", "POSTGRES_HOST")
	viper.BindEnv("postgres.port", "POSTGRES_PORT")
	viper.BindEnv("postgres.user", "POSTGRES_USER")
	viper.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	viper.BindEnv("postgres.dbname", "POSTGRES_DBNAME")
	viper.BindEnv("postgres.sslmode", "POSTGRES_SSLMODE")
	viper.BindEnv("postgres.run_migrations", "POSTGRES_RUN_MIGRATIONS")
	viper.BindEnv("postgres.migrations_path", "POSTGRES_MIGRATIONS_PATH")

	viper.BindEnv("queue.group_name", "QUEUE_GROUP_NAME")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")
}

func applyEnvOverrides(cfg *Config) error {
	// QUEUE_NAMES is a comma-separated list, matching the deployment contract.
	if namesEnv := viper.GetString("QUEUE_NAMES"); namesEnv != "" {
		names := strings.Split(namesEnv, ",")
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
		if len(names) > 0 && names[0] != "" {
			cfg.Queue.Names = names
		}
	}

	if maxRetriesEnv := viper.GetString("MAX_RETRIES"); maxRetriesEnv != "" {
		maxRetries, err := strconv.Atoi(maxRetriesEnv)
		if err != nil {
			return fmt.Errorf("invalid MAX_RETRIES value %q: %w", maxRetriesEnv, err)
		}
		cfg.Queue.MaxRetries = maxRetries
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.Queue.Names) == 0 {
		cfg.Queue.Names = []string{constants.DefaultQueueNames}
	}
	if cfg.Queue.GroupName == "" {
		cfg.Queue.GroupName = constants.DefaultGroupName
	}
	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = constants.DefaultMaxRetries
	}

	if cfg.Producer.BatchSize == 0 {
		cfg.Producer.BatchSize = constants.BatchSize
	}
	if cfg.Producer.BatchTimeout == 0 {
		cfg.Producer.BatchTimeout = constants.BatchTimeout
	}
	if cfg.Producer.FlushInterval == 0 {
		cfg.Producer.FlushInterval = constants.FlushInterval
	}

	if cfg.Processor.ReadCount == 0 {
		cfg.Processor.ReadCount = constants.ReadCount
	}
	if cfg.Processor.ReadBlock == 0 {
		cfg.Processor.ReadBlock = constants.ReadBlock
	}
	if cfg.Processor.ReclaimInterval == 0 {
		cfg.Processor.ReclaimInterval = constants.ReclaimInterval
	}
	if cfg.Processor.ReclaimIdleTime == 0 {
		cfg.Processor.ReclaimIdleTime = constants.ReclaimIdleTime
	}
	if cfg.Processor.ReconnectDelay == 0 {
		cfg.Processor.ReconnectDelay = constants.ReconnectDelay
	}

	if cfg.Scanner.ScanInterval == 0 {
		cfg.Scanner.ScanInterval = constants.ScanInterval
	}
	if cfg.Scanner.IdleSleep == 0 {
		cfg.Scanner.IdleSleep = constants.ScanIdleSleep
	}

	if cfg.Postgres.MigrationsPath == "" {
		cfg.Postgres.MigrationsPath = constants.DefaultMigrationsPath
	}
}
