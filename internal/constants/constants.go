package constants

import "time"

const (
	DefaultGroupName = "main-group"

	StreamSuffix      = ":stream"
	PoisonQueueSuffix = "-poison"
	PayloadField      = "payload"
	DefaultQueueNames = "general"
	DefaultMaxRetries = 3
)

const (
	BatchSize     = 50
	BatchTimeout  = 5 * time.Second
	FlushInterval = 10 * time.Second
)

const (
	ReadCount        = 10
	ReadBlock        = time.Second
	ReclaimInterval  = 60 * time.Second
	ReclaimIdleTime  = 60 * time.Second
	ReconnectDelay   = 5 * time.Second
	ReconnectRetries = 5
)

const (
	ScanInterval    = time.Second
	ScanIdleSleep   = 10 * time.Second
	SeenSetCapacity = 1000

	// Entry IDs whose millisecond prefix predates this are ordinary
	// auto-assigned IDs, not schedule timestamps.
	MinPlausibleEpochMillis = int64(1577836800000) // 2020-01-01
)

const (
	PoisonInspectLimit = 100
	ShutdownTimeout    = 5 * time.Second

	DefaultMigrationsPath = "migrations/postgres"
)
