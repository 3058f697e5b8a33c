package types

import (
	"context"
	"time"

	"github.com/mcuadros/go-defaults"
)

func NewEngineOptions() *EngineOptions {
	opts := &EngineOptions{Ctx: context.Background()}
	defaults.SetDefaults(opts)
	return opts
}

type EngineOptions struct {
	Ctx context.Context

	/**
	 * default: true, can set it to false and *important*
	 * caller should call Engine.RunOnce() to consume async executions.
	 */
	AutoStart bool `default:"true"`

	/**
	 * default: 16
	 * workers consuming deferred (async) executions.
	 */
	AsyncWorkers int `default:"16"`

	/**
	 * default: 4
	 * workers writing archives. Archive tasks never block a run.
	 */
	ArchiveWorkers int `default:"4"`

	// QueueCapacity bounds the in-memory async queue.
	QueueCapacity int `default:"1024"`

	// QueuePollMillis is how long a consumer waits on an empty queue.
	QueuePollMillis int `default:"200"`

	// LockTTLSeconds bounds how long a crashed run can hold its lock. A live
	// run renews its lock every third of the ttl.
	LockTTLSeconds int `default:"600"`

	ArchiveSpinWaitSeconds int `default:"10"`

	/**
	 * default: false, only set it to true when doing testing or developing.
	 */
	MemStore bool `default:"false"`

	// PostgreSQL store configuration, takes precedence over SQLitePath and MemStore.
	PostgresConfig *PostgresConfig

	// SQLitePath selects the SQLite store when PostgresConfig is nil.
	SQLitePath string

	// RedisConfig switches the locker and the async queue to Redis.
	RedisConfig *RedisConfig

	// MongoConfig switches the archive sink to MongoDB.
	MongoConfig *MongoConfig

	// FlowProvider resolves sub-flows and rebuilds queued executions.
	FlowProvider FlowProvider

	// ArchiveErrorHandler receives archive failures; they never reach the caller.
	ArchiveErrorHandler func(runID string, err error)
}

func (o *EngineOptions) LockTTL() time.Duration {
	return time.Duration(o.LockTTLSeconds) * time.Second
}

func (o *EngineOptions) ArchiveSpinWait() time.Duration {
	return time.Duration(o.ArchiveSpinWaitSeconds) * time.Second
}

func (o *EngineOptions) QueuePollInterval() time.Duration {
	return time.Duration(o.QueuePollMillis) * time.Millisecond
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // disable, require, verify-ca, verify-full
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces lock and queue keys, "flowexec:" when empty.
	Prefix string
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

type EngineOption func(*EngineOptions)

func WithContext(ctx context.Context) EngineOption {
	return func(opts *EngineOptions) {
		opts.Ctx = ctx
	}
}

func DisableAutoStart() EngineOption {
	return func(opts *EngineOptions) {
		opts.AutoStart = false
	}
}

func SetAsyncWorkers(workers int) EngineOption {
	return func(opts *EngineOptions) {
		opts.AsyncWorkers = workers
	}
}

func SetArchiveWorkers(workers int) EngineOption {
	return func(opts *EngineOptions) {
		opts.ArchiveWorkers = workers
	}
}

func SetLockTTL(ttl time.Duration) EngineOption {
	return func(opts *EngineOptions) {
		opts.LockTTLSeconds = int(ttl / time.Second)
	}
}

func SetArchiveSpinWait(wait time.Duration) EngineOption {
	return func(opts *EngineOptions) {
		opts.ArchiveSpinWaitSeconds = int(wait / time.Second)
	}
}

func EnableMemStore() EngineOption {
	return func(opts *EngineOptions) {
		opts.MemStore = true
	}
}

// WithPostgresConfig configures the engine to use PostgreSQL store
func WithPostgresConfig(config *PostgresConfig) EngineOption {
	return func(opts *EngineOptions) {
		opts.PostgresConfig = config
	}
}

func WithSQLitePath(path string) EngineOption {
	return func(opts *EngineOptions) {
		opts.SQLitePath = path
	}
}

func WithRedisConfig(config *RedisConfig) EngineOption {
	return func(opts *EngineOptions) {
		opts.RedisConfig = config
	}
}

func WithMongoConfig(config *MongoConfig) EngineOption {
	return func(opts *EngineOptions) {
		opts.MongoConfig = config
	}
}

func WithFlowProvider(provider FlowProvider) EngineOption {
	return func(opts *EngineOptions) {
		opts.FlowProvider = provider
	}
}

func WithArchiveErrorHandler(handler func(runID string, err error)) EngineOption {
	return func(opts *EngineOptions) {
		opts.ArchiveErrorHandler = handler
	}
}
