// Package flowexec wires a flow execution engine from EngineOptions.
package flowexec

import (
	"context"

	"github.com/juju/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/warriorguo/flowexec/archive/mongo"
	"github.com/warriorguo/flowexec/lock"
	redislock "github.com/warriorguo/flowexec/lock/redis"
	"github.com/warriorguo/flowexec/nodes"
	"github.com/warriorguo/flowexec/queue"
	redisqueue "github.com/warriorguo/flowexec/queue/redis"
	"github.com/warriorguo/flowexec/runtime"
	"github.com/warriorguo/flowexec/service"
	"github.com/warriorguo/flowexec/store"
	"github.com/warriorguo/flowexec/store/mem"
	"github.com/warriorguo/flowexec/store/postgres"
	"github.com/warriorguo/flowexec/store/sqlite"
	"github.com/warriorguo/flowexec/types"
)

// NewEngine creates an engine with the built-in node runners registered.
// Store: PostgreSQL, then SQLite, then memory. Locker and queue: Redis when
// configured, memory otherwise. Archive: MongoDB when configured, the store
// otherwise.
func NewEngine(opts ...types.EngineOption) (*runtime.Engine, error) {
	options := types.NewEngineOptions()
	for _, opt := range opts {
		opt(options)
	}

	b := runtime.Backends{}
	closeAll := func() {
		for _, closer := range b.Closers {
			closer()
		}
	}

	s, err := newStore(options)
	if err != nil {
		return nil, errors.Trace(err)
	}
	b.Closers = append(b.Closers, s.Close)
	b.Logs = service.NewExecuteLogService(s)
	b.Waits = service.NewWaitMessageService(s)

	if rc := options.RedisConfig; rc != nil {
		client := goredis.NewClient(&goredis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		if err := client.Ping(options.Ctx).Err(); err != nil {
			client.Close()
			closeAll()
			return nil, errors.Annotatef(err, "failed to connect redis %s", rc.Addr)
		}
		b.Closers = append(b.Closers, client.Close)

		locker, err := redislock.NewLocker(client, rc.Prefix, options.LockTTL())
		if err != nil {
			closeAll()
			return nil, errors.Trace(err)
		}
		b.Locker = locker
		b.Queue = redisqueue.NewQueue(client, rc.Prefix)
	} else {
		b.Locker = lock.NewMemLocker(options.LockTTL())
		b.Queue = queue.NewInMemoryQueue(options.QueueCapacity)
	}

	if mc := options.MongoConfig; mc != nil {
		sink, err := mongo.Connect(options.Ctx, mc.URI, mc.Database, mc.Collection)
		if err != nil {
			closeAll()
			return nil, errors.Annotatef(err, "failed to create MongoDB archive")
		}
		b.Closers = append(b.Closers, func() error {
			return sink.Close(context.Background())
		})
		b.Archive = sink
	} else {
		b.Archive = service.NewStoreArchiveSink(s)
	}

	en, err := runtime.NewEngine(options, b)
	if err != nil {
		closeAll()
		return nil, errors.Trace(err)
	}
	if err := nodes.RegisterBuiltins(en.Runners(), en); err != nil {
		en.Close(context.Background())
		return nil, errors.Trace(err)
	}
	return en, nil
}

func newStore(options *types.EngineOptions) (store.Store, error) {
	switch {
	case options.PostgresConfig != nil:
		pg := options.PostgresConfig
		s, err := postgres.NewPostgresStore(&postgres.Config{
			Host:     pg.Host,
			Port:     pg.Port,
			User:     pg.User,
			Password: pg.Password,
			Database: pg.Database,
			SSLMode:  pg.SSLMode,
		})
		return s, errors.Annotatef(err, "failed to create PostgreSQL store")

	case options.SQLitePath != "":
		s, err := sqlite.NewSQLiteStore(options.SQLitePath)
		return s, errors.Annotatef(err, "failed to create SQLite store")

	case options.MemStore:
		return mem.NewMemStore(), nil

	default:
		// Default to mem store if not specified
		return mem.NewMemStore(), nil
	}
}
