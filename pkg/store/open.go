package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// Config selects and configures the store backend.
type Config struct {
	Backend  string        `env:"STORE_BACKEND" envDefault:"memory"`
	Timeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`
	Migrate  bool          `env:"STORE_MIGRATE" envDefault:"true"`
	Mongo    MongoConfig
	Postgres PostgresConfig
}

// Backend is an opened store with its lifecycle hooks.
type Backend struct {
	Store       Store
	Healthcheck func(context.Context) error
	Close       func(context.Context) error
}

// Open connects the configured backend and wraps it with cfg.Timeout.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Backend, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.Backend {
	case BackendMemory, "":
		return &Backend{Store: WithTimeout(NewMemory(), cfg.Timeout), Healthcheck: noop, Close: noop}, nil

	case BackendMongo:
		client, err := ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		log.InfoContext(ctx, "connected to mongodb", slog.String("database", cfg.Mongo.Database))
		return &Backend{
			Store:       WithTimeout(NewMongo(client.Database(cfg.Mongo.Database)), cfg.Timeout),
			Healthcheck: MongoHealthcheck(client),
			Close:       client.Disconnect,
		}, nil

	case BackendPostgres:
		pool, err := ConnectPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := MigratePostgres(ctx, pool, cfg.Postgres, log); err != nil {
				pool.Close()
				return nil, err
			}
		}
		log.InfoContext(ctx, "connected to postgres")
		return &Backend{
			Store:       WithTimeout(NewPostgres(pool), cfg.Timeout),
			Healthcheck: PostgresHealthcheck(pool),
			Close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil
	}

	return nil, errors.Join(ErrUnknownBackend, fmt.Errorf("backend %q", cfg.Backend))
}
