package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

var (
	ErrPostgresConnect = errors.New("store.postgres_connect")
	ErrMigrate         = errors.New("store.migrate")
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	URL             string        `env:"POSTGRES_URL"`
	MaxConns        int32         `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	MaxConnIdleTime time.Duration `env:"POSTGRES_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	MaxConnLifetime time.Duration `env:"POSTGRES_MAX_CONN_LIFETIME" envDefault:"30m"`
	RetryAttempts   int           `env:"POSTGRES_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval   time.Duration `env:"POSTGRES_RETRY_INTERVAL" envDefault:"5s"`
	MigrationsTable string        `env:"POSTGRES_MIGRATIONS_TABLE" envDefault:"schema_migrations"`
}

// ConnectPostgres opens a pgx pool and pings it with linear backoff between
// attempts.
func ConnectPostgres(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errors.Join(ErrPostgresConnect, err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	var lastErr error
	for attempt := range max(cfg.RetryAttempts, 1) {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrPostgresConnect, ctx.Err())
		case <-time.After(time.Duration(attempt+1) * cfg.RetryInterval):
		}
	}
	return nil, errors.Join(ErrPostgresConnect, lastErr)
}

// MigratePostgres applies the embedded schema migrations.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, cfg PostgresConfig, log *slog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log: log})
	if cfg.MigrationsTable != "" {
		goose.SetTableName(cfg.MigrationsTable)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrMigrate, err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Join(ErrMigrate, err)
	}
	return nil
}

type gooseLogger struct {
	log *slog.Logger
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(fmt.Sprintf(format, v...))
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info(fmt.Sprintf(format, v...))
}

const (
	pgGet    = `SELECT doc FROM credential_documents WHERE collection = $1 AND id = $2`
	pgSet    = `INSERT INTO credential_documents (collection, id, doc) VALUES ($1, $2, $3::jsonb) ON CONFLICT (collection, id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`
	pgCreate = `INSERT INTO credential_documents (collection, id, doc) VALUES ($1, $2, $3::jsonb) ON CONFLICT (collection, id) DO NOTHING`
	pgUpdate = `UPDATE credential_documents SET doc = doc || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`
	pgDelete = `DELETE FROM credential_documents WHERE collection = $1 AND id = $2`
	pgQuery  = `SELECT doc FROM credential_documents WHERE collection = $1 AND doc -> $2::text = $3::jsonb ORDER BY id LIMIT $4`
)

// PostgresStore keeps all collections in one JSONB table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres stores documents in the credential_documents table.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, pgGet, collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	return unmarshalDoc(raw)
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Join(ErrInvalidRecord, err)
	}
	if _, err := s.pool.Exec(ctx, pgSet, collection, id, string(body)); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, collection, id string, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Join(ErrInvalidRecord, err)
	}
	tag, err := s.pool.Exec(ctx, pgCreate, collection, id, string(body))
	if err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields Document) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return errors.Join(ErrInvalidRecord, err)
	}
	tag, err := s.pool.Exec(ctx, pgUpdate, collection, id, string(body))
	if err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.pool.Exec(ctx, pgDelete, collection, id); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) QueryEquals(ctx context.Context, collection, field string, value any, limit int) ([]Document, error) {
	want, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Join(ErrInvalidRecord, err)
	}
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, pgQuery, collection, field, string(want), lim)
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Join(ErrUnavailable, err)
		}
		doc, err := unmarshalDoc(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	return out, nil
}

// PostgresHealthcheck pings the pool.
func PostgresHealthcheck(pool *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return errors.Join(ErrUnavailable, err)
		}
		return nil
	}
}
