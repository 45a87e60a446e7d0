package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sandeepkv93/medremind/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS kv_store (
    key        TEXT PRIMARY KEY,
    value      JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`

type PostgresRepository struct {
	pool *pgxpool.Pool
	key  string
}

func OpenPostgres(ctx context.Context, dsn, key string) (*PostgresRepository, error) {
	if dsn == "" {
		return nil, errors.New("storage: postgres dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConns = 4
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if key == "" {
		key = DefaultKey
	}
	return &PostgresRepository{pool: pool, key: key}, nil
}

func (r *PostgresRepository) Load(ctx context.Context) ([]model.Reminder, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, r.key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return []model.Reminder{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load reminders: %w", err)
	}
	return Decode(raw)
}

func (r *PostgresRepository) Save(ctx context.Context, items []model.Reminder) error {
	payload, err := Encode(items)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		r.key, payload, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save reminders: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
