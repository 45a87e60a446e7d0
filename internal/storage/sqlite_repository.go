package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sandeepkv93/medremind/internal/model"
)

const sqliteTimeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db  *sql.DB
	key string
}

func NewSQLiteRepository(db *sql.DB, key string) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if key == "" {
		key = DefaultKey
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	return &SQLiteRepository{db: db, key: key}, nil
}

// OpenSQLite opens the database at path and applies pending migrations.
func OpenSQLite(path, key string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	repo, err := NewSQLiteRepository(db, key)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) Load(ctx context.Context) ([]model.Reminder, error) {
	raw, err := r.get(ctx)
	if errors.Is(err, ErrNotFound) {
		return []model.Reminder{}, nil
	}
	if err != nil {
		return nil, err
	}
	return Decode([]byte(raw))
}

func (r *SQLiteRepository) Save(ctx context.Context, items []model.Reminder) error {
	payload, err := Encode(items)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		r.key, string(payload), mustTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save reminders: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) get(ctx context.Context) (string, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, r.key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("load reminders: %w", err)
	}
	return raw, nil
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}
