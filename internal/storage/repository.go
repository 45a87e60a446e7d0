package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/medremind/internal/model"
)

// DefaultKey is the single storage key holding the reminder collection.
const DefaultKey = "reminders.v1"

var ErrNotFound = errors.New("storage: not found")

// Repository persists the whole reminder collection under one key. Save
// overwrites everything; there are no row-level writes.
type Repository interface {
	Load(ctx context.Context) ([]model.Reminder, error)
	Save(ctx context.Context, items []model.Reminder) error
	Close() error
}

type Driver string

const (
	DriverFile     Driver = "file"
	DriverSQLite   Driver = "sqlite"
	DriverDiskv    Driver = "diskv"
	DriverRedis    Driver = "redis"
	DriverPostgres Driver = "postgres"
)

type Options struct {
	Driver Driver
	// Path is a directory for file and diskv, a database file for sqlite.
	Path string
	DSN  string
	Key  string
	// Redis is required by DriverRedis and owned by the caller.
	Redis       *redis.Client
	RedisPrefix string
}

func Open(ctx context.Context, opts Options) (Repository, error) {
	key := strings.TrimSpace(opts.Key)
	if key == "" {
		key = DefaultKey
	}
	switch opts.Driver {
	case DriverFile, "":
		return NewFileRepository(opts.Path, key)
	case DriverSQLite:
		return OpenSQLite(opts.Path, key)
	case DriverDiskv:
		return NewDiskvRepository(opts.Path, key)
	case DriverRedis:
		return NewRedisRepository(opts.Redis, opts.RedisPrefix, key)
	case DriverPostgres:
		return OpenPostgres(ctx, opts.DSN, key)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", opts.Driver)
	}
}
