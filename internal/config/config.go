package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/sandeepkv93/medremind/internal/reconcile"
	"github.com/sandeepkv93/medremind/internal/scheduler"
	"github.com/sandeepkv93/medremind/internal/storage"
)

const EnvPrefix = "MEDREMIND_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Storage   StorageConfig   `koanf:"storage"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Redis     RedisConfig     `koanf:"redis"`
	Reconcile ReconcileConfig `koanf:"reconcile"`
	Notify    NotifyConfig    `koanf:"notify"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type StorageConfig struct {
	Driver string `koanf:"driver"`
	Path   string `koanf:"path"` // directory for file, diskv and sqlite
	DSN    string `koanf:"dsn"`  // postgres only
	Key    string `koanf:"key"`
}

type SchedulerConfig struct {
	Driver     string        `koanf:"driver"` // memory or redis
	Buffer     int           `koanf:"buffer"`
	Tick       time.Duration `koanf:"tick"`
	Permission string        `koanf:"permission"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

type ReconcileConfig struct {
	Mode    string `koanf:"mode"`
	OnStart bool   `koanf:"on_start"`
}

type NotifyConfig struct {
	Desktop       bool `koanf:"desktop"`
	RatePerMinute int  `koanf:"rate_per_minute"`
}

// Load layers defaults, the YAML file at configPath (when it exists) and
// MEDREMIND_ environment variables, in that order. A double underscore in a
// variable name separates sections: MEDREMIND_STORAGE__DRIVER sets
// storage.driver.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		configPath = expandPath(configPath)

		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Storage.Path = expandPath(cfg.Storage.Path)
	return &cfg, nil
}

// LoadDotenv reads the given .env files into the process environment. Files
// that do not exist are skipped; variables already set win.
func LoadDotenv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}

	switch storage.Driver(c.Storage.Driver) {
	case storage.DriverFile, storage.DriverDiskv, storage.DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for driver %s", c.Storage.Driver)
		}
	case storage.DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver postgres")
		}
	case storage.DriverRedis:
	default:
		return fmt.Errorf("unknown storage.driver: %s (supported: file, sqlite, diskv, redis, postgres)", c.Storage.Driver)
	}

	switch c.Scheduler.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown scheduler.driver: %s (supported: memory, redis)", c.Scheduler.Driver)
	}
	if c.Scheduler.Buffer <= 0 {
		return fmt.Errorf("scheduler.buffer must be positive")
	}
	if c.Scheduler.Tick <= 0 {
		return fmt.Errorf("scheduler.tick must be positive")
	}
	if _, err := scheduler.ParsePermission(c.Scheduler.Permission); err != nil {
		return err
	}

	if c.UsesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is used")
	}

	if _, err := reconcile.ParseMode(c.Reconcile.Mode); err != nil {
		return err
	}
	if c.Notify.RatePerMinute < 0 {
		return fmt.Errorf("notify.rate_per_minute must not be negative")
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.Storage.Driver == string(storage.DriverRedis) || c.Scheduler.Driver == "redis"
}

// StorageOptions maps the storage section onto repository options. The
// sqlite database lives inside storage.path.
func (c *Config) StorageOptions() storage.Options {
	opts := storage.Options{
		Driver:      storage.Driver(c.Storage.Driver),
		Path:        c.Storage.Path,
		DSN:         c.Storage.DSN,
		Key:         c.Storage.Key,
		RedisPrefix: c.Redis.Prefix,
	}
	if opts.Driver == storage.DriverSQLite {
		opts.Path = filepath.Join(c.Storage.Path, "medremind.db")
	}
	return opts
}

func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}

	return path
}
