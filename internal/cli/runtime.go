package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/sandeepkv93/medremind/internal/config"
	"github.com/sandeepkv93/medremind/internal/logger"
	"github.com/sandeepkv93/medremind/internal/reconcile"
	"github.com/sandeepkv93/medremind/internal/reminders"
	"github.com/sandeepkv93/medremind/internal/scheduler"
	"github.com/sandeepkv93/medremind/internal/storage"
)

// runtime is everything one command invocation needs, built from config.
type runtime struct {
	cfg   *config.Config
	log   *logrus.Logger
	redis *redis.Client
	repo  storage.Repository

	sched      scheduler.Scheduler
	engine     *scheduler.Engine
	redisSched *scheduler.RedisScheduler

	store *reminders.Store
	rec   *reconcile.Engine

	// watchPath is the file other processes rewrite, empty for network
	// backed storage.
	watchPath string
}

type openOptions struct {
	// longRunning marks serve, tui and mcp. One-shot commands only reconcile
	// on start against the shared redis scheduler; an in-memory engine is
	// empty in every new process.
	longRunning bool
}

func openRuntime(ctx context.Context, ro *rootOptions, oo openOptions) (*runtime, error) {
	if err := config.LoadDotenv(ro.envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(ro.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, log: logger.Get()}
	if err := rt.open(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}

	if err := rt.store.Hydrate(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	if cfg.Reconcile.OnStart && (oo.longRunning || rt.redisSched != nil) {
		res, err := rt.rec.Reconcile(ctx)
		if err != nil {
			rt.log.WithError(err).Warn("startup reconcile failed")
		} else if res.LossFound {
			rt.log.WithField("rescheduled", res.Rescheduled).Info("startup reconcile repaired scheduler state")
		}
	}
	return rt, nil
}

func (rt *runtime) open(ctx context.Context) error {
	cfg := rt.cfg
	if cfg.UsesRedis() {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
	}

	opts := cfg.StorageOptions()
	opts.Redis = rt.redis
	repo, err := storage.Open(ctx, opts)
	if err != nil {
		return err
	}
	rt.repo = repo
	switch r := repo.(type) {
	case *storage.FileRepository:
		rt.watchPath = r.Path()
	case *storage.SQLiteRepository:
		rt.watchPath = opts.Path
	}

	perm, err := scheduler.ParsePermission(cfg.Scheduler.Permission)
	if err != nil {
		return err
	}
	switch cfg.Scheduler.Driver {
	case "redis":
		rs, err := scheduler.NewRedisScheduler(rt.redis, cfg.Redis.Prefix, perm)
		if err != nil {
			return err
		}
		rt.redisSched = rs
		rt.sched = rs
	default:
		rt.engine = scheduler.NewEngine(cfg.Scheduler.Buffer, scheduler.WithPermission(perm))
		rt.sched = rt.engine
	}

	mode, err := reconcile.ParseMode(cfg.Reconcile.Mode)
	if err != nil {
		return err
	}
	rt.store = reminders.New(rt.repo, rt.sched, reminders.Options{Logger: rt.log})
	rt.rec = reconcile.New(rt.store, mode, rt.log)
	return nil
}

func (rt *runtime) Close() error {
	var errs []error
	if rt.engine != nil {
		rt.engine.Stop()
	}
	if rt.repo != nil {
		errs = append(errs, rt.repo.Close())
	}
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	return errors.Join(errs...)
}
