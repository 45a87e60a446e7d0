package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const firedKeyTTL = 24 * time.Hour

// RedisScheduler keeps registrations in a Redis hash so that separate
// processes share one registration namespace. Flushing the database is a
// scheduler state loss, same as a device reboot for an OS scheduler.
type RedisScheduler struct {
	client            *redis.Client
	prefix            string
	defaultPermission Permission
	now               func() time.Time
}

func NewRedisScheduler(client *redis.Client, prefix string, defaultPermission Permission) (*RedisScheduler, error) {
	if client == nil {
		return nil, errors.New("scheduler: nil redis client")
	}
	if prefix == "" {
		prefix = "medremind"
	}
	if defaultPermission == "" {
		defaultPermission = PermissionGranted
	}
	return &RedisScheduler{
		client:            client,
		prefix:            prefix,
		defaultPermission: defaultPermission,
		now:               time.Now,
	}, nil
}

func (s *RedisScheduler) triggersKey() string   { return s.prefix + ":triggers" }
func (s *RedisScheduler) permissionKey() string { return s.prefix + ":permission" }

func (s *RedisScheduler) firedKey(h Handle, at time.Time) string {
	return fmt.Sprintf("%s:fired:%s:%s", s.prefix, h, at.Format("2006-01-02T15:04"))
}

func (s *RedisScheduler) Register(ctx context.Context, t Trigger) (Handle, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode trigger: %w", err)
	}
	h := Handle(uuid.NewString())
	if err := s.client.HSet(ctx, s.triggersKey(), string(h), payload).Err(); err != nil {
		return "", fmt.Errorf("register trigger: %w", err)
	}
	return h, nil
}

func (s *RedisScheduler) Cancel(ctx context.Context, h Handle) error {
	if err := s.client.HDel(ctx, s.triggersKey(), string(h)).Err(); err != nil {
		return fmt.Errorf("cancel trigger %s: %w", h, err)
	}
	return nil
}

func (s *RedisScheduler) ListActive(ctx context.Context) ([]Handle, error) {
	keys, err := s.client.HKeys(ctx, s.triggersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	out := make([]Handle, 0, len(keys))
	for _, k := range keys {
		out = append(out, Handle(k))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *RedisScheduler) RequestPermission(ctx context.Context) (Permission, error) {
	raw, err := s.client.Get(ctx, s.permissionKey()).Result()
	if errors.Is(err, redis.Nil) {
		return s.defaultPermission, nil
	}
	if err != nil {
		return "", fmt.Errorf("read permission: %w", err)
	}
	return ParsePermission(raw)
}

// SetPermission records a grant or revocation visible to every process.
func (s *RedisScheduler) SetPermission(ctx context.Context, p Permission) error {
	if _, err := ParsePermission(string(p)); err != nil {
		return err
	}
	return s.client.Set(ctx, s.permissionKey(), string(p), 0).Err()
}

func (s *RedisScheduler) Trigger(ctx context.Context, h Handle) (Trigger, bool, error) {
	raw, err := s.client.HGet(ctx, s.triggersKey(), string(h)).Result()
	if errors.Is(err, redis.Nil) {
		return Trigger{}, false, nil
	}
	if err != nil {
		return Trigger{}, false, fmt.Errorf("load trigger %s: %w", h, err)
	}
	var t Trigger
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Trigger{}, false, fmt.Errorf("decode trigger %s: %w", h, err)
	}
	return t, true, nil
}

// Fire returns the registrations due in the minute containing now. Each
// occurrence is claimed with SETNX so concurrent pollers fire it once.
// Entries that fail to decode are skipped and reported in the joined error.
func (s *RedisScheduler) Fire(ctx context.Context, now time.Time) ([]Event, error) {
	all, err := s.client.HGetAll(ctx, s.triggersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load triggers: %w", err)
	}
	minute := now.Truncate(time.Minute)

	var errs []error
	out := make([]Event, 0)
	for key, raw := range all {
		var t Trigger
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			errs = append(errs, fmt.Errorf("decode trigger %s: %w", key, err))
			continue
		}
		if !t.Matches(now) {
			continue
		}
		h := Handle(key)
		claimed, err := s.client.SetNX(ctx, s.firedKey(h, minute), 1, firedKeyTTL).Result()
		if err != nil {
			errs = append(errs, fmt.Errorf("claim %s: %w", key, err))
			continue
		}
		if !claimed {
			continue
		}
		out = append(out, Event{Handle: h, Trigger: t, FiredAt: minute})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, errors.Join(errs...)
}

// Run polls every tick until ctx is done and forwards fired events to out.
// Poll errors go to onError and do not stop the loop.
func (s *RedisScheduler) Run(ctx context.Context, tick time.Duration, out chan<- Event, onError func(error)) error {
	if tick <= 0 {
		return fmt.Errorf("scheduler: tick must be positive, got %s", tick)
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		events, err := s.Fire(ctx, s.now())
		if err != nil && onError != nil {
			onError(err)
		}
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
