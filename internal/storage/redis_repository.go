package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/medremind/internal/model"
)

// RedisRepository keeps the collection in one Redis string. The client is
// owned by the caller; Close does not close it.
type RedisRepository struct {
	client *redis.Client
	key    string
}

func NewRedisRepository(client *redis.Client, prefix, key string) (*RedisRepository, error) {
	if client == nil {
		return nil, errors.New("storage: nil redis client")
	}
	if key == "" {
		key = DefaultKey
	}
	if prefix != "" {
		key = prefix + ":" + key
	}
	return &RedisRepository{client: client, key: key}, nil
}

func (r *RedisRepository) Load(ctx context.Context) ([]model.Reminder, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []model.Reminder{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load reminders: %w", err)
	}
	return Decode(raw)
}

func (r *RedisRepository) Save(ctx context.Context, items []model.Reminder) error {
	payload, err := Encode(items)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("save reminders: %w", err)
	}
	return nil
}

func (r *RedisRepository) Close() error { return nil }
