package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/peterbourgon/diskv/v3"

	"github.com/sandeepkv93/medremind/internal/model"
)

type DiskvRepository struct {
	d   *diskv.Diskv
	key string
}

func NewDiskvRepository(basePath, key string) (*DiskvRepository, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, errors.New("storage: diskv repository needs a base path")
	}
	if key == "" {
		key = DefaultKey
	}
	d := diskv.New(diskv.Options{
		BasePath:     basePath,
		Transform:    func(string) []string { return []string{} },
		CacheSizeMax: 1024 * 1024,
	})
	return &DiskvRepository{d: d, key: key}, nil
}

func (r *DiskvRepository) Load(_ context.Context) ([]model.Reminder, error) {
	if !r.d.Has(r.key) {
		return []model.Reminder{}, nil
	}
	raw, err := r.d.Read(r.key)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.Reminder{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", r.key, err)
	}
	return Decode(raw)
}

func (r *DiskvRepository) Save(_ context.Context, items []model.Reminder) error {
	payload, err := Encode(items)
	if err != nil {
		return err
	}
	if err := r.d.Write(r.key, payload); err != nil {
		return fmt.Errorf("write %s: %w", r.key, err)
	}
	return nil
}

func (r *DiskvRepository) Close() error { return nil }
