package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sandeepkv93/medremind/internal/model"
)

// FileRepository stores the collection as <dir>/<key>.json, replacing the
// file atomically on every save.
type FileRepository struct {
	path string
}

func NewFileRepository(dir, key string) (*FileRepository, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage: file repository needs a directory")
	}
	if key == "" {
		key = DefaultKey
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileRepository{path: filepath.Join(dir, key+".json")}, nil
}

// Path is the file the collection lives in.
func (r *FileRepository) Path() string {
	return r.path
}

func (r *FileRepository) Load(_ context.Context) ([]model.Reminder, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.Reminder{}, nil
		}
		return nil, err
	}
	return Decode(raw)
}

func (r *FileRepository) Save(_ context.Context, items []model.Reminder) error {
	payload, err := Encode(items)
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, append(payload, '\n'), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

func (r *FileRepository) Close() error { return nil }
