package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	rferrors "github.com/reportflow/reportflow/pkg/errors"
)

// LocalStore serves objects from a directory tree: one subdirectory per
// container, object keys as relative paths. Backs the watch mode and tests.
type LocalStore struct {
	root string
}

// NewLocalStore creates a filesystem-backed object store rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, rferrors.Wrap(err, rferrors.CodeStoreUnavailable, "failed to create storage root")
	}
	return &LocalStore{root: dir}, nil
}

func (s *LocalStore) path(container, key string) string {
	return filepath.Join(s.root, container, filepath.FromSlash(key))
}

// Read returns an object's content.
func (s *LocalStore) Read(ctx context.Context, container, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(container, key))
	if os.IsNotExist(err) {
		return nil, rferrors.New(rferrors.CodeNotFound, "object not found").
			WithContext("container", container).WithContext("key", key)
	}
	if os.IsPermission(err) {
		return nil, rferrors.Wrap(err, rferrors.CodePermission, "object read denied").
			WithContext("container", container).WithContext("key", key)
	}
	if err != nil {
		return nil, rferrors.Wrap(err, rferrors.CodeStoreUnavailable, "object read failed").
			WithContext("container", container).WithContext("key", key)
	}
	return data, nil
}

// Write stores an object via temp-file rename so readers never observe a
// partial object.
func (s *LocalStore) Write(ctx context.Context, container, key string, data []byte, contentType string) error {
	path := s.path(container, key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return rferrors.Wrap(err, rferrors.CodeStoreUnavailable, "object write failed")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return rferrors.Wrap(err, rferrors.CodeStoreUnavailable, "object write failed")
	}
	if err := os.Rename(tmp, path); err != nil {
		return rferrors.Wrap(err, rferrors.CodeStoreUnavailable, "object write failed")
	}
	return nil
}

// Exists reports object presence.
func (s *LocalStore) Exists(ctx context.Context, container, key string) (bool, error) {
	_, err := os.Stat(s.path(container, key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, rferrors.Wrap(err, rferrors.CodeStoreUnavailable, "object stat failed")
	}
	return true, nil
}

// List returns the keys under prefix, in slash form.
func (s *LocalStore) List(ctx context.Context, container, prefix string) ([]string, error) {
	base := filepath.Join(s.root, container)
	var keys []string

	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, rferrors.Wrap(err, rferrors.CodeStoreUnavailable, "object list failed")
	}
	return keys, nil
}

// Name returns "local".
func (s *LocalStore) Name() string {
	return "local"
}
