package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LocalStore persists records as JSON files under a directory. The atomic
// conditional create is O_CREATE|O_EXCL. Meant for development and the
// local watch mode, not for multi-host deployments.
type LocalStore struct {
	dir string
	mu  sync.Mutex
}

// NewLocalStore creates a file-backed record store.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tracking directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".json")
}

// CreatePending writes the record with O_EXCL so exactly one concurrent
// caller wins the create.
func (s *LocalStore) CreatePending(ctx context.Context, rec *Record) (*Record, bool, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal record: %w", err)
	}

	f, err := os.OpenFile(s.path(rec.Key), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if os.IsExist(err) {
		existing, getErr := s.Get(ctx, rec.Key)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("conditional create failed: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(s.path(rec.Key))
		return nil, false, fmt.Errorf("failed to write record: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, false, err
	}
	return nil, true, nil
}

// Get reads a record from disk.
func (s *LocalStore) Get(ctx context.Context, key string) (*Record, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

// Complete rewrites the record as completed via temp-file rename.
func (s *LocalStore) Complete(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.Get(ctx, rec.Key)
	if err != nil && err != ErrNotFound {
		return err
	}
	if existing != nil && existing.Status == StatusCompleted {
		if existing.OutputPath == rec.OutputPath {
			return nil
		}
		return ErrConflict
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tmp := s.path(rec.Key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return os.Rename(tmp, s.path(rec.Key))
}

// DeletePending removes the record only while pending.
func (s *LocalStore) DeletePending(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.Get(ctx, key)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.Status != StatusPending {
		return nil
	}
	return os.Remove(s.path(key))
}

// Ping verifies the directory is writable.
func (s *LocalStore) Ping(ctx context.Context) error {
	_, err := os.Stat(s.dir)
	return err
}

// Name returns "local".
func (s *LocalStore) Name() string {
	return "local"
}

// Close is a no-op for the file store.
func (s *LocalStore) Close() error {
	return nil
}
