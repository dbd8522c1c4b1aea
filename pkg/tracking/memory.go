package tracking

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. Selectable as a backend for
// single-instance development runs; also what the pipeline tests use.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryStore creates an in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func clone(rec *Record) *Record {
	cp := *rec
	if rec.Metrics != nil {
		m := *rec.Metrics
		cp.Metrics = &m
	}
	if rec.ProcessedAt != nil {
		t := *rec.ProcessedAt
		cp.ProcessedAt = &t
	}
	return &cp
}

// CreatePending stores rec if no record exists for its key. The mutex makes
// the check-and-insert a single step for concurrent callers.
func (s *MemoryStore) CreatePending(ctx context.Context, rec *Record) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.Key]; ok {
		return clone(existing), false, nil
	}
	s.records[rec.Key] = clone(rec)
	return nil, true, nil
}

// Get returns the record for key.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(rec), nil
}

// Complete transitions the record to completed.
func (s *MemoryStore) Complete(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.Key]; ok && existing.Status == StatusCompleted {
		if existing.OutputPath == rec.OutputPath {
			return nil
		}
		return ErrConflict
	}
	s.records[rec.Key] = clone(rec)
	return nil
}

// DeletePending removes the record only while pending.
func (s *MemoryStore) DeletePending(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[key]; ok && existing.Status == StatusPending {
		delete(s.records, key)
	}
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Name returns "memory".
func (s *MemoryStore) Name() string {
	return "memory"
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
