package transcript

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory [Store] for tests and deployments without a
// database. Safe for concurrent use.
type MemStore struct {
	mu      sync.Mutex
	entries []Entry
	nextID  int64
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{nextID: 1}
}

// Append stores one entry, filling in its ID and CreatedAt.
func (s *MemStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.nextID
	s.nextID++
	entry.CreatedAt = time.Now()
	s.entries = append(s.entries, *entry)
	return nil
}

// Recent returns up to limit entries for the session in chronological order,
// oldest first. limit <= 0 returns all entries.
func (s *MemStore) Recent(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []Entry
	for _, e := range s.entries {
		if e.SessionID == sessionID {
			matched = append(matched, e)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return append([]Entry(nil), matched...), nil
}

// Ping always succeeds.
func (s *MemStore) Ping(context.Context) error { return nil }
