// Package history records finished generation batches.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/remote"
)

// DefaultLimit is the number of entries kept when no limit is configured.
const DefaultLimit = 50

// Entry is one completed generation.
type Entry struct {
	TaskID     string                   `json:"task_id"`
	Params     remote.Params            `json:"params"`
	Message    string                   `json:"message"`
	Results    []remote.AssetDescriptor `json:"results"`
	FinishedAt time.Time                `json:"finished_at"`
}

// Store keeps the most recent entries, newest first.
type Store interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
}

// NewMemoryStore creates a store holding at most limit entries.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &MemoryStore{limit: limit}
}

func (s *MemoryStore) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.Results = append([]remote.AssetDescriptor(nil), e.Results...)
	e.Params.Melody = nil
	s.entries = append([]Entry{e}, s.entries...)
	if len(s.entries) > s.limit {
		s.entries = s.entries[:s.limit]
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, n)
	copy(out, s.entries[:n])
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
