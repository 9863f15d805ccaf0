package reports

import (
	"context"
	"strings"
	"sync"
)

// InMemoryStore keeps records in process for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]Record)}
}

func (s *InMemoryStore) SaveReport(_ context.Context, record Record) error {
	if strings.TrimSpace(record.CandidateID) == "" {
		return ErrMissingCandidate
	}
	fillDefaults(&record)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.CandidateID] = append(s.records[record.CandidateID], record)
	return nil
}

// ListByCandidate returns the newest records first.
func (s *InMemoryStore) ListByCandidate(_ context.Context, candidateID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[candidateID]
	limit = normalizeLimit(limit)
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Record, 0, limit)
	for i := len(arr) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
