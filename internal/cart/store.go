package cart

import (
	"context"
	"sync"
)

// Store persists cart records by cart id. Load of an unknown id returns
// empty Records and no error.
type Store interface {
	Load(ctx context.Context, id string) (Records, error)
	Save(ctx context.Context, id string, r Records) error
	Delete(ctx context.Context, id string) error
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps records in process memory. It backs tests and
// single-node development runs without Redis.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Records
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Records)}
}

func (s *MemoryStore) Load(_ context.Context, id string) (Records, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[id], nil
}

func (s *MemoryStore) Save(_ context.Context, id string, r Records) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = r
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}
