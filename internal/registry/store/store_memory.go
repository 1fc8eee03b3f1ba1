package store

import (
	"context"
	"sync"

	"civreg/internal/registry"
	"civreg/pkg/platform/sentinel"
)

// InMemory holds a registry extract for tests and local runs. Reference data
// only: records are seeded up front and never mutated by the engine.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]registry.Record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]registry.Record)}
}

// Seed loads records into the extract. Not part of the registry.Store
// contract; the engine itself never writes here.
func (s *InMemory) Seed(records ...registry.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.NationalID] = r
	}
}

func (s *InMemory) FindByNationalID(_ context.Context, nationalID string) (registry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[nationalID]; ok {
		return record, nil
	}
	return registry.Record{}, sentinel.ErrNotFound
}
