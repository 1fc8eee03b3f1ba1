// Package request persists document requests. The Execute contract matches
// the citizen store: validate-then-mutate runs under a per-request lock, so
// concurrent decisions on one request serialize and the loser observes the
// decided state.
package request

import (
	"context"
	"sort"
	"sync"

	"civreg/internal/document/models"
	id "civreg/pkg/domain"
	"civreg/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	requests map[id.DocumentRequestID]*models.Request
	locks    map[id.DocumentRequestID]*sync.Mutex
}

func NewInMemory() *InMemory {
	return &InMemory{
		requests: make(map[id.DocumentRequestID]*models.Request),
		locks:    make(map[id.DocumentRequestID]*sync.Mutex),
	}
}

func (s *InMemory) Create(_ context.Context, r *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[r.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[r.ID] = r.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, requestID id.DocumentRequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.requests[requestID]; ok {
		return r.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

// ListByCitizen returns a citizen's requests ordered by creation time.
func (s *InMemory) ListByCitizen(_ context.Context, citizenID id.CitizenID) ([]models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Request
	for _, r := range s.requests {
		if r.CitizenID == citizenID {
			out = append(out, *r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Execute runs validate then mutate on the request under its entity lock and
// persists the result. Validation failures leave stored state untouched.
func (s *InMemory) Execute(
	_ context.Context,
	requestID id.DocumentRequestID,
	validate func(*models.Request) error,
	mutate func(*models.Request),
) (*models.Request, error) {
	lock := s.entityLock(requestID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	stored, ok := s.requests[requestID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	working := stored.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)

	s.mu.Lock()
	s.requests[requestID] = working.Clone()
	s.mu.Unlock()

	return working, nil
}

func (s *InMemory) entityLock(requestID id.DocumentRequestID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[requestID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[requestID] = lock
	}
	return lock
}
