// Package citizen persists citizen records. Both implementations provide the
// same Execute contract: the validate-then-mutate sequence runs under a
// per-entity lock, so two concurrent transitions on one citizen serialize and
// the loser observes the post-transition state. Distinct citizens never
// contend.
package citizen

import (
	"context"
	"sync"

	"civreg/internal/registration/models"
	id "civreg/pkg/domain"
	"civreg/pkg/platform/sentinel"
)

type InMemory struct {
	mu           sync.RWMutex
	citizens     map[id.CitizenID]*models.Citizen
	byNationalID map[string]id.CitizenID
	locks        map[id.CitizenID]*sync.Mutex
}

func NewInMemory() *InMemory {
	return &InMemory{
		citizens:     make(map[id.CitizenID]*models.Citizen),
		byNationalID: make(map[string]id.CitizenID),
		locks:        make(map[id.CitizenID]*sync.Mutex),
	}
}

// Create stores a new citizen. Returns sentinel.ErrConflict when the national
// ID is already registered (one registry record, at most one citizen).
func (s *InMemory) Create(_ context.Context, c *models.Citizen) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byNationalID[c.NationalID]; taken {
		return sentinel.ErrConflict
	}
	s.citizens[c.ID] = c.Clone()
	s.byNationalID[c.NationalID] = c.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, citizenID id.CitizenID) (*models.Citizen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.citizens[citizenID]; ok {
		return c.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindByNationalID(_ context.Context, nationalID string) (*models.Citizen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cid, ok := s.byNationalID[nationalID]; ok {
		return s.citizens[cid].Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

// Execute runs validate then mutate on the citizen under its entity lock and
// persists the result. The lock covers the whole read-check-write sequence;
// validation failures leave stored state untouched.
func (s *InMemory) Execute(
	_ context.Context,
	citizenID id.CitizenID,
	validate func(*models.Citizen) error,
	mutate func(*models.Citizen),
) (*models.Citizen, error) {
	lock := s.entityLock(citizenID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	stored, ok := s.citizens[citizenID]
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
	s.citizens[citizenID] = working.Clone()
	s.mu.Unlock()

	return working, nil
}

func (s *InMemory) entityLock(citizenID id.CitizenID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[citizenID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[citizenID] = lock
	}
	return lock
}
