// Package registry exposes the national identity registry to the engine.
//
// The registry is authoritative, immutable reference data: the engine looks
// records up by national identity number and never writes back. Clients keep
// the interface small so tests can stub quickly.
package registry

import (
	"context"
	"time"

	"civreg/pkg/platform/sentinel"
)

// Record is the authoritative identity record held by the national registry.
// Biometrics fields are placeholders carried for the biometric verification
// stage; the engine treats them as opaque.
type Record struct {
	NationalID  string
	FirstName   string
	MiddleName  string
	LastName    string
	DateOfBirth string // YYYY-MM-DD
	Gender      string
	Household   string
	Ward        string
	District    string
	Biometrics  []byte
}

// Client looks up registry records. Absence is reported as
// sentinel.ErrNotFound; transient outages as sentinel.ErrUnavailable so
// callers can distinguish "no such person" from "registry down".
type Client interface {
	Lookup(ctx context.Context, nationalID string) (Record, error)
}

// Store is the persistence contract for a locally mirrored registry extract.
type Store interface {
	FindByNationalID(ctx context.Context, nationalID string) (Record, error)
}

// StoreClient serves lookups from a mirrored registry extract.
type StoreClient struct {
	store Store
}

func NewStoreClient(store Store) *StoreClient {
	return &StoreClient{store: store}
}

func (c *StoreClient) Lookup(ctx context.Context, nationalID string) (Record, error) {
	return c.store.FindByNationalID(ctx, nationalID)
}

// MockClient returns deterministic records with configurable latency to mimic
// the real registry in tests and local runs.
type MockClient struct {
	Latency time.Duration
	// Records keyed by national ID; lookups miss with sentinel.ErrNotFound.
	Records map[string]Record
	// Down simulates a registry outage.
	Down bool
}

func (c *MockClient) Lookup(_ context.Context, nationalID string) (Record, error) {
	time.Sleep(c.Latency)
	if c.Down {
		return Record{}, sentinel.ErrUnavailable
	}
	if record, ok := c.Records[nationalID]; ok {
		return record, nil
	}
	return Record{}, sentinel.ErrNotFound
}
