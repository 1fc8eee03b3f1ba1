// Package artifact stores signature images, stamp images, and composed
// documents, and renders the final artifact from a template.
//
// The engine treats image bytes as opaque: it checks present/absent and
// passes them through to the store, which returns opaque references.
package artifact

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"civreg/pkg/platform/sentinel"
)

// Kind distinguishes what a stored blob is, for reference readability only.
type Kind string

const (
	KindSignature Kind = "signature"
	KindStamp     Kind = "stamp"
	KindDocument  Kind = "document"
)

// Store accepts raw bytes and returns an opaque storable reference.
type Store interface {
	Put(ctx context.Context, kind Kind, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// InMemory keeps blobs in a map. Unit tests and single-process deployments.
type InMemory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewInMemory() *InMemory {
	return &InMemory{blobs: make(map[string][]byte)}
}

func (s *InMemory) Put(_ context.Context, kind Kind, data []byte) (string, error) {
	ref := fmt.Sprintf("%s/%s", kind, uuid.NewString())
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	s.blobs[ref] = copied
	return ref, nil
}

func (s *InMemory) Get(_ context.Context, ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if data, ok := s.blobs[ref]; ok {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	return nil, sentinel.ErrNotFound
}
