package studio

import (
	"context"

	"scriptcast/internal/script"
)

// Store is the persistence abstraction for generated scripts.
// Implementations can be in-memory or remote (Redis). The Repository uses
// Store for all reads and writes; callers of Repository do not need to know
// which Store is used. Stores are not required to be concurrency-safe; the
// Repository serializes access.
type Store interface {
	Get(ctx context.Context, id string) (*script.Script, bool, error)
	Set(ctx context.Context, s *script.Script) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*script.Script, error)
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	scripts map[string]*script.Script
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		scripts: make(map[string]*script.Script),
	}
}

// Get implements Store.Get.
func (s *InMemoryStore) Get(_ context.Context, id string) (*script.Script, bool, error) {
	sc, ok := s.scripts[id]
	return sc, ok, nil
}

// Set implements Store.Set.
func (s *InMemoryStore) Set(_ context.Context, sc *script.Script) error {
	s.scripts[sc.ID] = sc
	return nil
}

// Delete implements Store.Delete.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	delete(s.scripts, id)
	return nil
}

// List implements Store.List.
func (s *InMemoryStore) List(_ context.Context) ([]*script.Script, error) {
	out := make([]*script.Script, 0, len(s.scripts))
	for _, sc := range s.scripts {
		out = append(out, sc)
	}
	return out, nil
}
