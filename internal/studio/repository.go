package studio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"scriptcast/internal/script"
)

var (
	// ErrNotFound is returned when a script (or a segment index within one)
	// does not exist.
	ErrNotFound = errors.New("script not found")

	// ErrBadIndex is returned when a segment index is outside the script's
	// segment list.
	ErrBadIndex = errors.New("segment index out of range")
)

// Repository is the concurrency-safe access layer for scripts. It serializes
// all Store operations behind one mutex, which also makes segment updates
// read-modify-write safe regardless of the backing store. Reads return deep
// copies and writes store deep copies, so a script handed to a caller is
// never mutated by a concurrent update.
type Repository struct {
	mu    sync.RWMutex
	store Store
}

// NewRepository constructs a repository over the given Store.
func NewRepository(store Store) *Repository {
	return &Repository{store: store}
}

// Save persists a script, overwriting any previous version with the same ID.
func (r *Repository) Save(ctx context.Context, sc *script.Script) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Set(ctx, cloneScript(sc))
}

// Get returns the script with the given ID or ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (*script.Script, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sc, ok, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneScript(sc), nil
}

// List returns all stored scripts, newest first.
func (r *Repository) List(ctx context.Context) ([]*script.Script, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	scripts := make([]*script.Script, 0, len(stored))
	for _, sc := range stored {
		scripts = append(scripts, cloneScript(sc))
	}
	sort.Slice(scripts, func(i, j int) bool {
		return scripts[i].CreatedAt.After(scripts[j].CreatedAt)
	})
	return scripts, nil
}

// Delete removes a script. Deleting a missing script returns ErrNotFound so
// the caller can distinguish it from a successful delete.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.store.Delete(ctx, id)
}

// UpdateSegment replaces the text and visual description of one segment,
// keeping its timing and label, and returns the updated script. Empty text is
// rejected because a segment with nothing to speak cannot be played.
func (r *Repository) UpdateSegment(ctx context.Context, id string, index int, text, visual string) (*script.Script, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc, ok, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if index < 0 || index >= len(sc.Segments) {
		return nil, fmt.Errorf("%w: %d of %d", ErrBadIndex, index, len(sc.Segments))
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", script.ErrInvalidSegment)
	}

	updated := cloneScript(sc)
	updated.Segments[index].Text = text
	updated.Segments[index].Visual = visual
	if err := r.store.Set(ctx, updated); err != nil {
		return nil, err
	}
	return cloneScript(updated), nil
}

// cloneScript deep-copies a script, including its segment and source slices.
// Stored scripts are only ever replaced with new copies, never edited in
// place, so pointers already handed out stay stable.
func cloneScript(sc *script.Script) *script.Script {
	out := *sc
	out.Segments = append([]script.Segment(nil), sc.Segments...)
	out.Sources = append([]script.Source(nil), sc.Sources...)
	return &out
}
