package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

var _ CustomPresetRepository = (*MemoryStore)(nil)

// MemoryStore keeps custom presets in process memory. It backs the API server
// when neither a database nor a preset file is configured, so presets last
// until restart.
type MemoryStore struct {
	mu       sync.RWMutex
	presets  map[string]*CustomPreset
	revision int64
	now      func() time.Time
}

// NewMemoryStore creates an empty store, optionally seeded.
func NewMemoryStore(seed ...*CustomPreset) *MemoryStore {
	s := &MemoryStore{presets: make(map[string]*CustomPreset), now: time.Now}
	for _, p := range seed {
		cp := *p
		s.presets[p.ID] = &cp
	}
	return s
}

// List returns copies of all presets ordered by id.
func (s *MemoryStore) List(_ context.Context) ([]*CustomPreset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*CustomPreset, 0, len(s.presets))
	for _, p := range s.presets {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns a copy of one preset.
func (s *MemoryStore) Get(_ context.Context, id string) (*CustomPreset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.presets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *p
	return &cp, nil
}

// Create stores a copy of p.
func (s *MemoryStore) Create(_ context.Context, p *CustomPreset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.presets[p.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, p.ID)
	}
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	s.presets[p.ID] = &cp
	s.revision++
	return nil
}

// Delete removes one preset.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.presets[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.presets, id)
	s.revision++
	return nil
}

// Version returns the mutation counter.
func (s *MemoryStore) Version(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision, nil
}
