package decisiontype

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	id "idecide/pkg/domain"
	"idecide/pkg/platform/sentinel"
)

// InMemoryStore keeps decision types in memory for tests and local
// development.
type InMemoryStore struct {
	mu    sync.RWMutex
	types map[id.DecisionTypeID]*DecisionType
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{types: make(map[id.DecisionTypeID]*DecisionType)}
}

func (s *InMemoryStore) Insert(_ context.Context, d *DecisionType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.types[d.ID]; ok {
		return fmt.Errorf("decision type %s already exists: %w", d.ID, sentinel.ErrConflict)
	}
	for _, existing := range s.types {
		if strings.EqualFold(existing.Name, d.Name) {
			return fmt.Errorf("decision type name %q taken: %w", d.Name, sentinel.ErrConflict)
		}
	}
	stored := *d
	stored.Version = 1
	s.types[d.ID] = &stored
	d.Version = stored.Version
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, typeID id.DecisionTypeID) (*DecisionType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.types[typeID]; ok {
		copied := *d
		return &copied, nil
	}
	return nil, fmt.Errorf("decision type %s: %w", typeID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) Update(_ context.Context, d *DecisionType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.types[d.ID]
	if !ok {
		return fmt.Errorf("decision type %s: %w", d.ID, sentinel.ErrNotFound)
	}
	if current.Version != d.Version {
		return fmt.Errorf("decision type %s version %d moved to %d: %w",
			d.ID, d.Version, current.Version, sentinel.ErrLocked)
	}
	stored := *d
	stored.Version = current.Version + 1
	s.types[d.ID] = &stored
	d.Version = stored.Version
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, typeID id.DecisionTypeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.types[typeID]; !ok {
		return fmt.Errorf("decision type %s: %w", typeID, sentinel.ErrNotFound)
	}
	delete(s.types, typeID)
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]DecisionType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DecisionType, 0, len(s.types))
	for _, d := range s.types {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
