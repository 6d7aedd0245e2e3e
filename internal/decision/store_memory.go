package decision

import (
	"context"
	"fmt"
	"sort"
	"sync"

	id "idecide/pkg/domain"
	"idecide/pkg/platform/sentinel"
)

// InMemoryStore keeps decisions in memory for tests and local development.
// Foreign references are not enforced here; the recording workflow resolves
// patient and decision type before inserting, and the postgres store's
// constraints back it up.
type InMemoryStore struct {
	mu        sync.RWMutex
	decisions map[id.DecisionID]*Decision
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{decisions: make(map[id.DecisionID]*Decision)}
}

func (s *InMemoryStore) Insert(_ context.Context, d *Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.decisions[d.ID]; ok {
		return fmt.Errorf("decision %s already exists: %w", d.ID, sentinel.ErrConflict)
	}
	stored := *d
	stored.Version = 1
	s.decisions[d.ID] = &stored
	d.Version = stored.Version
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, decisionID id.DecisionID) (*Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.decisions[decisionID]; ok {
		copied := *d
		return &copied, nil
	}
	return nil, fmt.Errorf("decision %s: %w", decisionID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) Update(_ context.Context, d *Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.decisions[d.ID]
	if !ok {
		return fmt.Errorf("decision %s: %w", d.ID, sentinel.ErrNotFound)
	}
	if current.Version != d.Version {
		return fmt.Errorf("decision %s version %d moved to %d: %w",
			d.ID, d.Version, current.Version, sentinel.ErrLocked)
	}
	stored := *d
	stored.Version = current.Version + 1
	s.decisions[d.ID] = &stored
	d.Version = stored.Version
	return nil
}

func (s *InMemoryStore) ListByPatient(_ context.Context, patientID id.PatientID) ([]Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Decision
	for _, d := range s.decisions {
		if d.PatientID == patientID {
			out = append(out, *d)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *InMemoryStore) List(_ context.Context, f Filter) ([]Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Decision
	for _, d := range s.decisions {
		if f.From != nil && d.CreatedDate.Before(*f.From) {
			continue
		}
		if f.DecisionTypeID != nil && d.DecisionTypeID != *f.DecisionTypeID {
			continue
		}
		out = append(out, *d)
	}
	sortByCreated(out)
	return out, nil
}

func sortByCreated(ds []Decision) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].CreatedDate.Equal(ds[j].CreatedDate) {
			return ds[i].ID.String() < ds[j].ID.String()
		}
		return ds[i].CreatedDate.Before(ds[j].CreatedDate)
	})
}
