package patient

import (
	"context"
	"fmt"
	"sync"

	id "idecide/pkg/domain"
	"idecide/pkg/platform/sentinel"
)

// InMemoryStore keeps patients in memory for tests and local development.
// It enforces the same uniqueness and optimistic-concurrency contract as the
// postgres store so services behave identically against either.
type InMemoryStore struct {
	mu       sync.RWMutex
	patients map[id.PatientID]*Patient
	byNHS    map[string]id.PatientID
}

// NewInMemoryStore constructs an empty in-memory patient store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		patients: make(map[id.PatientID]*Patient),
		byNHS:    make(map[string]id.PatientID),
	}
}

func (s *InMemoryStore) Insert(_ context.Context, p *Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[p.ID]; ok {
		return fmt.Errorf("patient %s already exists: %w", p.ID, sentinel.ErrConflict)
	}
	if _, ok := s.byNHS[p.NHSNumber]; ok {
		return fmt.Errorf("nhs number already registered: %w", sentinel.ErrConflict)
	}
	stored := *p
	stored.Version = 1
	s.patients[p.ID] = &stored
	s.byNHS[p.NHSNumber] = p.ID
	p.Version = stored.Version
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, patientID id.PatientID) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.patients[patientID]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, fmt.Errorf("patient %s: %w", patientID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindByNHSNumber(_ context.Context, nhsNumber string) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if patientID, ok := s.byNHS[nhsNumber]; ok {
		copied := *s.patients[patientID]
		return &copied, nil
	}
	return nil, fmt.Errorf("patient with nhs number: %w", sentinel.ErrNotFound)
}

// Update applies the write only when the caller's Version matches the stored
// one. The losing writer in a race gets ErrLocked and must re-read.
func (s *InMemoryStore) Update(_ context.Context, p *Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.patients[p.ID]
	if !ok {
		return fmt.Errorf("patient %s: %w", p.ID, sentinel.ErrNotFound)
	}
	if current.Version != p.Version {
		return fmt.Errorf("patient %s version %d moved to %d: %w",
			p.ID, p.Version, current.Version, sentinel.ErrLocked)
	}
	stored := *p
	stored.Version = current.Version + 1
	s.patients[p.ID] = &stored
	p.Version = stored.Version
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, patientID id.PatientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[patientID]
	if !ok {
		return fmt.Errorf("patient %s: %w", patientID, sentinel.ErrNotFound)
	}
	delete(s.byNHS, p.NHSNumber)
	delete(s.patients, patientID)
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Patient, 0, len(s.patients))
	for _, p := range s.patients {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}
