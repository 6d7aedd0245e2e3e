package audit

import (
	"context"
	"sync"

	id "idecide/pkg/domain"
)

// Store is the append-only audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByPatient(ctx context.Context, patientID id.PatientID) ([]Event, error)
}

// InMemoryStore keeps events in memory for tests and local development.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByPatient(_ context.Context, patientID id.PatientID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.PatientID == patientID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every stored event; test helper.
func (s *InMemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
