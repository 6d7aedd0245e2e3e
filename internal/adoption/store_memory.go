package adoption

import (
	"context"
	"fmt"
	"sort"
	"sync"

	id "idecide/pkg/domain"
	"idecide/pkg/platform/sentinel"
)

type pairKey struct {
	consumer id.ConsumerID
	decision id.DecisionID
}

// InMemoryStore keeps adoptions in memory for tests and local development.
type InMemoryStore struct {
	mu    sync.RWMutex
	rows  map[id.AdoptionID]*ConsumerAdoption
	pairs map[pairKey]id.AdoptionID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rows:  make(map[id.AdoptionID]*ConsumerAdoption),
		pairs: make(map[pairKey]id.AdoptionID),
	}
}

func (s *InMemoryStore) BulkUpsert(_ context.Context, rows []ConsumerAdoption) ([]ConsumerAdoption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted []ConsumerAdoption
	duplicates := 0
	for _, row := range rows {
		key := pairKey{consumer: row.ConsumerID, decision: row.DecisionID}
		if _, ok := s.pairs[key]; ok {
			duplicates++
			continue
		}
		stored := row
		s.rows[row.ID] = &stored
		s.pairs[key] = row.ID
		inserted = append(inserted, row)
	}
	if duplicates > 0 {
		return inserted, fmt.Errorf("%d adoption rows already exist: %w", duplicates, sentinel.ErrConflict)
	}
	return inserted, nil
}

func (s *InMemoryStore) ListByConsumer(_ context.Context, consumerID id.ConsumerID) ([]ConsumerAdoption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ConsumerAdoption
	for _, row := range s.rows {
		if row.ConsumerID == consumerID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AdoptionDate.Equal(out[j].AdoptionDate) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].AdoptionDate.Before(out[j].AdoptionDate)
	})
	return out, nil
}
