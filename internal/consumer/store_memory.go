package consumer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	id "idecide/pkg/domain"
	"idecide/pkg/platform/sentinel"
)

// InMemoryStore keeps consumers in memory for tests and local development.
type InMemoryStore struct {
	mu        sync.RWMutex
	consumers map[id.ConsumerID]*Consumer
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{consumers: make(map[id.ConsumerID]*Consumer)}
}

func (s *InMemoryStore) Insert(_ context.Context, c *Consumer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consumers[c.ID]; ok {
		return fmt.Errorf("consumer %s already exists: %w", c.ID, sentinel.ErrConflict)
	}
	for _, existing := range s.consumers {
		if strings.EqualFold(existing.Name, c.Name) {
			return fmt.Errorf("consumer name %q taken: %w", c.Name, sentinel.ErrConflict)
		}
	}
	stored := *c
	stored.Version = 1
	s.consumers[c.ID] = &stored
	c.Version = stored.Version
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, consumerID id.ConsumerID) (*Consumer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.consumers[consumerID]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, fmt.Errorf("consumer %s: %w", consumerID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) Update(_ context.Context, c *Consumer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.consumers[c.ID]
	if !ok {
		return fmt.Errorf("consumer %s: %w", c.ID, sentinel.ErrNotFound)
	}
	if current.Version != c.Version {
		return fmt.Errorf("consumer %s version %d moved to %d: %w",
			c.ID, c.Version, current.Version, sentinel.ErrLocked)
	}
	stored := *c
	stored.Version = current.Version + 1
	s.consumers[c.ID] = &stored
	c.Version = stored.Version
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]Consumer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Consumer, 0, len(s.consumers))
	for _, c := range s.consumers {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
