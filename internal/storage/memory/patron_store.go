package memory

import (
	"context"
	"sort"
	"sync"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/storage"
)

// PatronStore is an in-memory implementation of storage.PatronStore.
type PatronStore struct {
	mu   sync.RWMutex
	data map[string]domain.Patron // keyed by claimant_id
}

// NewPatronStore creates a new in-memory patron store.
func NewPatronStore() *PatronStore {
	return &PatronStore{data: make(map[string]domain.Patron)}
}

// Compile-time interface check.
var _ storage.PatronStore = (*PatronStore)(nil)

// Upsert adds a patron or updates its tier.
func (s *PatronStore) Upsert(_ context.Context, p *domain.Patron) error {
	if p == nil || p.ClaimantID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[p.ClaimantID]; ok {
		existing.Tier = p.Tier
		s.data[p.ClaimantID] = existing
		return nil
	}
	s.data[p.ClaimantID] = *p
	return nil
}

// Remove deletes a patron. Returns ErrNotFound if not exists.
func (s *PatronStore) Remove(_ context.Context, claimantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[claimantID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.data, claimantID)
	return nil
}

// List returns all patrons ordered by claimant id.
func (s *PatronStore) List(_ context.Context) ([]*domain.Patron, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Patron, 0, len(s.data))
	for _, p := range s.data {
		patron := p
		result = append(result, &patron)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ClaimantID < result[j].ClaimantID
	})
	return result, nil
}
