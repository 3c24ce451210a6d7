package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/storage"
)

// OutcomeStore is an in-memory implementation of storage.OutcomeStore.
type OutcomeStore struct {
	mu      sync.RWMutex
	reports []domain.CycleReport
}

// NewOutcomeStore creates a new in-memory outcome store.
func NewOutcomeStore() *OutcomeStore {
	return &OutcomeStore{}
}

// Compile-time interface check.
var _ storage.OutcomeStore = (*OutcomeStore)(nil)

// Append records a report.
func (s *OutcomeStore) Append(_ context.Context, r *domain.CycleReport) error {
	if r == nil || r.Loop == "" || r.Outcome == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	report := *r
	report.Codes = append([]string(nil), r.Codes...)
	report.Refunds = append([]string(nil), r.Refunds...)
	s.reports = append(s.reports, report)
	return nil
}

// ListSince returns reports of loop started at or after since, oldest first.
func (s *OutcomeStore) ListSince(_ context.Context, loop domain.Loop, since time.Time) ([]*domain.CycleReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CycleReport
	for _, r := range s.reports {
		if loop != "" && r.Loop != loop {
			continue
		}
		if r.StartedAt.Before(since) {
			continue
		}
		report := r
		result = append(result, &report)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result, nil
}
