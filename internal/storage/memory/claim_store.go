package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/storage"
)

type claimKey struct {
	username   string
	claimantID string
}

// ClaimStore is an in-memory implementation of storage.ClaimStore.
type ClaimStore struct {
	mu      sync.Mutex
	data    map[string]*domain.Claim // keyed by code
	pending map[claimKey]string      // (username, claimant) -> code of the pending claim
	newCode func() string
}

// NewClaimStore creates a new in-memory claim store.
func NewClaimStore() *ClaimStore {
	return &ClaimStore{
		data:    make(map[string]*domain.Claim),
		pending: make(map[claimKey]string),
		newCode: uuid.NewString,
	}
}

// Compile-time interface check.
var _ storage.ClaimStore = (*ClaimStore)(nil)

// GetOrCreateClaim implements storage.ClaimStore.
func (s *ClaimStore) GetOrCreateClaim(_ context.Context, username, claimantID, channelID string, now time.Time) (string, bool, error) {
	username = domain.NormalizeUsername(username)
	if username == "" || claimantID == "" {
		return "", false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := claimKey{username: username, claimantID: claimantID}
	if code, ok := s.pending[k]; ok {
		c := s.data[code]
		c.LastTouched = now
		if channelID != "" {
			c.ChannelID = channelID
		}
		return code, false, nil
	}

	code := s.newCode()
	s.data[code] = &domain.Claim{
		Code:           code,
		ClaimantID:     claimantID,
		LedgerUsername: username,
		ChannelID:      channelID,
		Status:         domain.ClaimPending,
		CreatedAt:      now,
		LastTouched:    now,
	}
	s.pending[k] = code
	return code, true, nil
}

// FindPendingClaimForPayment implements storage.ClaimStore.
func (s *ClaimStore) FindPendingClaimForPayment(_ context.Context, memo, payer string) (*domain.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.data[memo]
	if !ok || c.Status != domain.ClaimPending || c.LedgerUsername != domain.NormalizeUsername(payer) {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrCorruptClaim, err)
	}
	return copyClaim(c), nil
}

// Confirm implements storage.ClaimStore.
func (s *ClaimStore) Confirm(_ context.Context, code string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.data[code]
	if !ok || c.Status != domain.ClaimPending {
		return false, nil
	}
	confirmedAt := now
	c.Status = domain.ClaimConfirmed
	c.ConfirmedAt = &confirmedAt
	delete(s.pending, claimKey{username: c.LedgerUsername, claimantID: c.ClaimantID})
	return true, nil
}

// CountRecentPending implements storage.ClaimStore.
func (s *ClaimStore) CountRecentPending(_ context.Context, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, code := range s.pending {
		if !s.data[code].LastTouched.Before(since) {
			n++
		}
	}
	return n, nil
}

// GetByCode implements storage.ClaimStore.
func (s *ClaimStore) GetByCode(_ context.Context, code string) (*domain.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.data[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyClaim(c), nil
}

// ListConfirmed implements storage.ClaimStore.
func (s *ClaimStore) ListConfirmed(_ context.Context, claimantIDs []string) ([]*domain.Claim, error) {
	want := make(map[string]struct{}, len(claimantIDs))
	for _, id := range claimantIDs {
		want[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Claim
	for _, c := range s.data {
		if c.Status != domain.ClaimConfirmed {
			continue
		}
		if _, ok := want[c.ClaimantID]; ok {
			result = append(result, copyClaim(c))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].LedgerUsername != result[j].LedgerUsername {
			return result[i].LedgerUsername < result[j].LedgerUsername
		}
		return result[i].Code < result[j].Code
	})
	return result, nil
}

// Put stores a claim as-is, bypassing validation. Used to seed fixtures.
func (s *ClaimStore) Put(c *domain.Claim) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[c.Code] = copyClaim(c)
	if c.Status == domain.ClaimPending {
		s.pending[claimKey{username: c.LedgerUsername, claimantID: c.ClaimantID}] = c.Code
	}
}

func copyClaim(c *domain.Claim) *domain.Claim {
	out := *c
	if c.ConfirmedAt != nil {
		t := *c.ConfirmedAt
		out.ConfirmedAt = &t
	}
	return &out
}
