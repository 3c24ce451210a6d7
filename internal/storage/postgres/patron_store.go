package postgres

import (
	"context"
	"fmt"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/storage"
)

// PatronStore implements storage.PatronStore using PostgreSQL.
type PatronStore struct {
	pool *Pool
}

// NewPatronStore creates a new PatronStore.
func NewPatronStore(pool *Pool) *PatronStore {
	return &PatronStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PatronStore = (*PatronStore)(nil)

// Upsert adds a patron or updates its tier. Since is kept from the first insert.
func (s *PatronStore) Upsert(ctx context.Context, p *domain.Patron) error {
	if p == nil || p.ClaimantID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO patrons (claimant_id, tier, since)
		VALUES ($1, $2, $3)
		ON CONFLICT (claimant_id) DO UPDATE SET tier = EXCLUDED.tier
	`

	if _, err := s.pool.Exec(ctx, query, p.ClaimantID, p.Tier, p.Since.UTC()); err != nil {
		return fmt.Errorf("upsert patron: %w", err)
	}
	return nil
}

// Remove deletes a patron. Returns ErrNotFound if not exists.
func (s *PatronStore) Remove(ctx context.Context, claimantID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM patrons WHERE claimant_id = $1`, claimantID)
	if err != nil {
		return fmt.Errorf("delete patron: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List returns all patrons ordered by claimant id.
func (s *PatronStore) List(ctx context.Context) ([]*domain.Patron, error) {
	rows, err := s.pool.Query(ctx, `SELECT claimant_id, tier, since FROM patrons ORDER BY claimant_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query patrons: %w", err)
	}
	defer rows.Close()

	var result []*domain.Patron
	for rows.Next() {
		var p domain.Patron
		if err := rows.Scan(&p.ClaimantID, &p.Tier, &p.Since); err != nil {
			return nil, fmt.Errorf("scan patron: %w", err)
		}
		p.Since = p.Since.UTC()
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patrons: %w", err)
	}
	return result, nil
}
