package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/storage"
)

// ClaimStore implements storage.ClaimStore using PostgreSQL.
type ClaimStore struct {
	pool *Pool
}

// NewClaimStore creates a new ClaimStore.
func NewClaimStore(pool *Pool) *ClaimStore {
	return &ClaimStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ClaimStore = (*ClaimStore)(nil)

const claimColumns = `code, claimant_id, ledger_username, channel_id, status, created_at, last_touched, confirmed_at`

// GetOrCreateClaim upserts on the partial unique index over pending pairs.
// xmax is zero only for a freshly inserted row.
func (s *ClaimStore) GetOrCreateClaim(ctx context.Context, username, claimantID, channelID string, now time.Time) (string, bool, error) {
	username = domain.NormalizeUsername(username)
	if username == "" || claimantID == "" {
		return "", false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO verification_claims (
			code, claimant_id, ledger_username, channel_id, status, created_at, last_touched
		) VALUES ($1, $2, $3, $4, 'pending', $5, $5)
		ON CONFLICT (ledger_username, claimant_id) WHERE status = 'pending'
		DO UPDATE SET
			last_touched = EXCLUDED.last_touched,
			channel_id = CASE WHEN EXCLUDED.channel_id = '' THEN verification_claims.channel_id
			                  ELSE EXCLUDED.channel_id END
		RETURNING code, (xmax = 0) AS inserted
	`

	var code string
	var created bool
	err := s.pool.QueryRow(ctx, query, uuid.NewString(), claimantID, username, channelID, now.UTC()).
		Scan(&code, &created)
	if err != nil {
		return "", false, fmt.Errorf("upsert claim: %w", err)
	}
	return code, created, nil
}

// FindPendingClaimForPayment implements storage.ClaimStore.
func (s *ClaimStore) FindPendingClaimForPayment(ctx context.Context, memo, payer string) (*domain.Claim, error) {
	query := `SELECT ` + claimColumns + `
		FROM verification_claims
		WHERE code = $1 AND ledger_username = $2 AND status = 'pending'
	`

	c, err := scanClaim(s.pool.QueryRow(ctx, query, memo, domain.NormalizeUsername(payer)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find pending claim: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrCorruptClaim, err)
	}
	return c, nil
}

// Confirm implements storage.ClaimStore. The status predicate makes the
// transition happen at most once.
func (s *ClaimStore) Confirm(ctx context.Context, code string, now time.Time) (bool, error) {
	query := `
		UPDATE verification_claims
		SET status = 'confirmed', confirmed_at = $2
		WHERE code = $1 AND status = 'pending'
	`

	tag, err := s.pool.Exec(ctx, query, code, now.UTC())
	if err != nil {
		return false, fmt.Errorf("confirm claim %s: %w", code, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountRecentPending implements storage.ClaimStore.
func (s *ClaimStore) CountRecentPending(ctx context.Context, since time.Time) (int, error) {
	query := `
		SELECT count(*) FROM verification_claims
		WHERE status = 'pending' AND last_touched >= $1
	`

	var n int
	if err := s.pool.QueryRow(ctx, query, since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending claims: %w", err)
	}
	return n, nil
}

// GetByCode retrieves a claim. Returns ErrNotFound if not exists.
func (s *ClaimStore) GetByCode(ctx context.Context, code string) (*domain.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM verification_claims WHERE code = $1`

	c, err := scanClaim(s.pool.QueryRow(ctx, query, code))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return c, nil
}

// ListConfirmed implements storage.ClaimStore.
func (s *ClaimStore) ListConfirmed(ctx context.Context, claimantIDs []string) ([]*domain.Claim, error) {
	if len(claimantIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + claimColumns + `
		FROM verification_claims
		WHERE status = 'confirmed' AND claimant_id = ANY($1)
		ORDER BY ledger_username ASC, code ASC
	`

	rows, err := s.pool.Query(ctx, query, claimantIDs)
	if err != nil {
		return nil, fmt.Errorf("query confirmed claims: %w", err)
	}
	defer rows.Close()

	var result []*domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return result, nil
}

func scanClaim(row pgx.Row) (*domain.Claim, error) {
	var c domain.Claim
	var status string
	err := row.Scan(
		&c.Code,
		&c.ClaimantID,
		&c.LedgerUsername,
		&c.ChannelID,
		&status,
		&c.CreatedAt,
		&c.LastTouched,
		&c.ConfirmedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = domain.ClaimStatus(status)
	c.CreatedAt = c.CreatedAt.UTC()
	c.LastTouched = c.LastTouched.UTC()
	if c.ConfirmedAt != nil {
		t := c.ConfirmedAt.UTC()
		c.ConfirmedAt = &t
	}
	return &c, nil
}
