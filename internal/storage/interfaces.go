package storage

import (
	"context"
	"time"

	"steem-patron-bot/internal/domain"
)

// ClaimStore provides access to verification_claims storage.
type ClaimStore interface {
	// GetOrCreateClaim returns the code of the pending claim for
	// (username, claimantID), creating one if none exists. A repeated
	// request bumps LastTouched and returns the same code with created=false.
	// At most one pending claim exists per pair under concurrent callers.
	GetOrCreateClaim(ctx context.Context, username, claimantID, channelID string, now time.Time) (code string, created bool, err error)

	// FindPendingClaimForPayment returns the pending claim whose code equals
	// memo and whose username equals payer. Returns (nil, nil) on no match
	// and ErrCorruptClaim if the stored row is inconsistent.
	FindPendingClaimForPayment(ctx context.Context, memo, payer string) (*domain.Claim, error)

	// Confirm flips a pending claim to confirmed. It reports whether this
	// call performed the transition; confirming twice returns false.
	Confirm(ctx context.Context, code string, now time.Time) (bool, error)

	// CountRecentPending counts pending claims touched at or after since.
	CountRecentPending(ctx context.Context, since time.Time) (int, error)

	// GetByCode retrieves a claim. Returns ErrNotFound if not exists.
	GetByCode(ctx context.Context, code string) (*domain.Claim, error)

	// ListConfirmed returns confirmed claims for the given claimants,
	// ordered by ledger username.
	ListConfirmed(ctx context.Context, claimantIDs []string) ([]*domain.Claim, error)
}

// PatronStore provides access to patrons storage.
type PatronStore interface {
	// Upsert adds a patron or updates its tier.
	Upsert(ctx context.Context, p *domain.Patron) error

	// Remove deletes a patron. Returns ErrNotFound if not exists.
	Remove(ctx context.Context, claimantID string) error

	// List returns all patrons ordered by claimant id.
	List(ctx context.Context) ([]*domain.Patron, error)
}

// MemoSet remembers transfer memos already acted on.
type MemoSet interface {
	// Seen reports whether memo was marked and has not expired.
	Seen(ctx context.Context, memo string) (bool, error)

	// Mark records memo for ttl.
	Mark(ctx context.Context, memo string, ttl time.Duration) error
}

// OutcomeStore is the append-only audit log of cycle reports.
type OutcomeStore interface {
	// Append records a report.
	Append(ctx context.Context, r *domain.CycleReport) error

	// ListSince returns reports of loop started at or after since, oldest first.
	// An empty loop matches every loop.
	ListSince(ctx context.Context, loop domain.Loop, since time.Time) ([]*domain.CycleReport, error)
}
