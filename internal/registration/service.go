// Package registration starts the verification workflow: it checks that a
// ledger account exists, opens (or reuses) a pending claim and tells the
// claimant what to pay.
package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/eligibility"
	"steem-patron-bot/internal/observability"
	"steem-patron-bot/internal/storage"
)

// ErrLedgerUnavailable is returned when the username check keeps failing.
var ErrLedgerUnavailable = errors.New("ledger unavailable")

// AccountChecker is the slice of the ledger reader registration needs.
type AccountChecker interface {
	AccountExists(ctx context.Context, name string) (bool, error)
}

// Instructions tell a claimant how to prove account ownership.
type Instructions struct {
	Code                string       `json:"code"`
	RegistrationAccount string       `json:"registration_account"`
	Amount              domain.Asset `json:"-"`
	Memo                string       `json:"memo"`
	Created             bool         `json:"created"`
}

// Message renders the payment instructions for chat.
func (i *Instructions) Message() string {
	return fmt.Sprintf("Send %s to @%s with memo %s to complete verification.",
		i.Amount, i.RegistrationAccount, i.Memo)
}

// Options contains configuration for creating a Service.
type Options struct {
	Claims              storage.ClaimStore
	Ledger              AccountChecker
	RegistrationAccount string
	Amount              domain.Asset
	CheckRetries        uint64        // retries after the first attempt; zero checks once
	CheckBackoff        time.Duration // Default: 500ms initial interval
	CacheTTL            time.Duration // Default: 10m; positive lookups only
	Logger              zerolog.Logger
	Now                 func() time.Time
}

// Service implements the claim request facade.
type Service struct {
	claims       storage.ClaimStore
	ledger       AccountChecker
	account      string
	amount       domain.Asset
	checkRetries uint64
	checkBackoff time.Duration
	known        *cache.Cache
	logger       zerolog.Logger
	now          func() time.Time
}

// NewService creates a registration service.
func NewService(opts Options) *Service {
	initial := opts.CheckBackoff
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		claims:       opts.Claims,
		ledger:       opts.Ledger,
		account:      opts.RegistrationAccount,
		amount:       opts.Amount,
		checkRetries: opts.CheckRetries,
		checkBackoff: initial,
		known:        cache.New(ttl, 2*ttl),
		logger:       opts.Logger,
		now:          now,
	}
}

// Register opens or reuses the pending claim for (username, claimantID).
// Unknown accounts are rejected with a ValidationError.
func (s *Service) Register(ctx context.Context, username, claimantID, channelID string) (*Instructions, error) {
	username = domain.NormalizeUsername(username)
	if username == "" {
		return nil, &eligibility.ValidationError{Message: "Please provide a Steem username."}
	}
	if claimantID == "" {
		return nil, &eligibility.ValidationError{Message: "Missing claimant id."}
	}

	exists, err := s.accountExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &eligibility.ValidationError{Message: fmt.Sprintf("Account @%s does not exist.", username)}
	}

	code, created, err := s.claims.GetOrCreateClaim(ctx, username, claimantID, channelID, s.now())
	if err != nil {
		return nil, fmt.Errorf("get or create claim: %w", err)
	}
	if created {
		observability.RecordClaimCreated()
	}

	s.logger.Info().
		Str("account", username).
		Str("claimant_id", claimantID).
		Str("code", code).
		Bool("created", created).
		Msg("verification claim issued")

	return &Instructions{
		Code:                code,
		RegistrationAccount: s.account,
		Amount:              s.amount,
		Memo:                code,
		Created:             created,
	}, nil
}

// accountExists asks the ledger with bounded exponential backoff. Positive
// answers are cached; a missing account is a definitive answer and not retried.
func (s *Service) accountExists(ctx context.Context, username string) (bool, error) {
	if _, ok := s.known.Get(username); ok {
		return true, nil
	}

	var exists bool
	attempt := 0
	op := func() error {
		attempt++
		ok, err := s.ledger.AccountExists(ctx, username)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			s.logger.Warn().Err(err).Str("account", username).Int("attempt", attempt).
				Msg("username check failed")
			return err
		}
		exists = ok
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.checkBackoff
	b.MaxElapsedTime = 0
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, s.checkRetries), ctx)); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		return false, fmt.Errorf("%w: check @%s after %d attempts: %v", ErrLedgerUnavailable, username, attempt, err)
	}

	if exists {
		s.known.SetDefault(username, struct{}{})
	}
	return exists, nil
}

// Lookup returns a claim by code.
func (s *Service) Lookup(ctx context.Context, code string) (*domain.Claim, error) {
	return s.claims.GetByCode(ctx, code)
}
