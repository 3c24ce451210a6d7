// Package reconcile matches incoming ledger payments against pending
// verification claims, confirms them and refunds the payment.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/eligibility"
	"steem-patron-bot/internal/notify"
	"steem-patron-bot/internal/observability"
	"steem-patron-bot/internal/steem"
	"steem-patron-bot/internal/storage"
	"steem-patron-bot/internal/storage/memory"
)

// RefundMemo is attached to every refund transfer.
const RefundMemo = "Verification refund"

// Options contains configuration for creating a Reconciler.
type Options struct {
	Ledger    steem.Reader
	Writer    steem.Writer
	Claims    storage.ClaimStore
	Memos     storage.MemoSet // Default: in-memory
	Notifier  notify.Notifier
	Members   notify.MembershipGranter
	Account   string            // registration account receiving payments
	ActiveKey *steem.PrivateKey // signs refunds
	RoleID    string            // granted on confirmation; empty skips the grant

	PendingWindow time.Duration // Default: 1h; no scan when no claim was touched within it
	ScanWindow    time.Duration // Default: 1h; trailing history window per cycle
	ClaimTTL      time.Duration // claim liveness after LastTouched, used as given; non-positive never expires
	DedupTTL      time.Duration // Default: 2h; how long acted-on memos are remembered

	Logger zerolog.Logger
	Now    func() time.Time
}

// Reconciler runs the transfer reconciliation loop.
type Reconciler struct {
	ledger    steem.Reader
	writer    steem.Writer
	claims    storage.ClaimStore
	memos     storage.MemoSet
	notifier  notify.Notifier
	members   notify.MembershipGranter
	account   string
	activeKey *steem.PrivateKey
	roleID    string

	pendingWindow time.Duration
	scanWindow    time.Duration
	claimTTL      time.Duration
	dedupTTL      time.Duration

	logger zerolog.Logger
	now    func() time.Time
}

// DefaultOptions returns Options with the stock windows.
func DefaultOptions() Options {
	return Options{
		PendingWindow: time.Hour,
		ScanWindow:    time.Hour,
		ClaimTTL:      time.Hour,
		DedupTTL:      2 * time.Hour,
	}
}

// NewReconciler creates a Reconciler.
func NewReconciler(opts Options) *Reconciler {
	r := &Reconciler{
		ledger:        opts.Ledger,
		writer:        opts.Writer,
		claims:        opts.Claims,
		memos:         opts.Memos,
		notifier:      opts.Notifier,
		members:       opts.Members,
		account:       domain.NormalizeUsername(opts.Account),
		activeKey:     opts.ActiveKey,
		roleID:        opts.RoleID,
		pendingWindow: opts.PendingWindow,
		scanWindow:    opts.ScanWindow,
		claimTTL:      opts.ClaimTTL,
		dedupTTL:      opts.DedupTTL,
		logger:        opts.Logger,
		now:           opts.Now,
	}
	if r.memos == nil {
		r.memos = memory.NewMemoSet(10 * time.Minute)
	}
	if r.notifier == nil || r.members == nil {
		sink := notify.NewLogSink(opts.Logger)
		if r.notifier == nil {
			r.notifier = sink
		}
		if r.members == nil {
			r.members = sink
		}
	}
	if r.pendingWindow <= 0 {
		r.pendingWindow = time.Hour
	}
	if r.scanWindow <= 0 {
		r.scanWindow = time.Hour
	}
	if r.dedupTTL <= 0 {
		r.dedupTTL = 2 * time.Hour
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// RunCycle performs one reconciliation pass. A failed cycle returns both
// the failed report and the error; the next cycle starts from scratch.
func (r *Reconciler) RunCycle(ctx context.Context) (*domain.CycleReport, error) {
	start := r.now()
	report := &domain.CycleReport{Loop: domain.LoopReconcile, StartedAt: start}

	pending, err := r.claims.CountRecentPending(ctx, start.Add(-r.pendingWindow))
	if err != nil {
		return r.fail(report, fmt.Errorf("count pending claims: %w", err))
	}
	if pending == 0 {
		report.Outcome = domain.OutcomeSkippedIdle
		return r.finish(report), nil
	}

	refundFailed := false
	for entry, err := range r.ledger.History(ctx, r.account, steem.FilterTransfer, start.Add(-r.scanWindow)) {
		if err != nil {
			return r.fail(report, fmt.Errorf("scan transfers: %w", err))
		}
		t := entry.Transfer
		if t == nil || domain.NormalizeUsername(t.To) != r.account || eligibility.IsSelfTransfer(*t, r.account) {
			continue
		}

		ok, err := r.handlePayment(ctx, *t, report)
		if err != nil {
			return r.fail(report, err)
		}
		if !ok {
			refundFailed = true
		}
	}

	switch {
	case refundFailed:
		report.Outcome = domain.OutcomeRefundFailed
	case report.Confirmed > 0:
		report.Outcome = domain.OutcomeConfirmed
	default:
		report.Outcome = domain.OutcomeNoMatch
	}
	return r.finish(report), nil
}

// handlePayment processes one incoming transfer. It returns false only
// when a claim was confirmed but its refund failed.
func (r *Reconciler) handlePayment(ctx context.Context, t domain.Transfer, report *domain.CycleReport) (bool, error) {
	log := r.logger.With().
		Str("account", t.From).
		Str("memo", t.Memo).
		Str("amount", t.Amount.String()).
		Time("paid_at", t.Timestamp).
		Str("tx_id", t.TxID).
		Logger()

	seen, err := r.memos.Seen(ctx, t.Memo)
	if err != nil {
		// The claim status predicate still prevents double confirmation.
		log.Warn().Err(err).Msg("memo dedup lookup failed")
	}
	if !seen {
		if seen, err = r.memos.Seen(ctx, paymentKey(t)); err != nil {
			log.Warn().Err(err).Msg("payment dedup lookup failed")
		}
	}
	if seen {
		return true, nil
	}

	claim, err := r.claims.FindPendingClaimForPayment(ctx, t.Memo, t.From)
	if err != nil {
		if errors.Is(err, storage.ErrCorruptClaim) {
			log.Error().Err(err).Msg("stored claim violates invariants")
		}
		return true, fmt.Errorf("find claim for memo %q: %w", t.Memo, err)
	}
	if claim == nil || !eligibility.MatchesClaim(t, claim) {
		observability.RecordPaymentIgnored("no_match")
		return true, nil
	}
	if !eligibility.ClaimLiveAt(claim, t.Timestamp, r.claimTTL) {
		observability.RecordPaymentIgnored("expired")
		log.Warn().
			Str("code", claim.Code).
			Time("last_touched", claim.LastTouched).
			Msg("payment for expired claim; refund manually")
		// Keyed by transaction so a revived claim can still be paid.
		if err := r.memos.Mark(ctx, paymentKey(t), r.dedupTTL); err != nil {
			log.Warn().Err(err).Msg("payment dedup mark failed")
		}
		return true, nil
	}

	confirmed, err := r.claims.Confirm(ctx, claim.Code, r.now())
	if err != nil {
		return true, fmt.Errorf("confirm claim %s: %w", claim.Code, err)
	}
	if err := r.memos.Mark(ctx, t.Memo, r.dedupTTL); err != nil {
		log.Warn().Err(err).Msg("memo dedup mark failed")
	}
	if !confirmed {
		return true, nil
	}

	observability.RecordClaimConfirmed()
	report.Confirmed++
	report.Codes = append(report.Codes, claim.Code)
	log.Info().Str("code", claim.Code).Str("claimant_id", claim.ClaimantID).Msg("claim confirmed")

	r.announce(ctx, claim, log)

	if _, err := r.writer.Transfer(ctx, r.activeKey, r.account, t.From, t.Amount, RefundMemo); err != nil {
		observability.RecordRefund(false)
		log.Error().Err(err).Str("code", claim.Code).Msg("refund failed")
		return false, nil
	}
	observability.RecordRefund(true)
	report.Refunds = append(report.Refunds, t.From+":"+t.Amount.String())
	return true, nil
}

// announce grants the verified role and posts the confirmation. Failures
// are logged and never undo the confirmation.
func (r *Reconciler) announce(ctx context.Context, claim *domain.Claim, log zerolog.Logger) {
	if r.roleID != "" {
		if err := r.members.GrantRole(ctx, claim.ClaimantID, r.roleID); err != nil {
			log.Error().Err(err).Str("claimant_id", claim.ClaimantID).Msg("role grant failed")
		}
	}
	if claim.ChannelID != "" {
		msg := fmt.Sprintf("<@%s> verified as @%s.", claim.ClaimantID, claim.LedgerUsername)
		if err := r.notifier.Notify(ctx, claim.ChannelID, msg); err != nil {
			log.Error().Err(err).Str("channel_id", claim.ChannelID).Msg("confirmation notice failed")
		}
	}
}

// paymentKey identifies a single transfer in the dedup set.
func paymentKey(t domain.Transfer) string {
	if t.TxID != "" {
		return "tx:" + t.TxID
	}
	return fmt.Sprintf("tx:%s:%s:%d", t.From, t.Memo, t.Timestamp.UnixNano())
}

func (r *Reconciler) fail(report *domain.CycleReport, err error) (*domain.CycleReport, error) {
	report.Outcome = domain.OutcomeFailed
	report.Error = err.Error()
	return r.finish(report), err
}

func (r *Reconciler) finish(report *domain.CycleReport) *domain.CycleReport {
	report.Duration = r.now().Sub(report.StartedAt)
	return report
}
