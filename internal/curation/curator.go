// Package curation runs the auto-curation loop and the manual upvote path.
package curation

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
	"steem-patron-bot/internal/random"
	"steem-patron-bot/internal/steem"
	"steem-patron-bot/internal/storage"
)

// Options contains configuration for creating a Curator.
type Options struct {
	Ledger     steem.Reader
	Writer     steem.Writer
	Claims     storage.ClaimStore
	Patrons    storage.PatronStore
	Notifier   notify.Notifier
	Account    string            // curating account, casts the votes
	PostingKey *steem.PrivateKey // signs votes
	// GatingAccount's voting power gates each cycle. Default: Account.
	GatingAccount string
	ChannelID     string // where vote reports go; empty disables

	// Thresholds are used as given; zero is a valid setting for each.
	Weight            int           // auto-curation weight in percent
	MinVotingPower    float64       // percent
	MinAge            time.Duration // manual upvote lower bound
	MaxAge            time.Duration
	RecentWindow      time.Duration // no repeat author within it
	PostsPerCandidate int           // Default: 10

	Logger zerolog.Logger
	Now    func() time.Time
	// Pick chooses among eligible posts. Default: uniform crypto-random pick.
	Pick func([]domain.CurationCandidate) (domain.CurationCandidate, bool, error)
}

// Curator implements the auto-curation loop.
type Curator struct {
	ledger     steem.Reader
	writer     steem.Writer
	claims     storage.ClaimStore
	patrons    storage.PatronStore
	notifier   notify.Notifier
	account    string
	postingKey *steem.PrivateKey
	gating     string
	channelID  string

	weight            int
	minVotingPower    float64
	minAge            time.Duration
	maxAge            time.Duration
	recentWindow      time.Duration
	postsPerCandidate int

	logger zerolog.Logger
	now    func() time.Time
	pick   func([]domain.CurationCandidate) (domain.CurationCandidate, bool, error)
}

// DefaultOptions returns Options with the stock curation thresholds.
func DefaultOptions() Options {
	return Options{
		Weight:            50,
		MinVotingPower:    80,
		MinAge:            eligibility.DefaultMinAge,
		MaxAge:            eligibility.DefaultMaxAge,
		RecentWindow:      24 * time.Hour,
		PostsPerCandidate: 10,
	}
}

// NewCurator creates a Curator.
func NewCurator(opts Options) *Curator {
	c := &Curator{
		ledger:            opts.Ledger,
		writer:            opts.Writer,
		claims:            opts.Claims,
		patrons:           opts.Patrons,
		notifier:          opts.Notifier,
		account:           opts.Account,
		postingKey:        opts.PostingKey,
		gating:            opts.GatingAccount,
		channelID:         opts.ChannelID,
		weight:            opts.Weight,
		minVotingPower:    opts.MinVotingPower,
		minAge:            opts.MinAge,
		maxAge:            opts.MaxAge,
		recentWindow:      opts.RecentWindow,
		postsPerCandidate: opts.PostsPerCandidate,
		logger:            opts.Logger,
		now:               opts.Now,
		pick:              opts.Pick,
	}
	if c.gating == "" {
		c.gating = c.account
	}
	if c.notifier == nil {
		c.notifier = notify.NewLogSink(opts.Logger)
	}
	if c.postsPerCandidate <= 0 {
		c.postsPerCandidate = 10
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.pick == nil {
		c.pick = random.Pick[domain.CurationCandidate]
	}
	return c
}

// RunCycle performs one auto-curation pass: gate on voting power, collect
// one eligible post per candidate, pick one at random and vote on it.
func (c *Curator) RunCycle(ctx context.Context) (*domain.CycleReport, error) {
	start := c.now()
	report := &domain.CycleReport{Loop: domain.LoopCuration, StartedAt: start, Voter: c.account}

	vp, err := c.ledger.VotingPower(ctx, c.gating)
	if err != nil {
		return c.fail(report, fmt.Errorf("voting power of %s: %w", c.gating, err))
	}
	observability.UpdateVotingPower(vp)
	report.VotingPower = vp
	if vp < c.minVotingPower {
		c.logger.Info().Float64("voting_power", vp).Float64("min", c.minVotingPower).
			Msg("skipping curation: insufficient power")
		report.Outcome = domain.OutcomeSkippedInsufficientPower
		return c.finish(report), nil
	}

	candidates, err := c.candidates(ctx, start)
	if err != nil {
		return c.fail(report, err)
	}

	var eligible []domain.CurationCandidate
	for _, author := range candidates {
		post, ok, err := c.firstEligiblePost(ctx, author, start)
		if err != nil {
			return c.fail(report, err)
		}
		if ok {
			eligible = append(eligible, post)
		}
	}

	chosen, ok, err := c.pick(eligible)
	if err != nil {
		return c.fail(report, fmt.Errorf("pick post: %w", err))
	}
	if !ok {
		report.Outcome = domain.OutcomeSkippedNoPost
		return c.finish(report), nil
	}

	if _, err := c.writer.Vote(ctx, c.postingKey, c.account, chosen.Author, chosen.Permlink, c.weight*100); err != nil {
		return c.fail(report, fmt.Errorf("vote @%s/%s: %w", chosen.Author, chosen.Permlink, err))
	}
	observability.RecordVote("auto")

	report.Outcome = domain.OutcomeVoted
	report.Author = chosen.Author
	report.Permlink = chosen.Permlink
	report.Weight = c.weight
	c.logger.Info().
		Str("author", chosen.Author).
		Str("permlink", chosen.Permlink).
		Int("weight", c.weight).
		Int("eligible", len(eligible)).
		Msg("auto-curation vote cast")

	if c.channelID != "" {
		if err := c.notifier.Notify(ctx, c.channelID, report.Message()); err != nil {
			c.logger.Error().Err(err).Str("channel_id", c.channelID).Msg("vote notice failed")
		}
	}
	return c.finish(report), nil
}

// candidates returns ledger usernames of patrons with a confirmed claim,
// minus authors the curating account voted on within the recent window.
func (c *Curator) candidates(ctx context.Context, now time.Time) ([]string, error) {
	patrons, err := c.patrons.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patrons: %w", err)
	}
	if len(patrons) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(patrons))
	for _, p := range patrons {
		ids = append(ids, p.ClaimantID)
	}

	claims, err := c.claims.ListConfirmed(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list confirmed claims: %w", err)
	}

	since := now.Add(-c.recentWindow)
	var votes []domain.Vote
	for entry, err := range c.ledger.History(ctx, c.account, steem.FilterVote, since) {
		if err != nil {
			return nil, fmt.Errorf("scan votes of %s: %w", c.account, err)
		}
		if entry.Vote != nil {
			votes = append(votes, *entry.Vote)
		}
	}
	recent := eligibility.RecentlyRewardedAuthors(votes, c.account, since)

	seen := make(map[string]struct{}, len(claims))
	var out []string
	for _, claim := range claims {
		name := claim.LedgerUsername
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, ok := recent[name]; ok {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// firstEligiblePost scans an author's blog newest-first and returns the
// first own post within the window that neither account has voted on.
func (c *Curator) firstEligiblePost(ctx context.Context, author string, now time.Time) (domain.CurationCandidate, bool, error) {
	posts, err := c.ledger.BlogPosts(ctx, author, c.postsPerCandidate)
	if err != nil {
		return domain.CurationCandidate{}, false, fmt.Errorf("blog of %s: %w", author, err)
	}

	for _, post := range posts {
		if post.Author != author {
			continue // reblog
		}
		age := post.Age(now)
		if age > c.maxAge {
			break
		}
		if age < 0 || eligibility.VotedByAny(post, c.gating, c.account) {
			continue
		}
		// Blog listings may carry a partial vote list.
		voters, err := c.ledger.ActiveVotes(ctx, post.Author, post.Permlink)
		if err != nil {
			return domain.CurationCandidate{}, false, fmt.Errorf("votes on @%s/%s: %w", post.Author, post.Permlink, err)
		}
		post.Voters = voters
		if eligibility.VotedByAny(post, c.gating, c.account) {
			continue
		}
		return domain.CurationCandidate{Author: post.Author, Permlink: post.Permlink, Created: post.Created}, true, nil
	}
	return domain.CurationCandidate{}, false, nil
}

// ManualUpvote votes on the post at url with weight given in percent and
// returns a report carrying the voting power left after the vote.
// Rejections are returned as *eligibility.ValidationError.
func (c *Curator) ManualUpvote(ctx context.Context, url, weight string) (*domain.CycleReport, error) {
	start := c.now()

	author, permlink, err := eligibility.ParseAuthorPermlink(url)
	if err != nil {
		return nil, err
	}

	post, err := c.ledger.Content(ctx, author, permlink)
	if err != nil {
		if errors.Is(err, steem.ErrContentNotFound) {
			return nil, &eligibility.ValidationError{Message: "This content is not available on the blockchain."}
		}
		return nil, fmt.Errorf("get content: %w", err)
	}

	if eligibility.AlreadyVoted(*post, c.account) {
		return nil, &eligibility.ValidationError{Message: "Already voted on that post."}
	}
	if err := eligibility.IsWithinCurationWindow(*post, start, c.minAge, c.maxAge); err != nil {
		return nil, err
	}
	ledgerWeight, err := eligibility.ValidateWeight(weight)
	if err != nil {
		return nil, err
	}

	if _, err := c.writer.Vote(ctx, c.postingKey, c.account, author, permlink, ledgerWeight); err != nil {
		return nil, fmt.Errorf("vote @%s/%s: %w", author, permlink, err)
	}
	observability.RecordVote("manual")

	report := &domain.CycleReport{
		Loop:      domain.LoopManual,
		Outcome:   domain.OutcomeVoted,
		StartedAt: start,
		Author:    author,
		Permlink:  permlink,
		Weight:    ledgerWeight / 100,
		Voter:     c.account,
	}

	vp, err := c.ledger.VotingPower(ctx, c.account)
	if err != nil {
		// The vote is on chain; only the follow-up read failed.
		c.logger.Warn().Err(err).Msg("voting power after manual vote")
	} else {
		observability.UpdateVotingPower(vp)
		report.VotingPower = vp
	}

	c.logger.Info().
		Str("author", author).
		Str("permlink", permlink).
		Int("weight", report.Weight).
		Float64("voting_power", vp).
		Msg("manual vote cast")

	return c.finish(report), nil
}

// VotingPower returns the curating account's current voting power in percent.
func (c *Curator) VotingPower(ctx context.Context) (float64, error) {
	vp, err := c.ledger.VotingPower(ctx, c.account)
	if err != nil {
		return 0, fmt.Errorf("voting power of %s: %w", c.account, err)
	}
	observability.UpdateVotingPower(vp)
	return vp, nil
}

func (c *Curator) fail(report *domain.CycleReport, err error) (*domain.CycleReport, error) {
	report.Outcome = domain.OutcomeFailed
	report.Error = err.Error()
	return c.finish(report), err
}

func (c *Curator) finish(report *domain.CycleReport) *domain.CycleReport {
	report.Duration = c.now().Sub(report.StartedAt)
	return report
}
