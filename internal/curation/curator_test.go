package curation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/eligibility"
	"steem-patron-bot/internal/steem"
	"steem-patron-bot/internal/steem/stub"
	"steem-patron-bot/internal/storage/memory"
)

const (
	curator    = "curator"
	gate       = "gatekeeper"
	postingWIF = "5HueCGU8rMjxEXxiPuD5BDku4MkFqeZyd4dZ1jvhTVqvbTLvyTJ"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type captureNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *captureNotifier) Notify(_ context.Context, channelID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, channelID+"|"+message)
	return nil
}

type fixture struct {
	ledger   *stub.Ledger
	claims   *memory.ClaimStore
	patrons  *memory.PatronStore
	notifier *captureNotifier
	key      *steem.PrivateKey
}

func newFixture(t *testing.T, vp float64) *fixture {
	t.Helper()
	f := &fixture{
		ledger:   stub.NewLedger(),
		claims:   memory.NewClaimStore(),
		patrons:  memory.NewPatronStore(),
		notifier: &captureNotifier{},
		key:      steem.MustParseWIF(postingWIF),
	}
	f.ledger.AddAccount(curator, vp)
	f.ledger.AddAccount(gate, vp)
	f.ledger.SetClock(func() time.Time { return now })
	return f
}

// patron registers a patron with a confirmed claim on username.
func (f *fixture) patron(t *testing.T, claimantID, username string) {
	t.Helper()
	confirmed := now.Add(-30 * 24 * time.Hour)
	f.claims.Put(&domain.Claim{
		Code:           "code-" + username,
		ClaimantID:     claimantID,
		LedgerUsername: username,
		Status:         domain.ClaimConfirmed,
		CreatedAt:      confirmed,
		LastTouched:    confirmed,
		ConfirmedAt:    &confirmed,
	})
	require.NoError(t, f.patrons.Upsert(context.Background(), &domain.Patron{ClaimantID: claimantID, Tier: "gold", Since: confirmed}))
}

func (f *fixture) curator(opts ...func(*Options)) *Curator {
	o := DefaultOptions()
	o.Ledger = f.ledger
	o.Writer = f.ledger
	o.Claims = f.claims
	o.Patrons = f.patrons
	o.Notifier = f.notifier
	o.Account = curator
	o.PostingKey = f.key
	o.GatingAccount = gate
	o.ChannelID = "900"
	o.Logger = zerolog.Nop()
	o.Now = func() time.Time { return now }
	for _, fn := range opts {
		fn(&o)
	}
	return NewCurator(o)
}

func TestRunCycle_VotesOnPostInsideWindow(t *testing.T) {
	f := newFixture(t, 92)
	f.patron(t, "1001", "bob")
	f.patron(t, "1002", "carol")
	f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "fresh", Created: now.Add(-48 * time.Hour)})
	f.ledger.AddPost(domain.Post{Author: "carol", Permlink: "stale", Created: now.Add(-8 * 24 * time.Hour)})

	report, err := f.curator().RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeVoted, report.Outcome)
	assert.Equal(t, "bob", report.Author)
	assert.Equal(t, "fresh", report.Permlink)
	assert.Equal(t, 50, report.Weight)
	assert.Equal(t, 92.0, report.VotingPower)

	broadcasts := f.ledger.Broadcasts()
	require.Len(t, broadcasts, 1)
	require.NotNil(t, broadcasts[0].Vote)
	assert.Equal(t, 5000, broadcasts[0].Vote.Weight)
	assert.Equal(t, curator, broadcasts[0].Vote.Voter)
	assert.Equal(t, f.key.PublicKey(), broadcasts[0].Signer)

	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "900|Voted https://steemit.com/@bob/fresh at 50%")
}

func TestRunCycle_InsufficientPower(t *testing.T) {
	f := newFixture(t, 79.9)
	f.patron(t, "1001", "bob")
	f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "fresh", Created: now.Add(-time.Hour)})

	report, err := f.curator().RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkippedInsufficientPower, report.Outcome)
	assert.Empty(t, f.ledger.Broadcasts())
	assert.Empty(t, f.notifier.messages)
}

func TestRunCycle_ZeroMinVotingPowerNeverGates(t *testing.T) {
	f := newFixture(t, 10)
	f.patron(t, "1001", "bob")
	f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "fresh", Created: now.Add(-time.Hour)})

	report, err := f.curator(func(o *Options) { o.MinVotingPower = 0 }).RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeVoted, report.Outcome)
	assert.Equal(t, 10.0, report.VotingPower)
}

func TestRunCycle_ZeroWeightIsKept(t *testing.T) {
	f := newFixture(t, 92)
	f.patron(t, "1001", "bob")
	f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "fresh", Created: now.Add(-time.Hour)})

	report, err := f.curator(func(o *Options) { o.Weight = 0 }).RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeVoted, report.Outcome)
	assert.Equal(t, 0, report.Weight)
	broadcasts := f.ledger.Broadcasts()
	require.Len(t, broadcasts, 1)
	assert.Equal(t, 0, broadcasts[0].Vote.Weight)
}

func TestRunCycle_SkipsRecentlyRewardedAuthor(t *testing.T) {
	f := newFixture(t, 100)
	f.patron(t, "1001", "bob")
	f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "old-one", Created: now.Add(-3 * 24 * time.Hour)})
	f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "new-one", Created: now.Add(-2 * time.Hour)})
	f.ledger.AddVote(domain.Vote{Voter: curator, Author: "bob", Permlink: "old-one", Weight: 5000, Timestamp: now.Add(-5 * time.Hour)})

	report, err := f.curator().RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkippedNoPost, report.Outcome)
	assert.Empty(t, f.ledger.Broadcasts())
}

func TestRunCycle_VoteOutsideRecentWindowDoesNotExclude(t *testing.T) {
	f := newFixture(t, 100)
	f.patron(t, "1001", "bob")
	f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "old-one", Created: now.Add(-4 * 24 * time.Hour)})
	f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "new-one", Created: now.Add(-2 * time.Hour)})
	f.ledger.AddVote(domain.Vote{Voter: curator, Author: "bob", Permlink: "old-one", Weight: 5000, Timestamp: now.Add(-25 * time.Hour)})

	report, err := f.curator().RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeVoted, report.Outcome)
	assert.Equal(t, "new-one", report.Permlink)
}

func TestRunCycle_SkipsPostsVotedByGateOrReblogged(t *testing.T) {
	f := newFixture(t, 100)
	f.patron(t, "1001", "bob")
	f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "older", Created: now.Add(-30 * time.Hour)})
	f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "voted", Created: now.Add(-3 * time.Hour), Voters: []string{gate}})
	f.ledger.AddPost(domain.Post{Author: "dave", Permlink: "shared", Created: now.Add(-time.Hour)})
	f.ledger.AddReblog("bob", "dave", "shared")

	report, err := f.curator().RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "bob", report.Author)
	assert.Equal(t, "older", report.Permlink)
}

func TestRunCycle_ChecksActiveVotesWhenBlogOmitsThem(t *testing.T) {
	f := newFixture(t, 100)
	f.patron(t, "1001", "bob")
	f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "older", Created: now.Add(-30 * time.Hour)})
	f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "voted", Created: now.Add(-3 * time.Hour), Voters: []string{curator}})
	f.ledger.BlogOmitsVotes = true

	report, err := f.curator().RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "older", report.Permlink)
}

func TestRunCycle_PatronWithoutConfirmedClaimIgnored(t *testing.T) {
	f := newFixture(t, 100)
	require.NoError(t, f.patrons.Upsert(context.Background(), &domain.Patron{ClaimantID: "1003", Tier: "gold"}))
	f.ledger.AddPost(domain.Post{Author: "erin", Permlink: "p", Created: now.Add(-time.Hour)})

	report, err := f.curator().RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkippedNoPost, report.Outcome)
}

func TestRunCycle_UsesPicker(t *testing.T) {
	f := newFixture(t, 100)
	f.patron(t, "1001", "bob")
	f.patron(t, "1002", "carol")
	f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "b", Created: now.Add(-time.Hour)})
	f.ledger.AddPost(domain.Post{Author: "carol", Permlink: "c", Created: now.Add(-time.Hour)})

	var offered []string
	c := f.curator(func(o *Options) {
		o.Pick = func(items []domain.CurationCandidate) (domain.CurationCandidate, bool, error) {
			for _, it := range items {
				offered = append(offered, it.Author)
			}
			return items[len(items)-1], true, nil
		}
	})

	report, err := c.RunCycle(context.Background())

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bob", "carol"}, offered)
	assert.Equal(t, "carol", report.Author)
}

func TestRunCycle_LedgerErrorFails(t *testing.T) {
	f := newFixture(t, 100)
	f.ledger.ReadErr = errors.New("node down")

	report, err := f.curator().RunCycle(context.Background())

	require.Error(t, err)
	assert.Equal(t, domain.OutcomeFailed, report.Outcome)
	assert.Contains(t, report.Error, "node down")
}

func TestRunCycle_VoteErrorFails(t *testing.T) {
	f := newFixture(t, 100)
	f.patron(t, "1001", "bob")
	f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "b", Created: now.Add(-time.Hour)})
	f.ledger.VoteErr = errors.New("rejected")

	report, err := f.curator().RunCycle(context.Background())

	require.Error(t, err)
	assert.Equal(t, domain.OutcomeFailed, report.Outcome)
	assert.Empty(t, f.notifier.messages)
}

func TestManualUpvote(t *testing.T) {
	f := newFixture(t, 88)
	f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "hello", Created: now.Add(-time.Hour)})

	report, err := f.curator().ManualUpvote(context.Background(), "https://steemit.com/@Bob/hello", "30")

	require.NoError(t, err)
	assert.Equal(t, domain.LoopManual, report.Loop)
	assert.Equal(t, 30, report.Weight)
	assert.Equal(t, 88.0, report.VotingPower)

	broadcasts := f.ledger.Broadcasts()
	require.Len(t, broadcasts, 1)
	assert.Equal(t, 3000, broadcasts[0].Vote.Weight)
	assert.Equal(t, "bob", broadcasts[0].Vote.Author)
}

func TestManualUpvote_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		weight  string
		message string
	}{
		{"bad url", "https://steemit.com/hello", "50", "This is not valid Steem permlink."},
		{"missing content", "https://steemit.com/@bob/nothing", "50", "This content is not available on the blockchain."},
		{"already voted", "https://steemit.com/@bob/voted", "50", "Already voted on that post."},
		{"too young", "https://steemit.com/@bob/young", "50", "Posts are eligible for an upvote after 800 seconds. Wait 500 more seconds."},
		{"too old", "https://steemit.com/@bob/ancient", "50", "Post is too old."},
		{"weight not a number", "https://steemit.com/@bob/hello", "lots", "Invalid weight."},
		{"weight out of range", "https://steemit.com/@bob/hello", "101", "Invalid weight. It must be between [0-100]."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 100)
			f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "hello", Created: now.Add(-time.Hour)})
			f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "voted", Created: now.Add(-time.Hour), Voters: []string{curator}})
			f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "young", Created: now.Add(-300 * time.Second)})
			f.ledger.AddPost(domain.Post{Author: "bob", Permlink: "ancient", Created: now.Add(-7 * 24 * time.Hour)})

			_, err := f.curator().ManualUpvote(context.Background(), tt.url, tt.weight)

			var verr *eligibility.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.message, verr.Message)
			assert.Empty(t, f.ledger.Broadcasts())
		})
	}
}

func TestVotingPower(t *testing.T) {
	f := newFixture(t, 64.5)

	vp, err := f.curator().VotingPower(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 64.5, vp)

	f.ledger.ReadErr = errors.New("node down")
	_, err = f.curator().VotingPower(context.Background())
	assert.Error(t, err)
}
