package stub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/steem"
)

const testWIF = "5HueCGU8rMjxEXxiPuD5BDku4MkFqeZyd4dZ1jvhTVqvbTLvyTJ"

func TestLedger_HistoryNewestFirstWithCutoff(t *testing.T) {
	l := NewLedger()
	now := time.Now()
	for i, memo := range []string{"old", "mid", "new"} {
		l.AddTransfer(domain.Transfer{
			From: "alice", To: "registrar", Memo: memo,
			Amount:    domain.MustParseAsset("0.001 STEEM"),
			Timestamp: now.Add(time.Duration(i-2) * time.Hour),
		})
	}
	l.AddVote(domain.Vote{Voter: "registrar", Author: "bob", Permlink: "p", Timestamp: now})

	var memos []string
	for e, err := range l.History(context.Background(), "registrar", steem.FilterTransfer, now.Add(-90*time.Minute)) {
		require.NoError(t, err)
		memos = append(memos, e.Transfer.Memo)
	}
	assert.Equal(t, []string{"new", "mid"}, memos)
}

func TestLedger_VoteRecordsSignerAndVoter(t *testing.T) {
	l := NewLedger()
	l.AddPost(domain.Post{Author: "bob", Permlink: "hello", Created: time.Now()})
	key := steem.MustParseWIF(testWIF)

	_, err := l.Vote(context.Background(), key, "curator", "bob", "hello", 5000)
	require.NoError(t, err)

	post, err := l.Content(context.Background(), "bob", "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"curator"}, post.Voters)

	b := l.Broadcasts()
	require.Len(t, b, 1)
	assert.Equal(t, key.PublicKey(), b[0].Signer)
	assert.Equal(t, 5000, b[0].Vote.Weight)

	_, err = l.Vote(context.Background(), key, "curator", "bob", "missing", 5000)
	assert.ErrorIs(t, err, steem.ErrContentNotFound)
}

func TestLedger_BlogOrderAndReblogs(t *testing.T) {
	l := NewLedger()
	now := time.Now()
	l.AddPost(domain.Post{Author: "bob", Permlink: "older", Created: now.Add(-2 * time.Hour)})
	l.AddPost(domain.Post{Author: "carol", Permlink: "shared", Created: now.Add(-time.Hour)})
	l.AddPost(domain.Post{Author: "bob", Permlink: "newer", Created: now})
	l.AddReblog("bob", "carol", "shared")

	posts, err := l.BlogPosts(context.Background(), "bob", 10)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "newer", posts[0].Permlink)
	assert.Equal(t, "carol", posts[1].Author)
	assert.Equal(t, "older", posts[2].Permlink)
}
