package steem

import (
	"context"
	"iter"
	"time"

	"steem-patron-bot/internal/domain"
)

// Reader defines the read side of the ledger used by the engine loops.
type Reader interface {
	// History scans an account's operation history newest-first, yielding
	// entries matching filter with a timestamp at or after since. The
	// sequence is finite and stops at the first entry older than since.
	History(ctx context.Context, account string, filter OpFilter, since time.Time) iter.Seq2[HistoryEntry, error]

	// VotingPower returns the account's current voting power in percent.
	VotingPower(ctx context.Context, account string) (float64, error)

	// ActiveVotes returns the voters currently on a post.
	ActiveVotes(ctx context.Context, author, permlink string) ([]string, error)

	// Content returns a post with its vote list. ErrContentNotFound if absent.
	Content(ctx context.Context, author, permlink string) (*domain.Post, error)

	// BlogPosts returns an account's blog feed newest-first, reblogs included.
	BlogPosts(ctx context.Context, account string, limit int) ([]domain.Post, error)

	// AccountExists reports whether the ledger knows the account name.
	AccountExists(ctx context.Context, name string) (bool, error)
}

// Writer broadcasts signed operations. The signing key is passed with every
// call; implementations hold no credential state.
type Writer interface {
	Vote(ctx context.Context, key *PrivateKey, voter, author, permlink string, weight int) (*BroadcastResult, error)
	Transfer(ctx context.Context, key *PrivateKey, from, to string, amount domain.Asset, memo string) (*BroadcastResult, error)
}

// OpFilter selects operation kinds in a history scan.
type OpFilter uint64

const (
	FilterVote     OpFilter = 1 << opVote
	FilterTransfer OpFilter = 1 << opTransfer
)

// Has reports whether the filter includes the operation id.
func (f OpFilter) Has(id uint64) bool {
	return f&(1<<id) != 0
}

// HistoryEntry is one decoded account history item.
type HistoryEntry struct {
	Index     int64
	TxID      string
	Timestamp time.Time
	Transfer  *domain.Transfer // set for transfer operations
	Vote      *domain.Vote     // set for vote operations
}

// BroadcastResult is the node's response to a synchronous broadcast.
type BroadcastResult struct {
	ID       string `json:"id"`
	BlockNum int64  `json:"block_num"`
	TrxNum   int64  `json:"trx_num"`
	Expired  bool   `json:"expired"`
}
