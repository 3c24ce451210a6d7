package steem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"math"
	"time"

	"steem-patron-bot/internal/domain"
)

// Errors returned by Client.
var (
	ErrContentNotFound = errors.New("content not found")
	ErrAccountNotFound = errors.New("account not found")
)

const (
	// DefaultHistoryBatch is the page size for history scans. Nodes cap it at 1000.
	DefaultHistoryBatch = 1000

	// fullRegenSeconds is how long voting power takes to go from 0 to 100%.
	fullRegenSeconds = 5 * 24 * 60 * 60
	maxVotingPower   = 10000
)

// Client implements Reader over condenser_api JSON-RPC calls.
type Client struct {
	transport    Transport
	historyBatch int
	now          func() time.Time
}

// Option configures Client.
type Option func(*Client)

// WithHistoryBatch sets the history page size.
func WithHistoryBatch(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= DefaultHistoryBatch {
			c.historyBatch = n
		}
	}
}

// WithClock overrides the time source used for voting power regeneration.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a ledger reader on top of a transport.
func NewClient(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport:    transport,
		historyBatch: DefaultHistoryBatch,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ Reader = (*Client)(nil)

// History implements Reader. Pages are fetched lazily from the newest entry
// backwards; iteration ends when an entry older than since is reached or
// the account's first entry has been seen.
func (c *Client) History(ctx context.Context, account string, filter OpFilter, since time.Time) iter.Seq2[HistoryEntry, error] {
	return func(yield func(HistoryEntry, error) bool) {
		start := int64(-1)
		for {
			limit := int64(c.historyBatch)
			if start >= 0 && start < limit {
				limit = start
			}

			var page []historyItem
			if err := c.transport.Call(ctx, "condenser_api.get_account_history",
				[]interface{}{account, start, limit}, &page); err != nil {
				yield(HistoryEntry{}, fmt.Errorf("get_account_history %s from %d: %w", account, start, err))
				return
			}
			if len(page) == 0 {
				return
			}

			lowest := page[0].Index
			for i := len(page) - 1; i >= 0; i-- {
				item := page[i]
				if item.Index < lowest {
					lowest = item.Index
				}
				if item.Entry.Timestamp.Before(since) {
					return
				}
				entry, ok, err := decodeHistory(item, filter)
				if err != nil {
					if !yield(HistoryEntry{}, err) {
						return
					}
					continue
				}
				if ok && !yield(entry, nil) {
					return
				}
			}

			if lowest <= 0 {
				return
			}
			start = lowest - 1
		}
	}
}

func decodeHistory(item historyItem, filter OpFilter) (HistoryEntry, bool, error) {
	entry := HistoryEntry{
		Index:     item.Index,
		TxID:      item.Entry.TrxID,
		Timestamp: item.Entry.Timestamp.Time,
	}

	switch item.Entry.Op.Name {
	case "transfer":
		if !filter.Has(opTransfer) {
			return entry, false, nil
		}
		var body transferBody
		if err := json.Unmarshal(item.Entry.Op.Body, &body); err != nil {
			return entry, false, fmt.Errorf("malformed transfer at index %d: %w", item.Index, err)
		}
		entry.Transfer = &domain.Transfer{
			From:      body.From,
			To:        body.To,
			Amount:    body.Amount.Asset,
			Memo:      body.Memo,
			Timestamp: entry.Timestamp,
			TxID:      entry.TxID,
		}
		return entry, true, nil
	case "vote":
		if !filter.Has(opVote) {
			return entry, false, nil
		}
		var body voteBody
		if err := json.Unmarshal(item.Entry.Op.Body, &body); err != nil {
			return entry, false, fmt.Errorf("malformed vote at index %d: %w", item.Index, err)
		}
		entry.Vote = &domain.Vote{
			Voter:     body.Voter,
			Author:    body.Author,
			Permlink:  body.Permlink,
			Weight:    body.Weight,
			Timestamp: entry.Timestamp,
		}
		return entry, true, nil
	}
	return entry, false, nil
}

func (c *Client) account(ctx context.Context, name string) (*accountResult, error) {
	var accounts []accountResult
	if err := c.transport.Call(ctx, "condenser_api.get_accounts",
		[]interface{}{[]string{name}}, &accounts); err != nil {
		return nil, fmt.Errorf("get_accounts %s: %w", name, err)
	}
	if len(accounts) == 0 {
		return nil, ErrAccountNotFound
	}
	return &accounts[0], nil
}

// AccountExists implements Reader.
func (c *Client) AccountExists(ctx context.Context, name string) (bool, error) {
	_, err := c.account(ctx, name)
	if errors.Is(err, ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// VotingPower implements Reader. Stored power regenerates linearly to 100%
// over five days since the last vote.
func (c *Client) VotingPower(ctx context.Context, account string) (float64, error) {
	acc, err := c.account(ctx, account)
	if err != nil {
		return 0, err
	}
	return RegeneratedVotingPower(acc.VotingPower, acc.LastVoteTime.Time, c.now()), nil
}

// RegeneratedVotingPower returns voting power in percent at now, given the
// stored value (0..10000) and the time it was recorded.
func RegeneratedVotingPower(stored int64, lastVote, now time.Time) float64 {
	elapsed := now.Sub(lastVote).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	vp := float64(stored) + elapsed*maxVotingPower/fullRegenSeconds
	vp = math.Min(vp, maxVotingPower)
	return math.Round(vp) / 100
}

// ActiveVotes implements Reader.
func (c *Client) ActiveVotes(ctx context.Context, author, permlink string) ([]string, error) {
	var votes []activeVote
	if err := c.transport.Call(ctx, "condenser_api.get_active_votes",
		[]interface{}{author, permlink}, &votes); err != nil {
		return nil, fmt.Errorf("get_active_votes @%s/%s: %w", author, permlink, err)
	}
	voters := make([]string, 0, len(votes))
	for _, v := range votes {
		voters = append(voters, v.Voter)
	}
	return voters, nil
}

// Content implements Reader.
func (c *Client) Content(ctx context.Context, author, permlink string) (*domain.Post, error) {
	var content contentResult
	if err := c.transport.Call(ctx, "condenser_api.get_content",
		[]interface{}{author, permlink}, &content); err != nil {
		return nil, fmt.Errorf("get_content @%s/%s: %w", author, permlink, err)
	}
	// Unknown content comes back as an empty object.
	if content.Author == "" {
		return nil, ErrContentNotFound
	}
	post := content.toPost()
	return &post, nil
}

// BlogPosts implements Reader.
func (c *Client) BlogPosts(ctx context.Context, account string, limit int) ([]domain.Post, error) {
	var discussions []contentResult
	query := map[string]interface{}{"tag": account, "limit": limit}
	if err := c.transport.Call(ctx, "condenser_api.get_discussions_by_blog",
		[]interface{}{query}, &discussions); err != nil {
		return nil, fmt.Errorf("get_discussions_by_blog %s: %w", account, err)
	}
	posts := make([]domain.Post, 0, len(discussions))
	for _, d := range discussions {
		posts = append(posts, d.toPost())
	}
	return posts, nil
}

// GlobalProperties fetches the head block reference for transactions.
func (c *Client) GlobalProperties(ctx context.Context) (*GlobalProperties, error) {
	var props GlobalProperties
	if err := c.transport.Call(ctx, "condenser_api.get_dynamic_global_properties",
		[]interface{}{}, &props); err != nil {
		return nil, fmt.Errorf("get_dynamic_global_properties: %w", err)
	}
	return &props, nil
}
