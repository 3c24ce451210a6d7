// Package stub provides an in-memory ledger for tests and dry runs.
package stub

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/steem"
)

// Broadcast is one operation the ledger accepted, with the key that signed it.
type Broadcast struct {
	Signer   string // public key
	Vote     *domain.Vote
	Transfer *domain.Transfer
}

type account struct {
	votingPower float64
	history     []steem.HistoryEntry // oldest first
}

// Ledger is an in-memory implementation of steem.Reader and steem.Writer.
type Ledger struct {
	mu         sync.RWMutex
	accounts   map[string]*account
	posts      map[string]*domain.Post // keyed by author/permlink
	blogs      map[string][]string     // account -> post keys, newest first
	broadcasts []Broadcast
	now        func() time.Time
	nextTx     int

	// BlogOmitsVotes serves blog listings without active votes, as some
	// nodes do; ActiveVotes and Content still report them.
	BlogOmitsVotes bool

	// Failure injection. Nil means success.
	ReadErr     error
	VoteErr     error
	TransferErr error
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[string]*account),
		posts:    make(map[string]*domain.Post),
		blogs:    make(map[string][]string),
		now:      time.Now,
	}
}

// SetClock overrides the time stamped on broadcast operations.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

var (
	_ steem.Reader = (*Ledger)(nil)
	_ steem.Writer = (*Ledger)(nil)
)

func (l *Ledger) acct(name string) *account {
	a, ok := l.accounts[name]
	if !ok {
		a = &account{votingPower: 100}
		l.accounts[name] = a
	}
	return a
}

// AddAccount registers an account with the given voting power in percent.
func (l *Ledger) AddAccount(name string, votingPower float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acct(name).votingPower = votingPower
}

// AddTransfer appends a transfer to both parties' histories.
func (l *Ledger) AddTransfer(t domain.Transfer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addTransfer(t)
}

func (l *Ledger) addTransfer(t domain.Transfer) {
	if t.TxID == "" {
		t.TxID = l.txID()
	}
	for _, name := range uniq(t.From, t.To) {
		a := l.acct(name)
		tr := t
		a.history = append(a.history, steem.HistoryEntry{
			Index:     int64(len(a.history)),
			TxID:      t.TxID,
			Timestamp: t.Timestamp,
			Transfer:  &tr,
		})
	}
}

// AddVote appends a vote to the voter's history and marks the post voted.
func (l *Ledger) AddVote(v domain.Vote) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addVote(v)
}

func (l *Ledger) addVote(v domain.Vote) {
	a := l.acct(v.Voter)
	vote := v
	a.history = append(a.history, steem.HistoryEntry{
		Index:     int64(len(a.history)),
		TxID:      l.txID(),
		Timestamp: v.Timestamp,
		Vote:      &vote,
	})
	if p, ok := l.posts[key(v.Author, v.Permlink)]; ok {
		for _, voter := range p.Voters {
			if voter == v.Voter {
				return
			}
		}
		p.Voters = append(p.Voters, v.Voter)
	}
}

// AddPost publishes a post on the author's blog.
func (l *Ledger) AddPost(p domain.Post) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acct(p.Author)
	post := p
	post.Voters = append([]string(nil), p.Voters...)
	k := key(p.Author, p.Permlink)
	l.posts[k] = &post
	l.blogs[p.Author] = append(l.blogs[p.Author], k)
	l.sortBlog(p.Author)
}

// AddReblog places another author's post on account's blog.
func (l *Ledger) AddReblog(account, author, permlink string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acct(account)
	l.blogs[account] = append(l.blogs[account], key(author, permlink))
	l.sortBlog(account)
}

func (l *Ledger) sortBlog(account string) {
	blog := l.blogs[account]
	sort.SliceStable(blog, func(i, j int) bool {
		pi, pj := l.posts[blog[i]], l.posts[blog[j]]
		if pi == nil || pj == nil {
			return false
		}
		return pi.Created.After(pj.Created)
	})
}

// Broadcasts returns accepted operations in order.
func (l *Ledger) Broadcasts() []Broadcast {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Broadcast(nil), l.broadcasts...)
}

// History implements steem.Reader.
func (l *Ledger) History(_ context.Context, name string, filter steem.OpFilter, since time.Time) iter.Seq2[steem.HistoryEntry, error] {
	return func(yield func(steem.HistoryEntry, error) bool) {
		l.mu.RLock()
		if l.ReadErr != nil {
			err := l.ReadErr
			l.mu.RUnlock()
			yield(steem.HistoryEntry{}, err)
			return
		}
		var entries []steem.HistoryEntry
		if a, ok := l.accounts[name]; ok {
			entries = append(entries, a.history...)
		}
		l.mu.RUnlock()

		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if e.Timestamp.Before(since) {
				return
			}
			if e.Transfer != nil && filter&steem.FilterTransfer == 0 {
				continue
			}
			if e.Vote != nil && filter&steem.FilterVote == 0 {
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// VotingPower implements steem.Reader.
func (l *Ledger) VotingPower(_ context.Context, name string) (float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.ReadErr != nil {
		return 0, l.ReadErr
	}
	a, ok := l.accounts[name]
	if !ok {
		return 0, steem.ErrAccountNotFound
	}
	return a.votingPower, nil
}

// ActiveVotes implements steem.Reader.
func (l *Ledger) ActiveVotes(ctx context.Context, author, permlink string) ([]string, error) {
	p, err := l.Content(ctx, author, permlink)
	if err != nil {
		return nil, err
	}
	return p.Voters, nil
}

// Content implements steem.Reader.
func (l *Ledger) Content(_ context.Context, author, permlink string) (*domain.Post, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.ReadErr != nil {
		return nil, l.ReadErr
	}
	p, ok := l.posts[key(author, permlink)]
	if !ok {
		return nil, steem.ErrContentNotFound
	}
	post := *p
	post.Voters = append([]string(nil), p.Voters...)
	return &post, nil
}

// BlogPosts implements steem.Reader.
func (l *Ledger) BlogPosts(_ context.Context, name string, limit int) ([]domain.Post, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.ReadErr != nil {
		return nil, l.ReadErr
	}
	var out []domain.Post
	for _, k := range l.blogs[name] {
		if limit > 0 && len(out) >= limit {
			break
		}
		if p, ok := l.posts[k]; ok {
			post := *p
			post.Voters = nil
			if !l.BlogOmitsVotes {
				post.Voters = append([]string(nil), p.Voters...)
			}
			out = append(out, post)
		}
	}
	return out, nil
}

// AccountExists implements steem.Reader.
func (l *Ledger) AccountExists(_ context.Context, name string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.ReadErr != nil {
		return false, l.ReadErr
	}
	_, ok := l.accounts[name]
	return ok, nil
}

// Vote implements steem.Writer.
func (l *Ledger) Vote(_ context.Context, k *steem.PrivateKey, voter, author, permlink string, weight int) (*steem.BroadcastResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.VoteErr != nil {
		return nil, l.VoteErr
	}
	if k == nil {
		return nil, fmt.Errorf("vote: signing key is required")
	}
	if _, ok := l.posts[key(author, permlink)]; !ok {
		return nil, steem.ErrContentNotFound
	}
	v := domain.Vote{Voter: voter, Author: author, Permlink: permlink, Weight: weight, Timestamp: l.now()}
	l.addVote(v)
	l.broadcasts = append(l.broadcasts, Broadcast{Signer: k.PublicKey(), Vote: &v})
	return &steem.BroadcastResult{ID: l.txID()}, nil
}

// Transfer implements steem.Writer.
func (l *Ledger) Transfer(_ context.Context, k *steem.PrivateKey, from, to string, amount domain.Asset, memo string) (*steem.BroadcastResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.TransferErr != nil {
		return nil, l.TransferErr
	}
	if k == nil {
		return nil, fmt.Errorf("transfer: signing key is required")
	}
	t := domain.Transfer{From: from, To: to, Amount: amount, Memo: memo, Timestamp: l.now(), TxID: l.txID()}
	l.addTransfer(t)
	l.broadcasts = append(l.broadcasts, Broadcast{Signer: k.PublicKey(), Transfer: &t})
	return &steem.BroadcastResult{ID: t.TxID}, nil
}

func (l *Ledger) txID() string {
	l.nextTx++
	return fmt.Sprintf("%040x", l.nextTx)
}

func key(author, permlink string) string {
	return author + "/" + permlink
}

func uniq(a, b string) []string {
	if a == b {
		return []string{a}
	}
	return []string{a, b}
}
