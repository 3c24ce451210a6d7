package domain

import (
	"fmt"
	"time"
)

// Transfer is a token transfer operation observed in account history.
type Transfer struct {
	From      string
	To        string
	Amount    Asset
	Memo      string
	Timestamp time.Time // block time of the containing transaction
	TxID      string
}

// Vote is a vote operation observed in account history.
type Vote struct {
	Voter     string
	Author    string
	Permlink  string
	Weight    int // ledger units, -10000..10000
	Timestamp time.Time
}

// Post is a piece of content on the ledger.
type Post struct {
	Author   string
	Permlink string
	Created  time.Time
	// Voters is the current active vote list. Only populated by calls that
	// return it (content lookups and blog listings).
	Voters []string
}

// URL returns the public link to the post.
func (p Post) URL() string {
	return PostURL(p.Author, p.Permlink)
}

// Age returns how old the post is at now.
func (p Post) Age(now time.Time) time.Duration {
	return now.Sub(p.Created)
}

// PostURL builds the public steemit.com link for author/permlink.
func PostURL(author, permlink string) string {
	return fmt.Sprintf("https://steemit.com/@%s/%s", author, permlink)
}

// CurationCandidate is a post selected as eligible during one curation cycle.
// Never stored.
type CurationCandidate struct {
	Author   string
	Permlink string
	Created  time.Time
}
