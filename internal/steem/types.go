package steem

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"steem-patron-bot/internal/domain"
)

// TimeLayout is the ledger's timestamp format (UTC, no zone suffix).
const TimeLayout = "2006-01-02T15:04:05"

// Time is a ledger timestamp.
type Time struct {
	time.Time
}

// UnmarshalJSON parses "2006-01-02T15:04:05" as UTC.
func (t *Time) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.ParseInLocation(TimeLayout, strings.TrimSuffix(s, "Z"), time.UTC)
	if err != nil {
		return fmt.Errorf("parse ledger time %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// MarshalJSON formats the time in the ledger layout.
func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(TimeLayout))
}

// Asset NAIs for the legacy object form.
var naiSymbols = map[string]string{
	"@@000000021": domain.SymbolSTEEM,
	"@@000000013": domain.SymbolSBD,
}

// rawAsset accepts both "0.001 STEEM" and {"amount","precision","nai"}.
type rawAsset struct {
	domain.Asset
}

func (a *rawAsset) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := domain.ParseAsset(s)
		if err != nil {
			return err
		}
		a.Asset = parsed
		return nil
	}

	var obj struct {
		Amount    string `json:"amount"`
		Precision int32  `json:"precision"`
		NAI       string `json:"nai"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("decode asset: %w", err)
	}
	symbol, ok := naiSymbols[obj.NAI]
	if !ok {
		return fmt.Errorf("unknown asset nai %q", obj.NAI)
	}
	n, err := strconv.ParseInt(obj.Amount, 10, 64)
	if err != nil {
		return fmt.Errorf("decode asset amount %q: %w", obj.Amount, err)
	}
	a.Asset = domain.Asset{Amount: decimal.New(n, -obj.Precision), Symbol: symbol}
	return nil
}

// historyItem is one [index, entry] pair from get_account_history.
type historyItem struct {
	Index int64
	Entry historyEntry
}

func (h *historyItem) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("history item: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &h.Index); err != nil {
		return fmt.Errorf("history index: %w", err)
	}
	if err := json.Unmarshal(pair[1], &h.Entry); err != nil {
		return fmt.Errorf("history entry %d: %w", h.Index, err)
	}
	return nil
}

type historyEntry struct {
	TrxID     string    `json:"trx_id"`
	Block     int64     `json:"block"`
	Timestamp Time      `json:"timestamp"`
	Op        operation `json:"op"`
}

// operation is the condenser ["name", {...}] form.
type operation struct {
	Name string
	Body json.RawMessage
}

func (o *operation) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("operation: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &o.Name); err != nil {
		return fmt.Errorf("operation name: %w", err)
	}
	o.Body = pair[1]
	return nil
}

type transferBody struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Amount rawAsset `json:"amount"`
	Memo   string   `json:"memo"`
}

type voteBody struct {
	Voter    string `json:"voter"`
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
	Weight   int    `json:"weight"`
}

type accountResult struct {
	Name         string `json:"name"`
	VotingPower  int64  `json:"voting_power"`
	LastVoteTime Time   `json:"last_vote_time"`
}

type activeVote struct {
	Voter   string `json:"voter"`
	Percent int64  `json:"percent"`
}

type contentResult struct {
	Author      string       `json:"author"`
	Permlink    string       `json:"permlink"`
	Created     Time         `json:"created"`
	ActiveVotes []activeVote `json:"active_votes"`
}

func (c contentResult) toPost() domain.Post {
	voters := make([]string, 0, len(c.ActiveVotes))
	for _, v := range c.ActiveVotes {
		voters = append(voters, v.Voter)
	}
	return domain.Post{
		Author:   c.Author,
		Permlink: c.Permlink,
		Created:  c.Created.Time,
		Voters:   voters,
	}
}

// GlobalProperties holds the fields needed to reference a recent block.
type GlobalProperties struct {
	HeadBlockNumber uint32 `json:"head_block_number"`
	HeadBlockID     string `json:"head_block_id"`
	Time            Time   `json:"time"`
}
