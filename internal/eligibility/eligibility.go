// Package eligibility holds the pure rules deciding whether a payment matches
// a claim and whether a post may be voted on. Nothing here performs I/O.
package eligibility

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"steem-patron-bot/internal/domain"
)

// Curation window defaults, in line with the ledger's reward mechanics.
const (
	DefaultMinAge = 800 * time.Second
	DefaultMaxAge = 561600 * time.Second // 6.5 days
)

// ValidationError is a user-facing rejection. It is reported back to the
// requester and never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsWithinCurationWindow rejects posts younger than minAge or older than
// maxAge. Both bounds are inclusive.
func IsWithinCurationWindow(post domain.Post, now time.Time, minAge, maxAge time.Duration) error {
	age := post.Age(now)
	if age < minAge {
		wait := int64(math.Ceil((minAge - age).Seconds()))
		return invalid("Posts are eligible for an upvote after %d seconds. Wait %d more seconds.",
			int64(minAge.Seconds()), wait)
	}
	if age > maxAge {
		return invalid("Post is too old.")
	}
	return nil
}

// AlreadyVoted reports whether voter appears in the post's vote list.
func AlreadyVoted(post domain.Post, voter string) bool {
	for _, v := range post.Voters {
		if v == voter {
			return true
		}
	}
	return false
}

// VotedByAny reports whether any of the given accounts voted on the post.
func VotedByAny(post domain.Post, voters ...string) bool {
	for _, v := range voters {
		if v != "" && AlreadyVoted(post, v) {
			return true
		}
	}
	return false
}

// IsSelfTransfer reports whether the transfer was sent by account itself.
func IsSelfTransfer(t domain.Transfer, account string) bool {
	return domain.NormalizeUsername(t.From) == domain.NormalizeUsername(account)
}

// MatchesClaim reports whether a transfer pays for the given pending claim:
// the memo must equal the code exactly and the sender must be the claimed
// account.
func MatchesClaim(t domain.Transfer, c *domain.Claim) bool {
	if c == nil || c.Status != domain.ClaimPending {
		return false
	}
	return t.Memo == c.Code && domain.NormalizeUsername(t.From) == c.LedgerUsername
}

// ClaimLiveAt reports whether a pending claim had not yet expired at the
// given moment. A non-positive ttl disables expiry.
func ClaimLiveAt(c *domain.Claim, at time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	return !at.After(c.LastTouched.Add(ttl))
}

// RecentlyRewardedAuthors collects the authors voted on by curator at or
// after since.
func RecentlyRewardedAuthors(votes []domain.Vote, curator string, since time.Time) map[string]struct{} {
	authors := make(map[string]struct{})
	for _, v := range votes {
		if v.Voter != curator || v.Timestamp.Before(since) {
			continue
		}
		authors[v.Author] = struct{}{}
	}
	return authors
}

// ParseAuthorPermlink extracts author and permlink from a post URL such as
// https://steemit.com/tag/@author/permlink.
func ParseAuthorPermlink(url string) (string, string, error) {
	_, rest, ok := strings.Cut(url, "@")
	if !ok {
		return "", "", invalid("This is not valid Steem permlink.")
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", invalid("This is not valid Steem permlink.")
	}
	permlink := parts[1]
	if i := strings.IndexAny(permlink, "?#"); i >= 0 {
		permlink = permlink[:i]
	}
	return domain.NormalizeUsername(parts[0]), permlink, nil
}

// ValidateWeight parses a vote weight in percent and returns it in ledger
// units (percent * 100).
func ValidateWeight(raw string) (int, error) {
	w, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, invalid("Invalid weight.")
	}
	if w < 0 || w > 100 {
		return 0, invalid("Invalid weight. It must be between [0-100].")
	}
	return w * 100, nil
}
