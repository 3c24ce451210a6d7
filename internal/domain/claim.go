package domain

import (
	"fmt"
	"strings"
	"time"
)

// ClaimStatus is the lifecycle state of a verification claim.
type ClaimStatus string

const (
	ClaimPending   ClaimStatus = "pending"
	ClaimConfirmed ClaimStatus = "confirmed"
)

// String returns the string representation of ClaimStatus.
func (s ClaimStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a known value.
func (s ClaimStatus) IsValid() bool {
	return s == ClaimPending || s == ClaimConfirmed
}

// Claim is a request by a chat user to link a ledger account.
// Corresponds to the verification_claims table in PostgreSQL.
type Claim struct {
	Code           string      // PRIMARY KEY, UUIDv4, carried as transfer memo
	ClaimantID     string      // Discord user snowflake
	LedgerUsername string      // claimed Steem account (lower-case)
	ChannelID      string      // channel the request came from, may be empty
	Status         ClaimStatus // pending | confirmed
	CreatedAt      time.Time
	LastTouched    time.Time  // bumped on every re-request while pending
	ConfirmedAt    *time.Time // nil while pending
}

// Validate reports whether a stored claim is internally consistent.
// A failure here means the store holds corrupt state.
func (c *Claim) Validate() error {
	switch {
	case c.Code == "":
		return fmt.Errorf("claim has empty code")
	case c.LedgerUsername == "":
		return fmt.Errorf("claim %s has empty ledger username", c.Code)
	case c.ClaimantID == "":
		return fmt.Errorf("claim %s has empty claimant id", c.Code)
	case !c.Status.IsValid():
		return fmt.Errorf("claim %s has unknown status %q", c.Code, c.Status)
	case c.Status == ClaimConfirmed && c.ConfirmedAt == nil:
		return fmt.Errorf("claim %s is confirmed without confirmation time", c.Code)
	}
	return nil
}

// NormalizeUsername lower-cases and trims a ledger account name.
// Steem account names are case-insensitive on input but stored lower-case.
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "@")))
}
