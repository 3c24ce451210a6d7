package domain

import "time"

// Patron marks a claimant as holding a patron tier in the chat community.
// Membership is driven by external events; a patron without a confirmed
// claim is never a curation candidate.
type Patron struct {
	ClaimantID string
	Tier       string
	Since      time.Time
}
