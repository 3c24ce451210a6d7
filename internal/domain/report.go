package domain

import (
	"strconv"
	"time"
)

// Loop names a scheduled engine loop.
type Loop string

const (
	LoopReconcile Loop = "reconcile"
	LoopCuration  Loop = "curation"
	LoopManual    Loop = "manual_upvote"
)

// Outcome is the result of one cycle.
type Outcome string

const (
	OutcomeVoted                    Outcome = "voted"
	OutcomeConfirmed                Outcome = "confirmed"
	OutcomeRefundFailed             Outcome = "refund_failed"
	OutcomeSkippedIdle              Outcome = "skipped_idle"
	OutcomeSkippedInsufficientPower Outcome = "skipped_insufficient_power"
	OutcomeSkippedNoPost            Outcome = "skipped_no_post"
	OutcomeNoMatch                  Outcome = "no_match"
	OutcomeFailed                   Outcome = "failed"
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	return string(o)
}

// CycleReport summarises one loop cycle. Reports are appended to the
// outcome audit log and drive notifications.
type CycleReport struct {
	Loop      Loop
	Outcome   Outcome
	StartedAt time.Time
	Duration  time.Duration

	// Curation details
	Author      string
	Permlink    string
	Weight      int     // percent, 0..100
	Voter       string
	VotingPower float64 // percent at cycle start

	// Reconciliation details
	Confirmed int      // claims confirmed this cycle
	Codes     []string // codes confirmed this cycle
	Refunds   []string // refunded amounts, "<payer>:<asset>"

	Error string
}

// Message renders a short human-readable line for chat notifications.
func (r *CycleReport) Message() string {
	switch r.Outcome {
	case OutcomeVoted:
		return "Voted " + PostURL(r.Author, r.Permlink) + " at " + strconv.Itoa(r.Weight) + "% by " + r.Voter
	case OutcomeSkippedInsufficientPower:
		return "skipped: insufficient power"
	case OutcomeSkippedNoPost:
		return "skipped: no suitable post"
	case OutcomeSkippedIdle:
		return "skipped: no pending claims"
	case OutcomeConfirmed:
		return "confirmed " + strconv.Itoa(r.Confirmed) + " claim(s)"
	case OutcomeFailed:
		return "failed: " + r.Error
	}
	return string(r.Outcome)
}
