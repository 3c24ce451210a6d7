package clickhouse

import (
	"context"
	"fmt"
	"time"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/storage"
)

// OutcomeStore implements storage.OutcomeStore using ClickHouse.
type OutcomeStore struct {
	conn *Conn
}

// NewOutcomeStore creates a new OutcomeStore.
func NewOutcomeStore(conn *Conn) *OutcomeStore {
	return &OutcomeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.OutcomeStore = (*OutcomeStore)(nil)

// Append records a report.
func (s *OutcomeStore) Append(ctx context.Context, r *domain.CycleReport) error {
	if r == nil || r.Loop == "" || r.Outcome == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO cycle_reports (
			loop, outcome, started_at, duration_ms,
			author, permlink, weight, voter, voting_power,
			confirmed, codes, refunds, error
		) VALUES (
			?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?
		)
	`

	codes := r.Codes
	if codes == nil {
		codes = []string{}
	}
	refunds := r.Refunds
	if refunds == nil {
		refunds = []string{}
	}

	err := s.conn.Exec(ctx, query,
		string(r.Loop), string(r.Outcome), r.StartedAt.UTC(), uint64(r.Duration.Milliseconds()),
		r.Author, r.Permlink, int32(r.Weight), r.Voter, r.VotingPower,
		uint32(r.Confirmed), codes, refunds, r.Error,
	)
	if err != nil {
		return fmt.Errorf("insert cycle report: %w", err)
	}
	return nil
}

// ListSince returns reports of loop started at or after since, oldest first.
func (s *OutcomeStore) ListSince(ctx context.Context, loop domain.Loop, since time.Time) ([]*domain.CycleReport, error) {
	query := `
		SELECT loop, outcome, started_at, duration_ms,
		       author, permlink, weight, voter, voting_power,
		       confirmed, codes, refunds, error
		FROM cycle_reports
		WHERE started_at >= ? AND (? = '' OR loop = ?)
		ORDER BY started_at ASC
	`

	rows, err := s.conn.Query(ctx, query, since.UTC(), string(loop), string(loop))
	if err != nil {
		return nil, fmt.Errorf("query cycle reports: %w", err)
	}
	defer rows.Close()

	var result []*domain.CycleReport
	for rows.Next() {
		var (
			r          domain.CycleReport
			loopName   string
			outcome    string
			durationMS uint64
			weight     int32
			confirmed  uint32
		)
		if err := rows.Scan(
			&loopName, &outcome, &r.StartedAt, &durationMS,
			&r.Author, &r.Permlink, &weight, &r.Voter, &r.VotingPower,
			&confirmed, &r.Codes, &r.Refunds, &r.Error,
		); err != nil {
			return nil, fmt.Errorf("scan cycle report: %w", err)
		}
		r.Loop = domain.Loop(loopName)
		r.Outcome = domain.Outcome(outcome)
		r.StartedAt = r.StartedAt.UTC()
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Weight = int(weight)
		r.Confirmed = int(confirmed)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycle reports: %w", err)
	}
	return result, nil
}
