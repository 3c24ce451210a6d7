package clickhouse_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/storage"
	"steem-patron-bot/internal/storage/clickhouse"
)

func TestOutcomeStore_AppendAndList(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := clickhouse.NewOutcomeStore(conn)
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	voted := &domain.CycleReport{
		Loop:        domain.LoopCuration,
		Outcome:     domain.OutcomeVoted,
		StartedAt:   t0,
		Duration:    1500 * time.Millisecond,
		Author:      "bob",
		Permlink:    "hello",
		Weight:      50,
		Voter:       "curator",
		VotingPower: 91.25,
	}
	confirmed := &domain.CycleReport{
		Loop:      domain.LoopReconcile,
		Outcome:   domain.OutcomeConfirmed,
		StartedAt: t0.Add(time.Minute),
		Confirmed: 1,
		Codes:     []string{"code-1"},
		Refunds:   []string{"alice:0.001 STEEM"},
	}
	old := &domain.CycleReport{Loop: domain.LoopCuration, Outcome: domain.OutcomeSkippedNoPost, StartedAt: t0.Add(-time.Hour)}

	for _, r := range []*domain.CycleReport{voted, confirmed, old} {
		require.NoError(t, store.Append(ctx, r))
	}

	curation, err := store.ListSince(ctx, domain.LoopCuration, t0)
	require.NoError(t, err)
	require.Len(t, curation, 1)
	assert.Equal(t, "hello", curation[0].Permlink)
	assert.Equal(t, 50, curation[0].Weight)
	assert.Equal(t, 1500*time.Millisecond, curation[0].Duration)
	assert.InDelta(t, 91.25, curation[0].VotingPower, 0.001)

	all, err := store.ListSince(ctx, "", t0.Add(-2*time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, domain.OutcomeSkippedNoPost, all[0].Outcome)
	assert.Equal(t, []string{"alice:0.001 STEEM"}, all[2].Refunds)

	assert.ErrorIs(t, store.Append(ctx, &domain.CycleReport{}), storage.ErrInvalidInput)
}
