package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/storage"
)

func TestPatronStore_UpsertListRemove(t *testing.T) {
	store := NewPatronStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, &domain.Patron{ClaimantID: "2", Tier: "gold", Since: t0}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	store.Upsert(ctx, &domain.Patron{ClaimantID: "1", Tier: "silver", Since: t0})
	store.Upsert(ctx, &domain.Patron{ClaimantID: "2", Tier: "platinum", Since: t0.Add(time.Hour)})

	list, _ := store.List(ctx)
	if len(list) != 2 || list[0].ClaimantID != "1" {
		t.Fatalf("unexpected patrons: %+v", list)
	}
	if list[1].Tier != "platinum" || !list[1].Since.Equal(t0) {
		t.Errorf("upsert should update tier and keep since: %+v", list[1])
	}

	if err := store.Remove(ctx, "1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := store.Remove(ctx, "1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.Upsert(ctx, &domain.Patron{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestMemoSet_Expiry(t *testing.T) {
	set := NewMemoSet(time.Minute)
	ctx := context.Background()

	if seen, _ := set.Seen(ctx, "m1"); seen {
		t.Fatalf("fresh set must be empty")
	}
	set.Mark(ctx, "m1", time.Hour)
	set.Mark(ctx, "m2", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if seen, _ := set.Seen(ctx, "m1"); !seen {
		t.Errorf("m1 should be remembered")
	}
	if seen, _ := set.Seen(ctx, "m2"); seen {
		t.Errorf("m2 should have expired")
	}
}

func TestOutcomeStore_ListSince(t *testing.T) {
	store := NewOutcomeStore()
	ctx := context.Background()

	store.Append(ctx, &domain.CycleReport{Loop: domain.LoopCuration, Outcome: domain.OutcomeVoted, StartedAt: t0.Add(time.Minute)})
	store.Append(ctx, &domain.CycleReport{Loop: domain.LoopReconcile, Outcome: domain.OutcomeSkippedIdle, StartedAt: t0})
	store.Append(ctx, &domain.CycleReport{Loop: domain.LoopCuration, Outcome: domain.OutcomeSkippedNoPost, StartedAt: t0.Add(-time.Hour)})

	curation, _ := store.ListSince(ctx, domain.LoopCuration, t0)
	if len(curation) != 1 || curation[0].Outcome != domain.OutcomeVoted {
		t.Errorf("unexpected curation reports: %+v", curation)
	}

	all, _ := store.ListSince(ctx, "", t0.Add(-2*time.Hour))
	if len(all) != 3 || all[0].Outcome != domain.OutcomeSkippedNoPost {
		t.Errorf("expected all reports oldest first, got %+v", all)
	}

	if err := store.Append(ctx, &domain.CycleReport{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
