package memory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"steem-patron-bot/internal/storage"
)

// MemoSet is an in-memory storage.MemoSet with per-entry expiry.
// Contents are lost on restart.
type MemoSet struct {
	c *cache.Cache
}

// NewMemoSet creates a memo set that purges expired entries every cleanup interval.
func NewMemoSet(cleanup time.Duration) *MemoSet {
	return &MemoSet{c: cache.New(cache.NoExpiration, cleanup)}
}

// Compile-time interface check.
var _ storage.MemoSet = (*MemoSet)(nil)

// Seen reports whether memo was marked and has not expired.
func (m *MemoSet) Seen(_ context.Context, memo string) (bool, error) {
	_, ok := m.c.Get(memo)
	return ok, nil
}

// Mark records memo for ttl. A non-positive ttl keeps it until restart.
func (m *MemoSet) Mark(_ context.Context, memo string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	m.c.Set(memo, struct{}{}, ttl)
	return nil
}
