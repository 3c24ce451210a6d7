package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"steem-patron-bot/internal/storage"
)

// DefaultMemoPrefix namespaces memo keys.
const DefaultMemoPrefix = "patron:memo:"

// MemoSet implements storage.MemoSet with one expiring key per memo.
// It survives restarts, unlike the in-memory set.
type MemoSet struct {
	rdb    goredis.UniversalClient
	prefix string
}

// NewMemoSet creates a Redis memo set. An empty prefix uses DefaultMemoPrefix.
func NewMemoSet(rdb goredis.UniversalClient, prefix string) *MemoSet {
	if prefix == "" {
		prefix = DefaultMemoPrefix
	}
	return &MemoSet{rdb: rdb, prefix: prefix}
}

// Compile-time interface check.
var _ storage.MemoSet = (*MemoSet)(nil)

// Seen reports whether memo was marked and has not expired.
func (m *MemoSet) Seen(ctx context.Context, memo string) (bool, error) {
	n, err := m.rdb.Exists(ctx, m.prefix+memo).Result()
	if err != nil {
		return false, fmt.Errorf("memo exists: %w", err)
	}
	return n > 0, nil
}

// Mark records memo for ttl with SET NX, keeping the first expiry.
// A non-positive ttl keeps the key without expiry.
func (m *MemoSet) Mark(ctx context.Context, memo string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := m.rdb.SetNX(ctx, m.prefix+memo, 1, ttl).Err(); err != nil {
		return fmt.Errorf("memo mark: %w", err)
	}
	return nil
}
