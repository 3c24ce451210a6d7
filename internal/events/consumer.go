// Package events applies patron membership changes published on a Redis
// stream.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/observability"
	"steem-patron-bot/internal/storage"
)

// Event types carried in the "type" field of a stream entry.
const (
	TypePatronAdded   = "patron_added"
	TypePatronRemoved = "patron_removed"
)

// Stream entry fields.
const (
	FieldType       = "type"
	FieldClaimantID = "claimant_id"
	FieldTier       = "tier"
	FieldSince      = "since" // RFC 3339, optional
)

// ErrMalformedEvent marks an entry that can never be applied. Such entries
// are acknowledged and dropped.
var ErrMalformedEvent = errors.New("malformed patron event")

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	Client   goredis.UniversalClient
	Patrons  storage.PatronStore
	Stream   string // Default: "patron:events"
	Group    string // Default: "patron-bot"
	Consumer string // Default: "engine-1"

	Count      int64         // entries per read. Default: 10
	Block      time.Duration // read block time. Default: 5s
	ErrorDelay time.Duration // pause after a read error. Default: 1s

	Logger zerolog.Logger
	Now    func() time.Time
}

// Consumer reads the patron event stream through a consumer group.
type Consumer struct {
	rdb      goredis.UniversalClient
	patrons  storage.PatronStore
	stream   string
	group    string
	consumer string

	count      int64
	block      time.Duration
	errorDelay time.Duration

	logger zerolog.Logger
	now    func() time.Time
}

// NewConsumer creates a Consumer.
func NewConsumer(opts ConsumerOptions) *Consumer {
	c := &Consumer{
		rdb:        opts.Client,
		patrons:    opts.Patrons,
		stream:     opts.Stream,
		group:      opts.Group,
		consumer:   opts.Consumer,
		count:      opts.Count,
		block:      opts.Block,
		errorDelay: opts.ErrorDelay,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if c.stream == "" {
		c.stream = "patron:events"
	}
	if c.group == "" {
		c.group = "patron-bot"
	}
	if c.consumer == "" {
		c.consumer = "engine-1"
	}
	if c.count <= 0 {
		c.count = 10
	}
	if c.block <= 0 {
		c.block = 5 * time.Second
	}
	if c.errorDelay <= 0 {
		c.errorDelay = time.Second
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// EnsureGroup creates the stream and consumer group if missing.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", c.group, err)
	}
	return nil
}

// Run consumes events until ctx is cancelled. Entries left pending by a
// previous run of this consumer are replayed first.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	c.logger.Info().Str("stream", c.stream).Str("group", c.group).Msg("patron event consumer started")

	if _, err := c.Poll(ctx, "0"); err != nil && ctx.Err() == nil {
		c.logger.Error().Err(err).Msg("replay pending patron events")
	}

	for {
		if ctx.Err() != nil {
			c.logger.Info().Msg("patron event consumer stopped")
			return nil
		}
		if _, err := c.Poll(ctx, ">"); err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error().Err(err).Msg("read patron events")
			select {
			case <-ctx.Done():
			case <-time.After(c.errorDelay):
			}
		}
	}
}

// Poll performs one group read starting at id (">" for new entries, "0"
// for this consumer's pending ones) and applies what it gets. It returns the
// number of entries acknowledged.
func (c *Consumer) Poll(ctx context.Context, id string) (int, error) {
	args := &goredis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, id},
		Count:    c.count,
	}
	if id == ">" {
		args.Block = c.block
	}
	streams, err := c.rdb.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("xreadgroup: %w", err)
	}

	acked := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			err := c.apply(ctx, msg.Values)
			switch {
			case err == nil:
			case errors.Is(err, ErrMalformedEvent):
				c.logger.Warn().Err(err).Str("id", msg.ID).Interface("values", msg.Values).Msg("dropping patron event")
			default:
				// Stays pending and is replayed on the next start.
				c.logger.Error().Err(err).Str("id", msg.ID).Msg("apply patron event")
				continue
			}
			if err := c.rdb.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
				return acked, fmt.Errorf("xack %s: %w", msg.ID, err)
			}
			acked++
		}
	}
	return acked, nil
}

func (c *Consumer) apply(ctx context.Context, values map[string]interface{}) error {
	eventType, _ := values[FieldType].(string)
	claimantID, _ := values[FieldClaimantID].(string)
	if _, err := snowflake.ParseString(claimantID); err != nil {
		return fmt.Errorf("%w: claimant id %q", ErrMalformedEvent, claimantID)
	}

	switch eventType {
	case TypePatronAdded:
		tier, _ := values[FieldTier].(string)
		since := c.now().UTC()
		if raw, ok := values[FieldSince].(string); ok && raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return fmt.Errorf("%w: since %q", ErrMalformedEvent, raw)
			}
			since = t.UTC()
		}
		if err := c.patrons.Upsert(ctx, &domain.Patron{ClaimantID: claimantID, Tier: tier, Since: since}); err != nil {
			return fmt.Errorf("upsert patron %s: %w", claimantID, err)
		}
		c.logger.Info().Str("claimant_id", claimantID).Str("tier", tier).Msg("patron added")

	case TypePatronRemoved:
		err := c.patrons.Remove(ctx, claimantID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("remove patron %s: %w", claimantID, err)
		}
		c.logger.Info().Str("claimant_id", claimantID).Msg("patron removed")

	default:
		return fmt.Errorf("%w: type %q", ErrMalformedEvent, eventType)
	}

	observability.RecordPatronEvent(eventType)
	return nil
}

// Publish appends a membership event to stream. Used by tooling and tests.
func Publish(ctx context.Context, rdb goredis.UniversalClient, stream, eventType, claimantID, tier string) (string, error) {
	id, err := rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			FieldType:       eventType,
			FieldClaimantID: claimantID,
			FieldTier:       tier,
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}
