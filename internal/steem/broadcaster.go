package steem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/observability"
)

// DefaultExpiration is how far past the head block time a transaction expires.
const DefaultExpiration = 60 * time.Second

// PropertiesSource provides the head block reference for new transactions.
type PropertiesSource interface {
	GlobalProperties(ctx context.Context) (*GlobalProperties, error)
}

// BroadcasterOptions configures Broadcaster.
type BroadcasterOptions struct {
	ChainID    []byte        // 32 bytes; defaults to the mainnet id (all zeros)
	Expiration time.Duration // defaults to DefaultExpiration
	Logger     zerolog.Logger
}

// Broadcaster builds, signs and submits one transaction at a time. It is
// shared by every loop that writes to the ledger; the mutex makes
// "build, sign, broadcast" atomic across them.
type Broadcaster struct {
	props      PropertiesSource
	transport  Transport
	chainID    []byte
	expiration time.Duration
	logger     zerolog.Logger

	mu sync.Mutex
}

// NewBroadcaster creates a Broadcaster. The transport should not retry, so
// a broadcast reaches the node at most once per call.
func NewBroadcaster(props PropertiesSource, transport Transport, opts BroadcasterOptions) *Broadcaster {
	if len(opts.ChainID) == 0 {
		opts.ChainID = make([]byte, 32)
	}
	if opts.Expiration <= 0 {
		opts.Expiration = DefaultExpiration
	}
	return &Broadcaster{
		props:      props,
		transport:  transport,
		chainID:    opts.ChainID,
		expiration: opts.Expiration,
		logger:     opts.Logger,
	}
}

// Compile-time interface check.
var _ Writer = (*Broadcaster)(nil)

// Broadcast signs ops with key and submits them synchronously.
func (b *Broadcaster) Broadcast(ctx context.Context, key *PrivateKey, ops ...Operation) (*BroadcastResult, error) {
	if key == nil {
		return nil, fmt.Errorf("broadcast: signing key is required")
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("broadcast: no operations")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	props, err := b.props.GlobalProperties(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := NewTransaction(props, b.expiration, ops...)
	if err != nil {
		return nil, err
	}
	if err := Sign(tx, b.chainID, key); err != nil {
		return nil, err
	}

	var result BroadcastResult
	if err := b.transport.Call(ctx, "condenser_api.broadcast_transaction_synchronous",
		[]interface{}{tx}, &result); err != nil {
		observability.RecordBroadcast(ops[0].opName(), false)
		return nil, fmt.Errorf("broadcast %s: %w", ops[0].opName(), err)
	}
	observability.RecordBroadcast(ops[0].opName(), true)

	b.logger.Debug().
		Str("op", ops[0].opName()).
		Str("tx_id", result.ID).
		Int64("block", result.BlockNum).
		Str("signer", key.PublicKey()).
		Msg("transaction broadcast")
	return &result, nil
}

// Vote implements Writer. weight is in ledger units (-10000..10000).
func (b *Broadcaster) Vote(ctx context.Context, key *PrivateKey, voter, author, permlink string, weight int) (*BroadcastResult, error) {
	if weight < -10000 || weight > 10000 {
		return nil, fmt.Errorf("vote weight %d out of range", weight)
	}
	return b.Broadcast(ctx, key, VoteOperation{
		Voter:    voter,
		Author:   author,
		Permlink: permlink,
		Weight:   int16(weight),
	})
}

// Transfer implements Writer.
func (b *Broadcaster) Transfer(ctx context.Context, key *PrivateKey, from, to string, amount domain.Asset, memo string) (*BroadcastResult, error) {
	if amount.Satoshis() <= 0 {
		return nil, fmt.Errorf("transfer amount %s must be positive", amount)
	}
	return b.Broadcast(ctx, key, TransferOperation{
		From:   from,
		To:     to,
		Amount: amount,
		Memo:   memo,
	})
}
