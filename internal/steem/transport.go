package steem

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
)

// Dial opens a transport for a node URL, choosing HTTP or WebSocket by scheme.
// HTTP options are ignored for ws(s) nodes.
func Dial(ctx context.Context, node string, opts ...ClientOption) (Transport, error) {
	u, err := url.Parse(node)
	if err != nil {
		return nil, fmt.Errorf("parse node url %q: %w", node, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return NewHTTPTransport(node, opts...), nil
	case "ws", "wss":
		return NewWSTransport(ctx, node, nil)
	default:
		return nil, fmt.Errorf("unsupported node scheme %q", u.Scheme)
	}
}

// FailoverTransport tries each node in order until one answers. RPC errors
// come from a node that answered and are returned without trying the next.
//
// Broadcasts are never resent: a node that failed may still have accepted
// the transaction. They go to a single node, and a transport failure moves
// later broadcasts to the next one.
type FailoverTransport struct {
	nodes  []Transport
	writer atomic.Uint32 // index of the node taking broadcasts
}

// NewFailoverTransport wraps transports in preference order.
func NewFailoverTransport(nodes ...Transport) *FailoverTransport {
	return &FailoverTransport{nodes: nodes}
}

// DialAll dials every node URL. Nodes that fail to dial are skipped; an
// error is returned only if none could be opened.
func DialAll(ctx context.Context, nodes []string, opts ...ClientOption) (*FailoverTransport, error) {
	var transports []Transport
	var errs []error
	for _, n := range nodes {
		t, err := Dial(ctx, n, opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		transports = append(transports, t)
	}
	if len(transports) == 0 {
		return nil, fmt.Errorf("no reachable steem node: %w", errors.Join(errs...))
	}
	return NewFailoverTransport(transports...), nil
}

// Call implements Transport.
func (f *FailoverTransport) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if len(f.nodes) == 0 {
		return fmt.Errorf("no steem nodes configured")
	}
	if IsBroadcastMethod(method) {
		return f.broadcast(ctx, method, params, result)
	}
	var lastErr error
	for _, n := range f.nodes {
		err := n.Call(ctx, method, params, result)
		if err == nil {
			return nil
		}
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) || ctx.Err() != nil {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (f *FailoverTransport) broadcast(ctx context.Context, method string, params []interface{}, result interface{}) error {
	i := f.writer.Load()
	err := f.nodes[int(i)%len(f.nodes)].Call(ctx, method, params, result)
	var rpcErr *RPCError
	if err != nil && !errors.As(err, &rpcErr) && ctx.Err() == nil {
		f.writer.CompareAndSwap(i, i+1)
	}
	return err
}

// IsBroadcastMethod reports whether an RPC method submits a transaction.
func IsBroadcastMethod(method string) bool {
	return strings.Contains(method, "broadcast_transaction")
}

// Close closes every node transport.
func (f *FailoverTransport) Close() error {
	var errs []error
	for _, n := range f.nodes {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
