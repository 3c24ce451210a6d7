package registration

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/eligibility"
	"steem-patron-bot/internal/storage/memory"
)

type fakeChecker struct {
	known    map[string]bool
	failures int32 // calls that fail before answering
	calls    atomic.Int32
}

func (f *fakeChecker) AccountExists(_ context.Context, name string) (bool, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return false, errors.New("node timeout")
	}
	return f.known[name], nil
}

func newTestService(checker AccountChecker, claims *memory.ClaimStore, opts ...func(*Options)) *Service {
	o := Options{
		Claims:              claims,
		Ledger:              checker,
		RegistrationAccount: "registrar",
		Amount:              domain.MustParseAsset("0.001 STEEM"),
		CheckRetries:        2,
		CheckBackoff:        time.Millisecond,
		Logger:              zerolog.Nop(),
		Now:                 func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
	for _, fn := range opts {
		fn(&o)
	}
	return NewService(o)
}

func TestRegister_IssuesAndReusesCode(t *testing.T) {
	checker := &fakeChecker{known: map[string]bool{"alice": true}}
	svc := newTestService(checker, memory.NewClaimStore())
	ctx := context.Background()

	first, err := svc.Register(ctx, "@Alice", "100", "chan")
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, first.Code, first.Memo)
	assert.Equal(t, "registrar", first.RegistrationAccount)
	assert.Equal(t, "Send 0.001 STEEM to @registrar with memo "+first.Code+" to complete verification.", first.Message())

	second, err := svc.Register(ctx, "alice", "100", "chan")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Code, second.Code)

	// The second lookup is served from cache.
	assert.Equal(t, int32(1), checker.calls.Load())

	claim, err := svc.Lookup(ctx, first.Code)
	require.NoError(t, err)
	assert.Equal(t, "alice", claim.LedgerUsername)
}

func TestRegister_UnknownAccount(t *testing.T) {
	svc := newTestService(&fakeChecker{known: map[string]bool{}}, memory.NewClaimStore())

	_, err := svc.Register(context.Background(), "ghost", "100", "")
	require.Error(t, err)
	assert.True(t, eligibility.IsValidation(err))
	assert.Equal(t, "Account @ghost does not exist.", err.Error())
}

func TestRegister_RetriesTransientFailures(t *testing.T) {
	checker := &fakeChecker{known: map[string]bool{"alice": true}, failures: 2}
	svc := newTestService(checker, memory.NewClaimStore())

	_, err := svc.Register(context.Background(), "alice", "100", "")
	require.NoError(t, err)
	assert.Equal(t, int32(3), checker.calls.Load())
}

func TestRegister_LedgerUnavailable(t *testing.T) {
	checker := &fakeChecker{known: map[string]bool{"alice": true}, failures: 100}
	svc := newTestService(checker, memory.NewClaimStore())

	_, err := svc.Register(context.Background(), "alice", "100", "")
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.Equal(t, int32(3), checker.calls.Load(), "bounded by CheckRetries")
}

func TestRegister_ZeroRetriesChecksOnce(t *testing.T) {
	checker := &fakeChecker{known: map[string]bool{"alice": true}, failures: 1}
	svc := newTestService(checker, memory.NewClaimStore(), func(o *Options) { o.CheckRetries = 0 })

	_, err := svc.Register(context.Background(), "alice", "100", "")
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.Equal(t, int32(1), checker.calls.Load())
}

func TestRegister_RejectsEmptyInput(t *testing.T) {
	svc := newTestService(&fakeChecker{}, memory.NewClaimStore())

	_, err := svc.Register(context.Background(), "  ", "100", "")
	assert.True(t, eligibility.IsValidation(err))

	_, err = svc.Register(context.Background(), "alice", "", "")
	assert.True(t, eligibility.IsValidation(err))
}
