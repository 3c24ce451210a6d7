package scheduler

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
	"steem-patron-bot/internal/storage/memory"
)

func okCycle(loop domain.Loop, outcome domain.Outcome, calls *atomic.Int32) CycleFunc {
	return func(context.Context) (*domain.CycleReport, error) {
		calls.Add(1)
		return &domain.CycleReport{Loop: loop, Outcome: outcome, StartedAt: time.Now()}, nil
	}
}

func TestRuntime_RunRecordsReport(t *testing.T) {
	outcomes := memory.NewOutcomeStore()
	var calls atomic.Int32
	job := Job{Loop: domain.LoopCuration, Interval: time.Hour, Cycle: okCycle(domain.LoopCuration, domain.OutcomeVoted, &calls)}

	r, err := NewRuntime(Options{Jobs: []Job{job}, Outcomes: outcomes, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer r.Shutdown()

	r.Run(job)

	reports, err := outcomes.ListSince(context.Background(), domain.LoopCuration, time.Time{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, domain.OutcomeVoted, reports[0].Outcome)
}

func TestRuntime_RunRecoversPanic(t *testing.T) {
	outcomes := memory.NewOutcomeStore()
	job := Job{Loop: domain.LoopReconcile, Interval: time.Hour, Cycle: CycleFunc(func(context.Context) (*domain.CycleReport, error) {
		panic("boom")
	})}

	r, err := NewRuntime(Options{Jobs: []Job{job}, Outcomes: outcomes, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer r.Shutdown()

	assert.NotPanics(t, func() { r.Run(job) })

	reports, err := outcomes.ListSince(context.Background(), "", time.Time{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, domain.OutcomeFailed, reports[0].Outcome)
	assert.Equal(t, domain.LoopReconcile, reports[0].Loop)
	assert.Equal(t, "panic: boom", reports[0].Error)
}

func TestRuntime_RunErrorWithoutReport(t *testing.T) {
	outcomes := memory.NewOutcomeStore()
	job := Job{Loop: domain.LoopReconcile, Interval: time.Hour, Cycle: CycleFunc(func(context.Context) (*domain.CycleReport, error) {
		return nil, errors.New("ledger down")
	})}

	r, err := NewRuntime(Options{Jobs: []Job{job}, Outcomes: outcomes, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer r.Shutdown()

	r.Run(job)

	reports, err := outcomes.ListSince(context.Background(), domain.LoopReconcile, time.Time{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "ledger down", reports[0].Error)
}

func TestRuntime_PanickingLoopDoesNotStopOther(t *testing.T) {
	var curation atomic.Int32
	jobs := []Job{
		{Loop: domain.LoopReconcile, Interval: 10 * time.Millisecond, Cycle: CycleFunc(func(context.Context) (*domain.CycleReport, error) {
			panic("reconcile exploded")
		})},
		{Loop: domain.LoopCuration, Interval: 10 * time.Millisecond, Cycle: okCycle(domain.LoopCuration, domain.OutcomeSkippedNoPost, &curation)},
	}

	r, err := NewRuntime(Options{Jobs: jobs, Logger: zerolog.Nop()})
	require.NoError(t, err)
	r.Start()

	assert.Eventually(t, func() bool { return curation.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, r.Shutdown())
}

func TestRuntime_SingletonNeverOverlaps(t *testing.T) {
	var running, maxRunning, calls atomic.Int32
	job := Job{Loop: domain.LoopCuration, Interval: 5 * time.Millisecond, Cycle: CycleFunc(func(context.Context) (*domain.CycleReport, error) {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
		calls.Add(1)
		return &domain.CycleReport{Outcome: domain.OutcomeSkippedNoPost}, nil
	})}

	r, err := NewRuntime(Options{Jobs: []Job{job}, Logger: zerolog.Nop()})
	require.NoError(t, err)
	r.Start()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, r.Shutdown())
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestRuntime_ShutdownWaitsForInFlightCycle(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	var sawCancel atomic.Bool
	job := Job{Loop: domain.LoopReconcile, Interval: time.Hour, Cycle: CycleFunc(func(ctx context.Context) (*domain.CycleReport, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		sawCancel.Store(ctx.Err() != nil)
		finished.Store(true)
		return &domain.CycleReport{Outcome: domain.OutcomeSkippedIdle}, nil
	})}

	r, err := NewRuntime(Options{Jobs: []Job{job}, StopTimeout: time.Second, Logger: zerolog.Nop()})
	require.NoError(t, err)
	r.Start()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle never started")
	}
	require.NoError(t, r.Shutdown())
	assert.True(t, finished.Load())
	assert.False(t, sawCancel.Load(), "cycle context stays live until in-flight cycles finish")
}

func TestNewRuntime_Validation(t *testing.T) {
	_, err := NewRuntime(Options{})
	assert.Error(t, err)

	var calls atomic.Int32
	_, err = NewRuntime(Options{Jobs: []Job{{Loop: domain.LoopCuration, Cycle: okCycle(domain.LoopCuration, domain.OutcomeVoted, &calls)}}})
	assert.Error(t, err)

	_, err = NewRuntime(Options{Jobs: []Job{{Loop: domain.LoopCuration, Interval: time.Second}}})
	assert.Error(t, err)
}
