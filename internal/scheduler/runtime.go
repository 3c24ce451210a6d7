// Package scheduler runs the engine loops on fixed delays.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/observability"
	"steem-patron-bot/internal/storage"
)

// Cycle is one pass of a loop.
type Cycle interface {
	RunCycle(ctx context.Context) (*domain.CycleReport, error)
}

// CycleFunc adapts a function to Cycle.
type CycleFunc func(ctx context.Context) (*domain.CycleReport, error)

// RunCycle calls f.
func (f CycleFunc) RunCycle(ctx context.Context) (*domain.CycleReport, error) {
	return f(ctx)
}

// Job binds a loop to its delay between cycle starts.
type Job struct {
	Loop     domain.Loop
	Interval time.Duration
	Cycle    Cycle
}

// Options contains configuration for creating a Runtime.
type Options struct {
	Jobs []Job
	// Outcomes receives every cycle report. Optional.
	Outcomes storage.OutcomeStore
	// StopTimeout bounds how long Shutdown waits for in-flight cycles.
	// Default: 30s
	StopTimeout time.Duration
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Runtime owns the gocron scheduler and the context handed to cycles.
type Runtime struct {
	sched    gocron.Scheduler
	jobs     []Job
	outcomes storage.OutcomeStore
	logger   zerolog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRuntime creates a Runtime with one singleton job per loop. Jobs are
// not started until Start.
func NewRuntime(opts Options) (*Runtime, error) {
	if len(opts.Jobs) == 0 {
		return nil, errors.New("scheduler: no jobs")
	}
	stopTimeout := opts.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	sched, err := gocron.NewScheduler(
		gocron.WithStopTimeout(stopTimeout),
		gocron.WithLogger(gocronLogger{opts.Logger}),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		sched:    sched,
		jobs:     opts.Jobs,
		outcomes: opts.Outcomes,
		logger:   opts.Logger,
		now:      now,
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, job := range opts.Jobs {
		if job.Interval <= 0 {
			cancel()
			return nil, fmt.Errorf("scheduler: %s interval must be positive", job.Loop)
		}
		if job.Cycle == nil {
			cancel()
			return nil, fmt.Errorf("scheduler: %s has no cycle", job.Loop)
		}
		_, err := sched.NewJob(
			gocron.DurationJob(job.Interval),
			gocron.NewTask(r.Run, job),
			gocron.WithName(string(job.Loop)),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("schedule %s: %w", job.Loop, err)
		}
	}
	return r, nil
}

// Start begins running jobs. It does not block.
func (r *Runtime) Start() {
	for _, job := range r.jobs {
		r.logger.Info().Str("loop", string(job.Loop)).Dur("interval", job.Interval).Msg("loop scheduled")
	}
	r.sched.Start()
}

// Shutdown stops scheduling, waits for in-flight cycles up to the stop
// timeout and then cancels the cycle context.
func (r *Runtime) Shutdown() error {
	err := r.sched.Shutdown()
	r.cancel()
	if err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	return nil
}

// Run executes one cycle of job and records its report. A panicking or
// failing cycle is logged and never propagates.
func (r *Runtime) Run(job Job) {
	report := r.runCycle(job)

	observability.RecordCycle(string(report.Loop), report.Outcome.String(),
		report.Duration.Seconds(), report.StartedAt.Add(report.Duration).Unix())

	event := r.logger.Info()
	if report.Outcome == domain.OutcomeFailed || report.Outcome == domain.OutcomeRefundFailed {
		event = r.logger.Warn()
	}
	event.Str("loop", string(report.Loop)).
		Str("outcome", report.Outcome.String()).
		Dur("duration", report.Duration).
		Msg(report.Message())

	if r.outcomes == nil {
		return
	}
	if err := r.outcomes.Append(r.ctx, report); err != nil {
		r.logger.Error().Err(err).Str("loop", string(job.Loop)).Msg("append cycle report")
	}
}

func (r *Runtime) runCycle(job Job) (report *domain.CycleReport) {
	start := r.now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().
				Str("loop", string(job.Loop)).
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("cycle panicked")
			report = failedReport(job.Loop, start, r.now(), fmt.Sprintf("panic: %v", p))
		}
	}()

	report, err := job.Cycle.RunCycle(r.ctx)
	if err != nil {
		r.logger.Error().Err(err).Str("loop", string(job.Loop)).Msg("cycle failed")
		if report == nil {
			report = failedReport(job.Loop, start, r.now(), err.Error())
		}
	}
	if report == nil {
		report = failedReport(job.Loop, start, r.now(), "cycle returned no report")
	}
	if report.Loop == "" {
		report.Loop = job.Loop
	}
	return report
}

func failedReport(loop domain.Loop, start, end time.Time, msg string) *domain.CycleReport {
	return &domain.CycleReport{
		Loop:      loop,
		Outcome:   domain.OutcomeFailed,
		StartedAt: start,
		Duration:  end.Sub(start),
		Error:     msg,
	}
}

// gocronLogger routes scheduler diagnostics to zerolog.
type gocronLogger struct {
	l zerolog.Logger
}

func (g gocronLogger) Debug(msg string, args ...any) { g.l.Debug().Fields(args).Msg(msg) }
func (g gocronLogger) Error(msg string, args ...any) { g.l.Error().Fields(args).Msg(msg) }
func (g gocronLogger) Info(msg string, args ...any)  { g.l.Debug().Fields(args).Msg(msg) }
func (g gocronLogger) Warn(msg string, args ...any)  { g.l.Warn().Fields(args).Msg(msg) }
