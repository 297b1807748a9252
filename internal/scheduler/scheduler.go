package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/finnews/internal/pipeline"
)

const (
	DefaultSourceFloorThreshold = 10
	DefaultMinIntervalFloor     = 5 * time.Minute
)

// CycleRunner executes one full pipeline cycle. *pipeline.Service satisfies it.
type CycleRunner interface {
	RunCycle(ctx context.Context) *pipeline.Run
	SourceCount() int
}

type Options struct {
	// SourceFloorThreshold and MinIntervalFloor implement the adaptive
	// interval floor: with more sources than the threshold, the effective
	// interval never drops below the floor.
	SourceFloorThreshold int
	MinIntervalFloor     time.Duration
}

type Status struct {
	Running      bool          `json:"running"`
	Interval     time.Duration `json:"interval_ns"`
	TotalCycles  int64         `json:"total_cycles"`
	SkippedTicks int64         `json:"skipped_ticks"`
	LastRun      *pipeline.Run `json:"last_run,omitempty"`
}

// Scheduler drives recurring cycles with single-flight execution: a tick that
// fires while a cycle is still in flight is a counted no-op, never an
// overlapping run.
type Scheduler struct {
	runner CycleRunner
	logger zerolog.Logger
	opts   Options

	mu       sync.Mutex
	running  bool
	interval time.Duration
	runCtx   context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	lastRun  *pipeline.Run

	inFlight     atomic.Bool
	totalCycles  atomic.Int64
	skippedTicks atomic.Int64
}

func New(runner CycleRunner, logger zerolog.Logger, opts Options) *Scheduler {
	if opts.SourceFloorThreshold <= 0 {
		opts.SourceFloorThreshold = DefaultSourceFloorThreshold
	}
	if opts.MinIntervalFloor <= 0 {
		opts.MinIntervalFloor = DefaultMinIntervalFloor
	}
	return &Scheduler{
		runner: runner,
		logger: logger,
		opts:   opts,
	}
}

// EffectiveInterval applies the adaptive floor to the configured interval.
func (s *Scheduler) EffectiveInterval(interval time.Duration) time.Duration {
	if s.runner.SourceCount() > s.opts.SourceFloorThreshold && interval < s.opts.MinIntervalFloor {
		return s.opts.MinIntervalFloor
	}
	return interval
}

// Start begins ticking at the effective interval. Starting a running
// scheduler is an error; the caller decides whether that matters.
func (s *Scheduler) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	effective := s.EffectiveInterval(interval)
	if effective != interval {
		s.logger.Warn().
			Dur("configured", interval).
			Dur("effective", effective).
			Int("sources", s.runner.SourceCount()).
			Msg("interval raised to protective floor")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.running = true
	s.interval = effective
	s.runCtx = ctx
	s.cancel = cancel
	s.done = done

	go s.loop(ctx, effective, done)
	s.logger.Info().Dur("interval", effective).Msg("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick launches one cycle unless one is already in flight.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skippedTicks.Add(1)
		s.logger.Debug().Msg("tick skipped, cycle still in flight")
		return
	}

	go func() {
		defer s.inFlight.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Interface("panic", r).Msg("cycle panicked")
			}
		}()

		run := s.runner.RunCycle(ctx)
		s.totalCycles.Add(1)

		s.mu.Lock()
		s.lastRun = run
		s.mu.Unlock()
	}()
}

// TriggerNow runs a cycle immediately, subject to the same single-flight
// guard. The cycle shares the run context created in Start, so Stop cancels
// triggered cycles the same way it cancels ticker-driven ones. Reports whether
// a cycle was actually launched.
func (s *Scheduler) TriggerNow() bool {
	s.mu.Lock()
	running := s.running
	ctx := s.runCtx
	s.mu.Unlock()
	if !running || ctx == nil {
		return false
	}
	if s.inFlight.Load() {
		s.skippedTicks.Add(1)
		return false
	}
	s.tick(ctx)
	return true
}

// Stop requests cooperative shutdown: the in-flight stage completes and the
// next stage never starts. Blocks until the ticker loop exits.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.runCtx = nil
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:      s.running,
		Interval:     s.interval,
		TotalCycles:  s.totalCycles.Load(),
		SkippedTicks: s.skippedTicks.Load(),
		LastRun:      s.lastRun,
	}
}
