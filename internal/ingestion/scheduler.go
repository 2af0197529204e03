package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// JobStatus is a snapshot of a scheduler's state.
type JobStatus struct {
	Name     string
	Interval time.Duration
	Running  bool
	LastRun  time.Time // start of the last completed run, zero before the first
	LastErr  error
}

// Scheduler runs a job immediately and then on every tick. A tick that fires
// while the previous run is still going is skipped.
type Scheduler struct {
	name     string
	interval time.Duration
	job      Job
	log      zerolog.Logger

	mu      sync.Mutex
	running bool
	lastRun time.Time
	lastErr error
}

// NewScheduler creates a Scheduler.
func NewScheduler(name string, interval time.Duration, job Job, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
		log:      log.With().Str("scheduler", name).Logger(),
	}
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string {
	return s.name
}

// Run blocks until ctx is cancelled. A non-positive interval is rejected.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("scheduler %s: interval must be positive, got %s", s.name, s.interval)
	}
	s.log.Info().Dur("interval", s.interval).Msg("starting scheduler")

	// Run immediately on start
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Trigger starts an out-of-schedule run in the background unless one is in
// progress. It reports whether a run was started.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.begin() {
		return false
	}
	go s.execute(ctx)
	return true
}

// Status returns the current state and the outcome of the last completed run.
func (s *Scheduler) Status() JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return JobStatus{
		Name:     s.name,
		Interval: s.interval,
		Running:  s.running,
		LastRun:  s.lastRun,
		LastErr:  s.lastErr,
	}
}

func (s *Scheduler) tick(ctx context.Context) bool {
	if !s.begin() {
		return false
	}
	s.execute(ctx)
	return true
}

func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Info().Msg("previous run still in progress, skipping")
		return false
	}
	s.running = true
	return true
}

func (s *Scheduler) execute(ctx context.Context) {
	start := time.Now()
	err := s.job(ctx)

	s.mu.Lock()
	s.running = false
	s.lastRun = start
	s.lastErr = err
	s.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		s.log.Error().Err(err).Dur("took", time.Since(start)).Msg("scheduled run failed")
	} else if err == nil {
		s.log.Info().Dur("took", time.Since(start)).Msg("scheduled run complete")
	}
}
