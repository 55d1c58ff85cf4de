package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/clock"
)

// Job is a named maintenance task, such as closing stale sessions or
// checking store reachability, repeated every Interval.
type Job struct {
	Name     string
	Interval time.Duration
	Fn       func(ctx context.Context) error
}

// Scheduler drives the attendance maintenance jobs off an injectable clock.
type Scheduler struct {
	jobs   []Job
	clock  clock.Clock
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	primed  bool
	started bool
}

// NewScheduler returns a scheduler on clk. A nil clock means real time.
func NewScheduler(clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:  clk,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) AddJob(name string, interval time.Duration, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = append(s.jobs, Job{Name: name, Interval: interval, Fn: fn})
	slog.Info("Maintenance job registered", "name", name, "interval", interval)
}

// Start launches one loop per job. Each job fires right away unless RunOnce
// already ran it, then again on every tick. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(job, !s.primed)
	}
	slog.Info("Maintenance scheduler started", "job_count", len(s.jobs), "primed", s.primed)
}

// Stop cancels the context handed to running jobs and waits for every loop.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	slog.Info("Maintenance scheduler stopped")
}

func (s *Scheduler) loop(job Job, immediate bool) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(job.Interval)
	defer ticker.Stop()

	if immediate {
		s.run(s.ctx, job)
	}
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.run(s.ctx, job)
		}
	}
}

// run never propagates a job error; the next tick is the retry.
func (s *Scheduler) run(ctx context.Context, job Job) {
	began := s.clock.Now()
	if err := job.Fn(ctx); err != nil {
		slog.Error("Maintenance job failed", "name", job.Name, "error", err, "duration", s.clock.Now().Sub(began))
		return
	}
	slog.Debug("Maintenance job completed", "name", job.Name, "duration", s.clock.Now().Sub(began))
}

// RunOnce runs every job synchronously, in registration order, on ctx.
// A later Start skips the immediate run and waits for the first tick.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		s.run(ctx, job)
	}
	s.primed = true
}
