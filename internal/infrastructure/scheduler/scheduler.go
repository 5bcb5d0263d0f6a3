// Package scheduler runs the worker's background jobs on their schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/observability"
)

// Job is a unit of background work.
type Job interface {
	// Name identifies the job in logs and metrics.
	Name() string

	// Run executes the job. The context carries the per-run timeout.
	Run(ctx context.Context) error
}

// Schedule decides when a job runs next.
type Schedule interface {
	// Next returns the next run time strictly after now.
	Next(now time.Time) time.Time
}

// entry is a registered job with its schedule and state.
type entry struct {
	job      Job
	schedule Schedule
	timeout  time.Duration

	nextRun  time.Time
	running  bool
	lastRun  time.Time
	lastErr  error
	runCount int64
}

// Scheduler drives registered jobs. One goroutine ticks; each due job runs
// on its own goroutine so a slow job cannot starve the others.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *slog.Logger

	tick    time.Duration
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		entries: make(map[string]*entry),
		logger:  logger,
		tick:    time.Second,
	}
}

// Register adds a job. Registering a duplicate name is an error.
func (s *Scheduler) Register(job Job, schedule Schedule, timeout time.Duration) error {
	if job == nil || schedule == nil {
		return errors.New("job and schedule are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[job.Name()]; ok {
		return fmt.Errorf("job %q already registered", job.Name())
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	s.entries[job.Name()] = &entry{
		job:      job,
		schedule: schedule,
		timeout:  timeout,
		nextRun:  schedule.Next(time.Now()),
	}
	return nil
}

// Start launches the tick loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.entries)))
	return nil
}

// Stop cancels the loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.dispatchDue(ctx, now)
		}
	}
}

func (s *Scheduler) dispatchDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, e := range s.entries {
		if e.running || now.Before(e.nextRun) {
			continue
		}
		e.running = true
		e.nextRun = e.schedule.Next(now)
		s.wg.Add(1)
		go s.runJob(ctx, name, e)
	}
}

func (s *Scheduler) runJob(ctx context.Context, name string, e *entry) {
	defer s.wg.Done()

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("job panicked: %v", p)
			}
		}()
		return e.job.Run(runCtx)
	}()
	took := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		s.logger.Error("job failed",
			slog.String("job", name),
			slog.Duration("took", took),
			slog.Any("error", err))
	} else {
		s.logger.Info("job completed",
			slog.String("job", name),
			slog.Duration("took", took))
	}
	observability.JobRuns.WithLabelValues(name, outcome).Inc()

	s.mu.Lock()
	e.running = false
	e.lastRun = start
	e.lastErr = err
	e.runCount++
	s.mu.Unlock()
}

// RunNow triggers a job immediately, regardless of its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown job %q", name)
	}
	if e.running {
		s.mu.Unlock()
		return fmt.Errorf("job %q is already running", name)
	}
	e.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	s.runJob(ctx, name, e)
	return nil
}

// JobStatus describes one registered job.
type JobStatus struct {
	Name     string
	NextRun  time.Time
	LastRun  time.Time
	LastErr  error
	RunCount int64
	Running  bool
}

// Jobs returns the status of every registered job.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.entries))
	for name, e := range s.entries {
		out = append(out, JobStatus{
			Name:     name,
			NextRun:  e.nextRun,
			LastRun:  e.lastRun,
			LastErr:  e.lastErr,
			RunCount: e.runCount,
			Running:  e.running,
		})
	}
	return out
}
