// Package scheduler runs named jobs at fixed intervals.
//
// A job never overlaps itself. Each job has one goroutine that runs its
// ticks serially; a tick that comes due while the previous one (or a manual
// Trigger) is still running is skipped and counted, never queued.
//
// The scheduler knows nothing about the procedures it drives. Time comes
// from a clock.Clock, so tests advance a fake clock instead of sleeping.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sejongpeer/studybuddy/internal/clock"
)

var (
	// ErrJobRunning is returned by Trigger while the job is executing.
	ErrJobRunning = errors.New("job is already running")

	// ErrUnknownJob is returned by Trigger for an unregistered name.
	ErrUnknownJob = errors.New("unknown job")

	// ErrStarted is returned when jobs are registered or Run is called
	// after Run has started.
	ErrStarted = errors.New("scheduler already started")

	// ErrStopped is returned by Trigger once Run is shutting down.
	ErrStopped = errors.New("scheduler stopped")
)

// Func is one tick of a job.
type Func func(ctx context.Context) error

// JobStatus is the bookkeeping for one job.
type JobStatus struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Running      bool          `json:"running"`
	Runs         int           `json:"runs"`
	Skips        int           `json:"skips"`
	LastStart    time.Time     `json:"last_start,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
}

type job struct {
	name     string
	interval time.Duration
	fn       Func

	// Guarded by Scheduler.mu.
	running bool
	status  JobStatus
}

// Scheduler runs registered jobs until its context ends.
//
// Thread-safety: Trigger and Status are safe for concurrent use. Every must
// be called before Run.
type Scheduler struct {
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	jobs    []*job
	byName  map[string]*job
	started bool
	stopped bool // set before inflight.Wait; no Add after it

	inflight sync.WaitGroup
}

// New creates a scheduler with no jobs.
func New(clk clock.Clock, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:  clk,
		logger: logger,
		byName: make(map[string]*job),
	}
}

// Every registers fn to run every interval under name.
func (s *Scheduler) Every(name string, interval time.Duration, fn Func) error {
	if name == "" {
		return errors.New("job name is required")
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive, got %s", name, interval)
	}
	if fn == nil {
		return fmt.Errorf("job %s: nil func", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrStarted
	}
	if _, dup := s.byName[name]; dup {
		return fmt.Errorf("job %s already registered", name)
	}

	j := &job{
		name:     name,
		interval: interval,
		fn:       fn,
		status:   JobStatus{Name: name, Interval: interval},
	}
	s.jobs = append(s.jobs, j)
	s.byName[name] = j
	return nil
}

// Run starts one goroutine per job and blocks until ctx is cancelled.
// It returns after every in-flight tick has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrStarted
	}
	s.started = true
	jobs := append([]*job(nil), s.jobs...)
	s.mu.Unlock()

	var loops sync.WaitGroup
	for _, j := range jobs {
		loops.Add(1)
		go func(j *job) {
			defer loops.Done()
			s.loop(ctx, j)
		}(j)
	}

	s.logger.Info("scheduler started", "jobs", len(jobs))
	<-ctx.Done()
	loops.Wait()

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.inflight.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	ticker := s.clock.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			err := s.execute(ctx, j)
			if errors.Is(err, ErrJobRunning) {
				s.logger.Warn("previous run still in progress, skipping tick", "job", j.name)
			}
		}
	}
}

// Trigger runs the named job now, on the caller's goroutine, and returns
// its error. Returns ErrJobRunning if the job is executing and ErrStopped
// once Run has begun shutting down.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, j)
}

// Status returns every job's bookkeeping in registration order.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = j.status
		out[i].Running = j.running
	}
	return out
}

func (s *Scheduler) execute(ctx context.Context, j *job) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if j.running {
		j.status.Skips++
		s.mu.Unlock()
		return ErrJobRunning
	}
	j.running = true
	s.inflight.Add(1)
	started := s.clock.Now()
	j.status.LastStart = started
	s.mu.Unlock()

	s.logger.Debug("job started", "job", j.name)
	err := s.call(ctx, j)

	s.mu.Lock()
	j.running = false
	j.status.Runs++
	j.status.LastDuration = s.clock.Now().Sub(started)
	j.status.LastError = ""
	if err != nil {
		j.status.LastError = err.Error()
	}
	s.mu.Unlock()
	s.inflight.Done()

	if err != nil {
		s.logger.Error("job failed", "job", j.name, "error", err)
	} else {
		s.logger.Debug("job finished", "job", j.name)
	}
	return err
}

// call runs one tick and turns a panic into an error.
func (s *Scheduler) call(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked",
				"job", j.name,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
	}()
	return j.fn(ctx)
}
