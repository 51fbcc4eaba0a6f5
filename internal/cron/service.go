// Package cron persists scheduled jobs and fires them into the subagent
// pool. One goroutine owns the schedule: it sleeps until the earliest
// next-fire timestamp, collects everything due (clock jumps included), and
// re-arms. Mutations from other goroutines poke it through a wake channel.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/devagent/internal/ids"
)

// FireHandler runs a due job. Errors are recorded on the job state; the
// schedule continues either way.
type FireHandler func(job Job) error

// Service owns the job list and the scheduling loop.
type Service struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	path    string
	handler FireHandler

	wake    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	nowFn func() time.Time // overridable in tests
}

// ErrJobNotFound is returned for operations on unknown job ids.
var ErrJobNotFound = fmt.Errorf("cron: job not found")

func NewService(path string, handler FireHandler) *Service {
	return &Service{
		jobs:    map[string]*Job{},
		path:    path,
		handler: handler,
		wake:    make(chan struct{}, 1),
		nowFn:   time.Now,
	}
}

// Load reads the persisted job list and recomputes next-fire times without
// starting the loop. Used by one-shot CLI commands and by Start.
func (s *Service) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded, err := loadJobs(s.path)
	if err != nil {
		return err
	}
	s.jobs = loaded

	now := s.nowFn()
	for _, j := range s.jobs {
		s.rescheduleLocked(j, now)
	}
	return nil
}

// Start loads persisted jobs, reschedules them, and launches the loop.
func (s *Service) Start(ctx context.Context) error {
	if err := s.Load(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("cron: already started")
	}
	s.persistLocked()

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.started = true
	count := len(s.jobs)
	s.mu.Unlock()

	go s.loop(ctx)

	slog.Info("cron service started", "jobs", count, "state_file", s.path)
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	slog.Info("cron service stopped")
}

// Add creates a job and returns its id. The schedule must validate.
// deleteAfterRun only matters for one-shot "at" jobs: set, the job is
// removed once it fires; clear, it stays listed with its run history.
func (s *Service) Add(name string, schedule Schedule, task, priority string, deleteAfterRun bool) (string, error) {
	if err := schedule.Validate(); err != nil {
		return "", err
	}
	if priority == "" {
		priority = "normal"
	}

	now := s.nowFn()
	job := &Job{
		ID:             ids.New(),
		Name:           name,
		Enabled:        true,
		Schedule:       schedule,
		Task:           task,
		Priority:       priority,
		DeleteAfterRun: deleteAfterRun,
		State:          JobState{LastStatus: StatusIdle},
		CreatedAtMs:    now.UnixMilli(),
	}
	s.rescheduleLocked(job, now)

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.persistLocked()
	s.mu.Unlock()
	s.poke()

	slog.Info("cron job added", "id", job.ID, "name", name, "schedule", schedule.String())
	return job.ID, nil
}

// Enable turns a job on or off. Returns false for unknown ids.
func (s *Service) Enable(id string, on bool) bool {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	job.Enabled = on
	if on {
		s.rescheduleLocked(job, s.nowFn())
	} else {
		job.State.NextRunAtMs = nil
	}
	s.persistLocked()
	s.mu.Unlock()
	s.poke()
	return true
}

// Remove deletes a job. Returns false for unknown ids.
func (s *Service) Remove(id string) bool {
	s.mu.Lock()
	if _, ok := s.jobs[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.jobs, id)
	s.persistLocked()
	s.mu.Unlock()
	s.poke()
	return true
}

// List returns copies of the jobs, oldest first.
func (s *Service) List(enabledOnly bool) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if enabledOnly && !j.Enabled {
			continue
		}
		out = append(out, j.clone())
	}
	sortJobs(out)
	return out
}

// Get returns a copy of one job.
func (s *Service) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return j.clone(), true
}

// RunNow fires a job immediately, outside its schedule. The regular
// next-fire time is untouched. Returns false for unknown ids.
func (s *Service) RunNow(id string) bool {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	snapshot := job.clone()
	s.mu.Unlock()

	s.fire(snapshot, false)
	return true
}

// poke nudges the loop to recompute its timer after a mutation.
func (s *Service) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) loop(ctx context.Context) {
	defer close(s.done)

	for {
		next, ok := s.earliest()

		var timer *time.Timer
		if ok {
			wait := time.Duration(next-s.nowFn().UnixMilli()) * time.Millisecond
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
		} else {
			// Nothing scheduled; sleep until poked.
			timer = time.NewTimer(24 * time.Hour)
		}

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
			continue
		case <-timer.C:
			s.fireDue()
		}
	}
}

// earliest returns the smallest next_run_at_ms among enabled jobs.
func (s *Service) earliest() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best int64
	found := false
	for _, j := range s.jobs {
		if !j.Enabled || j.State.NextRunAtMs == nil {
			continue
		}
		if !found || *j.State.NextRunAtMs < best {
			best = *j.State.NextRunAtMs
			found = true
		}
	}
	return best, found
}

// fireDue collects every job whose next fire time has arrived (clock jumps
// can make that more than one) and runs them.
func (s *Service) fireDue() {
	now := s.nowFn()
	nowMs := now.UnixMilli()

	s.mu.Lock()
	var due []Job
	for _, j := range s.jobs {
		if j.Enabled && j.State.NextRunAtMs != nil && *j.State.NextRunAtMs <= nowMs {
			due = append(due, j.clone())
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		s.fire(job, true)
	}
}

// fire runs the handler for one job and updates its state. When scheduled
// is set the job's next fire time is advanced (or the job deleted).
func (s *Service) fire(snapshot Job, scheduled bool) {
	err := s.callHandler(snapshot)

	now := s.nowFn()
	nowMs := now.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[snapshot.ID]
	if !ok {
		return // removed while firing
	}

	job.State.LastRunAtMs = &nowMs
	job.State.RunCount++
	if err != nil {
		job.State.LastStatus = StatusError
		job.State.LastError = err.Error()
		slog.Warn("cron fire handler failed", "id", job.ID, "name", job.Name, "error", err)
	} else {
		job.State.LastStatus = StatusOK
		job.State.LastError = ""
	}

	if scheduled {
		if job.Schedule.Kind == KindAt && job.DeleteAfterRun {
			delete(s.jobs, job.ID)
		} else {
			s.rescheduleLocked(job, now)
		}
	}
	s.persistLocked()
}

func (s *Service) callHandler(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fire handler panicked: %v", r)
		}
	}()
	if s.handler == nil {
		return nil
	}
	return s.handler(job)
}

// rescheduleLocked computes the job's next fire time. "at" jobs whose time
// has passed get no next fire.
func (s *Service) rescheduleLocked(job *Job, now time.Time) {
	if !job.Enabled {
		job.State.NextRunAtMs = nil
		return
	}
	if next, ok := job.Schedule.NextRun(now); ok {
		job.State.NextRunAtMs = &next
	} else {
		job.State.NextRunAtMs = nil
	}
}

func (s *Service) persistLocked() {
	if s.path == "" {
		return
	}
	if err := saveJobs(s.path, s.jobs); err != nil {
		slog.Warn("failed to persist cron jobs", "error", err)
	}
}

func sortJobs(jobs []Job) {
	for i := 1; i < len(jobs); i++ {
		for k := i; k > 0 && jobs[k].CreatedAtMs < jobs[k-1].CreatedAtMs; k-- {
			jobs[k], jobs[k-1] = jobs[k-1], jobs[k]
		}
	}
}
