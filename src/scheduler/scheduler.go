package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"coin-observer/src/logger"
	"coin-observer/src/models"
)

// -----------------------------------------------------------------------------

// Job is one periodically fired unit of work. At most one instance of a job
// is in flight at a time: a firing that lands while the previous one is
// still running is skipped, not queued.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func() error

	running   atomic.Bool
	mu        sync.Mutex
	lastRun   time.Time
	nextRun   time.Time
	lastError string
}

// -----------------------------------------------------------------------------

func (j *Job) status() models.MJobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return models.MJobStatus{
		Name:      j.Name,
		Interval:  j.Interval.String(),
		LastRun:   j.lastRun,
		NextRun:   j.nextRun,
		Running:   j.running.Load(),
		LastError: j.lastError,
	}
}

// -----------------------------------------------------------------------------

// Scheduler owns the job table and the running/paused state machine:
// STOPPED -> RUNNING <-> PAUSED -> STOPPED. While paused no job fires, but
// jobs already in flight finish undisturbed.
type Scheduler struct {
	Logger *logger.Logger

	mu    sync.Mutex
	state string
	jobs  []*Job

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// -----------------------------------------------------------------------------

func NewScheduler(log *logger.Logger) *Scheduler {
	return &Scheduler{
		Logger: log,
		state:  models.SchedulerStopped,
	}
}

// -----------------------------------------------------------------------------

// AddJob registers a job. Jobs can only be added before Start.
func (s *Scheduler) AddJob(name string, interval time.Duration, run func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.SchedulerStopped {
		return fmt.Errorf("cannot add job '%s' while scheduler is %s", name, s.state)
	}
	for _, j := range s.jobs {
		if j.Name == name {
			return fmt.Errorf("job '%s' already registered", name)
		}
	}

	s.jobs = append(s.jobs, &Job{Name: name, Interval: interval, Run: run})
	return nil
}

// -----------------------------------------------------------------------------

// Start moves the scheduler to RUNNING and launches the tick loop. Every
// job's first firing is one interval after start.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.SchedulerStopped {
		return fmt.Errorf("scheduler already %s", s.state)
	}

	now := time.Now()
	for _, j := range s.jobs {
		j.mu.Lock()
		j.nextRun = now.Add(j.Interval)
		j.mu.Unlock()
	}

	s.state = models.SchedulerRunning
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop(s.stopCh)

	s.Logger.Info("Scheduler started with %d jobs", len(s.jobs))
	return nil
}

// -----------------------------------------------------------------------------

func (s *Scheduler) loop(stopCh chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.Tick(now)
		case <-stopCh:
			return
		}
	}
}

// -----------------------------------------------------------------------------

// Tick fires every due job once. Exposed so tests can drive the clock
// directly; production calls it from the internal one-second loop.
func (s *Scheduler) Tick(now time.Time) {
	s.mu.Lock()
	if s.state != models.SchedulerRunning {
		s.mu.Unlock()
		return
	}
	jobs := s.jobs
	s.mu.Unlock()

	for _, j := range jobs {
		j.mu.Lock()
		due := !now.Before(j.nextRun)
		if due {
			j.nextRun = now.Add(j.Interval)
		}
		j.mu.Unlock()

		if !due {
			continue
		}

		if !j.running.CompareAndSwap(false, true) {
			s.Logger.Warning("Job '%s' still running, skipping this firing", j.Name)
			continue
		}

		s.wg.Add(1)
		go s.execute(j, now)
	}
}

// -----------------------------------------------------------------------------

// execute runs one job instance. A failing or panicking job is logged and
// released; it never crashes the scheduler or blocks other jobs.
func (s *Scheduler) execute(j *Job, firedAt time.Time) {
	defer s.wg.Done()
	defer j.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("Job '%s' panicked: %v", j.Name, r)
			j.mu.Lock()
			j.lastError = fmt.Sprintf("panic: %v", r)
			j.mu.Unlock()
		}
	}()

	err := j.Run()

	j.mu.Lock()
	j.lastRun = firedAt
	if err != nil {
		j.lastError = err.Error()
	} else {
		j.lastError = ""
	}
	j.mu.Unlock()

	if err != nil {
		s.Logger.Error("Job '%s' failed: %v", j.Name, err)
	}
}

// -----------------------------------------------------------------------------

// Pause stops future firings without interrupting in-flight jobs.
// Pausing a non-running scheduler is an idempotent no-op.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.SchedulerRunning {
		s.Logger.Warning("Pause requested but scheduler is %s", s.state)
		return
	}
	s.state = models.SchedulerPaused
	s.Logger.Info("Scheduler paused")
}

// -----------------------------------------------------------------------------

// Resume re-enables firings. Resuming a non-paused scheduler is an
// idempotent no-op.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.SchedulerPaused {
		s.Logger.Warning("Resume requested but scheduler is %s", s.state)
		return
	}
	s.state = models.SchedulerRunning
	s.Logger.Info("Scheduler resumed")
}

// -----------------------------------------------------------------------------

// Stop halts the tick loop and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == models.SchedulerStopped {
		s.mu.Unlock()
		return
	}
	s.state = models.SchedulerStopped
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.Logger.Info("Scheduler stopped")
}

// -----------------------------------------------------------------------------

// State returns the current state name.
func (s *Scheduler) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// -----------------------------------------------------------------------------

// Status returns a snapshot of the scheduler and all its jobs.
func (s *Scheduler) Status() models.MSchedulerStatus {
	s.mu.Lock()
	state := s.state
	jobs := s.jobs
	s.mu.Unlock()

	status := models.MSchedulerStatus{State: state, Jobs: make([]models.MJobStatus, 0, len(jobs))}
	for _, j := range jobs {
		status.Jobs = append(status.Jobs, j.status())
	}
	return status
}
