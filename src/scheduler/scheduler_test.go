package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coin-observer/src/logger"
	"coin-observer/src/models"
)

// -----------------------------------------------------------------------------

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := NewScheduler(logger.NewLogger("ERROR", "test"))
	t.Cleanup(s.Stop)
	return s
}

// -----------------------------------------------------------------------------

// waitFor polls until the counter reaches want or the deadline passes.
func waitFor(t *testing.T, counter *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if counter.Load() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("counter = %d, want %d", counter.Load(), want)
}

// -----------------------------------------------------------------------------

func TestTickFiresDueJobs(t *testing.T) {
	s := newTestScheduler(t)

	var runs atomic.Int32
	if err := s.AddJob("counter", time.Minute, func() error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Not yet due.
	s.Tick(time.Now().Add(30 * time.Second))
	time.Sleep(50 * time.Millisecond)
	if runs.Load() != 0 {
		t.Fatalf("job fired early: runs = %d", runs.Load())
	}

	// Due now.
	s.Tick(time.Now().Add(2 * time.Minute))
	waitFor(t, &runs, 1)
}

// -----------------------------------------------------------------------------

func TestPausedSchedulerFiresNothing(t *testing.T) {
	s := newTestScheduler(t)

	var runs atomic.Int32
	s.AddJob("counter", time.Minute, func() error {
		runs.Add(1)
		return nil
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Pause()
	if s.State() != models.SchedulerPaused {
		t.Fatalf("state = %s, want %s", s.State(), models.SchedulerPaused)
	}

	s.Tick(time.Now().Add(10 * time.Minute))
	time.Sleep(50 * time.Millisecond)
	if runs.Load() != 0 {
		t.Fatalf("paused scheduler fired a job: runs = %d", runs.Load())
	}

	// Resume and tick: exactly one firing.
	s.Resume()
	s.Tick(time.Now().Add(10 * time.Minute))
	waitFor(t, &runs, 1)
}

// -----------------------------------------------------------------------------

func TestPauseResumeIdempotent(t *testing.T) {
	s := newTestScheduler(t)
	s.AddJob("noop", time.Minute, func() error { return nil })

	// Pausing a stopped scheduler is a no-op.
	s.Pause()
	if s.State() != models.SchedulerStopped {
		t.Fatalf("state = %s, want %s", s.State(), models.SchedulerStopped)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Pause()
	s.Pause()
	if s.State() != models.SchedulerPaused {
		t.Fatalf("state = %s, want %s", s.State(), models.SchedulerPaused)
	}

	s.Resume()
	s.Resume()
	if s.State() != models.SchedulerRunning {
		t.Fatalf("state = %s, want %s", s.State(), models.SchedulerRunning)
	}
}

// -----------------------------------------------------------------------------

func TestSlowJobIsNotStacked(t *testing.T) {
	s := newTestScheduler(t)

	var runs atomic.Int32
	release := make(chan struct{})
	var once sync.Once
	t.Cleanup(func() { once.Do(func() { close(release) }) })

	s.AddJob("slow", time.Minute, func() error {
		runs.Add(1)
		<-release
		return nil
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Tick(time.Now().Add(2 * time.Minute))
	waitFor(t, &runs, 1)

	// Fires while the first instance is still running must be skipped.
	s.Tick(time.Now().Add(4 * time.Minute))
	s.Tick(time.Now().Add(6 * time.Minute))
	time.Sleep(50 * time.Millisecond)
	if runs.Load() != 1 {
		t.Fatalf("overlapping firings ran: runs = %d, want 1", runs.Load())
	}

	once.Do(func() { close(release) })
}

// -----------------------------------------------------------------------------

func TestPanickingJobDoesNotKillScheduler(t *testing.T) {
	s := newTestScheduler(t)

	var after atomic.Int32
	s.AddJob("panics", time.Minute, func() error {
		panic("boom")
	})
	s.AddJob("survives", time.Minute, func() error {
		after.Add(1)
		return nil
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Tick(time.Now().Add(2 * time.Minute))
	waitFor(t, &after, 1)

	// The panicking job records its error and can fire again.
	s.Tick(time.Now().Add(4 * time.Minute))
	waitFor(t, &after, 2)

	status := s.Status()
	for _, j := range status.Jobs {
		if j.Name == "panics" && j.LastError == "" {
			t.Fatal("panic was not recorded in job status")
		}
	}
}

// -----------------------------------------------------------------------------

func TestAddJobRejectsDuplicatesAndRunningState(t *testing.T) {
	s := newTestScheduler(t)

	if err := s.AddJob("a", time.Minute, func() error { return nil }); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := s.AddJob("a", time.Minute, func() error { return nil }); err == nil {
		t.Fatal("expected duplicate job error")
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.AddJob("b", time.Minute, func() error { return nil }); err == nil {
		t.Fatal("expected error adding job while running")
	}
}
