package lumen

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// IntervalScheduler drives a periodic background job. Invocations never
// overlap: a tick that fires while the previous one is still running is
// skipped. Start and Stop are idempotent; Stop prevents future ticks but
// does not abort an in-flight run.
type IntervalScheduler struct {
	interval   time.Duration
	job        func()
	processing atomic.Bool

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// NewIntervalScheduler creates a scheduler that runs job every interval
// once started.
func NewIntervalScheduler(interval time.Duration, job func()) *IntervalScheduler {
	return &IntervalScheduler{interval: interval, job: job}
}

// Start begins scheduling. Calling Start on a running scheduler is a no-op.
func (s *IntervalScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, s.run); err != nil {
		return fmt.Errorf("scheduling %q: %w", spec, err)
	}
	c.Start()

	s.cron = c
	s.started = true
	return nil
}

// Stop prevents future ticks. Calling Stop on a stopped scheduler is a no-op.
func (s *IntervalScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.started = false
}

// IsProcessing reports whether a tick is currently running.
func (s *IntervalScheduler) IsProcessing() bool { return s.processing.Load() }

func (s *IntervalScheduler) run() {
	s.processing.Store(true)
	defer s.processing.Store(false)
	s.job()
}
