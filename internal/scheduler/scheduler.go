// Package scheduler drives periodic jobs such as the world model tick on a
// cron schedule. A job that is still running when its next slot fires is
// skipped, so ticks never overlap.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// #region types

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Stats summarizes a job's runs since the scheduler was created.
type Stats struct {
	Runs     int
	Failures int
	LastRun  time.Time
	LastErr  error
}

// Scheduler owns a cron instance with seconds precision.
type Scheduler struct {
	cron *rcron.Cron

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]rcron.EntryID
	stats   map[string]*Stats
	running bool
}

// #endregion types

// #region constructor

// New creates a stopped scheduler. Specs accept an optional seconds field
// and descriptors such as "@every 1s".
func New() *Scheduler {
	logger := rcron.PrintfLogger(log.Default())
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: rcron.New(
			rcron.WithParser(rcron.NewParser(rcron.SecondOptional|rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor)),
			rcron.WithChain(rcron.SkipIfStillRunning(logger), rcron.Recover(logger)),
		),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]rcron.EntryID),
		stats:   make(map[string]*Stats),
	}
}

// #endregion constructor

// #region add

// Add registers job under name on the given spec.
func (s *Scheduler) Add(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("add job %s: already registered", name)
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("add job %s (%s): %w", name, spec, err)
	}
	s.entries[name] = id
	s.stats[name] = &Stats{}
	log.Printf("[SCHED] registered %s (%s)", name, spec)
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	err := job(s.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[name]
	if st == nil {
		return
	}
	st.Runs++
	st.LastRun = time.Now()
	st.LastErr = err
	if err != nil {
		st.Failures++
		log.Printf("[SCHED] %s failed (%d/%d): %v", name, st.Failures, st.Runs, err)
	}
}

// RunNow runs a registered job synchronously through the same wrapper chain
// as scheduled runs. It is skipped if the job is already running.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %s: not registered", name)
	}
	s.cron.Entry(id).WrappedJob.Run()
	return nil
}

// #endregion add

// #region lifecycle

// Start begins firing jobs. Cancelling ctx stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	n := len(s.entries)
	s.mu.Unlock()

	s.cron.Start()
	log.Printf("[SCHED] started with %d jobs", n)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.ctx.Done():
		}
	}()
}

// Stop halts scheduling and waits up to 5 seconds for running jobs.
// Jobs see their context cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("[SCHED] stop timeout waiting for running jobs")
	}
	log.Printf("[SCHED] stopped")
}

// Stats returns a copy of the named job's counters.
func (s *Scheduler) Stats(name string) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[name]
	if !ok {
		return Stats{}, false
	}
	return *st, true
}

// #endregion lifecycle
